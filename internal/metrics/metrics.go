package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// metricsOnce ensures metrics are registered only once
	metricsOnce sync.Once

	// alertsIngestedTotal tracks alerts accepted by the store per source
	alertsIngestedTotal *prometheus.CounterVec

	// alertsDuplicateTotal tracks appends dropped by id dedupe
	alertsDuplicateTotal prometheus.Counter

	// alertTransitionsTotal tracks lifecycle transitions by target status
	alertTransitionsTotal *prometheus.CounterVec

	// notificationsTotal tracks notifications emitted by channel and priority
	notificationsTotal *prometheus.CounterVec

	// notificationFailuresTotal tracks swallowed channel failures
	notificationFailuresTotal *prometheus.CounterVec

	// notificationBurstsTotal tracks dispatcher evaluations that emitted something
	notificationBurstsTotal prometheus.Counter

	// escalationsTotal tracks escalation record status changes
	escalationsTotal *prometheus.CounterVec

	// urgencyTiersTotal tracks the distribution of computed tiers
	urgencyTiersTotal *prometheus.CounterVec

	// feedPollsTotal tracks feed polls by source and outcome
	feedPollsTotal *prometheus.CounterVec

	// feedPollDuration tracks latency of a full poll round
	feedPollDuration prometheus.Histogram

	// visibleAlerts tracks the size of the visible collection
	visibleAlerts prometheus.Gauge

	// collaboratorErrorsTotal tracks outbound call failures by collaborator and kind
	collaboratorErrorsTotal *prometheus.CounterVec
)

// InitMetrics registers all Prometheus collectors.
// This should be called once at application startup
func InitMetrics() {
	metricsOnce.Do(func() {
		alertsIngestedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "threatpulse_alerts_ingested_total",
				Help: "Total number of alerts accepted into the store by source",
			},
			[]string{"source"},
		)

		alertsDuplicateTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "threatpulse_alerts_duplicate_total",
				Help: "Total number of appended alerts dropped because their id was already known",
			},
		)

		alertTransitionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "threatpulse_alert_transitions_total",
				Help: "Total number of alert lifecycle transitions by target status",
			},
			[]string{"status"},
		)

		notificationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "threatpulse_notifications_total",
				Help: "Total number of notifications emitted by channel and priority",
			},
			[]string{"channel", "priority"},
		)

		notificationFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "threatpulse_notification_failures_total",
				Help: "Total number of swallowed notification channel failures",
			},
			[]string{"channel"},
		)

		notificationBurstsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "threatpulse_notification_bursts_total",
				Help: "Total number of dispatcher evaluations that emitted notifications",
			},
		)

		escalationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "threatpulse_escalations_total",
				Help: "Total number of escalation records by status",
			},
			[]string{"status"},
		)

		urgencyTiersTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "threatpulse_urgency_tiers_total",
				Help: "Distribution of computed urgency tiers",
			},
			[]string{"tier"},
		)

		feedPollsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "threatpulse_feed_polls_total",
				Help: "Total number of feed source polls by source and outcome",
			},
			[]string{"source", "outcome"},
		)

		feedPollDuration = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "threatpulse_feed_poll_duration_seconds",
				Help:    "Duration of one feed poll round in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
		)

		visibleAlerts = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "threatpulse_visible_alerts",
				Help: "Number of alerts currently visible in the store",
			},
		)

		collaboratorErrorsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "threatpulse_collaborator_errors_total",
				Help: "Total number of failed calls to external collaborators by error kind",
			},
			[]string{"collaborator", "kind"},
		)
	})
}

// RecordIngested records alerts accepted from a source
func RecordIngested(source string, n int) {
	if alertsIngestedTotal != nil && n > 0 {
		alertsIngestedTotal.WithLabelValues(source).Add(float64(n))
	}
}

// RecordDuplicates records alerts dropped by dedupe
func RecordDuplicates(n int) {
	if alertsDuplicateTotal != nil && n > 0 {
		alertsDuplicateTotal.Add(float64(n))
	}
}

// RecordTransition records an alert lifecycle transition
func RecordTransition(status string) {
	if alertTransitionsTotal != nil {
		alertTransitionsTotal.WithLabelValues(status).Inc()
	}
}

// RecordNotification records an emitted notification
// channel: "toast", "desktop", "audio"
func RecordNotification(channel, priority string) {
	if notificationsTotal != nil {
		notificationsTotal.WithLabelValues(channel, priority).Inc()
	}
}

// RecordNotificationFailure records a swallowed channel failure
func RecordNotificationFailure(channel string) {
	if notificationFailuresTotal != nil {
		notificationFailuresTotal.WithLabelValues(channel).Inc()
	}
}

// RecordBurst records a dispatcher evaluation that emitted notifications
func RecordBurst() {
	if notificationBurstsTotal != nil {
		notificationBurstsTotal.Inc()
	}
}

// RecordEscalation records an escalation record reaching status
func RecordEscalation(status string) {
	if escalationsTotal != nil {
		escalationsTotal.WithLabelValues(status).Inc()
	}
}

// RecordUrgencyTier records a computed tier
func RecordUrgencyTier(tier string) {
	if urgencyTiersTotal != nil {
		urgencyTiersTotal.WithLabelValues(tier).Inc()
	}
}

// RecordFeedPoll records one source poll
// outcome: "success", "error"
func RecordFeedPoll(source, outcome string) {
	if feedPollsTotal != nil {
		feedPollsTotal.WithLabelValues(source, outcome).Inc()
	}
}

// SetVisibleAlerts updates the visible collection gauge
func SetVisibleAlerts(n int) {
	if visibleAlerts != nil {
		visibleAlerts.Set(float64(n))
	}
}

// RecordCollaboratorError records an outbound call failure
// kind: "connection", "timeout", "rate_limit", "auth", "server_error", "http_error", "circuit_open"
func RecordCollaboratorError(collaborator, kind string) {
	if collaboratorErrorsTotal != nil {
		collaboratorErrorsTotal.WithLabelValues(collaborator, kind).Inc()
	}
}

// PollTimer is a helper for timing poll rounds
type PollTimer struct {
	start time.Time
}

// StartPollTimer creates a new timer for measuring a poll round
func StartPollTimer() *PollTimer {
	return &PollTimer{start: time.Now()}
}

// ObserveDuration records the elapsed time since the timer started
func (t *PollTimer) ObserveDuration() {
	if t != nil && feedPollDuration != nil {
		feedPollDuration.Observe(time.Since(t.start).Seconds())
	}
}
