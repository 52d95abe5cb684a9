package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/hive-corporation/threatpulse/internal/core/domain"
	"github.com/hive-corporation/threatpulse/internal/core/ports"
	"github.com/hive-corporation/threatpulse/internal/metrics"
	"github.com/hive-corporation/threatpulse/pkg/log"
)

// DispatcherConfig tunes notification volume.
type DispatcherConfig struct {
	ExcerptLength      int           // body excerpt cap, in runes
	MaxDesktopPerBurst int           // 0 means unlimited
	AudioInterval      time.Duration // minimum spacing between urgent cues
}

func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		ExcerptLength:      100,
		MaxDesktopPerBurst: 5,
		AudioInterval:      2 * time.Second,
	}
}

// Channels groups the notification outputs. Toaster is required; the
// others may be nil.
type Channels struct {
	Toaster ports.Toaster
	Desktop ports.DesktopNotifier
	Audio   ports.AudioPlayer
}

// Burst is the outcome of one dispatcher evaluation.
type Burst struct {
	New          []domain.Alert // newly observed alerts, in notification order
	Interruptive int
	Quiet        int
	Desktop      int
	Audio        bool
}

// Dispatcher turns growth of the visible alert collection into toasts,
// desktop notifications and audio cues. It remembers how many alerts it has
// already seen and only notifies for the difference.
type Dispatcher struct {
	cfg      DispatcherConfig
	channels Channels
	logger   log.Logger

	mu       sync.Mutex
	lastSeen int

	enabled  atomic.Bool
	permOnce sync.Once
	audio    *rate.Limiter
}

func NewDispatcher(cfg DispatcherConfig, channels Channels, logger log.Logger) *Dispatcher {
	if cfg.ExcerptLength <= 0 {
		cfg.ExcerptLength = DefaultDispatcherConfig().ExcerptLength
	}
	limit := rate.Inf
	if cfg.AudioInterval > 0 {
		limit = rate.Every(cfg.AudioInterval)
	}
	d := &Dispatcher{
		cfg:      cfg,
		channels: channels,
		logger:   logger,
		audio:    rate.NewLimiter(limit, 1),
	}
	d.enabled.Store(true)
	return d
}

// Mount asks for desktop notification permission. Only the first call
// reaches the platform; later mounts reuse whatever the user answered.
func (d *Dispatcher) Mount(ctx context.Context) {
	if d.channels.Desktop == nil {
		return
	}
	d.permOnce.Do(func() {
		if d.channels.Desktop.Permission(ctx) != ports.PermissionDefault {
			return
		}
		p := d.channels.Desktop.RequestPermission(ctx)
		d.logger.Infof(ctx, "service.Dispatcher.Mount: desktop notification permission %s", p)
	})
}

// Attach starts watching store. Alerts already present are treated as seen.
func (d *Dispatcher) Attach(ctx context.Context, store *Store) Disposer {
	return store.SubscribeFrom(func(visible int) {
		d.mu.Lock()
		d.lastSeen = visible
		d.mu.Unlock()
	}, func(ev Event) {
		d.Evaluate(ctx, ev.Visible)
	})
}

// SetEnabled toggles notifications. While disabled the seen-count keeps
// tracking the collection, so re-enabling does not replay a backlog.
func (d *Dispatcher) SetEnabled(enabled bool) {
	d.enabled.Store(enabled)
}

func (d *Dispatcher) Enabled() bool {
	return d.enabled.Load()
}

// Evaluate compares visible (most recent first) against the previously seen
// count. When the collection grew by k, the first k alerts are new; they are
// ranked and notified. A shrinking or unchanged collection only resets the
// count.
func (d *Dispatcher) Evaluate(ctx context.Context, visible []domain.Alert) Burst {
	d.mu.Lock()
	defer d.mu.Unlock()

	current := len(visible)
	if current <= d.lastSeen {
		d.lastSeen = current
		return Burst{}
	}
	delta := current - d.lastSeen
	d.lastSeen = current

	fresh := make([]domain.Alert, delta)
	for i := range fresh {
		fresh[i] = visible[i].Clone()
	}
	domain.SortAlerts(fresh)

	burst := Burst{New: fresh}
	if !d.enabled.Load() {
		return burst
	}

	for _, a := range fresh {
		if a.Interruptive() {
			burst.Interruptive++
			d.toast(ctx, d.interruptiveToast(a))
			if d.desktop(ctx, a, burst.Desktop) {
				burst.Desktop++
			}
		} else {
			burst.Quiet++
			d.toast(ctx, d.quietToast(a))
		}
	}

	if burst.Interruptive > 0 {
		burst.Audio = d.play(ctx, ports.CueUrgent)
	}
	metrics.RecordBurst()
	return burst
}

func (d *Dispatcher) interruptiveToast(a domain.Alert) ports.Toast {
	title := fmt.Sprintf("High-severity alert on %s", a.Platform)
	if a.Category == domain.CategoryCustomerEnquiry {
		title = fmt.Sprintf("Customer enquiry on %s", a.Platform)
	}
	return ports.Toast{
		Kind:     ports.KindAlert,
		Priority: ports.PriorityHigh,
		Title:    title,
		Body:     d.body(a),
		AlertID:  a.ID,
	}
}

func (d *Dispatcher) quietToast(a domain.Alert) ports.Toast {
	return ports.Toast{
		Kind:     ports.KindAlert,
		Priority: ports.PriorityLow,
		Title:    fmt.Sprintf("New %s alert on %s", a.Severity, a.Platform),
		Body:     d.body(a),
		AlertID:  a.ID,
	}
}

func (d *Dispatcher) body(a domain.Alert) string {
	excerpt := domain.Excerpt(a.Content, d.cfg.ExcerptLength)
	if target := domain.NotificationTarget(a); target != "" {
		return target + ": " + excerpt
	}
	return excerpt
}

func (d *Dispatcher) toast(ctx context.Context, t ports.Toast) {
	if d.channels.Toaster == nil {
		return
	}
	if err := d.channels.Toaster.Toast(ctx, t); err != nil {
		notificationFailed(ctx, d.logger, "service.Dispatcher.toast", "toast", err)
		return
	}
	metrics.RecordNotification("toast", string(t.Priority))
}

func (d *Dispatcher) desktop(ctx context.Context, a domain.Alert, sent int) bool {
	if d.channels.Desktop == nil {
		return false
	}
	if d.cfg.MaxDesktopPerBurst > 0 && sent >= d.cfg.MaxDesktopPerBurst {
		return false
	}
	if d.channels.Desktop.Permission(ctx) != ports.PermissionGranted {
		return false
	}

	n := ports.DesktopNotification{
		Title:   fmt.Sprintf("%s alert: %s", a.Severity, a.Platform),
		Body:    d.body(a),
		AlertID: a.ID,
		Tag:     "alert-" + a.ID,
	}
	if err := d.channels.Desktop.Notify(ctx, n); err != nil {
		notificationFailed(ctx, d.logger, "service.Dispatcher.desktop", "desktop", err)
		return false
	}
	metrics.RecordNotification("desktop", string(ports.PriorityHigh))
	return true
}

func (d *Dispatcher) play(ctx context.Context, cue ports.Cue) bool {
	if d.channels.Audio == nil || !d.audio.Allow() {
		return false
	}
	if err := d.channels.Audio.Play(ctx, cue); err != nil {
		notificationFailed(ctx, d.logger, "service.Dispatcher.play", "audio", err)
		return false
	}
	metrics.RecordNotification("audio", string(ports.PriorityHigh))
	return true
}

// notificationFailed counts and logs a swallowed channel failure. Every
// channel reports at warn level.
func notificationFailed(ctx context.Context, logger log.Logger, caller, channel string, err error) {
	metrics.RecordNotificationFailure(channel)
	logger.Warnf(ctx, "%s: %v", caller, fmt.Errorf("%w: %s: %v", domain.ErrNotificationFailed, channel, err))
}
