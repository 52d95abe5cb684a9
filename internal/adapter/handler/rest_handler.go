package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/hive-corporation/threatpulse/internal/core/domain"
	"github.com/hive-corporation/threatpulse/internal/core/ports"
	"github.com/hive-corporation/threatpulse/internal/core/service"
	"github.com/hive-corporation/threatpulse/pkg/log"
)

// maxBodyBytes bounds webhook and simulation payloads.
const maxBodyBytes = 1 << 20

const defaultEscalationLimit = 50

type RestHandler struct {
	store      *service.Store
	escalation *service.EscalationEvaluator
	feed       *service.Feed
	dispatcher *service.Dispatcher
	logger     log.Logger
}

func NewRestHandler(
	store *service.Store,
	escalation *service.EscalationEvaluator,
	feed *service.Feed,
	dispatcher *service.Dispatcher,
	logger log.Logger,
) *RestHandler {
	return &RestHandler{
		store:      store,
		escalation: escalation,
		feed:       feed,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Register mounts every REST route on r.
func (h *RestHandler) Register(r *mux.Router) {
	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/health", h.Health).Methods("GET")

	api.HandleFunc("/alerts", h.ListAlerts).Methods("GET")
	api.HandleFunc("/alerts", h.IngestAlerts).Methods("POST")
	api.HandleFunc("/alerts/{id}/read", h.transition(h.store.MarkRead)).Methods("POST")
	api.HandleFunc("/alerts/{id}/action", h.transition(h.store.MarkActioned)).Methods("POST")
	api.HandleFunc("/alerts/{id}/dismiss", h.transition(h.store.Dismiss)).Methods("POST")

	api.HandleFunc("/urgency", h.Urgency).Methods("GET")
	api.HandleFunc("/simulations", h.EvaluateSimulation).Methods("POST")
	api.HandleFunc("/escalations", h.ListEscalations).Methods("GET")
	api.HandleFunc("/escalations/{id}/status", h.ReportEscalationStatus).Methods("PUT")

	api.HandleFunc("/notifications", h.NotificationSettings).Methods("GET")
	api.HandleFunc("/notifications", h.UpdateNotificationSettings).Methods("PUT")
}

// Health check endpoint
func (h *RestHandler) Health(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"service":   "threatpulse-api",
	}
	writeJSON(w, http.StatusOK, response)
}

// ListAlerts returns the filtered, ranked view of visible alerts.
func (h *RestHandler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter, err := domain.ParseFilter(q.Get("severity"), q.Get("status"), q.Get("category"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	all := h.store.Snapshot()
	alerts := domain.ApplyFilter(all, filter)

	newCount, enquiries := 0, 0
	for _, a := range all {
		if a.Status == domain.StatusNew {
			newCount++
		}
		if a.Category == domain.CategoryCustomerEnquiry {
			enquiries++
		}
	}

	response := map[string]interface{}{
		"count":                  len(alerts),
		"new_count":              newCount,
		"customer_enquiry_count": enquiries,
		"alerts":                 alerts,
	}
	writeJSON(w, http.StatusOK, response)
}

// IngestAlerts accepts one alert or an array of alerts from an upstream
// classifier and routes them through the feed.
func (h *RestHandler) IngestAlerts(w http.ResponseWriter, r *http.Request) {
	var alerts []domain.Alert
	if err := decodeOneOrMany(r, &alerts); err != nil {
		h.logger.Warnf(r.Context(), "handler.RestHandler.IngestAlerts: invalid payload: %v", err)
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	added := h.feed.Ingest(ctx, "webhook", ports.Batch{Alerts: alerts})

	response := map[string]interface{}{
		"status":   "received",
		"received": len(alerts),
		"visible":  h.store.Len(),
		"added":    added,
	}
	writeJSON(w, http.StatusAccepted, response)
}

func (h *RestHandler) transition(apply func(id string) bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		if _, ok := h.store.Get(id); !ok {
			writeError(w, http.StatusNotFound, domain.ErrUnknownAlert.Error())
			return
		}

		changed := apply(id)
		alert, _ := h.store.Get(id)
		response := map[string]interface{}{
			"id":      id,
			"changed": changed,
			"status":  alert.Status,
		}
		writeJSON(w, http.StatusOK, response)
	}
}

// Urgency scores a threat level and likelihood pair.
func (h *RestHandler) Urgency(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	level, err := strconv.Atoi(q.Get("threat_level"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid 'threat_level' parameter")
		return
	}
	likelihood, err := strconv.ParseFloat(q.Get("likelihood"), 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid 'likelihood' parameter")
		return
	}

	urgency, err := domain.ComputeUrgency(level, likelihood)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	activate, _ := domain.ShouldAutoActivate(domain.ThreatSimulation{ThreatLevel: level, LikelihoodScore: likelihood})

	response := map[string]interface{}{
		"score":         urgency.Score,
		"tier":          urgency.Tier,
		"auto_activate": activate,
	}
	writeJSON(w, http.StatusOK, response)
}

// EvaluateSimulation runs a threat simulation through the escalation gate.
func (h *RestHandler) EvaluateSimulation(w http.ResponseWriter, r *http.Request) {
	var sim domain.ThreatSimulation
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&sim); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	rec, err := h.escalation.Evaluate(ctx, sim)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Errorf(ctx, "handler.RestHandler.EvaluateSimulation: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to evaluate simulation")
		return
	}

	urgency, _ := domain.ComputeUrgency(sim.ThreatLevel, sim.LikelihoodScore)
	response := map[string]interface{}{
		"urgency":    urgency,
		"escalated":  rec != nil,
		"escalation": rec,
		"simulation": sim.Key(),
	}
	writeJSON(w, http.StatusOK, response)
}

// ListEscalations returns the most recent escalation records.
func (h *RestHandler) ListEscalations(w http.ResponseWriter, r *http.Request) {
	limit := defaultEscalationLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid 'limit' parameter")
			return
		}
		limit = n
	}

	records := h.escalation.Records(limit)
	response := map[string]interface{}{
		"count":       len(records),
		"escalations": records,
	}
	writeJSON(w, http.StatusOK, response)
}

type statusReport struct {
	Status domain.EscalationStatus `json:"status"`
	Error  string                  `json:"error,omitempty"`
}

// ReportEscalationStatus is the callback the campaign collaborator uses to
// settle a pending activation.
func (h *RestHandler) ReportEscalationStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var report statusReport
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&report); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	changed, err := h.escalation.ReportStatus(ctx, id, report.Status, report.Error)
	switch {
	case errors.Is(err, domain.ErrUnknownEscalation):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		h.logger.Errorf(ctx, "handler.RestHandler.ReportEscalationStatus: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to update escalation")
		return
	}

	rec, _ := h.escalation.Get(id)
	response := map[string]interface{}{
		"id":      id,
		"changed": changed,
		"status":  rec.Status,
	}
	writeJSON(w, http.StatusOK, response)
}

type notificationSettings struct {
	Enabled *bool `json:"enabled"`
}

func (h *RestHandler) NotificationSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": h.dispatcher.Enabled()})
}

func (h *RestHandler) UpdateNotificationSettings(w http.ResponseWriter, r *http.Request) {
	var settings notificationSettings
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&settings); err != nil || settings.Enabled == nil {
		writeError(w, http.StatusBadRequest, "expected {\"enabled\": bool}")
		return
	}

	h.dispatcher.SetEnabled(*settings.Enabled)
	h.logger.Infof(r.Context(), "handler.RestHandler.UpdateNotificationSettings: notifications enabled=%t", *settings.Enabled)
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": h.dispatcher.Enabled()})
}

// Helper functions

func decodeOneOrMany[T any](r *http.Request, out *[]T) error {
	var raw json.RawMessage
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&raw); err != nil {
		return err
	}
	if bytes.HasPrefix(bytes.TrimSpace(raw), []byte("[")) {
		return json.Unmarshal(raw, out)
	}
	var one T
	if err := json.Unmarshal(raw, &one); err != nil {
		return err
	}
	*out = []T{one}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	// The status line is already out; a failed body write means the client left.
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
