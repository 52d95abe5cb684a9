package campaign

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hive-corporation/threatpulse/internal/adapter/resilient"
	"github.com/hive-corporation/threatpulse/internal/core/domain"
	"github.com/hive-corporation/threatpulse/pkg/log"
)

// activationRequest is the payload sent to the campaign-activation service.
type activationRequest struct {
	RecordID          string    `json:"record_id"`
	SimulationID      string    `json:"simulation_id,omitempty"`
	Topic             string    `json:"topic"`
	ThreatLevel       int       `json:"threat_level"`
	LikelihoodScore   float64   `json:"likelihood_score"`
	Source            string    `json:"source,omitempty"`
	GeographicalScope []string  `json:"geographical_scope,omitempty"`
	PredictedKeywords []string  `json:"predicted_keywords,omitempty"`
	TriggeredAt       time.Time `json:"triggered_at"`
	CallbackPath      string    `json:"callback_path"`
}

type activationResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// HTTPActivator asks a remote campaign service to start a response campaign.
// The service either finishes inline ("completed") or accepts the work and
// reports back later through the escalation status endpoint.
type HTTPActivator struct {
	url    string
	token  string
	client *resilient.Client
	logger log.Logger
}

func NewHTTPActivator(url, token string, config resilient.Config, logger log.Logger) *HTTPActivator {
	return &HTTPActivator{
		url:    url,
		token:  token,
		client: resilient.New("campaign", config, logger),
		logger: logger,
	}
}

func (a *HTTPActivator) Activate(ctx context.Context, record domain.EscalationRecord) (domain.EscalationStatus, error) {
	sim := record.Simulation
	body, err := json.Marshal(activationRequest{
		RecordID:          record.ID,
		SimulationID:      record.SimulationID,
		Topic:             sim.Topic,
		ThreatLevel:       sim.ThreatLevel,
		LikelihoodScore:   sim.LikelihoodScore,
		Source:            sim.Source,
		GeographicalScope: sim.GeographicalScope,
		PredictedKeywords: sim.PredictedKeywords,
		TriggeredAt:       record.TriggeredAt,
		CallbackPath:      fmt.Sprintf("/api/v1/escalations/%s/status", record.ID),
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", record.ID)
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("campaign activation: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusAccepted || resp.StatusCode == http.StatusNoContent {
		return domain.EscalationPending, nil
	}

	var out activationResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		// A bare 2xx without a body is an acceptance.
		a.logger.Debugf(ctx, "campaign.HTTPActivator.Activate: undecodable response for %s: %v", record.ID, err)
		return domain.EscalationPending, nil
	}

	switch strings.ToLower(out.Status) {
	case "completed", "done", "success":
		return domain.EscalationCompleted, nil
	case "failed", "error":
		if out.Error == "" {
			out.Error = "campaign service reported failure"
		}
		return "", fmt.Errorf("campaign activation: %s", out.Error)
	default:
		return domain.EscalationPending, nil
	}
}
