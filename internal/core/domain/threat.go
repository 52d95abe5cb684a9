package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// ThreatSimulation is a hypothetical or externally reported threat scenario.
type ThreatSimulation struct {
	ID                string   `json:"id,omitempty"`
	Topic             string   `json:"topic"`
	ThreatLevel       int      `json:"threat_level"`
	LikelihoodScore   float64  `json:"likelihood_score"`
	Source            string   `json:"source,omitempty"`
	GeographicalScope []string `json:"geographical_scope,omitempty"`
	PredictedKeywords []string `json:"predicted_keywords,omitempty"`
}

// Key identifies the simulation for dedupe. Simulations without an ID are
// identified by a fingerprint of their inputs.
func (s ThreatSimulation) Key() string {
	if s.ID != "" {
		return s.ID
	}
	raw := fmt.Sprintf("%s|%d|%g|%s|%s",
		strings.TrimSpace(s.Topic), s.ThreatLevel, s.LikelihoodScore, s.Source,
		strings.Join(s.GeographicalScope, ","))
	sum := sha256.Sum256([]byte(raw))
	return "fp-" + hex.EncodeToString(sum[:8])
}

type EscalationStatus string

const (
	EscalationPending   EscalationStatus = "pending"
	EscalationCompleted EscalationStatus = "completed"
	EscalationFailed    EscalationStatus = "failed"
)

func (s EscalationStatus) Valid() bool {
	switch s {
	case EscalationPending, EscalationCompleted, EscalationFailed:
		return true
	}
	return false
}

// EscalationRecord is produced when a simulation passes the auto-activation gate.
type EscalationRecord struct {
	ID           string           `json:"id"`
	SimulationID string           `json:"simulation_id"`
	Simulation   ThreatSimulation `json:"simulation"`
	TriggeredAt  time.Time        `json:"triggered_at"`
	Status       EscalationStatus `json:"status"`
	Error        string           `json:"error,omitempty"`
	UpdatedAt    time.Time        `json:"updated_at"`
}
