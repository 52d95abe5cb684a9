package ports

import (
	"context"
	"time"

	"github.com/hive-corporation/threatpulse/internal/core/domain"
)

// EscalationRepository persists escalation records.
type EscalationRepository interface {
	SaveEscalation(ctx context.Context, record domain.EscalationRecord) error
	UpdateEscalationStatus(ctx context.Context, id string, status domain.EscalationStatus, reason string, at time.Time) error
	FindEscalation(ctx context.Context, id string) (*domain.EscalationRecord, error)
	// FindLatestEscalation returns the newest record whose simulation key
	// matches, or nil when there is none.
	FindLatestEscalation(ctx context.Context, simulationKey string) (*domain.EscalationRecord, error)
	ListEscalations(ctx context.Context, limit int) ([]domain.EscalationRecord, error)
}

// AlertRepository mirrors the alert store into durable storage.
type AlertRepository interface {
	SaveAlerts(ctx context.Context, alerts []domain.Alert) error
	UpdateAlertStatus(ctx context.Context, id string, status domain.Status) error
	FindRecentAlerts(ctx context.Context, since time.Time, limit int) ([]domain.Alert, error)
}
