package ports

import (
	"context"

	"github.com/hive-corporation/threatpulse/internal/core/domain"
)

// CampaignActivator starts a downstream response campaign for an escalation.
// It answers with EscalationPending when the collaborator accepted the work
// and will report back later, or EscalationCompleted when it finished inline.
// Callers run it off the hot path.
type CampaignActivator interface {
	Activate(ctx context.Context, record domain.EscalationRecord) (domain.EscalationStatus, error)
}
