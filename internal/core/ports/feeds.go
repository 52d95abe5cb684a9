package ports

import (
	"context"

	"github.com/hive-corporation/threatpulse/internal/core/domain"
)

// Batch is what a feed source delivers in one go: classified alerts and/or
// threat simulations.
type Batch struct {
	Alerts      []domain.Alert
	Simulations []domain.ThreatSimulation
}

func (b Batch) Empty() bool {
	return len(b.Alerts) == 0 && len(b.Simulations) == 0
}

// AlertSource is polled by the feed on a fixed interval.
type AlertSource interface {
	Fetch(ctx context.Context) (Batch, error)
	Name() string
}

// PushSource delivers batches as they arrive. Listen registers handler and
// returns a function that deregisters it.
type PushSource interface {
	Listen(ctx context.Context, handler func(Batch)) (stop func() error, err error)
	Name() string
}
