package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hive-corporation/threatpulse/internal/core/domain"
	"github.com/hive-corporation/threatpulse/internal/core/ports"
	"github.com/hive-corporation/threatpulse/pkg/log"
)

const mirrorQueueSize = 256

// Mirror copies store mutations into an AlertRepository. Writes happen on a
// worker goroutine so a slow database never holds up the store; when the
// queue is full the event is dropped and logged.
type Mirror struct {
	repo   ports.AlertRepository
	logger log.Logger

	events chan Event
	wg     sync.WaitGroup
}

func NewMirror(repo ports.AlertRepository, logger log.Logger) *Mirror {
	return &Mirror{
		repo:   repo,
		logger: logger,
		events: make(chan Event, mirrorQueueSize),
	}
}

// Hydrate appends alerts persisted since the given time. Call it before the
// mirror is attached and before the dispatcher, so restored alerts neither
// round-trip to the database nor notify.
func (m *Mirror) Hydrate(ctx context.Context, store *Store, since time.Time, limit int) (int, error) {
	alerts, err := m.repo.FindRecentAlerts(ctx, since, limit)
	if err != nil {
		return 0, fmt.Errorf("service.Mirror.Hydrate: %w", err)
	}
	// Repositories return newest first; Append puts its last argument on top.
	ordered := make([]domain.Alert, len(alerts))
	for i, a := range alerts {
		ordered[len(alerts)-1-i] = a
	}
	return store.Append(ordered...), nil
}

// Attach subscribes to store and starts the writer. The Disposer
// unsubscribes, drains the queue and waits for the writer to exit.
func (m *Mirror) Attach(ctx context.Context, store *Store) Disposer {
	m.wg.Add(1)
	go m.run(ctx)

	var mu sync.Mutex
	closed := false
	unsubscribe := store.Subscribe(func(ev Event) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case m.events <- ev:
		default:
			m.logger.Errorf(ctx, "service.Mirror: queue full, dropped %s event for %d alerts", ev.Type, len(ev.Alerts))
		}
	})

	return once(func() {
		unsubscribe()
		mu.Lock()
		closed = true
		close(m.events)
		mu.Unlock()
		m.wg.Wait()
	})
}

func (m *Mirror) run(ctx context.Context) {
	defer m.wg.Done()
	for ev := range m.events {
		if err := m.write(context.WithoutCancel(ctx), ev); err != nil {
			m.logger.Errorf(ctx, "service.Mirror.run: %v", err)
		}
	}
}

func (m *Mirror) write(ctx context.Context, ev Event) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	switch ev.Type {
	case EventAppended:
		if err := m.repo.SaveAlerts(ctx, ev.Alerts); err != nil {
			return fmt.Errorf("save %d alerts: %w", len(ev.Alerts), err)
		}
	case EventUpdated, EventRemoved:
		for _, a := range ev.Alerts {
			if err := m.repo.UpdateAlertStatus(ctx, a.ID, a.Status); err != nil {
				return fmt.Errorf("update alert %s: %w", a.ID, err)
			}
		}
	}
	return nil
}
