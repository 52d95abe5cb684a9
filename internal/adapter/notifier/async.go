package notifier

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hive-corporation/threatpulse/internal/core/domain"
	"github.com/hive-corporation/threatpulse/internal/core/ports"
	"github.com/hive-corporation/threatpulse/internal/metrics"
	"github.com/hive-corporation/threatpulse/pkg/log"
)

// Async queues desktop notifications and delivers them from a worker so the
// dispatcher never waits on a remote webhook. Notify fails only when the
// queue is full or the worker has stopped.
type Async struct {
	next    ports.DesktopNotifier
	timeout time.Duration
	logger  log.Logger

	mu     sync.RWMutex
	queue  chan ports.DesktopNotification
	closed bool
	wg     sync.WaitGroup
}

func NewAsync(next ports.DesktopNotifier, queueSize int, timeout time.Duration, logger log.Logger) *Async {
	if queueSize <= 0 {
		queueSize = 64
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	a := &Async{
		next:    next,
		timeout: timeout,
		logger:  logger,
		queue:   make(chan ports.DesktopNotification, queueSize),
	}
	a.wg.Add(1)
	go a.run()
	return a
}

func (a *Async) Permission(ctx context.Context) ports.Permission {
	return a.next.Permission(ctx)
}

func (a *Async) RequestPermission(ctx context.Context) ports.Permission {
	return a.next.RequestPermission(ctx)
}

func (a *Async) Notify(ctx context.Context, n ports.DesktopNotification) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return fmt.Errorf("%w: desktop queue closed", domain.ErrNotificationFailed)
	}
	select {
	case a.queue <- n:
		return nil
	default:
		return fmt.Errorf("%w: desktop queue full", domain.ErrNotificationFailed)
	}
}

func (a *Async) run() {
	defer a.wg.Done()
	for n := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		if err := a.next.Notify(ctx, n); err != nil {
			metrics.RecordNotificationFailure("desktop")
			a.logger.Warnf(ctx, "notifier.Async.run: alert %s: %v", n.AlertID, err)
		}
		cancel()
	}
}

// Close stops accepting notifications and waits until queued ones are sent.
func (a *Async) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()
	a.wg.Wait()
}
