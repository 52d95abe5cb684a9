package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hive-corporation/threatpulse/internal/core/domain"
	"github.com/hive-corporation/threatpulse/internal/core/ports"
	"github.com/hive-corporation/threatpulse/internal/metrics"
	"github.com/hive-corporation/threatpulse/pkg/log"
)

const DefaultPollInterval = 30 * time.Second

// AlertSink receives ingested alerts.
type AlertSink interface {
	Append(alerts ...domain.Alert) int
}

// SimulationSink receives ingested threat simulations.
type SimulationSink interface {
	Evaluate(ctx context.Context, sim domain.ThreatSimulation) (*domain.EscalationRecord, error)
}

// Feed moves batches from poll and push sources into the alert store and the
// escalation evaluator. Every batch is handled in full before the next one
// from the same source.
type Feed struct {
	alerts      AlertSink
	simulations SimulationSink
	polls       []ports.AlertSource
	pushes      []ports.PushSource
	interval    time.Duration
	logger      log.Logger

	gate   sync.RWMutex // held for reading while a batch is ingested
	closed bool
}

func NewFeed(alerts AlertSink, simulations SimulationSink, interval time.Duration, logger log.Logger) *Feed {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Feed{
		alerts:      alerts,
		simulations: simulations,
		interval:    interval,
		logger:      logger,
	}
}

func (f *Feed) AddPollSource(src ports.AlertSource) {
	f.polls = append(f.polls, src)
}

func (f *Feed) AddPushSource(src ports.PushSource) {
	f.pushes = append(f.pushes, src)
}

// Start subscribes to push sources and begins polling. Poll sources are
// queried once immediately, then on every tick. The returned Disposer
// cancels everything and waits; once it returns, no batch is being ingested
// and none will be.
func (f *Feed) Start(ctx context.Context) (Disposer, error) {
	ctx, cancel := context.WithCancel(ctx)

	var stops []func() error
	stopPushes := func() {
		for _, stop := range stops {
			if err := stop(); err != nil {
				f.logger.Warnf(ctx, "service.Feed: stop push source: %v", err)
			}
		}
	}

	for _, src := range f.pushes {
		name := src.Name()
		stop, err := src.Listen(ctx, func(b ports.Batch) {
			f.Ingest(ctx, name, b)
		})
		if err != nil {
			stopPushes()
			cancel()
			return nil, fmt.Errorf("service.Feed.Start: listen on %s: %w", name, err)
		}
		stops = append(stops, stop)
		f.logger.Infof(ctx, "service.Feed.Start: listening on %s", name)
	}

	var wg sync.WaitGroup
	if len(f.polls) > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.pollLoop(ctx)
		}()
	}

	return once(func() {
		f.gate.Lock()
		f.closed = true
		f.gate.Unlock()

		cancel()
		stopPushes()
		wg.Wait()
	}), nil
}

func (f *Feed) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	f.pollAll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.pollAll(ctx)
		}
	}
}

// pollAll fetches from every poll source concurrently and ingests each
// result as it arrives.
func (f *Feed) pollAll(ctx context.Context) {
	timer := metrics.StartPollTimer()
	defer timer.ObserveDuration()

	type result struct {
		name  string
		batch ports.Batch
	}
	results := make(chan result, len(f.polls))

	var wg sync.WaitGroup
	for _, src := range f.polls {
		wg.Add(1)
		go func(s ports.AlertSource) {
			defer wg.Done()
			batch, err := s.Fetch(ctx)
			if err != nil {
				metrics.RecordFeedPoll(s.Name(), "error")
				if !errors.Is(err, context.Canceled) {
					f.logger.Errorf(ctx, "service.Feed.pollAll: fetch from %s: %v", s.Name(), err)
				}
				return
			}
			metrics.RecordFeedPoll(s.Name(), "success")
			results <- result{name: s.Name(), batch: batch}
		}(src)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	for r := range results {
		f.Ingest(ctx, r.name, r.batch)
	}
}

// Ingest routes one batch and returns how many alerts the store inserted.
// It is a no-op once the feed has been disposed or ctx is done.
func (f *Feed) Ingest(ctx context.Context, source string, b ports.Batch) int {
	f.gate.RLock()
	defer f.gate.RUnlock()
	if f.closed || ctx.Err() != nil || b.Empty() {
		return 0
	}

	added := 0
	if len(b.Alerts) > 0 && f.alerts != nil {
		valid := b.Alerts[:0:0]
		for _, a := range b.Alerts {
			if !a.Severity.Valid() {
				f.logger.Warnf(ctx, "service.Feed.Ingest: dropping alert %q from %s: unknown severity %q", a.ID, source, a.Severity)
				continue
			}
			valid = append(valid, a)
		}
		added = f.alerts.Append(valid...)
		metrics.RecordIngested(source, added)
		if added > 0 {
			f.logger.Debugf(ctx, "service.Feed.Ingest: %d new alerts from %s", added, source)
		}
	}

	if f.simulations == nil {
		return added
	}
	for _, sim := range b.Simulations {
		if _, err := f.simulations.Evaluate(ctx, sim); err != nil {
			f.logger.Warnf(ctx, "service.Feed.Ingest: simulation %q from %s rejected: %v", sim.Topic, source, err)
		}
	}
	return added
}
