package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/hive-corporation/threatpulse/internal/core/domain"
	"github.com/hive-corporation/threatpulse/internal/core/ports"
	"github.com/hive-corporation/threatpulse/internal/metrics"
	"github.com/hive-corporation/threatpulse/pkg/log"
)

type EscalationConfig struct {
	ActivationTimeout time.Duration
	NoticeCacheSize   int
}

func DefaultEscalationConfig() EscalationConfig {
	return EscalationConfig{
		ActivationTimeout: 30 * time.Second,
		NoticeCacheSize:   1024,
	}
}

// EscalationEvaluator runs the auto-activation gate over threat simulations,
// creates at most one live record per simulation and hands each record to
// the campaign activator in the background.
type EscalationEvaluator struct {
	cfg       EscalationConfig
	repo      ports.EscalationRepository
	activator ports.CampaignActivator
	toaster   ports.Toaster
	audio     ports.AudioPlayer
	logger    log.Logger
	now       func() time.Time

	mu      sync.Mutex
	bySim   map[string]string // simulation key -> latest record id
	records map[string]*domain.EscalationRecord
	order   []string // record ids, oldest first

	failureNotices *lru.Cache[string, struct{}]

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewEscalationEvaluator wires the evaluator. repo, activator and the
// notification channels may each be nil.
func NewEscalationEvaluator(
	cfg EscalationConfig,
	repo ports.EscalationRepository,
	activator ports.CampaignActivator,
	channels Channels,
	logger log.Logger,
) (*EscalationEvaluator, error) {
	if cfg.NoticeCacheSize <= 0 {
		cfg.NoticeCacheSize = DefaultEscalationConfig().NoticeCacheSize
	}
	if cfg.ActivationTimeout <= 0 {
		cfg.ActivationTimeout = DefaultEscalationConfig().ActivationTimeout
	}
	notices, err := lru.New[string, struct{}](cfg.NoticeCacheSize)
	if err != nil {
		return nil, fmt.Errorf("service.NewEscalationEvaluator: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &EscalationEvaluator{
		cfg:            cfg,
		repo:           repo,
		activator:      activator,
		toaster:        channels.Toaster,
		audio:          channels.Audio,
		logger:         logger,
		now:            time.Now,
		bySim:          make(map[string]string),
		records:        make(map[string]*domain.EscalationRecord),
		failureNotices: notices,
		ctx:            ctx,
		cancel:         cancel,
	}, nil
}

// Evaluate returns nil when the gate does not fire. When it fires, the
// simulation's live record is returned, creating one if none exists yet or
// the previous one failed. Out-of-range inputs yield ErrInvalidInput.
func (e *EscalationEvaluator) Evaluate(ctx context.Context, sim domain.ThreatSimulation) (*domain.EscalationRecord, error) {
	urgency, err := domain.ComputeUrgency(sim.ThreatLevel, sim.LikelihoodScore)
	if err != nil {
		return nil, err
	}
	metrics.RecordUrgencyTier(string(urgency.Tier))

	fire, err := domain.ShouldAutoActivate(sim)
	if err != nil {
		return nil, err
	}
	if !fire {
		return nil, nil
	}

	key := sim.Key()
	e.loadBySimulation(ctx, key)
	now := e.now()

	e.mu.Lock()
	if id, ok := e.bySim[key]; ok {
		if existing := e.records[id]; existing.Status != domain.EscalationFailed {
			rec := *existing
			e.mu.Unlock()
			return &rec, nil
		}
	}
	rec := domain.EscalationRecord{
		ID:           uuid.NewString(),
		SimulationID: sim.ID,
		Simulation:   sim,
		TriggeredAt:  now,
		Status:       domain.EscalationPending,
		UpdatedAt:    now,
	}
	stored := rec
	e.records[rec.ID] = &stored
	e.bySim[key] = rec.ID
	e.order = append(e.order, rec.ID)
	e.mu.Unlock()

	metrics.RecordEscalation(string(domain.EscalationPending))
	e.logger.Infof(ctx, "service.EscalationEvaluator.Evaluate: record %s for %q (level %d, likelihood %.2f, %s)",
		rec.ID, sim.Topic, sim.ThreatLevel, sim.LikelihoodScore, urgency.Tier)

	if e.repo != nil {
		if err := e.repo.SaveEscalation(ctx, rec); err != nil {
			e.logger.Errorf(ctx, "service.EscalationEvaluator.Evaluate: save record %s: %v", rec.ID, err)
		}
	}

	e.notify(ctx, ports.Toast{
		Kind:     ports.KindEscalation,
		Priority: ports.PriorityHigh,
		Title:    "Auto-activation triggered",
		Body: fmt.Sprintf("%s: threat level %d, likelihood %.0f%%. Response campaign activation started.",
			domain.Excerpt(sim.Topic, 80), sim.ThreatLevel, sim.LikelihoodScore*100),
		RecordID: rec.ID,
	})

	e.wg.Add(1)
	go e.activate(rec)

	return &rec, nil
}

func (e *EscalationEvaluator) activate(rec domain.EscalationRecord) {
	defer e.wg.Done()

	if e.activator == nil {
		e.logger.Warnf(e.ctx, "service.EscalationEvaluator.activate: no campaign activator, record %s stays pending", rec.ID)
		return
	}

	ctx, cancel := context.WithTimeout(e.ctx, e.cfg.ActivationTimeout)
	defer cancel()

	status, err := e.activator.Activate(ctx, rec)
	if err != nil {
		if errors.Is(err, context.Canceled) && e.ctx.Err() != nil {
			return
		}
		reason := fmt.Errorf("%w: %v", domain.ErrCollaborator, err).Error()
		if _, rerr := e.ReportStatus(e.ctx, rec.ID, domain.EscalationFailed, reason); rerr != nil {
			e.logger.Errorf(e.ctx, "service.EscalationEvaluator.activate: %v", rerr)
		}
		return
	}
	if status == domain.EscalationCompleted {
		if _, rerr := e.ReportStatus(e.ctx, rec.ID, domain.EscalationCompleted, ""); rerr != nil {
			e.logger.Errorf(e.ctx, "service.EscalationEvaluator.activate: %v", rerr)
		}
	}
}

// ReportStatus records the collaborator's verdict on a pending record.
// Records leave pending exactly once; later reports return false. A failure
// raises a single notice.
func (e *EscalationEvaluator) ReportStatus(ctx context.Context, id string, status domain.EscalationStatus, reason string) (bool, error) {
	if status != domain.EscalationCompleted && status != domain.EscalationFailed {
		return false, fmt.Errorf("service.EscalationEvaluator.ReportStatus: %w: status %q", domain.ErrInvalidInput, status)
	}

	if err := e.loadRecord(ctx, id); err != nil {
		return false, fmt.Errorf("service.EscalationEvaluator.ReportStatus: %w", err)
	}

	e.mu.Lock()
	rec, ok := e.records[id]
	if !ok {
		e.mu.Unlock()
		return false, fmt.Errorf("service.EscalationEvaluator.ReportStatus: %w: %s", domain.ErrUnknownEscalation, id)
	}
	if rec.Status != domain.EscalationPending {
		e.mu.Unlock()
		return false, nil
	}
	now := e.now()
	rec.Status = status
	rec.Error = reason
	rec.UpdatedAt = now
	topic := rec.Simulation.Topic
	e.mu.Unlock()

	metrics.RecordEscalation(string(status))

	if e.repo != nil {
		if err := e.repo.UpdateEscalationStatus(ctx, id, status, reason, now); err != nil {
			e.logger.Errorf(ctx, "service.EscalationEvaluator.ReportStatus: update record %s: %v", id, err)
		}
	}

	if status == domain.EscalationFailed {
		e.logger.Warnf(ctx, "service.EscalationEvaluator.ReportStatus: record %s failed: %s", id, reason)
		if seen, _ := e.failureNotices.ContainsOrAdd(id, struct{}{}); !seen {
			e.notify(ctx, ports.Toast{
				Kind:     ports.KindEscalation,
				Priority: ports.PriorityHigh,
				Title:    "Campaign activation failed",
				Body:     fmt.Sprintf("%s: %s", domain.Excerpt(topic, 80), reason),
				RecordID: id,
			})
		}
	}
	return true, nil
}

func (e *EscalationEvaluator) notify(ctx context.Context, t ports.Toast) {
	if e.toaster != nil {
		if err := e.toaster.Toast(ctx, t); err != nil {
			notificationFailed(ctx, e.logger, "service.EscalationEvaluator.notify", "toast", err)
		} else {
			metrics.RecordNotification("toast", string(t.Priority))
		}
	}
	if e.audio != nil {
		if err := e.audio.Play(ctx, ports.CueNotice); err != nil {
			notificationFailed(ctx, e.logger, "service.EscalationEvaluator.notify", "audio", err)
		}
	}
}

// Get returns a copy of the record.
func (e *EscalationEvaluator) Get(id string) (domain.EscalationRecord, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec, ok := e.records[id]
	if !ok {
		return domain.EscalationRecord{}, false
	}
	return *rec, true
}

// Records lists records newest first. limit <= 0 returns all of them.
func (e *EscalationEvaluator) Records(limit int) []domain.EscalationRecord {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := len(e.order)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]domain.EscalationRecord, 0, n)
	for i := len(e.order) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, *e.records[e.order[i]])
	}
	return out
}

// Restore loads persisted records so that simulations escalated before a
// restart are not escalated again.
func (e *EscalationEvaluator) Restore(ctx context.Context, limit int) (int, error) {
	if e.repo == nil {
		return 0, nil
	}
	records, err := e.repo.ListEscalations(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("service.EscalationEvaluator.Restore: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	restored := 0
	// ListEscalations is newest first; replay oldest first so the latest
	// record per simulation wins.
	for i := len(records) - 1; i >= 0; i-- {
		if e.adoptLocked(records[i]) {
			restored++
		}
	}
	return restored, nil
}

// loadRecord pulls a record that is persisted but not held in memory, such
// as one older than the restore window.
func (e *EscalationEvaluator) loadRecord(ctx context.Context, id string) error {
	if e.repo == nil {
		return nil
	}
	e.mu.Lock()
	_, known := e.records[id]
	e.mu.Unlock()
	if known {
		return nil
	}

	rec, err := e.repo.FindEscalation(ctx, id)
	if err != nil {
		return fmt.Errorf("find record %s: %w", id, err)
	}
	if rec == nil {
		return nil
	}
	e.mu.Lock()
	e.adoptLocked(*rec)
	e.mu.Unlock()
	return nil
}

// loadBySimulation pulls the latest persisted record for a simulation key
// the evaluator has not seen since it started.
func (e *EscalationEvaluator) loadBySimulation(ctx context.Context, key string) {
	if e.repo == nil {
		return
	}
	e.mu.Lock()
	_, known := e.bySim[key]
	e.mu.Unlock()
	if known {
		return
	}

	rec, err := e.repo.FindLatestEscalation(ctx, key)
	if err != nil {
		e.logger.Errorf(ctx, "service.EscalationEvaluator.Evaluate: find record for %s: %v", key, err)
		return
	}
	if rec == nil {
		return
	}
	e.mu.Lock()
	e.adoptLocked(*rec)
	e.mu.Unlock()
}

// adoptLocked registers a persisted record. A newer record already known
// for the same simulation keeps precedence. order stays sorted by trigger
// time.
func (e *EscalationEvaluator) adoptLocked(rec domain.EscalationRecord) bool {
	if _, ok := e.records[rec.ID]; ok {
		return false
	}
	stored := rec
	e.records[rec.ID] = &stored

	key := rec.Simulation.Key()
	if cur, ok := e.bySim[key]; !ok || !e.records[cur].TriggeredAt.After(rec.TriggeredAt) {
		e.bySim[key] = rec.ID
	}

	i := sort.Search(len(e.order), func(i int) bool {
		return e.records[e.order[i]].TriggeredAt.After(rec.TriggeredAt)
	})
	e.order = append(e.order, "")
	copy(e.order[i+1:], e.order[i:])
	e.order[i] = rec.ID
	return true
}

// Close cancels in-flight activations and waits for them to return.
func (e *EscalationEvaluator) Close() {
	e.cancel()
	e.wg.Wait()
}
