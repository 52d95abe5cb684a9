package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hive-corporation/threatpulse/internal/core/domain"
)

type storedAlert struct {
	alert    domain.Alert
	ingested time.Time
}

// MemoryRepository keeps alerts and escalation records in process memory.
// It is used when no database is configured and in tests.
type MemoryRepository struct {
	mu          sync.RWMutex
	alerts      map[string]*storedAlert
	escalations map[string]domain.EscalationRecord
	now         func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		alerts:      make(map[string]*storedAlert),
		escalations: make(map[string]domain.EscalationRecord),
		now:         time.Now,
	}
}

func (r *MemoryRepository) SaveAlerts(ctx context.Context, alerts []domain.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for _, a := range alerts {
		if _, exists := r.alerts[a.ID]; exists {
			continue
		}
		r.alerts[a.ID] = &storedAlert{alert: a.Clone(), ingested: now}
	}
	return nil
}

func (r *MemoryRepository) UpdateAlertStatus(ctx context.Context, id string, status domain.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.alerts[id]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownAlert, id)
	}
	s.alert.Status = status
	return nil
}

func (r *MemoryRepository) FindRecentAlerts(ctx context.Context, since time.Time, limit int) ([]domain.Alert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]*storedAlert, 0, len(r.alerts))
	for _, s := range r.alerts {
		if !s.ingested.Before(since) {
			matched = append(matched, s)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].ingested.Equal(matched[j].ingested) {
			return matched[i].alert.Date.After(matched[j].alert.Date)
		}
		return matched[i].ingested.After(matched[j].ingested)
	})
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}

	out := make([]domain.Alert, len(matched))
	for i, s := range matched {
		out[i] = s.alert.Clone()
	}
	return out, nil
}

func (r *MemoryRepository) SaveEscalation(ctx context.Context, rec domain.EscalationRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.escalations[rec.ID]; !exists {
		r.escalations[rec.ID] = rec
	}
	return nil
}

func (r *MemoryRepository) UpdateEscalationStatus(ctx context.Context, id string, status domain.EscalationStatus, reason string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.escalations[id]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownEscalation, id)
	}
	rec.Status = status
	rec.Error = reason
	rec.UpdatedAt = at
	r.escalations[id] = rec
	return nil
}

func (r *MemoryRepository) FindEscalation(ctx context.Context, id string) (*domain.EscalationRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.escalations[id]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (r *MemoryRepository) FindLatestEscalation(ctx context.Context, simulationKey string) (*domain.EscalationRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var latest *domain.EscalationRecord
	for _, rec := range r.escalations {
		if rec.Simulation.Key() != simulationKey {
			continue
		}
		if latest == nil || rec.TriggeredAt.After(latest.TriggeredAt) {
			found := rec
			latest = &found
		}
	}
	return latest, nil
}

func (r *MemoryRepository) ListEscalations(ctx context.Context, limit int) ([]domain.EscalationRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.EscalationRecord, 0, len(r.escalations))
	for _, rec := range r.escalations {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].TriggeredAt.After(out[j].TriggeredAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
