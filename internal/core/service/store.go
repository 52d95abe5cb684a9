package service

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/hive-corporation/threatpulse/internal/core/domain"
	"github.com/hive-corporation/threatpulse/internal/metrics"
	"github.com/hive-corporation/threatpulse/pkg/log"
)

type EventType string

const (
	EventAppended EventType = "appended"
	EventUpdated  EventType = "updated"
	EventRemoved  EventType = "removed"
)

// Event describes one committed store mutation. Visible is the visible
// collection right after the mutation, most recent first.
type Event struct {
	Type    EventType
	Alerts  []domain.Alert
	Visible []domain.Alert
}

// Disposer undoes a registration. Calling it more than once is harmless.
type Disposer func()

func once(fn func()) Disposer {
	var o sync.Once
	return func() { o.Do(fn) }
}

// Store is the single owner of alert lifecycle state. All mutation goes
// through Append, MarkRead, Dismiss and MarkActioned.
//
// Commands are serialized and their events are delivered synchronously, in
// commit order, before the command returns. Listeners may read from the
// store but must not issue commands from inside a callback.
type Store struct {
	writeMu sync.Mutex // serializes commands and event delivery

	mu      sync.RWMutex
	alerts  map[string]*domain.Alert // every id ever seen, dismissed included
	visible []string                 // most recent first

	subMu     sync.Mutex
	nextSub   int
	listeners map[int]func(Event)
	arrivals  map[int]func(domain.Alert)

	logger log.Logger
}

func NewStore(logger log.Logger) *Store {
	return &Store{
		alerts:    make(map[string]*domain.Alert),
		listeners: make(map[int]func(Event)),
		arrivals:  make(map[int]func(domain.Alert)),
		logger:    logger,
	}
}

// Append inserts alerts at the head of the collection, one after another, so
// the last argument ends up first. Alerts whose id is already known are
// skipped. Alerts without id get a fresh one. Returns how many were inserted.
// A call that inserts anything is a single growth event.
func (s *Store) Append(alerts ...domain.Alert) int {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var inserted []domain.Alert
	duplicates := 0

	s.mu.Lock()
	for _, a := range alerts {
		a = a.Clone()
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		if _, exists := s.alerts[a.ID]; exists {
			duplicates++
			continue
		}
		switch a.Status {
		case domain.StatusNew, domain.StatusRead, domain.StatusActioned, domain.StatusDismissed:
		default:
			a.Status = domain.StatusNew
		}

		stored := a
		s.alerts[a.ID] = &stored
		if a.Status != domain.StatusDismissed {
			s.visible = append([]string{a.ID}, s.visible...)
		}
		inserted = append(inserted, a)
	}
	visible := s.snapshotLocked()
	s.mu.Unlock()

	metrics.RecordDuplicates(duplicates)
	if len(inserted) == 0 {
		return 0
	}
	if duplicates > 0 {
		s.logger.Debugf(context.Background(), "service.Store.Append: skipped %d duplicate alerts", duplicates)
	}

	s.emit(Event{Type: EventAppended, Alerts: inserted, Visible: visible})
	s.notifyArrivals(inserted)
	return len(inserted)
}

// MarkRead moves a new alert to read. Reports whether anything changed.
func (s *Store) MarkRead(id string) bool {
	return s.transition(id, domain.StatusRead)
}

// MarkActioned records that the alert was routed to a response workflow.
func (s *Store) MarkActioned(id string) bool {
	return s.transition(id, domain.StatusActioned)
}

// Dismiss hides the alert and moves it to the terminal dismissed state.
// Dismissing twice, or after MarkActioned, changes nothing.
func (s *Store) Dismiss(id string) bool {
	return s.transition(id, domain.StatusDismissed)
}

func (s *Store) transition(id string, to domain.Status) bool {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	a, ok := s.alerts[id]
	if !ok || !domain.CanTransition(a.Status, to) {
		s.mu.Unlock()
		return false
	}
	a.Status = to

	evType := EventUpdated
	if to == domain.StatusDismissed {
		evType = EventRemoved
		s.removeVisibleLocked(id)
	}
	changed := a.Clone()
	visible := s.snapshotLocked()
	s.mu.Unlock()

	metrics.RecordTransition(string(to))
	s.emit(Event{Type: evType, Alerts: []domain.Alert{changed}, Visible: visible})
	return true
}

func (s *Store) removeVisibleLocked(id string) {
	for i, v := range s.visible {
		if v == id {
			s.visible = append(s.visible[:i], s.visible[i+1:]...)
			return
		}
	}
}

func (s *Store) snapshotLocked() []domain.Alert {
	out := make([]domain.Alert, 0, len(s.visible))
	for _, id := range s.visible {
		out = append(out, s.alerts[id].Clone())
	}
	return out
}

// Visible returns the alerts matching f, ranked for display and
// notification selection. It never mutates the store.
func (s *Store) Visible(f domain.Filter) []domain.Alert {
	return domain.ApplyFilter(s.Snapshot(), f)
}

// Snapshot returns the visible collection, most recent first.
func (s *Store) Snapshot() []domain.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Get returns any alert ever appended, dismissed ones included.
func (s *Store) Get(id string) (domain.Alert, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.alerts[id]
	if !ok {
		return domain.Alert{}, false
	}
	return a.Clone(), true
}

// Len is the size of the visible collection.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.visible)
}

// Subscribe registers a listener for every committed mutation.
func (s *Store) Subscribe(listener func(Event)) Disposer {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.listeners[id] = listener
	return once(func() {
		s.subMu.Lock()
		delete(s.listeners, id)
		s.subMu.Unlock()
	})
}

// SubscribeFrom registers listener in step with the collection. seed gets
// the visible size before any later event is delivered, so no command can
// commit between the two.
func (s *Store) SubscribeFrom(seed func(visible int), listener func(Event)) Disposer {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	seed(s.Len())
	return s.Subscribe(listener)
}

// OnAlertArrived registers a callback invoked once per newly appended alert.
func (s *Store) OnAlertArrived(callback func(domain.Alert)) Disposer {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.arrivals[id] = callback
	return once(func() {
		s.subMu.Lock()
		delete(s.arrivals, id)
		s.subMu.Unlock()
	})
}

func (s *Store) emit(ev Event) {
	metrics.SetVisibleAlerts(len(ev.Visible))

	s.subMu.Lock()
	listeners := make([]func(Event), 0, len(s.listeners))
	for i := 0; i < s.nextSub; i++ {
		if l, ok := s.listeners[i]; ok {
			listeners = append(listeners, l)
		}
	}
	s.subMu.Unlock()

	for _, l := range listeners {
		l(ev)
	}
}

func (s *Store) notifyArrivals(alerts []domain.Alert) {
	s.subMu.Lock()
	callbacks := make([]func(domain.Alert), 0, len(s.arrivals))
	for i := 0; i < s.nextSub; i++ {
		if cb, ok := s.arrivals[i]; ok {
			callbacks = append(callbacks, cb)
		}
	}
	s.subMu.Unlock()

	for _, a := range alerts {
		for _, cb := range callbacks {
			cb(a.Clone())
		}
	}
}
