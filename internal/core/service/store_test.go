package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hive-corporation/threatpulse/internal/core/domain"
	"github.com/hive-corporation/threatpulse/pkg/log"
)

func TestStore_AppendInsertsAtHead(t *testing.T) {
	s := NewStore(log.NewNop())

	assert.Equal(t, 1, s.Append(newAlert("a1", domain.SeverityLow, 1)))
	assert.Equal(t, 2, s.Append(newAlert("a2", domain.SeverityLow, 2), newAlert("a3", domain.SeverityLow, 3)))

	assert.Equal(t, []string{"a3", "a2", "a1"}, ids(s.Snapshot()))
	assert.Equal(t, 3, s.Len())
}

func TestStore_AppendSkipsKnownIDs(t *testing.T) {
	s := NewStore(log.NewNop())
	s.Append(newAlert("a1", domain.SeverityLow, 1), newAlert("a2", domain.SeverityHigh, 2))
	require.True(t, s.Dismiss("a2"))

	n := s.Append(newAlert("a1", domain.SeverityHigh, 5), newAlert("a2", domain.SeverityHigh, 6), newAlert("a3", domain.SeverityLow, 7))

	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"a3", "a1"}, ids(s.Snapshot()))
	got, _ := s.Get("a1")
	assert.Equal(t, domain.SeverityLow, got.Severity, "first copy wins")
}

func TestStore_AppendAssignsMissingIDAndStatus(t *testing.T) {
	s := NewStore(log.NewNop())
	a := newAlert("", domain.SeverityMedium, 0)
	a.Status = ""

	require.Equal(t, 1, s.Append(a))

	got := s.Snapshot()[0]
	assert.NotEmpty(t, got.ID)
	assert.Equal(t, domain.StatusNew, got.Status)
}

func TestStore_Lifecycle(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(s *Store)
		act     func(s *Store) bool
		want    bool
		status  domain.Status
		visible bool
	}{
		{"mark read new", nil, func(s *Store) bool { return s.MarkRead("x") }, true, domain.StatusRead, true},
		{"mark read twice", func(s *Store) { s.MarkRead("x") }, func(s *Store) bool { return s.MarkRead("x") }, false, domain.StatusRead, true},
		{"action new", nil, func(s *Store) bool { return s.MarkActioned("x") }, true, domain.StatusActioned, true},
		{"action read", func(s *Store) { s.MarkRead("x") }, func(s *Store) bool { return s.MarkActioned("x") }, true, domain.StatusActioned, true},
		{"dismiss new", nil, func(s *Store) bool { return s.Dismiss("x") }, true, domain.StatusDismissed, false},
		{"dismiss twice", func(s *Store) { s.Dismiss("x") }, func(s *Store) bool { return s.Dismiss("x") }, false, domain.StatusDismissed, false},
		{"dismiss actioned", func(s *Store) { s.MarkActioned("x") }, func(s *Store) bool { return s.Dismiss("x") }, false, domain.StatusActioned, true},
		{"read dismissed", func(s *Store) { s.Dismiss("x") }, func(s *Store) bool { return s.MarkRead("x") }, false, domain.StatusDismissed, false},
		{"unknown id", nil, func(s *Store) bool { return s.MarkRead("nope") }, false, domain.StatusNew, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore(log.NewNop())
			s.Append(newAlert("x", domain.SeverityMedium, 0))
			if tt.prepare != nil {
				tt.prepare(s)
			}

			assert.Equal(t, tt.want, tt.act(s))

			got, ok := s.Get("x")
			require.True(t, ok)
			assert.Equal(t, tt.status, got.Status)
			assert.Equal(t, tt.visible, s.Len() == 1)
		})
	}
}

func TestStore_EventsPerCommand(t *testing.T) {
	s := NewStore(log.NewNop())
	var events []Event
	dispose := s.Subscribe(func(ev Event) { events = append(events, ev) })

	s.Append(newAlert("a1", domain.SeverityLow, 1), newAlert("a2", domain.SeverityLow, 2))
	s.Append(newAlert("a1", domain.SeverityLow, 1)) // duplicate, no event
	s.MarkRead("a1")
	s.MarkRead("a1") // no-op, no event
	s.Dismiss("a2")

	require.Len(t, events, 3)
	assert.Equal(t, EventAppended, events[0].Type)
	assert.Equal(t, []string{"a2", "a1"}, ids(events[0].Visible))
	assert.Equal(t, EventUpdated, events[1].Type)
	assert.Equal(t, domain.StatusRead, events[1].Alerts[0].Status)
	assert.Equal(t, EventRemoved, events[2].Type)
	assert.Equal(t, []string{"a1"}, ids(events[2].Visible))

	dispose()
	dispose()
	s.Append(newAlert("a3", domain.SeverityLow, 3))
	assert.Len(t, events, 3)
}

func TestStore_OnAlertArrived(t *testing.T) {
	s := NewStore(log.NewNop())
	var arrived []string
	dispose := s.OnAlertArrived(func(a domain.Alert) { arrived = append(arrived, a.ID) })

	s.Append(newAlert("a1", domain.SeverityLow, 1), newAlert("a2", domain.SeverityLow, 2))
	s.Append(newAlert("a1", domain.SeverityLow, 1))
	dispose()
	s.Append(newAlert("a3", domain.SeverityLow, 3))

	assert.Equal(t, []string{"a1", "a2"}, arrived)
}

func TestStore_VisibleDoesNotMutate(t *testing.T) {
	s := NewStore(log.NewNop())
	s.Append(
		newAlert("low", domain.SeverityLow, 3),
		newAlert("high", domain.SeverityHigh, 1),
		newAlert("med", domain.SeverityMedium, 2),
	)
	s.MarkRead("high")

	got := s.Visible(domain.Filter{})
	assert.Equal(t, []string{"med", "low", "high"}, ids(got))

	highOnly := s.Visible(domain.Filter{Severity: "high"})
	assert.Equal(t, []string{"high"}, ids(highOnly))

	got[0].Content = "changed"
	assert.Equal(t, []string{"med", "high", "low"}, ids(s.Snapshot()))
	stored, _ := s.Get("med")
	assert.NotEqual(t, "changed", stored.Content)
}

func TestStore_SubscribeFromSeesEveryLaterCommand(t *testing.T) {
	s := NewStore(log.NewNop())
	s.Append(newAlert("a1", domain.SeverityLow, 1))

	appended := make(chan struct{})
	var seeded int
	var events []Event
	dispose := s.SubscribeFrom(func(visible int) {
		seeded = visible
		go func() {
			s.Append(newAlert("a2", domain.SeverityHigh, 2))
			close(appended)
		}()
		select {
		case <-appended:
			t.Error("append committed before the listener was registered")
		case <-time.After(20 * time.Millisecond):
		}
	}, func(ev Event) {
		events = append(events, ev)
	})
	defer dispose()

	<-appended
	assert.Equal(t, 1, seeded)
	require.Len(t, events, 1)
	assert.Equal(t, EventAppended, events[0].Type)
	assert.Len(t, events[0].Visible, 2)
}
