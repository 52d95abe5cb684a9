package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/hive-corporation/threatpulse/internal/core/domain"
	"github.com/hive-corporation/threatpulse/internal/core/ports"
	"github.com/hive-corporation/threatpulse/pkg/log"
)

// --- Recorders ---

type recordingToaster struct {
	mu     sync.Mutex
	toasts []ports.Toast
	err    error
}

func (r *recordingToaster) Toast(ctx context.Context, t ports.Toast) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.toasts = append(r.toasts, t)
	return r.err
}

func (r *recordingToaster) all() []ports.Toast {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ports.Toast(nil), r.toasts...)
}

func (r *recordingToaster) ofKind(k ports.Kind) []ports.Toast {
	var out []ports.Toast
	for _, t := range r.all() {
		if t.Kind == k {
			out = append(out, t)
		}
	}
	return out
}

type fakeDesktop struct {
	mu         sync.Mutex
	permission ports.Permission
	grantOn    ports.Permission // answer to RequestPermission
	requests   int
	sent       []ports.DesktopNotification
	err        error
}

func (f *fakeDesktop) Permission(ctx context.Context) ports.Permission {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.permission
}

func (f *fakeDesktop) RequestPermission(ctx context.Context) ports.Permission {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests++
	f.permission = f.grantOn
	return f.permission
}

func (f *fakeDesktop) Notify(ctx context.Context, n ports.DesktopNotification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, n)
	return nil
}

type fakeAudio struct {
	mu    sync.Mutex
	cues  []ports.Cue
	err   error
	calls int
}

func (f *fakeAudio) Play(ctx context.Context, cue ports.Cue) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return f.err
	}
	f.cues = append(f.cues, cue)
	return nil
}

// recordingLogger keeps formatted lines per level.
type recordingLogger struct {
	mu    sync.Mutex
	lines map[string][]string
}

func newRecordingLogger() *recordingLogger {
	return &recordingLogger{lines: make(map[string][]string)}
}

func (l *recordingLogger) add(level, line string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines[level] = append(l.lines[level], line)
}

func (l *recordingLogger) at(level string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.lines[level]...)
}

func (l *recordingLogger) Debug(ctx context.Context, arg ...any) { l.add("debug", fmt.Sprint(arg...)) }
func (l *recordingLogger) Debugf(ctx context.Context, template string, arg ...any) {
	l.add("debug", fmt.Sprintf(template, arg...))
}
func (l *recordingLogger) Info(ctx context.Context, arg ...any) { l.add("info", fmt.Sprint(arg...)) }
func (l *recordingLogger) Infof(ctx context.Context, template string, arg ...any) {
	l.add("info", fmt.Sprintf(template, arg...))
}
func (l *recordingLogger) Warn(ctx context.Context, arg ...any) { l.add("warn", fmt.Sprint(arg...)) }
func (l *recordingLogger) Warnf(ctx context.Context, template string, arg ...any) {
	l.add("warn", fmt.Sprintf(template, arg...))
}
func (l *recordingLogger) Error(ctx context.Context, arg ...any) { l.add("error", fmt.Sprint(arg...)) }
func (l *recordingLogger) Errorf(ctx context.Context, template string, arg ...any) {
	l.add("error", fmt.Sprintf(template, arg...))
}
func (l *recordingLogger) Fatal(ctx context.Context, arg ...any) { l.add("fatal", fmt.Sprint(arg...)) }
func (l *recordingLogger) Fatalf(ctx context.Context, template string, arg ...any) {
	l.add("fatal", fmt.Sprintf(template, arg...))
}
func (l *recordingLogger) With(keysAndValues ...any) log.Logger { return l }

// --- Mocks ---

type MockActivator struct {
	mock.Mock
}

func (m *MockActivator) Activate(ctx context.Context, record domain.EscalationRecord) (domain.EscalationStatus, error) {
	args := m.Called(ctx, record)
	return args.Get(0).(domain.EscalationStatus), args.Error(1)
}

// --- In-memory repositories ---

type memEscalations struct {
	mu      sync.Mutex
	records map[string]domain.EscalationRecord
	order   []string
}

func newMemEscalations() *memEscalations {
	return &memEscalations{records: make(map[string]domain.EscalationRecord)}
}

func (m *memEscalations) SaveEscalation(ctx context.Context, r domain.EscalationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[r.ID] = r
	m.order = append(m.order, r.ID)
	return nil
}

func (m *memEscalations) UpdateEscalationStatus(ctx context.Context, id string, status domain.EscalationStatus, reason string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[id]
	if !ok {
		return fmt.Errorf("no record %s", id)
	}
	r.Status, r.Error, r.UpdatedAt = status, reason, at
	m.records[id] = r
	return nil
}

func (m *memEscalations) FindEscalation(ctx context.Context, id string) (*domain.EscalationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (m *memEscalations) FindLatestEscalation(ctx context.Context, key string) (*domain.EscalationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.order) - 1; i >= 0; i-- {
		if r := m.records[m.order[i]]; r.Simulation.Key() == key {
			return &r, nil
		}
	}
	return nil, nil
}

func (m *memEscalations) ListEscalations(ctx context.Context, limit int) ([]domain.EscalationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.EscalationRecord
	for i := len(m.order) - 1; i >= 0; i-- {
		out = append(out, m.records[m.order[i]])
	}
	return out, nil
}

func (m *memEscalations) get(id string) (domain.EscalationRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[id]
	return r, ok
}

type memAlerts struct {
	mu       sync.Mutex
	saved    []domain.Alert
	statuses map[string]domain.Status
	recent   []domain.Alert
	err      error
}

func newMemAlerts() *memAlerts {
	return &memAlerts{statuses: make(map[string]domain.Status)}
}

func (m *memAlerts) SaveAlerts(ctx context.Context, alerts []domain.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.saved = append(m.saved, alerts...)
	for _, a := range alerts {
		m.statuses[a.ID] = a.Status
	}
	return nil
}

func (m *memAlerts) UpdateAlertStatus(ctx context.Context, id string, status domain.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.statuses[id] = status
	return nil
}

func (m *memAlerts) FindRecentAlerts(ctx context.Context, since time.Time, limit int) ([]domain.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return append([]domain.Alert(nil), m.recent...), nil
}

func (m *memAlerts) status(id string) domain.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statuses[id]
}

// --- Sources ---

type stubSource struct {
	name  string
	batch ports.Batch
	err   error

	mu    sync.Mutex
	calls int
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) Fetch(ctx context.Context) (ports.Batch, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return s.batch, s.err
}

func (s *stubSource) fetches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// manualPush hands its handler to the test so pushes can be driven directly.
type manualPush struct {
	name      string
	listenErr error

	mu      sync.Mutex
	handler func(ports.Batch)
	stopped bool
}

func (p *manualPush) Name() string { return p.name }

func (p *manualPush) Listen(ctx context.Context, handler func(ports.Batch)) (func() error, error) {
	if p.listenErr != nil {
		return nil, p.listenErr
	}
	p.mu.Lock()
	p.handler = handler
	p.mu.Unlock()
	return func() error {
		p.mu.Lock()
		p.stopped = true
		p.mu.Unlock()
		return nil
	}, nil
}

// push invokes the captured handler even after stop, like a late callback.
func (p *manualPush) push(b ports.Batch) {
	p.mu.Lock()
	h := p.handler
	p.mu.Unlock()
	if h != nil {
		h(b)
	}
}

var errBoom = errors.New("boom")

// --- Builders ---

var baseDate = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newAlert(id string, sev domain.Severity, minutes int) domain.Alert {
	return domain.Alert{
		ID:       id,
		Platform: "twitter",
		Content:  "Mention of Acme Holdings in a thread " + id,
		Severity: sev,
		Status:   domain.StatusNew,
		Date:     baseDate.Add(time.Duration(minutes) * time.Minute),
	}
}

func ids(alerts []domain.Alert) []string {
	out := make([]string, len(alerts))
	for i, a := range alerts {
		out[i] = a.ID
	}
	return out
}
