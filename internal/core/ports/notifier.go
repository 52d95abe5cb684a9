package ports

import "context"

// Priority separates interruptive notifications from quiet ones.
type Priority string

const (
	PriorityHigh Priority = "high"
	PriorityLow  Priority = "low"
)

// Kind tells dashboards which stream a toast belongs to. Escalation notices
// travel on their own kind so they never blend with alert toasts.
type Kind string

const (
	KindAlert      Kind = "alert"
	KindEscalation Kind = "escalation"
)

// Toast is a transient in-app notification.
type Toast struct {
	Kind     Kind     `json:"kind"`
	Priority Priority `json:"priority"`
	Title    string   `json:"title"`
	Body     string   `json:"body"`
	AlertID  string   `json:"alert_id,omitempty"`
	RecordID string   `json:"record_id,omitempty"`
}

// Toaster shows in-app toasts.
type Toaster interface {
	Toast(ctx context.Context, t Toast) error
}

// Permission mirrors the platform notification permission states.
type Permission string

const (
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
	PermissionDefault Permission = "default"
)

// DesktopNotification is a platform-level notification.
type DesktopNotification struct {
	Title   string
	Body    string
	AlertID string
	Tag     string
}

// DesktopNotifier sends platform notifications once permission is granted.
type DesktopNotifier interface {
	Permission(ctx context.Context) Permission
	RequestPermission(ctx context.Context) Permission
	Notify(ctx context.Context, n DesktopNotification) error
}

// Cue names a short audio signal.
type Cue string

const (
	CueUrgent Cue = "urgent"
	CueNotice Cue = "notice"
)

// AudioPlayer plays cues. Failures are expected (autoplay policies) and are
// never surfaced to users.
type AudioPlayer interface {
	Play(ctx context.Context, cue Cue) error
}
