package domain

import "errors"

var (
	// ErrInvalidInput marks out-of-contract numeric input to the urgency scorer
	// or the escalation gate. It is never retried.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnknownAlert is used by outer layers to report a missing alert.
	// The alert store itself treats unknown ids as no-ops.
	ErrUnknownAlert = errors.New("unknown alert id")

	ErrUnknownEscalation = errors.New("unknown escalation record")

	// ErrNotificationFailed wraps best-effort channel failures (toast, desktop, audio).
	// Always swallowed at the dispatcher boundary.
	ErrNotificationFailed = errors.New("notification channel failed")

	// ErrCollaborator wraps failures reported by the campaign-activation or
	// classification services.
	ErrCollaborator = errors.New("collaborator failure")
)
