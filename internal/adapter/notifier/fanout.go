package notifier

import (
	"context"
	"errors"
	"fmt"

	"github.com/hive-corporation/threatpulse/internal/core/ports"
)

// NamedNotifier is a desktop channel with a name for error reporting.
type NamedNotifier interface {
	ports.DesktopNotifier
	Name() string
}

// FanOut sends each notification to every channel that has permission.
// Permission is granted when at least one channel grants it.
type FanOut struct {
	channels []NamedNotifier
}

func NewFanOut(channels ...NamedNotifier) *FanOut {
	return &FanOut{channels: channels}
}

func (f *FanOut) Permission(ctx context.Context) ports.Permission {
	return f.combine(func(c NamedNotifier) ports.Permission { return c.Permission(ctx) })
}

func (f *FanOut) RequestPermission(ctx context.Context) ports.Permission {
	return f.combine(func(c NamedNotifier) ports.Permission {
		if p := c.Permission(ctx); p != ports.PermissionDefault {
			return p
		}
		return c.RequestPermission(ctx)
	})
}

func (f *FanOut) combine(get func(NamedNotifier) ports.Permission) ports.Permission {
	result := ports.PermissionDenied
	if len(f.channels) == 0 {
		return result
	}
	for _, c := range f.channels {
		switch get(c) {
		case ports.PermissionGranted:
			return ports.PermissionGranted
		case ports.PermissionDefault:
			result = ports.PermissionDefault
		}
	}
	return result
}

func (f *FanOut) Notify(ctx context.Context, n ports.DesktopNotification) error {
	var errs []error
	for _, c := range f.channels {
		if c.Permission(ctx) != ports.PermissionGranted {
			continue
		}
		if err := c.Notify(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", c.Name(), err))
		}
	}
	return errors.Join(errs...)
}
