// Package notify delivers fire-and-forget operator notifications about
// switch outcomes. Delivery failures are logged and never block the
// orchestrator.
package notify

import (
	"context"
	"time"
)

// Severity grades a notification.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Event is one notification payload.
type Event struct {
	Team     string        `json:"team"`
	Action   string        `json:"action"`
	Result   string        `json:"result"`
	Detail   string        `json:"detail,omitempty"`
	Severity Severity      `json:"severity"`
	Duration time.Duration `json:"duration,omitempty"`
	At       time.Time     `json:"at"`
}

// Notifier delivers events. Implementations must not block on failure paths
// longer than their own timeout.
type Notifier interface {
	Notify(ctx context.Context, ev Event)
}

// Nop discards all events.
type Nop struct{}

// Notify does nothing.
func (Nop) Notify(context.Context, Event) {}

// Multi fans out to several notifiers.
type Multi []Notifier

// Notify delivers the event to every notifier.
func (m Multi) Notify(ctx context.Context, ev Event) {
	for _, n := range m {
		n.Notify(ctx, ev)
	}
}

// Close closes every sink that holds resources.
func (m Multi) Close() error {
	var firstErr error
	for _, n := range m {
		if c, ok := n.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Flags is the kill-switch dependency of Gated.
type Flags interface {
	NotificationsDisabled(ctx context.Context) bool
}

// Gated suppresses events while the notification kill switch is set.
type Gated struct {
	Inner Notifier
	Flags Flags
}

// Notify delivers the event unless notifications are disabled.
func (g Gated) Notify(ctx context.Context, ev Event) {
	if g.Flags != nil && g.Flags.NotificationsDisabled(ctx) {
		return
	}
	g.Inner.Notify(ctx, ev)
}

// Close closes the wrapped notifier.
func (g Gated) Close() error {
	if c, ok := g.Inner.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
