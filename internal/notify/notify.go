// Package notify delivers operator notifications (recorded contacts, unknown
// questions, model failures) to push and chat channels.
package notify

import (
	"context"
	"errors"
)

// Notifier delivers one text message to an operator channel.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// Func adapts a plain function to Notifier.
type Func func(ctx context.Context, text string) error

// Notify calls f.
func (f Func) Notify(ctx context.Context, text string) error {
	return f(ctx, text)
}

// Nop discards every message. Used when no channel is configured.
type Nop struct{}

// Notify does nothing.
func (Nop) Notify(context.Context, string) error { return nil }

// Multi fans a message out to every notifier and joins their errors.
type Multi []Notifier

// Notify delivers to all notifiers even when some of them fail.
func (m Multi) Notify(ctx context.Context, text string) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, text); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
