// Package dispatch fans classified events out to notification sinks.
package dispatch

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"blinkstream/internal/domain"
	"blinkstream/internal/observability"
)

// Notifier delivers one named event to an external collaborator.
type Notifier interface {
	Notify(ctx context.Context, name string, payload any) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, name string, payload any) error

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, name string, payload any) error {
	return f(ctx, name, payload)
}

// Options configures Dispatcher.
type Options struct {
	Logger logrus.FieldLogger
}

// Dispatcher hands each event to the notifier under its fixed name.
// It does not buffer or retry: a failed delivery is logged and counted.
type Dispatcher struct {
	notifier Notifier
	logger   logrus.FieldLogger
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(n Notifier, opts Options) *Dispatcher {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &Dispatcher{notifier: n, logger: opts.Logger}
}

// Dispatch delivers ev.
func (d *Dispatcher) Dispatch(ctx context.Context, ev domain.Event) {
	name := ev.EventName()
	observability.RecordEvent(name)

	if err := d.notifier.Notify(ctx, name, ev); err != nil {
		observability.RecordNotifyError(name)
		d.logger.WithError(err).WithField("event", name).Warn("notify failed")
	}
}

// Multi delivers to every notifier in order. All notifiers are attempted;
// their errors are joined.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(ctx context.Context, name string, payload any) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, name, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
