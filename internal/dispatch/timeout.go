package dispatch

import (
	"context"
	"fmt"
	"time"
)

// DefaultNotifyTimeout bounds one delivery to an external sink.
const DefaultNotifyTimeout = 2 * time.Second

// Bounded limits how long a single delivery may hold up the caller. The
// wrapped call runs on its own goroutine; when the limit passes, Notify
// returns and the call finishes in the background.
type Bounded struct {
	next    Notifier
	timeout time.Duration
}

var _ Notifier = (*Bounded)(nil)

// WithTimeout wraps n. A non-positive timeout uses DefaultNotifyTimeout.
func WithTimeout(n Notifier, timeout time.Duration) *Bounded {
	if timeout <= 0 {
		timeout = DefaultNotifyTimeout
	}
	return &Bounded{next: n, timeout: timeout}
}

// Notify implements Notifier.
func (b *Bounded) Notify(ctx context.Context, name string, payload any) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)

	done := make(chan error, 1)
	go func() {
		defer cancel()
		done <- b.next.Notify(ctx, name, payload)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("notify %s: %w", name, ctx.Err())
	}
}
