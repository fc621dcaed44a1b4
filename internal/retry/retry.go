// Package retry runs fixed-delay retry loops that the caller can cancel.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/coder/quartz"
)

// ErrExhausted is returned by Run when every attempt reported not done.
var ErrExhausted = errors.New("retry attempts exhausted")

// Policy describes a retry loop. Each attempt runs after Delay. MaxAttempts
// of zero means the loop only ends on success or cancellation.
type Policy struct {
	Delay       time.Duration
	MaxAttempts int
	// Tag labels the loop's timers so tests can trap them.
	Tag string
}

// Func is one attempt. It returns true when no further attempts are needed.
type Func func(ctx context.Context, attempt int) bool

// Run waits Delay, calls fn, and repeats until fn returns true, attempts are
// exhausted, or ctx is done. Attempts are numbered from 1.
func (p Policy) Run(ctx context.Context, clock quartz.Clock, fn Func) error {
	for attempt := 1; p.MaxAttempts <= 0 || attempt <= p.MaxAttempts; attempt++ {
		if err := Sleep(ctx, clock, p.Delay, p.Tag); err != nil {
			return err
		}
		if fn(ctx, attempt) {
			return nil
		}
	}
	return ErrExhausted
}

// Sleep blocks for d on clock or until ctx is done.
func Sleep(ctx context.Context, clock quartz.Clock, d time.Duration, tags ...string) error {
	timer := clock.NewTimer(d, tags...)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
