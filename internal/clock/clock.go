// Package clock provides the host clock: monotonic time plus a low-power
// sleep that an external event can cut short.
package clock

import (
	"context"
	"time"
)

// System reads Go's monotonic clock, which never wraps during the lifetime
// of the device.
type System struct {
	wake <-chan struct{}
}

// New returns a clock whose Sleep returns early whenever wake fires. A nil
// wake channel makes Sleep only interruptible by its context.
func New(wake <-chan struct{}) *System {
	return &System{wake: wake}
}

// Now returns the current time.
func (s *System) Now() time.Time {
	return time.Now()
}

// Sleep blocks for d, until a wake signal arrives, or until ctx is done. It
// only returns an error for the latter. Callers must read Now again instead
// of assuming d has elapsed.
func (s *System) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	case <-s.wake:
	}
	return nil
}
