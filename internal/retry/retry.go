// Package retry provides the bounded polling policy shared by the form
// poller and other timer-driven loops, with the interval injectable so the
// loops stay unit-testable.
package retry

import (
	"context"
	"time"
)

// Policy is a bounded retry loop: up to Attempts tries, Interval apart.
// Attempts <= 0 means a single try.
type Policy struct {
	Attempts int
	Interval time.Duration
}

// Run invokes fn until it reports success or attempts are exhausted. The
// first attempt runs immediately. Returns false on exhaustion or context
// cancellation.
func (p Policy) Run(ctx context.Context, fn func() bool) bool {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 1
	}

	for i := 0; i < attempts; i++ {
		if fn() {
			return true
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(p.Interval):
		}
	}
	return false
}

// Wait sleeps for d unless ctx is cancelled first. Returns false on
// cancellation.
func Wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
