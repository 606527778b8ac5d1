// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"context"
	"time"
)

// Clock is the subset of the time package that production code uses.
type Clock interface {
	Now() time.Time

	// After delivers the time on the returned channel once d has
	// elapsed. d <= 0 delivers immediately.
	After(d time.Duration) <-chan time.Time

	// AfterFunc calls f once d has elapsed.
	AfterFunc(d time.Duration, f func()) *Timer

	// NewTicker panics if d <= 0.
	NewTicker(d time.Duration) *Ticker

	Sleep(d time.Duration)
}

// Timer cancels or reschedules an AfterFunc call.
type Timer struct {
	stop  func() bool
	reset func(time.Duration) bool
}

// Stop reports whether it prevented the call.
func (t *Timer) Stop() bool { return t.stop() }

// Reset reschedules the call d from now and reports whether the timer
// was still pending.
func (t *Timer) Reset(d time.Duration) bool { return t.reset(d) }

// Ticker delivers ticks on C. Slow readers miss ticks rather than
// queue them.
type Ticker struct {
	C <-chan time.Time

	stop  func()
	reset func(time.Duration)
}

func (t *Ticker) Stop()                  { t.stop() }
func (t *Ticker) Reset(d time.Duration) { t.reset(d) }

// SleepContext waits d on c or until ctx ends, returning ctx's error
// in the latter case.
func SleepContext(ctx context.Context, c Clock, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-c.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
