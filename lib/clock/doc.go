// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock lets time-dependent code run against either the wall
// clock or a fake one a test steps by hand.
//
// Components that retry, tick or expire entries take a [Clock] in their
// config: peer links wait between reconnect attempts, anti-entropy
// broadcasts its section authority on a ticker, and the comm core
// bounds response waits. Tests pass [Fake] and drive those paths with
// [FakeClock.Advance] after [FakeClock.WaitForTimers] confirms the
// goroutine under test is parked on a timer.
//
//	fake := clock.Fake(time.Unix(0, 0))
//	go link.Send(ctx, id, payload) // parks on a retry delay
//	fake.WaitForTimers(1)
//	fake.Advance(100 * time.Millisecond)
package clock
