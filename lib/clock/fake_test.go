// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"context"
	"errors"
	"testing"
	"time"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func received(ch <-chan time.Time) (time.Time, bool) {
	select {
	case v := <-ch:
		return v, true
	default:
		return time.Time{}, false
	}
}

func TestFake_AdvanceMovesNow(t *testing.T) {
	c := Fake(epoch)
	c.Advance(5 * time.Second)
	if got, want := c.Now(), epoch.Add(5*time.Second); !got.Equal(want) {
		t.Fatalf("Now() = %v, want %v", got, want)
	}
}

func TestFake_After(t *testing.T) {
	c := Fake(epoch)
	ch := c.After(3 * time.Second)

	c.Advance(2 * time.Second)
	if _, ok := received(ch); ok {
		t.Fatal("After fired early")
	}
	c.Advance(time.Second)
	got, ok := received(ch)
	if !ok {
		t.Fatal("After did not fire at its deadline")
	}
	if want := epoch.Add(3 * time.Second); !got.Equal(want) {
		t.Fatalf("delivered %v, want %v", got, want)
	}
	if c.Pending() != 0 {
		t.Fatalf("Pending() = %d after firing", c.Pending())
	}

	if _, ok := received(c.After(0)); !ok {
		t.Fatal("After(0) did not fire immediately")
	}
	if _, ok := received(c.After(-time.Second)); !ok {
		t.Fatal("After(-1s) did not fire immediately")
	}
}

func TestFake_FiresInDeadlineOrder(t *testing.T) {
	c := Fake(epoch)
	var order []int
	var seen []time.Time
	for _, n := range []int{3, 1, 2} {
		c.AfterFunc(time.Duration(n)*time.Second, func() {
			order = append(order, n)
			seen = append(seen, c.Now())
		})
	}
	c.Advance(10 * time.Second)

	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Fatalf("fired in order %v, want [1 2 3]", order)
	}
	for i, at := range seen {
		if want := epoch.Add(time.Duration(i+1) * time.Second); !at.Equal(want) {
			t.Errorf("callback %d saw Now() = %v, want %v", i, at, want)
		}
	}
}

func TestFake_TimerStopAndReset(t *testing.T) {
	c := Fake(epoch)
	calls := 0
	timer := c.AfterFunc(time.Second, func() { calls++ })

	if !timer.Stop() {
		t.Fatal("Stop() on a pending timer = false")
	}
	if timer.Stop() {
		t.Fatal("second Stop() = true")
	}
	c.Advance(2 * time.Second)
	if calls != 0 {
		t.Fatalf("stopped timer fired %d times", calls)
	}

	if timer.Reset(time.Second) {
		t.Fatal("Reset() of a stopped timer reported pending")
	}
	if !timer.Reset(3 * time.Second) {
		t.Fatal("Reset() of a pending timer reported not pending")
	}
	c.Advance(2 * time.Second)
	if calls != 0 {
		t.Fatal("timer fired at its superseded deadline")
	}
	c.Advance(time.Second)
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestFake_Ticker(t *testing.T) {
	c := Fake(epoch)
	ticker := c.NewTicker(time.Second)

	c.Advance(time.Second)
	if _, ok := received(ticker.C); !ok {
		t.Fatal("no tick after one interval")
	}

	// Missed ticks collapse into the single buffered slot.
	c.Advance(5 * time.Second)
	if _, ok := received(ticker.C); !ok {
		t.Fatal("no tick after five intervals")
	}
	if _, ok := received(ticker.C); ok {
		t.Fatal("ticker queued more than one tick")
	}
	if c.Pending() != 1 {
		t.Fatalf("Pending() = %d, want 1 for a live ticker", c.Pending())
	}

	ticker.Reset(10 * time.Second)
	c.Advance(9 * time.Second)
	if _, ok := received(ticker.C); ok {
		t.Fatal("tick before the reset interval")
	}
	c.Advance(time.Second)
	if _, ok := received(ticker.C); !ok {
		t.Fatal("no tick at the reset interval")
	}

	ticker.Stop()
	c.Advance(time.Minute)
	if _, ok := received(ticker.C); ok {
		t.Fatal("stopped ticker ticked")
	}
	if c.Pending() != 0 {
		t.Fatalf("Pending() = %d after Stop", c.Pending())
	}
}

func TestFake_TickerPanicsOnZeroInterval(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("NewTicker(0) did not panic")
		}
	}()
	Fake(epoch).NewTicker(0)
}

func TestFake_WaitForTimersThenSleep(t *testing.T) {
	c := Fake(epoch)
	done := make(chan struct{})
	go func() {
		c.Sleep(time.Minute)
		close(done)
	}()

	c.WaitForTimers(1)
	c.Advance(time.Minute)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Sleep did not return after Advance")
	}
}

func TestSleepContext(t *testing.T) {
	c := Fake(epoch)
	ctx, cancel := context.WithCancel(context.Background())

	result := make(chan error, 1)
	go func() { result <- SleepContext(ctx, c, time.Hour) }()
	c.WaitForTimers(1)
	cancel()

	select {
	case err := <-result:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("SleepContext() error = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("SleepContext ignored cancellation")
	}

	go func() { result <- SleepContext(context.Background(), c, time.Second) }()
	c.WaitForTimers(2)
	c.Advance(time.Second)
	select {
	case err := <-result:
		if err != nil {
			t.Fatalf("SleepContext() error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("SleepContext did not return after Advance")
	}
}

func TestReal(t *testing.T) {
	c := Real()
	before := time.Now()
	if c.Now().Before(before) {
		t.Fatal("Real().Now() went backwards")
	}
	fired := make(chan struct{})
	c.AfterFunc(time.Millisecond, func() { close(fired) })
	select {
	case <-fired:
	case <-time.After(5 * time.Second):
		t.Fatal("Real AfterFunc did not fire")
	}
}
