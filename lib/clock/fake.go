// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"container/heap"
	"sync"
	"time"
)

// FakeClock only moves when Advance is called. Pending timers, tickers
// and sleeps fire in deadline order as Advance passes them; AfterFunc
// callbacks run on the goroutine calling Advance and must not call
// Advance themselves.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	queue   waiterQueue
	seq     uint64
	changed *sync.Cond
}

// Fake returns a FakeClock reading start.
func Fake(start time.Time) *FakeClock {
	c := &FakeClock{now: start}
	c.changed = sync.NewCond(&c.mu)
	return c
}

type waiter struct {
	when  time.Time
	seq   uint64
	every time.Duration
	ch    chan time.Time
	fn    func()
	index int
}

type waiterQueue []*waiter

func (q waiterQueue) Len() int { return len(q) }
func (q waiterQueue) Less(i, j int) bool {
	if q[i].when.Equal(q[j].when) {
		return q[i].seq < q[j].seq
	}
	return q[i].when.Before(q[j].when)
}
func (q waiterQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index, q[j].index = i, j
}
func (q *waiterQueue) Push(x any) {
	w := x.(*waiter)
	w.index = len(*q)
	*q = append(*q, w)
}
func (q *waiterQueue) Pop() any {
	old := *q
	w := old[len(old)-1]
	old[len(old)-1] = nil
	w.index = -1
	*q = old[:len(old)-1]
	return w
}

// schedule must be called with c.mu held.
func (c *FakeClock) schedule(w *waiter, d time.Duration) {
	c.seq++
	w.seq = c.seq
	w.when = c.now.Add(d)
	heap.Push(&c.queue, w)
	c.changed.Broadcast()
}

// unschedule must be called with c.mu held.
func (c *FakeClock) unschedule(w *waiter) bool {
	if w.index < 0 {
		return false
	}
	heap.Remove(&c.queue, w.index)
	return true
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- c.now
		return ch
	}
	c.schedule(&waiter{ch: ch, index: -1}, d)
	return ch
}

func (c *FakeClock) Sleep(d time.Duration) {
	if d > 0 {
		<-c.After(d)
	}
}

// AfterFunc runs f synchronously when d <= 0.
func (c *FakeClock) AfterFunc(d time.Duration, f func()) *Timer {
	w := &waiter{fn: f, index: -1}
	if d <= 0 {
		f()
	} else {
		c.mu.Lock()
		c.schedule(w, d)
		c.mu.Unlock()
	}
	return &Timer{
		stop: func() bool {
			c.mu.Lock()
			defer c.mu.Unlock()
			return c.unschedule(w)
		},
		reset: func(d time.Duration) bool {
			c.mu.Lock()
			defer c.mu.Unlock()
			pending := c.unschedule(w)
			c.schedule(w, d)
			return pending
		},
	}
}

func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive ticker interval")
	}
	ch := make(chan time.Time, 1)
	w := &waiter{ch: ch, every: d, index: -1}
	c.mu.Lock()
	c.schedule(w, d)
	c.mu.Unlock()
	return &Ticker{
		C: ch,
		stop: func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.unschedule(w)
		},
		reset: func(d time.Duration) {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.unschedule(w)
			w.every = d
			c.schedule(w, d)
		},
	}
}

// Advance moves the clock forward by d, firing everything due on the
// way. Now reads each waiter's deadline while it fires.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		if len(c.queue) == 0 || c.queue[0].when.After(target) {
			c.now = target
			c.mu.Unlock()
			return
		}
		w := heap.Pop(&c.queue).(*waiter)
		c.now = w.when
		fired := w.when
		if w.every > 0 {
			c.seq++
			w.seq = c.seq
			w.when = w.when.Add(w.every)
			heap.Push(&c.queue, w)
		}
		c.mu.Unlock()

		if w.fn != nil {
			w.fn()
			continue
		}
		select {
		case w.ch <- fired:
		default:
		}
	}
}

// WaitForTimers blocks until at least n waiters are pending.
func (c *FakeClock) WaitForTimers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.queue) < n {
		c.changed.Wait()
	}
}

// Pending is the number of waiters that have not fired or been
// stopped. Tickers count once.
func (c *FakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}
