// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package comm

import (
	"context"
	"sync"
)

// SendStatus is the progress of one queued send.
type SendStatus uint8

const (
	// Enqueued: waiting for the session to pick it up.
	Enqueued SendStatus = iota
	// Sent: written to the transport.
	Sent
	// TransientError: an attempt failed and another will follow.
	TransientError
	// MaxRetriesReached: every attempt failed; the session is evicted.
	MaxRetriesReached
	// WatcherDropped: cancelled, or the session closed first.
	WatcherDropped
)

func (s SendStatus) String() string {
	switch s {
	case Enqueued:
		return "enqueued"
	case Sent:
		return "sent"
	case TransientError:
		return "transient_error"
	case MaxRetriesReached:
		return "max_retries_reached"
	case WatcherDropped:
		return "watcher_dropped"
	}
	return "unknown"
}

// Terminal reports whether no further transition can follow.
func (s SendStatus) Terminal() bool {
	return s == Sent || s == MaxRetriesReached || s == WatcherDropped
}

// SendWatcher observes one send.
type SendWatcher struct {
	mu      sync.Mutex
	status  SendStatus
	changed chan struct{}
}

func newSendWatcher() *SendWatcher {
	return &SendWatcher{changed: make(chan struct{})}
}

func (w *SendWatcher) set(status SendStatus) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.status.Terminal() {
		return
	}
	w.status = status
	close(w.changed)
	w.changed = make(chan struct{})
}

// Status is the latest status.
func (w *SendWatcher) Status() SendStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

// Changed is closed on the next transition after the call.
func (w *SendWatcher) Changed() <-chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.changed
}

// Wait blocks until the send reaches a terminal status.
func (w *SendWatcher) Wait(ctx context.Context) (SendStatus, error) {
	for {
		w.mu.Lock()
		status, changed := w.status, w.changed
		w.mu.Unlock()
		if status.Terminal() {
			return status, nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return status, ctx.Err()
		}
	}
}
