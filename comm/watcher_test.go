// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package comm

import (
	"context"
	"testing"
	"time"
)

func TestSendWatcher_Transitions(t *testing.T) {
	w := newSendWatcher()
	if w.Status() != Enqueued {
		t.Fatalf("initial status = %v", w.Status())
	}
	changed := w.Changed()
	w.set(TransientError)
	select {
	case <-changed:
	default:
		t.Fatal("Changed() not closed on transition")
	}

	w.set(Sent)
	w.set(MaxRetriesReached)
	if w.Status() != Sent {
		t.Fatalf("status after terminal = %v, want Sent", w.Status())
	}
	status, err := w.Wait(context.Background())
	if err != nil || status != Sent {
		t.Fatalf("Wait() = %v, %v", status, err)
	}
}

func TestSendWatcher_WaitCancelled(t *testing.T) {
	w := newSendWatcher()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if status, err := w.Wait(ctx); err == nil || status != Enqueued {
		t.Fatalf("Wait() = %v, %v; want Enqueued with an error", status, err)
	}
	if got := MaxRetriesReached.String(); got != "max_retries_reached" {
		t.Fatalf("String() = %q", got)
	}
}
