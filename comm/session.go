// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package comm

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrSessionClosed is returned for sends to a closed session.
var ErrSessionClosed = errors.New("comm: session closed")

type sendJob struct {
	id      MsgID
	payload []byte
	watcher *SendWatcher
}

// PeerSession queues sends to one peer and runs each through its link.
// Sends are handed to the link concurrently, so the wire order may
// differ from the queue order.
type PeerSession struct {
	link   *PeerLink
	queue  chan sendJob
	logger *slog.Logger
	// evict is called once the link gives up on a send.
	evict func(*PeerSession, error)

	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	inFlight sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func newPeerSession(link *PeerLink, queueSize int, logger *slog.Logger, evict func(*PeerSession, error)) *PeerSession {
	ctx, cancel := context.WithCancel(context.Background())
	s := &PeerSession{
		link:   link,
		queue:  make(chan sendJob, queueSize),
		logger: logger.With("peer", link.Peer().String()),
		evict:  evict,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go s.run()
	return s
}

// Peer is the remote side.
func (s *PeerSession) Peer() Peer { return s.link.Peer() }

// Link is the session's link.
func (s *PeerSession) Link() *PeerLink { return s.link }

// Send queues payload and returns a watcher in the Enqueued state. It
// blocks while the queue is full.
func (s *PeerSession) Send(ctx context.Context, id MsgID, payload []byte) (*SendWatcher, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrSessionClosed
	}
	job := sendJob{id: id, payload: payload, watcher: newSendWatcher()}
	select {
	case s.queue <- job:
		return job.watcher, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// SendWithBiResponse sends payload on its own stream and returns the
// response. The wait is bounded by ctx and by the session closing.
func (s *PeerSession) SendWithBiResponse(ctx context.Context, id MsgID, payload []byte) ([]byte, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, ErrSessionClosed
	}
	s.mu.RUnlock()

	ctx, stop := mergeCancel(ctx, s.ctx)
	defer stop()
	return s.link.SendWithBiResponse(ctx, id, payload)
}

func (s *PeerSession) run() {
	defer close(s.done)
	for {
		select {
		case job := <-s.queue:
			s.inFlight.Add(1)
			go s.deliver(job)
		case <-s.ctx.Done():
		drain:
			for {
				select {
				case job := <-s.queue:
					job.watcher.set(WatcherDropped)
				default:
					break drain
				}
			}
			s.inFlight.Wait()
			return
		}
	}
}

func (s *PeerSession) deliver(job sendJob) {
	defer s.inFlight.Done()
	err := s.link.Send(s.ctx, job.id, job.payload, func(error) {
		job.watcher.set(TransientError)
	})
	switch {
	case err == nil:
		job.watcher.set(Sent)
	case s.ctx.Err() != nil:
		job.watcher.set(WatcherDropped)
	default:
		s.logger.Warn("giving up on peer", "msg_id", job.id.String(), "error", err)
		job.watcher.set(MaxRetriesReached)
		if s.evict != nil {
			s.evict(s, err)
		}
	}
}

// Close cancels queued and in-flight sends, whose watchers end in
// WatcherDropped, and closes the link.
func (s *PeerSession) Close() {
	s.mu.Lock()
	alreadyClosed := s.closed
	s.closed = true
	s.mu.Unlock()
	if !alreadyClosed {
		s.cancel()
	}
	<-s.done
	if !alreadyClosed {
		s.link.Close()
	}
}

// mergeCancel returns a context that ends when either parent ends.
func mergeCancel(ctx, other context.Context) (context.Context, context.CancelFunc) {
	merged, cancel := context.WithCancelCause(ctx)
	stop := context.AfterFunc(other, func() { cancel(context.Cause(other)) })
	return merged, func() {
		stop()
		cancel(context.Canceled)
	}
}
