// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package comm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/safenet-project/safenet/lib/clock"
	"github.com/safenet-project/safenet/lib/neterr"
	"github.com/safenet-project/safenet/transport"
)

const (
	// DefaultMaxSendRetries is how many times a failed send is retried
	// on a fresh connection.
	DefaultMaxSendRetries = 3

	// DefaultRetryWait separates attempts.
	DefaultRetryWait = 100 * time.Millisecond
)

var errLinkClosed = errors.New("comm: link closed")

// IsRecvError reports whether err means a request went out but no
// response came back, as opposed to the request never being sent.
func IsRecvError(err error) bool {
	return errors.Is(err, transport.ErrNoResponse)
}

// linkConfig is shared by every link a Comm creates.
type linkConfig struct {
	endpoint   *transport.Endpoint
	clock      clock.Clock
	maxRetries int
	retryWait  time.Duration
	// opened is told about each connection the link dials.
	opened func(Peer, *transport.Conn)
	logger *slog.Logger
}

// PeerLink holds the connections to one peer. Connections the peer
// opened to us are added so replies can reuse them.
type PeerLink struct {
	peer Peer
	cfg  linkConfig

	// dialMu allows one reconnect at a time.
	dialMu sync.Mutex

	mu     sync.Mutex
	conns  []*transport.Conn
	closed bool
}

func newPeerLink(peer Peer, cfg linkConfig) *PeerLink {
	cfg.logger = cfg.logger.With("peer", peer.String())
	return &PeerLink{peer: peer, cfg: cfg}
}

// Peer is the remote side.
func (l *PeerLink) Peer() Peer { return l.peer }

// Add records conn. It reports false if the link is closed, in which
// case the caller still owns conn.
func (l *PeerLink) Add(conn *transport.Conn) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	if !slices.Contains(l.conns, conn) {
		l.conns = append(l.conns, conn)
	}
	l.mu.Unlock()

	go func() {
		<-conn.Done()
		l.Remove(conn)
	}()
	return true
}

// Remove forgets conn without closing it.
func (l *PeerLink) Remove(conn *transport.Conn) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.conns = slices.DeleteFunc(l.conns, func(c *transport.Conn) bool { return c == conn })
}

// HasConnections reports whether any connection is open.
func (l *PeerLink) HasConnections() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, conn := range l.conns {
		if conn.Err() == nil {
			return true
		}
	}
	return false
}

// Close closes every connection and refuses new ones.
func (l *PeerLink) Close() {
	l.mu.Lock()
	l.closed = true
	conns := l.conns
	l.conns = nil
	l.mu.Unlock()
	for _, conn := range conns {
		conn.Close()
	}
}

// current returns the newest open connection, or nil.
func (l *PeerLink) current() *transport.Conn {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.conns) - 1; i >= 0; i-- {
		if l.conns[i].Err() == nil {
			return l.conns[i]
		}
	}
	return nil
}

func (l *PeerLink) connection(ctx context.Context) (*transport.Conn, error) {
	if conn := l.current(); conn != nil {
		return conn, nil
	}
	l.dialMu.Lock()
	defer l.dialMu.Unlock()
	if conn := l.current(); conn != nil {
		return conn, nil
	}

	conn, err := l.cfg.endpoint.Connect(ctx, l.peer.Addr, l.peer.Name)
	if err != nil {
		return nil, err
	}
	if !l.Add(conn) {
		conn.Close()
		return nil, errLinkClosed
	}
	l.cfg.logger.Debug("connected to peer")
	if l.cfg.opened != nil {
		l.cfg.opened(l.peer, conn)
	}
	return conn, nil
}

// drop discards a connection that failed a write.
func (l *PeerLink) drop(conn *transport.Conn) {
	l.Remove(conn)
	conn.Close()
}

// Send writes payload as a one-way message, retrying on a fresh
// connection after a failure. onRetry, if set, is called before each
// retry. The error is FailedSend once retries are exhausted, or ctx's
// error if it ended first.
func (l *PeerLink) Send(ctx context.Context, id MsgID, payload []byte, onRetry func(error)) error {
	_, err := l.attempt(ctx, "comm.PeerLink.Send", id, onRetry, func(conn *transport.Conn) ([]byte, error) {
		return nil, conn.Send(ctx, payload)
	})
	return err
}

// SendWithBiResponse writes payload on a new stream and returns the
// peer's response. Only write failures are retried; a request that
// went out but got no answer returns at once with an error for which
// IsRecvError is true.
func (l *PeerLink) SendWithBiResponse(ctx context.Context, id MsgID, payload []byte) ([]byte, error) {
	return l.attempt(ctx, "comm.PeerLink.SendWithBiResponse", id, nil, func(conn *transport.Conn) ([]byte, error) {
		return conn.Request(ctx, payload)
	})
}

func (l *PeerLink) attempt(ctx context.Context, op string, id MsgID, onRetry func(error), do func(*transport.Conn) ([]byte, error)) ([]byte, error) {
	attempts := l.cfg.maxRetries + 1
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if onRetry != nil {
				onRetry(lastErr)
			}
			if err := clock.SleepContext(ctx, l.cfg.clock, l.cfg.retryWait); err != nil {
				return nil, err
			}
		}

		conn, err := l.connection(ctx)
		if err == nil {
			var response []byte
			response, err = do(conn)
			if err == nil {
				return response, nil
			}
			if IsRecvError(err) {
				return nil, fmt.Errorf("awaiting response from %s: %w", l.peer, err)
			}
			l.drop(conn)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, errLinkClosed) {
			return nil, neterr.E(op, neterr.FailedSend, "link closed", err)
		}
		lastErr = err
		l.cfg.logger.Debug("send attempt failed", "msg_id", id.String(), "attempt", attempt, "error", err)
	}
	return nil, neterr.E(op, neterr.FailedSend, fmt.Sprintf("%s after %d attempts", l.peer, attempts), lastErr)
}
