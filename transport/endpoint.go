// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/safenet-project/safenet/lib/keys"
	"github.com/safenet-project/safenet/lib/xorname"
)

// DefaultHandshakeTimeout bounds the identity exchange on a new
// connection.
const DefaultHandshakeTimeout = 10 * time.Second

// EndpointConfig assembles an Endpoint.
type EndpointConfig struct {
	Keypair *keys.Keypair

	// Listener may be nil for an endpoint that only dials out.
	Listener Listener
	Dialer   Dialer

	HandshakeTimeout time.Duration
	IncomingBuffer   int
	Logger           *slog.Logger
}

// Endpoint is one node's presence on the network.
type Endpoint struct {
	keypair          *keys.Keypair
	listener         Listener
	dialer           Dialer
	handshakeTimeout time.Duration
	incomingBuffer   int
	logger           *slog.Logger

	mu     sync.Mutex
	conns  map[*Conn]struct{}
	closed bool
}

func NewEndpoint(cfg EndpointConfig) (*Endpoint, error) {
	if cfg.Keypair == nil {
		return nil, errors.New("transport: Keypair is required")
	}
	if cfg.Dialer == nil {
		return nil, errors.New("transport: Dialer is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	timeout := cfg.HandshakeTimeout
	if timeout <= 0 {
		timeout = DefaultHandshakeTimeout
	}
	return &Endpoint{
		keypair:          cfg.Keypair,
		listener:         cfg.Listener,
		dialer:           cfg.Dialer,
		handshakeTimeout: timeout,
		incomingBuffer:   cfg.IncomingBuffer,
		logger:           logger,
		conns:            make(map[*Conn]struct{}),
	}, nil
}

// Name is this endpoint's XOR name.
func (e *Endpoint) Name() xorname.Name { return e.keypair.Name() }

// Addr is the listen address, or "" for a dial-only endpoint.
func (e *Endpoint) Addr() string {
	if e.listener == nil {
		return ""
	}
	return e.listener.Addr()
}

// Connect dials address and authenticates the peer as name.
func (e *Endpoint) Connect(ctx context.Context, address string, name xorname.Name) (*Conn, error) {
	if e.isClosed() {
		return nil, ErrClosed
	}
	raw, err := e.dialer.DialContext(ctx, address)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, e.handshakeTimeout)
	defer cancel()
	conn, err := Client(ctx, raw, ConnConfig{
		Keypair:        e.keypair,
		Expect:         &name,
		IncomingBuffer: e.incomingBuffer,
		Logger:         e.logger,
	})
	if err != nil {
		return nil, err
	}
	if err := e.track(conn); err != nil {
		return nil, err
	}
	return conn, nil
}

// Serve accepts connections until ctx ends or the endpoint closes,
// handing each authenticated one to handle on its own goroutine.
func (e *Endpoint) Serve(ctx context.Context, handle func(*Conn)) error {
	if e.listener == nil {
		return errors.New("transport: endpoint has no listener")
	}
	for {
		raw, err := e.listener.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) || e.isClosed() {
				return nil
			}
			return err
		}
		go func() {
			handshakeCtx, cancel := context.WithTimeout(ctx, e.handshakeTimeout)
			defer cancel()
			conn, err := Server(handshakeCtx, raw, ConnConfig{
				Keypair:        e.keypair,
				IncomingBuffer: e.incomingBuffer,
				Logger:         e.logger,
			})
			if err != nil {
				e.logger.Debug("inbound handshake failed", "remote_addr", raw.RemoteAddr().String(), "error", err)
				return
			}
			if e.track(conn) != nil {
				return
			}
			handle(conn)
		}()
	}
}

func (e *Endpoint) track(conn *Conn) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		conn.Close()
		return ErrClosed
	}
	e.conns[conn] = struct{}{}
	e.mu.Unlock()
	go func() {
		<-conn.Done()
		e.mu.Lock()
		delete(e.conns, conn)
		e.mu.Unlock()
	}()
	return nil
}

func (e *Endpoint) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// Close stops accepting and closes every open connection.
func (e *Endpoint) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	conns := make([]*Conn, 0, len(e.conns))
	for conn := range e.conns {
		conns = append(conns, conn)
	}
	e.mu.Unlock()

	var err error
	if e.listener != nil {
		err = e.listener.Close()
	}
	for _, conn := range conns {
		conn.Close()
	}
	return err
}
