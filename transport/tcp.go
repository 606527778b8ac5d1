// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"net"
	"time"
)

var (
	_ Listener = (*TCPListener)(nil)
	_ Dialer   = (*TCPDialer)(nil)
)

// TCPListener accepts TCP connections from peers.
type TCPListener struct {
	listener *net.TCPListener
}

// ListenTCP listens on address ("host:port"; port 0 picks a free one).
func ListenTCP(address string) (*TCPListener, error) {
	resolved, err := net.ResolveTCPAddr("tcp", address)
	if err != nil {
		return nil, err
	}
	listener, err := net.ListenTCP("tcp", resolved)
	if err != nil {
		return nil, err
	}
	return &TCPListener{listener: listener}, nil
}

func (l *TCPListener) Accept(ctx context.Context) (net.Conn, error) {
	// Cancellation interrupts a blocked Accept by moving the deadline
	// into the past.
	stop := context.AfterFunc(ctx, func() {
		l.listener.SetDeadline(time.Unix(1, 0))
	})
	conn, err := l.listener.Accept()
	if !stop() {
		l.listener.SetDeadline(time.Time{})
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return conn, nil
}

// Addr returns "host:port".
func (l *TCPListener) Addr() string { return l.listener.Addr().String() }

func (l *TCPListener) Close() error { return l.listener.Close() }

// TCPDialer opens TCP connections to peers.
type TCPDialer struct {
	// Timeout bounds connection establishment. Zero leaves only the
	// context deadline.
	Timeout time.Duration
}

func (d *TCPDialer) DialContext(ctx context.Context, address string) (net.Conn, error) {
	return (&net.Dialer{Timeout: d.Timeout}).DialContext(ctx, "tcp", address)
}
