// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"net"
)

// Listener accepts inbound connections.
type Listener interface {
	// Accept blocks until a connection arrives, ctx ends, or the
	// listener is closed.
	Accept(ctx context.Context) (net.Conn, error)

	// Addr is the address peers dial to reach this listener.
	Addr() string

	// Close makes pending and future Accept calls fail.
	Close() error
}

// Dialer opens outbound connections. The address format matches what
// the remote Listener's Addr returns.
type Dialer interface {
	DialContext(ctx context.Context, address string) (net.Conn, error)
}
