// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
)

var _ Dialer = (*MemoryNetwork)(nil)

// ErrUnreachable is returned when dialing an address that has no
// listener or has been marked unreachable.
var ErrUnreachable = errors.New("transport: address unreachable")

// MemoryNetwork is an in-process network of listeners joined by
// net.Pipe. It implements Dialer for every node on the network.
type MemoryNetwork struct {
	mu          sync.Mutex
	listeners   map[string]*MemoryListener
	unreachable map[string]bool
	open        map[string][]net.Conn
	dials       map[string]int
}

func NewMemoryNetwork() *MemoryNetwork {
	return &MemoryNetwork{
		listeners:   make(map[string]*MemoryListener),
		unreachable: make(map[string]bool),
		open:        make(map[string][]net.Conn),
		dials:       make(map[string]int),
	}
}

// Listen registers a listener at address.
func (n *MemoryNetwork) Listen(address string) (*MemoryListener, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, taken := n.listeners[address]; taken {
		return nil, fmt.Errorf("transport: memory address %q in use", address)
	}
	listener := &MemoryListener{
		network: n,
		address: address,
		backlog: make(chan net.Conn),
		closed:  make(chan struct{}),
	}
	n.listeners[address] = listener
	return listener, nil
}

func (n *MemoryNetwork) DialContext(ctx context.Context, address string) (net.Conn, error) {
	n.mu.Lock()
	n.dials[address]++
	listener := n.listeners[address]
	if listener == nil || n.unreachable[address] {
		n.mu.Unlock()
		return nil, fmt.Errorf("dialing %s: %w", address, ErrUnreachable)
	}
	n.mu.Unlock()

	local, remote := net.Pipe()
	select {
	case listener.backlog <- remote:
	case <-listener.closed:
		local.Close()
		remote.Close()
		return nil, fmt.Errorf("dialing %s: %w", address, ErrUnreachable)
	case <-ctx.Done():
		local.Close()
		remote.Close()
		return nil, ctx.Err()
	}

	n.mu.Lock()
	n.open[address] = append(n.open[address], local, remote)
	n.mu.Unlock()
	return local, nil
}

// SetUnreachable makes future dials to address fail. Existing
// connections are unaffected; see Sever.
func (n *MemoryNetwork) SetUnreachable(address string, unreachable bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.unreachable[address] = unreachable
}

// Sever closes every connection dialed to address and returns how
// many pipe ends it closed.
func (n *MemoryNetwork) Sever(address string) int {
	n.mu.Lock()
	conns := n.open[address]
	delete(n.open, address)
	n.mu.Unlock()
	for _, conn := range conns {
		conn.Close()
	}
	return len(conns)
}

// Dials counts dial attempts made to address, successful or not.
func (n *MemoryNetwork) Dials(address string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.dials[address]
}

// MemoryListener is one address on a MemoryNetwork.
type MemoryListener struct {
	network   *MemoryNetwork
	address   string
	backlog   chan net.Conn
	closed    chan struct{}
	closeOnce sync.Once
}

var _ Listener = (*MemoryListener)(nil)

func (l *MemoryListener) Accept(ctx context.Context) (net.Conn, error) {
	select {
	case conn := <-l.backlog:
		return conn, nil
	case <-l.closed:
		return nil, net.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *MemoryListener) Addr() string { return l.address }

// Close frees the address for reuse.
func (l *MemoryListener) Close() error {
	l.closeOnce.Do(func() {
		close(l.closed)
		l.network.mu.Lock()
		if l.network.listeners[l.address] == l {
			delete(l.network.listeners, l.address)
		}
		l.network.mu.Unlock()
	})
	return nil
}
