// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/safenet-project/safenet/lib/testutil"
)

func TestTCPListener_Addr(t *testing.T) {
	listener, err := ListenTCP("127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenTCP() error: %v", err)
	}
	defer listener.Close()
	if address := listener.Addr(); !strings.HasPrefix(address, "127.0.0.1:") {
		t.Errorf("Addr() = %q, expected 127.0.0.1:port", address)
	}
}

func TestTCP_AuthenticatedRequest(t *testing.T) {
	listener, err := ListenTCP("127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenTCP() error: %v", err)
	}
	serverKey, clientKey := generate(t), generate(t)
	server, err := NewEndpoint(EndpointConfig{Keypair: serverKey, Listener: listener, Dialer: &TCPDialer{}})
	if err != nil {
		t.Fatalf("NewEndpoint() error: %v", err)
	}
	defer server.Close()
	client, err := NewEndpoint(EndpointConfig{Keypair: clientKey, Dialer: &TCPDialer{Timeout: time.Second}})
	if err != nil {
		t.Fatalf("NewEndpoint() error: %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go server.Serve(ctx, func(c *Conn) {
		for message := range c.Incoming() {
			message.Respond(ctx, []byte(strings.ToUpper(string(message.Payload))))
		}
	})

	conn, err := client.Connect(ctx, server.Addr(), serverKey.Name())
	if err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	response, err := conn.Request(ctx, []byte("ping"))
	if err != nil {
		t.Fatalf("Request() error: %v", err)
	}
	if string(response) != "PING" {
		t.Fatalf("Request() = %q, want PING", response)
	}
}

func TestTCPListener_AcceptCancelled(t *testing.T) {
	listener, err := ListenTCP("127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenTCP() error: %v", err)
	}
	defer listener.Close()

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() {
		_, err := listener.Accept(ctx)
		result <- err
	}()
	cancel()
	if err := testutil.RequireReceive(t, result, 5*time.Second, "Accept to return"); !errors.Is(err, context.Canceled) {
		t.Fatalf("Accept() error = %v, want context.Canceled", err)
	}
}

func TestTCPDialer_Refused(t *testing.T) {
	dialer := &TCPDialer{Timeout: time.Second}
	if _, err := dialer.DialContext(context.Background(), "127.0.0.1:1"); err == nil {
		t.Error("expected error connecting to non-listening port")
	}
}
