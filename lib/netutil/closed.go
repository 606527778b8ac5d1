// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil holds small helpers for code that owns raw network
// connections.
package netutil

import (
	"errors"
	"io"
	"net"
	"syscall"
)

// IsExpectedCloseError reports whether err is a normal end of a peer
// link: EOF, a locally closed connection, a broken pipe, or a reset.
// A peer that drops a link without a clean shutdown produces EPIPE or
// ECONNRESET on our side rather than EOF. None of these are worth
// logging; a truncated frame (io.ErrUnexpectedEOF) is.
func IsExpectedCloseError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EPIPE || errno == syscall.ECONNRESET
	}
	return false
}
