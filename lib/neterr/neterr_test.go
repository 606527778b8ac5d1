// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package neterr

import (
	"errors"
	"fmt"
	"io"
	"testing"
)

func TestE_IsKindThroughWrapping(t *testing.T) {
	err := E("registerstore.Read", RegisterNotFound, "abc", nil)
	wrapped := fmt.Errorf("handling query: %w", err)

	if !errors.Is(wrapped, RegisterNotFound) {
		t.Error("errors.Is(wrapped, RegisterNotFound) = false")
	}
	if errors.Is(wrapped, NoSuchEntry) {
		t.Error("errors.Is(wrapped, NoSuchEntry) = true")
	}
	if KindOf(wrapped) != RegisterNotFound {
		t.Errorf("KindOf = %q, want RegisterNotFound", KindOf(wrapped))
	}
}

func TestE_InheritsKindFromCause(t *testing.T) {
	inner := E("register.Apply", AccessDenied, "", nil)
	outer := E("registerstore.Write", "", "", inner)
	if KindOf(outer) != AccessDenied {
		t.Errorf("KindOf = %q, want AccessDenied", KindOf(outer))
	}
}

func TestE_UnwrapsCause(t *testing.T) {
	err := E("registerstore.append", Io, "", io.ErrUnexpectedEOF)
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Error("cause not reachable through Unwrap")
	}
	if KindOf(io.EOF) != Other {
		t.Errorf("KindOf(unclassified) = %q, want Other", KindOf(io.EOF))
	}
	if KindOf(nil) != "" {
		t.Errorf("KindOf(nil) = %q, want empty", KindOf(nil))
	}
}

func TestError_Message(t *testing.T) {
	err := E("safeurl.Decode", InvalidXorUrl, "body too short", nil)
	want := "safeurl.Decode: InvalidXorUrl: body too short"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if KindOf(FailedSend) != FailedSend {
		t.Error("a bare Kind should classify as itself")
	}
}
