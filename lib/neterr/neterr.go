// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package neterr defines the error kinds shared by the URL codec, the
// register engine, the communication layer and anti-entropy.
//
// A failure that crosses a component boundary is an [*Error] carrying
// a [Kind]. Kind itself implements error, so callers test for a kind
// through any amount of wrapping:
//
//	if errors.Is(err, neterr.RegisterNotFound) { ... }
//
// Kinds are short strings. They travel unchanged inside error replies
// on the wire, so a client can classify a failure produced by a node.
package neterr

import (
	"errors"
	"strings"
)

// Kind classifies an error.
type Kind string

// Error implements error so that a Kind can be an errors.Is target.
func (k Kind) Error() string { return string(k) }

const (
	Other                   Kind = "Other"
	InvalidInput            Kind = "InvalidInput"
	InvalidXorUrl           Kind = "InvalidXorUrl"
	InvalidMediaType        Kind = "InvalidMediaType"
	RegisterNotFound        Kind = "RegisterNotFound"
	NoSuchEntry             Kind = "NoSuchEntry"
	NoSuchUser              Kind = "NoSuchUser"
	RegisterAddrMismatch    Kind = "RegisterAddrMismatch"
	AccessDenied            Kind = "AccessDenied"
	InvalidOwner            Kind = "InvalidOwner"
	InvalidSignature        Kind = "InvalidSignature"
	DataExists              Kind = "DataExists"
	EntryTooBig             Kind = "EntryTooBig"
	TooManyEntries          Kind = "TooManyEntries"
	ConnectingToUnknownNode Kind = "ConnectingToUnknownNode"
	FailedSend              Kind = "FailedSend"
	InvalidMsgReceived      Kind = "InvalidMsgReceived"
	InvalidMessage          Kind = "InvalidMessage"
	NoMatchingSection       Kind = "NoMatchingSection"
	RejoinRequired          Kind = "RejoinRequired"
	UntrustedSAP            Kind = "UntrustedSAP"
	UntrustedProofChain     Kind = "UntrustedProofChain"
	KeyNotFound             Kind = "KeyNotFound"
	InvalidBranch           Kind = "InvalidBranch"
	FailedQuorum            Kind = "FailedQuorum"
	Serialisation           Kind = "Serialisation"
	Io                      Kind = "Io"
)

// Error is a classified failure. Any field may be empty.
type Error struct {
	// Op is the operation that failed, such as "registerstore.Write".
	Op string
	// Kind is the class of failure.
	Kind Kind
	// Detail is a short human-readable diagnostic.
	Detail string
	// Err is the underlying cause.
	Err error
}

// E builds an *Error. An empty kind is inherited from cause when cause
// carries one.
func E(op string, kind Kind, detail string, cause error) error {
	if kind == "" {
		kind = KindOf(cause)
	}
	return &Error{Op: op, Kind: kind, Detail: detail, Err: cause}
}

func (e *Error) Error() string {
	var builder strings.Builder
	if e.Op != "" {
		builder.WriteString(e.Op)
		builder.WriteString(": ")
	}
	builder.WriteString(string(e.Kind))
	if e.Detail != "" {
		builder.WriteString(": ")
		builder.WriteString(e.Detail)
	}
	if e.Err != nil {
		builder.WriteString(": ")
		builder.WriteString(e.Err.Error())
	}
	return builder.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches a Kind target against e.Kind.
func (e *Error) Is(target error) bool {
	kind, ok := target.(Kind)
	return ok && kind == e.Kind
}

// KindOf returns the outermost Kind found in err's chain, or Other.
// A nil error has no kind and returns "".
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var classified *Error
	if errors.As(err, &classified) && classified.Kind != "" {
		return classified.Kind
	}
	var kind Kind
	if errors.As(err, &kind) {
		return kind
	}
	return Other
}
