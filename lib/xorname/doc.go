// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package xorname defines the 256-bit name space shared by content
// addresses, node identities and section prefixes.
//
// A [Name] is an opaque 32-byte identifier. Names are compared
// bytewise for equality and ordering, and by XOR distance when the
// network needs "closest to" answers: the node, section or replica
// responsible for a piece of data is the one whose name has the
// smallest XOR distance from the data's name.
//
// A [Prefix] is a bit-prefix over the name space. Sections are
// responsible for every name their prefix matches. Prefixes render as
// bit strings ("", "0", "01", ...), which is also their CBOR and JSON
// form.
//
// Names that are derived from other material (node names from public
// keys, content names from bytes) use BLAKE3 keyed hashing with a
// per-domain key, so a node name can never collide with a content
// name computed over the same bytes.
package xorname
