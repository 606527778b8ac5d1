// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package safeurl encodes and decodes content-addressed safe:// URLs.
//
// A URL packs a fixed binary header into a single multibase-encoded
// label:
//
//	offset  size  field
//	0       1     encoding version (1)
//	1       2     content type (big-endian)
//	3       1     data type
//	4       32    xorname
//	36      0..8  type tag (big-endian, leading zero bytes stripped)
//
// The encoded label is preceded by optional sub-names and followed by
// an optional path and query:
//
//	safe://[sub.]...<body>[/path][?v=<version>&k=v...]
//
// The body alphabet is selected by its multibase prefix character
// (h = base32z, b = base32, m = base64). The bytes after the prefix
// are a big-integer radix encoding of the header, not RFC 4648 bit
// packing, so the same header always yields the same label regardless
// of its length.
//
// A '/' produced by the base64 alphabet is rendered as "%2F" so it
// cannot be mistaken for the start of the path.
//
// The reserved query parameter "v" carries the content version and is
// always rendered first.
package safeurl
