// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the standard CBOR encoding configuration.
//
// CBOR is the only serialization used between nodes and on disk:
// signed register operations, the comm envelope, transport frames,
// register log records, the state cache and the section tree file.
// JSON appears only at the edges (the network contacts file and CLI
// output).
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2). Two
// properties of the system depend on it:
//
//   - Signatures are computed over the encoded operation, so every
//     node must produce the same bytes for the same operation.
//   - Fan-out quorum compares replica replies byte for byte, so equal
//     answers must encode identically.
//
// For buffer-oriented operations:
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// For stream-oriented operations:
//
//	encoder := codec.NewEncoder(conn)
//	decoder := codec.NewDecoder(conn)
//
// Wire structs use integer keys (`cbor:"1,keyasint"`) to keep frames
// small; on-disk records use string keys so files stay inspectable
// with Diagnose.
package codec
