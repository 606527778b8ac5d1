// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport carries safenet messages between two peers.
//
// A [Listener] accepts raw connections and a [Dialer] opens them; TCP
// is the production pair and [MemoryNetwork] provides both for tests,
// with switches for unreachable and severed peers. An [Endpoint] owns
// one node's listener, dialer and signing key.
//
// Every connection starts with a mutual Ed25519 handshake: each side
// sends its public key and a random nonce, then signs the other side's
// nonce bound to the other side's key. A peer's identity is the XOR
// name of the key it proved, so a dialer that expects a particular
// name rejects anyone else.
//
// After the handshake a [Conn] multiplexes streams over the connection.
// Frames are a 4-byte big-endian length followed by a CBOR frame
// record. [Conn.Send] writes a one-way frame; [Conn.Request] opens a
// stream and waits for the single response frame the peer writes with
// [Message.Respond]. Dialers allocate odd stream ids and acceptors even
// ones, so both sides can open streams without coordination.
package transport
