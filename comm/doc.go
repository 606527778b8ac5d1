// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package comm is the node communication layer: per-peer links and
// sessions over [transport.Endpoint], and the membership-scoped [Comm]
// core above them.
//
// A [PeerLink] holds the connections to one peer, dialing lazily and
// retrying a failed send on a fresh connection a bounded number of
// times. A [PeerSession] queues sends for that peer and reports each
// one's progress through a [SendWatcher]. [Comm] creates sessions only
// for peers in its current member set, fans requests out to replicas
// and relays their reply only when every reply is byte-identical, and
// turns inbound traffic into [CommEvent] values on a single channel.
//
// Payloads are opaque here. The [NetworkMsg] envelope exposes the
// message id and destination so the anti-entropy layer can inspect
// them without decoding the payload.
package comm
