// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package registerstore keeps the command logs of the registers a node
// holds.
//
// Each register address owns one append-only log file under
// <root>/registers. A record is
//
//	uvarint(len(payload)) | payload (CBOR register.Command) | blake3(payload)
//
// and every append is fsynced before the write is acknowledged. A
// record that fails its checksum or stops short of its declared length
// marks a torn tail from a crash; the log is truncated back to the
// last good record when it is next opened.
//
// Two derived structures sit beside the logs:
//
//   - an SQLite index (lib/sqlitepool) mapping each address to its
//     name, tag and command count, used for listing and prefix export;
//   - a materialised-state cache per address, replaced atomically with
//     renameio and trusted only while it names the current log head.
//
// Both can be rebuilt from the logs. Open reconciles the index against
// the files on disk, so a crash between a log append and an index
// update heals on the next start.
//
// Operations on one address are serialised by a per-address lock;
// different addresses proceed in parallel. The store root is guarded
// by an exclusive flock so two processes never share it.
package registerstore
