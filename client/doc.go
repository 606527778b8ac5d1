// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package client is the SDK for talking to a safenet network.
//
// A Client signs register commands and queries with its keypair,
// addresses each to the section whose prefix is closest to the
// register's storage name, and follows the anti-entropy replies of
// stale or misdirected sends until a node answers. The section tree it
// starts from is usually read from a network contacts file or a saved
// tree; it only ever grows through verified authorities.
package client
