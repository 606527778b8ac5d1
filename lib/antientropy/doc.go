// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package antientropy keeps a peer's view of section authority in
// step with the rest of the network.
//
// [Knowledge] holds the section tree, the sections DAG it carries, and
// for nodes the authority of their own section. Every inbound message
// passes [Knowledge.Check]: a destination outside our prefix draws a
// Redirect carrying the closest known section, a stale section key
// draws a Retry carrying our current authority, and anything else is
// accepted. Both responses bounce the original message back so the
// sender can resend it once [Knowledge.HandleBounce] has folded the
// attached authority into its own tree.
//
// Nodes also broadcast an Update with their section's authority on a
// timer ([Knowledge.RunUpdates]). An accepted authority for our own
// prefix changes our member set; a node that finds itself missing
// from it observes [Knowledge.RejoinRequired] exactly once.
package antientropy
