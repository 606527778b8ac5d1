// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package register implements the Register: a replicated, owner-held
// CRDT whose entries form a Merkle DAG.
//
// Every write names the entries it supersedes (its children). The
// entries nobody supersedes are the heads; [Register.Read] returns
// them. Concurrent writes from different replicas produce several
// heads until a later write names them all as children. Because an
// entry's hash covers its value and its children, replicas that apply
// the same set of operations hold the same DAG regardless of arrival
// order. Operations whose children have not arrived yet are held as
// orphans and applied once the children are known.
//
// Mutations reach a node as a [Command]: a signed Create establishing
// the register, or a signed Edit carrying one CRDT operation.
// [StoredRegister] is the state machine that decides, per command,
// whether to apply it, buffer it in the log for later validation, or
// reject it. Edits that arrive before the register's Create are kept
// unverified and validated when the Create shows up.
//
// Signatures are Ed25519 over the deterministic CBOR encoding of the
// operation (never the whole command), so every replica verifies the
// same bytes.
package register
