// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package node runs a section member.
//
// A Node reads every event its comm.Comm delivers. Messages other than
// anti-entropy pass the entropy check first: a message addressed under
// a stale section key is answered with a Retry, one addressed outside
// our prefix with a Redirect. Accepted client commands and queries are
// applied to the local register store and fanned out to the other
// replicas of the register, and the client receives the replicas'
// agreed reply on its stream.
//
// Section membership follows the node's anti-entropy knowledge. When
// an accepted authority changes our member set the node retargets its
// comm and ships the logs for our prefix to the members that joined.
// Run returns once an authority removes the node from its section.
package node
