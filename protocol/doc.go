// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package protocol defines the payloads carried inside comm network
// messages between clients and nodes and between nodes of a section.
//
// A payload is a tagged union: Kind selects which one field is set.
// Clients send Cmd and Query payloads. The node that receives them
// forwards the same payload, marked Forwarded, to the other replicas
// of the addressed register, and relays their agreed Ack or Response.
// Section peers exchange AntiEntropy payloads and replica Bundles.
package protocol
