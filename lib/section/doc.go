// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package section models what a node knows about the sections of the
// network.
//
// A section is responsible for the names under its [xorname.Prefix]
// and is described by a [SAP] (section authority provider): the prefix,
// the section key and the current members. A [SignedSAP] carries the
// section key's signature over the SAP.
//
// Section keys form a [DAG] rooted at the genesis key, where every key
// except the genesis is signed by its parent. A partial DAG ending at a
// SAP's key is the proof chain that lets a receiver who trusts any
// ancestor key trust the SAP.
//
// A [Tree] maps each known prefix to its latest signed SAP and owns the
// DAG of every key it has seen. [Tree.Update] is the only way to add
// knowledge and updates the map and the DAG together.
package section
