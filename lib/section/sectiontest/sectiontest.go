// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sectiontest builds signed section authorities for tests.
package sectiontest

import (
	"testing"

	"github.com/safenet-project/safenet/lib/keys"
	"github.com/safenet-project/safenet/lib/section"
	"github.com/safenet-project/safenet/lib/xorname"
)

// Network issues section keys descending from one genesis key and
// remembers every edge in DAG.
type Network struct {
	t       testing.TB
	Genesis *keys.Keypair
	DAG     *section.DAG
}

func New(t testing.TB) *Network {
	t.Helper()
	genesis := Keypair(t)
	return &Network{t: t, Genesis: genesis, DAG: section.NewDAG(genesis.Public())}
}

// Keypair generates a keypair or fails t.
func Keypair(t testing.TB) *keys.Keypair {
	t.Helper()
	keypair, err := keys.Generate()
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	return keypair
}

// KeypairIn generates keypairs until one is named under prefix.
func KeypairIn(t testing.TB, bits string) *keys.Keypair {
	t.Helper()
	prefix := Prefix(t, bits)
	for {
		keypair := Keypair(t)
		if prefix.Matches(keypair.Name()) {
			return keypair
		}
	}
}

// Key issues a section key signed by parent.
func (n *Network) Key(parent *keys.Keypair) *keys.Keypair {
	n.t.Helper()
	child := Keypair(n.t)
	if err := n.DAG.Insert(parent.Public(), child.Public(), section.SignKey(parent, child.Public())); err != nil {
		n.t.Fatalf("Insert() error: %v", err)
	}
	return child
}

// SAP signs an authority for prefix ("" for the whole name space).
func (n *Network) SAP(prefix string, key *keys.Keypair, generation uint64, members []section.Member) section.SignedSAP {
	n.t.Helper()
	signed, err := section.SignSAP(section.NewSAP(Prefix(n.t, prefix), key.Public(), members, generation), key)
	if err != nil {
		n.t.Fatalf("SignSAP() error: %v", err)
	}
	return signed
}

// Update pairs signed with its chain from genesis.
func (n *Network) Update(signed section.SignedSAP) section.Update {
	n.t.Helper()
	chain, err := n.DAG.PartialDAG(n.Genesis.Public(), signed.SAP.Key)
	if err != nil {
		n.t.Fatalf("PartialDAG() error: %v", err)
	}
	return section.NewUpdate(signed, chain)
}

// Tree returns a tree trusting genesis that holds saps.
func (n *Network) Tree(saps ...section.SignedSAP) *section.Tree {
	n.t.Helper()
	tree := section.NewTree(n.Genesis.Public())
	for _, signed := range saps {
		if _, err := tree.Update(n.Update(signed)); err != nil {
			n.t.Fatalf("Tree.Update(%s) error: %v", signed.SAP, err)
		}
	}
	return tree
}

// Prefix parses a bit string or fails t.
func Prefix(t testing.TB, bits string) xorname.Prefix {
	t.Helper()
	prefix, err := xorname.ParsePrefix(bits)
	if err != nil {
		t.Fatalf("ParsePrefix(%q) error: %v", bits, err)
	}
	return prefix
}

// NameIn returns a random name under prefix.
func NameIn(t testing.TB, bits string) xorname.Name {
	t.Helper()
	name := xorname.Random()
	for i, bit := range bits {
		name = name.WithBit(i, bit == '1')
	}
	return name
}

// Members returns count members named under prefix, each addressed by
// its own name.
func Members(t testing.TB, count int, bits string) []section.Member {
	t.Helper()
	members := make([]section.Member, count)
	for i := range members {
		name := NameIn(t, bits)
		members[i] = section.Member{Name: name, Addr: name.Hex()[:12]}
	}
	return members
}
