// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package section

import (
	"bytes"
	"slices"

	"github.com/safenet-project/safenet/lib/codec"
	"github.com/safenet-project/safenet/lib/keys"
	"github.com/safenet-project/safenet/lib/neterr"
)

const keyDomain = "safenet/section/key/"

func keyMessage(key keys.PublicKey) []byte {
	return append([]byte(keyDomain), key[:]...)
}

// SignKey signs child with the parent section keypair, producing the
// signature a DAG edge from parent to child carries.
func SignKey(parent *keys.Keypair, child keys.PublicKey) keys.Signature {
	return parent.Sign(keyMessage(child))
}

// Edge links a key to the parent key that signed it.
type Edge struct {
	Parent    keys.PublicKey `cbor:"1,keyasint"`
	Key       keys.PublicKey `cbor:"2,keyasint"`
	Signature keys.Signature `cbor:"3,keyasint"`
}

func (e Edge) verify() bool {
	return e.Parent.Verify(keyMessage(e.Key), e.Signature)
}

// DAG holds section keys rooted at a genesis key. Every other key has
// exactly one parent, which signed it. The zero DAG is not usable; use
// NewDAG.
type DAG struct {
	genesis  keys.PublicKey
	edges    map[keys.PublicKey]Edge
	children map[keys.PublicKey][]keys.PublicKey
	// order lists keys in insertion order, which is always topological.
	order []keys.PublicKey
}

// NewDAG returns a DAG holding only genesis.
func NewDAG(genesis keys.PublicKey) *DAG {
	return &DAG{
		genesis:  genesis,
		edges:    make(map[keys.PublicKey]Edge),
		children: make(map[keys.PublicKey][]keys.PublicKey),
	}
}

// Genesis returns the root key.
func (d *DAG) Genesis() keys.PublicKey { return d.genesis }

// HasKey reports whether key is in the DAG.
func (d *DAG) HasKey(key keys.PublicKey) bool {
	if key == d.genesis {
		return true
	}
	_, ok := d.edges[key]
	return ok
}

// Insert adds key under parent. The parent must already be present and
// signature must be parent's signature over key. Inserting a key that
// is already present under the same parent is a no-op.
func (d *DAG) Insert(parent, key keys.PublicKey, signature keys.Signature) error {
	const op = "section.DAG.Insert"
	edge := Edge{Parent: parent, Key: key, Signature: signature}
	if !edge.verify() {
		return neterr.E(op, neterr.InvalidSignature, "edge "+parent.String()+" -> "+key.String(), nil)
	}
	if !d.HasKey(parent) {
		return neterr.E(op, neterr.KeyNotFound, parent.String(), nil)
	}
	if key == d.genesis {
		return neterr.E(op, neterr.InvalidBranch, "genesis key cannot have a parent", nil)
	}
	if existing, ok := d.edges[key]; ok {
		if existing.Parent != parent {
			return neterr.E(op, neterr.InvalidBranch,
				key.String()+" already has parent "+existing.Parent.String(), nil)
		}
		return nil
	}
	d.edges[key] = edge
	d.children[parent] = insertSorted(d.children[parent], key)
	d.order = append(d.order, key)
	return nil
}

// Parent returns key's parent. The genesis key has none.
func (d *DAG) Parent(key keys.PublicKey) (keys.PublicKey, bool, error) {
	if key == d.genesis {
		return keys.PublicKey{}, false, nil
	}
	edge, ok := d.edges[key]
	if !ok {
		return keys.PublicKey{}, false, neterr.E("section.DAG.Parent", neterr.KeyNotFound, key.String(), nil)
	}
	return edge.Parent, true, nil
}

// Ancestors returns key's parent, grandparent and so on up to the
// genesis key.
func (d *DAG) Ancestors(key keys.PublicKey) ([]keys.PublicKey, error) {
	var ancestors []keys.PublicKey
	for {
		parent, ok, err := d.Parent(key)
		if err != nil {
			return nil, err
		}
		if !ok {
			return ancestors, nil
		}
		ancestors = append(ancestors, parent)
		key = parent
	}
}

// Children returns the keys signed directly by key, sorted.
func (d *DAG) Children(key keys.PublicKey) ([]keys.PublicKey, error) {
	if !d.HasKey(key) {
		return nil, neterr.E("section.DAG.Children", neterr.KeyNotFound, key.String(), nil)
	}
	return slices.Clone(d.children[key]), nil
}

// Keys returns the genesis key followed by every other key in
// insertion order.
func (d *DAG) Keys() []keys.PublicKey {
	return append([]keys.PublicKey{d.genesis}, d.order...)
}

// Len is the number of keys, genesis included.
func (d *DAG) Len() int { return 1 + len(d.order) }

// LeafKeys returns the keys without children, sorted. A DAG holding
// only the genesis key has the genesis as its single leaf.
func (d *DAG) LeafKeys() []keys.PublicKey {
	var leaves []keys.PublicKey
	for _, key := range d.Keys() {
		if len(d.children[key]) == 0 {
			leaves = append(leaves, key)
		}
	}
	slices.SortFunc(leaves, comparePublicKey)
	return leaves
}

// LastKey returns the single leaf of a linear chain.
func (d *DAG) LastKey() (keys.PublicKey, error) {
	leaves := d.LeafKeys()
	if len(leaves) != 1 {
		return keys.PublicKey{}, neterr.E("section.DAG.LastKey", neterr.InvalidBranch, "chain has several leaves", nil)
	}
	return leaves[0], nil
}

// SelfVerify checks every edge signature.
func (d *DAG) SelfVerify() bool {
	for _, key := range d.order {
		edge := d.edges[key]
		if !d.HasKey(edge.Parent) || !edge.verify() {
			return false
		}
	}
	return true
}

// CheckTrust reports whether the DAG's genesis key is one of trusted.
func (d *DAG) CheckTrust(trusted []keys.PublicKey) bool {
	return slices.Contains(trusted, d.genesis)
}

// PartialDAG returns the chain from from down to to. to must be in the
// DAG (KeyNotFound otherwise) and from must be to itself or one of its
// ancestors (InvalidBranch otherwise).
func (d *DAG) PartialDAG(from, to keys.PublicKey) (*DAG, error) {
	if !d.HasKey(to) {
		return nil, neterr.E("section.DAG.PartialDAG", neterr.KeyNotFound, to.String(), nil)
	}
	var path []Edge
	for key := to; key != from; {
		edge, ok := d.edges[key]
		if !ok {
			return nil, neterr.E("section.DAG.PartialDAG", neterr.InvalidBranch,
				from.String()+" is not an ancestor of "+to.String(), nil)
		}
		path = append(path, edge)
		key = edge.Parent
	}
	partial := NewDAG(from)
	for _, edge := range slices.Backward(path) {
		partial.edges[edge.Key] = edge
		partial.children[edge.Parent] = insertSorted(partial.children[edge.Parent], edge.Key)
		partial.order = append(partial.order, edge.Key)
	}
	return partial, nil
}

// Merge inserts other's keys. Either DAG's genesis must be present in
// the other; when other is rooted above d, the result is rooted at
// other's genesis. other must verify.
func (d *DAG) Merge(other *DAG) error {
	const op = "section.DAG.Merge"
	if !other.SelfVerify() {
		return neterr.E(op, neterr.InvalidSignature, "merged DAG fails verification", nil)
	}
	if !d.HasKey(other.genesis) {
		if !other.HasKey(d.genesis) {
			return neterr.E(op, neterr.KeyNotFound, "neither genesis key is in the other DAG", nil)
		}
		mine := d.Clone()
		*d = *other.Clone()
		other = mine
	}
	for _, key := range other.order {
		edge := other.edges[key]
		if err := d.Insert(edge.Parent, edge.Key, edge.Signature); err != nil {
			return err
		}
	}
	return nil
}

// Clone returns a deep copy.
func (d *DAG) Clone() *DAG {
	clone := NewDAG(d.genesis)
	for key, edge := range d.edges {
		clone.edges[key] = edge
	}
	for key, children := range d.children {
		clone.children[key] = slices.Clone(children)
	}
	clone.order = slices.Clone(d.order)
	return clone
}

// dagWire is the serialised DAG: the genesis key and the edges in
// topological order.
type dagWire struct {
	Genesis keys.PublicKey `cbor:"1,keyasint"`
	Edges   []Edge         `cbor:"2,keyasint,omitempty"`
}

// MarshalCBOR implements cbor.Marshaler.
func (d *DAG) MarshalCBOR() ([]byte, error) {
	wire := dagWire{Genesis: d.genesis, Edges: make([]Edge, len(d.order))}
	for i, key := range d.order {
		wire.Edges[i] = d.edges[key]
	}
	return codec.Marshal(wire)
}

// UnmarshalCBOR implements cbor.Unmarshaler. Every edge is verified as
// it is inserted, so a decoded DAG always self-verifies.
func (d *DAG) UnmarshalCBOR(data []byte) error {
	var wire dagWire
	if err := codec.Unmarshal(data, &wire); err != nil {
		return err
	}
	decoded := NewDAG(wire.Genesis)
	for _, edge := range wire.Edges {
		if err := decoded.Insert(edge.Parent, edge.Key, edge.Signature); err != nil {
			return err
		}
	}
	*d = *decoded
	return nil
}

func comparePublicKey(a, b keys.PublicKey) int { return bytes.Compare(a[:], b[:]) }

func insertSorted(list []keys.PublicKey, key keys.PublicKey) []keys.PublicKey {
	index, found := slices.BinarySearchFunc(list, key, comparePublicKey)
	if found {
		return list
	}
	return slices.Insert(list, index, key)
}
