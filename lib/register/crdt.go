// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package register

import (
	"slices"

	"github.com/safenet-project/safenet/lib/neterr"
)

// Op is one CRDT operation: a value written on top of the entries it
// supersedes. Ops are signed by their source and carried in Edit
// commands.
type Op struct {
	Address  Address     `cbor:"1,keyasint"`
	Value    []byte      `cbor:"2,keyasint"`
	Children []EntryHash `cbor:"3,keyasint,omitempty"`
	Source   User        `cbor:"4,keyasint"`
	Hash     EntryHash   `cbor:"5,keyasint"`
}

type node struct {
	value    []byte
	children []EntryHash
	source   User
}

// merkleDAG holds applied entries, the current heads, and ops waiting
// for their children.
type merkleDAG struct {
	address Address
	nodes   map[EntryHash]node
	heads   map[EntryHash]struct{}
	orphans map[EntryHash]Op
	// applied keeps insertion order for snapshots and merges.
	applied []EntryHash
}

func newMerkleDAG(address Address) *merkleDAG {
	return &merkleDAG{
		address: address,
		nodes:   make(map[EntryHash]node),
		heads:   make(map[EntryHash]struct{}),
		orphans: make(map[EntryHash]Op),
	}
}

func (d *merkleDAG) size() int { return len(d.nodes) }

// held counts entries plus the orphans waiting for their children.
func (d *merkleDAG) held() int { return len(d.nodes) + len(d.orphans) }

func (d *merkleDAG) has(hash EntryHash) bool {
	_, ok := d.nodes[hash]
	return ok
}

// holds reports whether hash is an entry or a buffered orphan.
func (d *merkleDAG) holds(hash EntryHash) bool {
	_, waiting := d.orphans[hash]
	return waiting || d.has(hash)
}

// makeOp builds the op for writing value over children without
// applying it.
func (d *merkleDAG) makeOp(value []byte, children []EntryHash, source User) (Op, error) {
	children = normalizeChildren(children)
	for _, child := range children {
		if !d.has(child) {
			return Op{}, neterr.E("register.Write", neterr.InvalidBranch, "unknown child "+child.String(), nil)
		}
	}
	return Op{
		Address:  d.address,
		Value:    slices.Clone(value),
		Children: children,
		Source:   source,
		Hash:     hashEntry(value, children),
	}, nil
}

// apply integrates op. Re-applying a known op is a no-op. An op whose
// children are missing is held until they arrive.
func (d *merkleDAG) apply(op Op) error {
	if op.Address != d.address {
		return neterr.E("register.Apply", neterr.RegisterAddrMismatch,
			"op for "+op.Address.String()+" applied to "+d.address.String(), nil)
	}
	children := normalizeChildren(op.Children)
	if !slices.Equal(children, op.Children) || hashEntry(op.Value, children) != op.Hash {
		return neterr.E("register.Apply", neterr.InvalidBranch, "op hash does not match its content", nil)
	}
	if d.has(op.Hash) {
		return nil
	}
	if _, waiting := d.orphans[op.Hash]; waiting {
		return nil
	}

	if !d.childrenKnown(children) {
		d.orphans[op.Hash] = op
		return nil
	}
	d.insert(op)
	d.adoptOrphans()
	return nil
}

func (d *merkleDAG) childrenKnown(children []EntryHash) bool {
	for _, child := range children {
		if !d.has(child) {
			return false
		}
	}
	return true
}

func (d *merkleDAG) insert(op Op) {
	d.nodes[op.Hash] = node{value: op.Value, children: op.Children, source: op.Source}
	d.applied = append(d.applied, op.Hash)
	for _, child := range op.Children {
		delete(d.heads, child)
	}
	d.heads[op.Hash] = struct{}{}
}

// adoptOrphans applies orphans whose children became known, repeating
// until no more progress is made.
func (d *merkleDAG) adoptOrphans() {
	for progress := true; progress; {
		progress = false
		for hash, op := range d.orphans {
			if d.childrenKnown(op.Children) {
				delete(d.orphans, hash)
				d.insert(op)
				progress = true
			}
		}
	}
}

// read returns the heads sorted by hash.
func (d *merkleDAG) read() []EntryHash {
	heads := make([]EntryHash, 0, len(d.heads))
	for hash := range d.heads {
		heads = append(heads, hash)
	}
	slices.SortFunc(heads, compareHash)
	return heads
}

// ops returns every applied op in application order followed by the
// orphans, so applying them in order to an empty DAG rebuilds d.
func (d *merkleDAG) ops() []Op {
	ops := make([]Op, 0, len(d.applied)+len(d.orphans))
	for _, hash := range d.applied {
		n := d.nodes[hash]
		ops = append(ops, Op{Address: d.address, Value: n.value, Children: n.children, Source: n.source, Hash: hash})
	}
	orphanHashes := make([]EntryHash, 0, len(d.orphans))
	for hash := range d.orphans {
		orphanHashes = append(orphanHashes, hash)
	}
	slices.SortFunc(orphanHashes, compareHash)
	for _, hash := range orphanHashes {
		ops = append(ops, d.orphans[hash])
	}
	return ops
}
