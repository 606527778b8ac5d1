// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package register

import (
	"fmt"
	"slices"

	"github.com/safenet-project/safenet/lib/neterr"
	"github.com/safenet-project/safenet/lib/xorname"
)

const (
	// MaxEntrySize is the largest value a single entry may hold.
	MaxEntrySize = 1024
	// MaxEntries is the most entries a register may hold.
	MaxEntries = 1024
)

// Register is one replica's view of a register.
type Register struct {
	authority User
	policy    Policy
	dag       *merkleDAG
}

// New creates an empty register. authority is the user this replica
// writes as.
func New(authority User, name xorname.Name, tag uint64, policy Policy) *Register {
	return &Register{
		authority: authority,
		policy:    policy,
		dag:       newMerkleDAG(Address{Name: name, Tag: tag}),
	}
}

func (r *Register) Address() Address { return r.dag.address }
func (r *Register) Name() xorname.Name { return r.dag.address.Name }
func (r *Register) Tag() uint64 { return r.dag.address.Tag }
func (r *Register) Owner() User { return r.policy.Owner }
func (r *Register) Policy() Policy { return r.policy }
func (r *Register) ReplicaAuthority() User { return r.authority }

// Size is the number of applied entries.
func (r *Register) Size() int { return r.dag.size() }

// Entry is a value together with its hash.
type Entry struct {
	Hash  EntryHash `cbor:"1,keyasint"`
	Value []byte    `cbor:"2,keyasint"`
}

// Get returns the value of the entry with the given hash.
func (r *Register) Get(hash EntryHash) ([]byte, error) {
	n, ok := r.dag.nodes[hash]
	if !ok {
		return nil, neterr.E("register.Get", neterr.NoSuchEntry, hash.String(), nil)
	}
	return slices.Clone(n.value), nil
}

// Read returns the current heads: the latest entry, or several when
// concurrent writes have not been merged by a later write.
func (r *Register) Read() []Entry {
	heads := r.dag.read()
	entries := make([]Entry, len(heads))
	for i, hash := range heads {
		entries[i] = Entry{Hash: hash, Value: slices.Clone(r.dag.nodes[hash].value)}
	}
	return entries
}

// Permissions returns the grant for user.
func (r *Register) Permissions(user User) (Permissions, error) {
	perms, ok := r.policy.Permissions(user)
	if !ok {
		return Permissions{}, neterr.E("register.Permissions", neterr.NoSuchUser, user.String(), nil)
	}
	return perms, nil
}

// CheckPermissions checks whether requester may perform action.
func (r *Register) CheckPermissions(action Action, requester User) error {
	return r.policy.IsActionAllowed(requester, action)
}

// Write adds value on top of children and returns the new entry's
// hash with the unsigned op, which the caller signs and sends to the
// other replicas.
func (r *Register) Write(value []byte, children []EntryHash) (EntryHash, Op, error) {
	if err := r.checkSizes(value); err != nil {
		return EntryHash{}, Op{}, err
	}
	op, err := r.dag.makeOp(value, children, r.authority)
	if err != nil {
		return EntryHash{}, Op{}, err
	}
	if err := r.dag.apply(op); err != nil {
		return EntryHash{}, Op{}, err
	}
	return op.Hash, op, nil
}

// ApplyOp integrates an op produced by any replica. Applying an op
// twice has no further effect.
func (r *Register) ApplyOp(op Op) error {
	if r.dag.holds(op.Hash) {
		return nil
	}
	if err := r.checkSizes(op.Value); err != nil {
		return err
	}
	return r.dag.apply(op)
}

// Merge folds other's entries into r. Both must be replicas of the
// same address.
func (r *Register) Merge(other *Register) error {
	if other.Address() != r.Address() {
		return neterr.E("register.Merge", neterr.RegisterAddrMismatch,
			fmt.Sprintf("%s into %s", other.Address(), r.Address()), nil)
	}
	for _, op := range other.dag.ops() {
		if err := r.ApplyOp(op); err != nil {
			return err
		}
	}
	return nil
}

// Snapshot is a serialisable copy of a register.
type Snapshot struct {
	Address Address `cbor:"1,keyasint"`
	Policy  Policy  `cbor:"2,keyasint"`
	Ops     []Op    `cbor:"3,keyasint,omitempty"`
}

// Snapshot captures r's address, policy and ops.
func (r *Register) Snapshot() Snapshot {
	return Snapshot{Address: r.Address(), Policy: r.policy, Ops: r.dag.ops()}
}

// FromSnapshot rebuilds a register, writing as authority.
func FromSnapshot(authority User, snapshot Snapshot) (*Register, error) {
	register := New(authority, snapshot.Address.Name, snapshot.Address.Tag, snapshot.Policy)
	for _, op := range snapshot.Ops {
		if err := register.dag.apply(op); err != nil {
			return nil, err
		}
	}
	return register, nil
}

func (r *Register) checkSizes(value []byte) error {
	if len(value) > MaxEntrySize {
		return neterr.E("register.Write", neterr.EntryTooBig,
			fmt.Sprintf("%d bytes, maximum is %d", len(value), MaxEntrySize), nil)
	}
	if held := r.dag.held(); held >= MaxEntries {
		return neterr.E("register.Write", neterr.TooManyEntries,
			fmt.Sprintf("register holds %d entries and orphans", held), nil)
	}
	return nil
}
