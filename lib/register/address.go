// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package register

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"slices"

	"github.com/zeebo/blake3"

	"github.com/safenet-project/safenet/lib/xorname"
)

// Address locates a register: a name plus a numeric type tag.
type Address struct {
	Name xorname.Name `cbor:"1,keyasint"`
	Tag  uint64       `cbor:"2,keyasint"`
}

// ID is the storage key of the register. Registers with the same name
// but different tags get different IDs. Requests and replication route
// by Name, never by ID.
func (a Address) ID() xorname.Name {
	var tag [8]byte
	binary.BigEndian.PutUint64(tag[:], a.Tag)
	return xorname.FromContent(a.Name[:], tag[:])
}

func (a Address) String() string {
	return fmt.Sprintf("%s/%d", a.Name, a.Tag)
}

// EntryHash identifies an entry by its value and its children.
type EntryHash [32]byte

func (h EntryHash) String() string { return hex.EncodeToString(h[:]) }

// ParseEntryHash decodes a 64-character hex entry hash.
func ParseEntryHash(hexString string) (EntryHash, error) {
	var hash EntryHash
	decoded, err := hex.DecodeString(hexString)
	if err != nil {
		return hash, fmt.Errorf("parsing entry hash: %w", err)
	}
	if len(decoded) != len(hash) {
		return hash, fmt.Errorf("entry hash is %d bytes, want %d", len(decoded), len(hash))
	}
	copy(hash[:], decoded)
	return hash, nil
}

var entryDomainKey = [32]byte{
	's', 'a', 'f', 'e', 'n', 'e', 't', '.', 'r', 'e', 'g', 'i', 's', 't', 'e', 'r',
	'.', 'e', 'n', 't', 'r', 'y', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// hashEntry computes the hash of value under children. children must
// be sorted and free of duplicates.
func hashEntry(value []byte, children []EntryHash) EntryHash {
	hasher, err := blake3.NewKeyed(entryDomainKey[:])
	if err != nil {
		panic("register: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	var length [8]byte
	binary.BigEndian.PutUint64(length[:], uint64(len(value)))
	hasher.Write(length[:])
	hasher.Write(value)
	binary.BigEndian.PutUint64(length[:], uint64(len(children)))
	hasher.Write(length[:])
	for _, child := range children {
		hasher.Write(child[:])
	}
	var hash EntryHash
	copy(hash[:], hasher.Sum(nil))
	return hash
}

func compareHash(a, b EntryHash) int {
	return slices.Compare(a[:], b[:])
}

// normalizeChildren returns a sorted, de-duplicated copy.
func normalizeChildren(children []EntryHash) []EntryHash {
	if len(children) == 0 {
		return nil
	}
	sorted := slices.Clone(children)
	slices.SortFunc(sorted, compareHash)
	return slices.Compact(sorted)
}
