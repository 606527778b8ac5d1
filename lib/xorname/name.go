// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package xorname

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// Len is the size of a Name in bytes.
const Len = 32

// Name is a 256-bit identifier in the XOR name space.
type Name [Len]byte

type domainKey [32]byte

// The byte values are the ASCII encoding of the domain, zero-padded.
// Changing them changes every derived name.
var (
	nodeDomainKey = domainKey{
		's', 'a', 'f', 'e', 'n', 'e', 't', '.', 'x', 'o', 'r', 'n', 'a', 'm', 'e', '.',
		'n', 'o', 'd', 'e', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}

	contentDomainKey = domainKey{
		's', 'a', 'f', 'e', 'n', 'e', 't', '.', 'x', 'o', 'r', 'n', 'a', 'm', 'e', '.',
		'c', 'o', 'n', 't', 'e', 'n', 't', 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}
)

// FromPublicKey derives the name of a node or section key from its
// public key bytes.
func FromPublicKey(publicKey []byte) Name {
	return keyedHash(nodeDomainKey, publicKey)
}

// FromContent derives a content name from the concatenation of parts.
// Each part is length-prefixed so ("ab", "c") and ("a", "bc") produce
// different names.
func FromContent(parts ...[]byte) Name {
	hasher, err := blake3.NewKeyed(contentDomainKey[:])
	if err != nil {
		panic("xorname: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	var length [8]byte
	for _, part := range parts {
		n := uint64(len(part))
		for i := range length {
			length[7-i] = byte(n >> (8 * i))
		}
		hasher.Write(length[:])
		hasher.Write(part)
	}
	var name Name
	copy(name[:], hasher.Sum(nil))
	return name
}

// Random returns a uniformly random name.
func Random() Name {
	var name Name
	if _, err := rand.Read(name[:]); err != nil {
		panic("xorname: reading random bytes: " + err.Error())
	}
	return name
}

// Parse decodes a 64-character hex string.
func Parse(hexString string) (Name, error) {
	var name Name
	decoded, err := hex.DecodeString(hexString)
	if err != nil {
		return name, fmt.Errorf("parsing name: %w", err)
	}
	if len(decoded) != Len {
		return name, fmt.Errorf("name is %d bytes, want %d", len(decoded), Len)
	}
	copy(name[:], decoded)
	return name, nil
}

// Hex returns the full lowercase hex encoding of the name.
func (n Name) Hex() string {
	return hex.EncodeToString(n[:])
}

// String returns an abbreviated hex form for logs.
func (n Name) String() string {
	return hex.EncodeToString(n[:3]) + ".."
}

// Compare orders names lexicographically by their bytes.
func (n Name) Compare(other Name) int {
	return bytes.Compare(n[:], other[:])
}

// Bit reports whether bit i (0 is the most significant bit of byte 0)
// is set.
func (n Name) Bit(i int) bool {
	return n[i/8]&(0x80>>(i%8)) != 0
}

// WithBit returns a copy of n with bit i set to value.
func (n Name) WithBit(i int, value bool) Name {
	mask := byte(0x80 >> (i % 8))
	if value {
		n[i/8] |= mask
	} else {
		n[i/8] &^= mask
	}
	return n
}

// Xor returns the bitwise XOR of n and other, the distance between
// them.
func (n Name) Xor(other Name) Name {
	var distance Name
	for i := range n {
		distance[i] = n[i] ^ other[i]
	}
	return distance
}

// CommonPrefixLen returns the number of leading bits n and other
// share.
func (n Name) CommonPrefixLen(other Name) int {
	for i := range n {
		if x := n[i] ^ other[i]; x != 0 {
			bits := 0
			for x&0x80 == 0 {
				bits++
				x <<= 1
			}
			return i*8 + bits
		}
	}
	return Len * 8
}

// CompareDistance reports whether a (-1) or b (+1) is closer to n by
// XOR distance, or 0 when a and b are the same name.
func (n Name) CompareDistance(a, b Name) int {
	for i := range n {
		da := a[i] ^ n[i]
		db := b[i] ^ n[i]
		if da != db {
			if da < db {
				return -1
			}
			return 1
		}
	}
	return 0
}

func keyedHash(key domainKey, data []byte) Name {
	hasher, err := blake3.NewKeyed(key[:])
	if err != nil {
		panic("xorname: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(data)
	var name Name
	copy(name[:], hasher.Sum(nil))
	return name
}
