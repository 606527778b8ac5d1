// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package section

import (
	"math"

	"github.com/safenet-project/safenet/lib/xorname"
)

// NetworkStats summarises what a node can see of the network.
type NetworkStats struct {
	KnownMembers uint64
	// TotalMembers is exact when Exact is set and an extrapolation
	// from the fraction of name space covered otherwise.
	TotalMembers uint64
	Exact        bool
}

// NetworkStats estimates the network size from the known sections
// plus our own.
func (t *Tree) NetworkStats(our SAP) NetworkStats {
	known := append(t.prefixesExcept(our.Prefix), our.Prefix)

	var fraction float64
	for _, prefix := range known {
		fraction += math.Exp2(-float64(prefix.BitCount()))
	}
	var members uint64
	for _, prefix := range known {
		if prefix == our.Prefix {
			members += uint64(len(our.Members))
			continue
		}
		members += uint64(len(t.sections[prefix].SAP.Members))
	}
	return NetworkStats{
		KnownMembers: members,
		TotalMembers: uint64(math.Ceil(float64(members) / fraction)),
		Exact:        coveredBy(xorname.Prefix{}, known),
	}
}

func (t *Tree) prefixesExcept(excluded xorname.Prefix) []xorname.Prefix {
	var prefixes []xorname.Prefix
	for _, prefix := range t.prefixes() {
		if prefix != excluded {
			prefixes = append(prefixes, prefix)
		}
	}
	return prefixes
}

// coveredBy reports whether every name under prefix falls under one of
// known.
func coveredBy(prefix xorname.Prefix, known []xorname.Prefix) bool {
	deeper := false
	for _, candidate := range known {
		if candidate == prefix || prefix.IsExtensionOf(candidate) {
			return true
		}
		if candidate.IsExtensionOf(prefix) {
			deeper = true
		}
	}
	if !deeper {
		return false
	}
	return coveredBy(prefix.Pushed(false), known) && coveredBy(prefix.Pushed(true), known)
}
