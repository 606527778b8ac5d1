// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package section

import (
	"cmp"
	"log/slog"
	"maps"
	"slices"

	"github.com/safenet-project/safenet/lib/codec"
	"github.com/safenet-project/safenet/lib/keys"
	"github.com/safenet-project/safenet/lib/neterr"
	"github.com/safenet-project/safenet/lib/xorname"
)

// Update is a signed SAP with the proof chain that ends at its key.
type Update struct {
	SAP        SignedSAP `cbor:"1,keyasint"`
	ProofChain *DAG      `cbor:"2,keyasint"`
}

// NewUpdate pairs sap with proof.
func NewUpdate(sap SignedSAP, proof *DAG) Update {
	return Update{SAP: sap, ProofChain: proof}
}

// Tree maps prefixes to their latest signed SAP. A Tree is not safe
// for concurrent use.
type Tree struct {
	sections map[xorname.Prefix]SignedSAP
	dag      *DAG
	logger   *slog.Logger
}

// NewTree returns a tree that trusts only genesis.
func NewTree(genesis keys.PublicKey) *Tree {
	return &Tree{
		sections: make(map[xorname.Prefix]SignedSAP),
		dag:      NewDAG(genesis),
		logger:   slog.New(slog.DiscardHandler),
	}
}

// SetLogger directs the tree's diagnostics to logger.
func (t *Tree) SetLogger(logger *slog.Logger) {
	if logger != nil {
		t.logger = logger
	}
}

// Genesis returns the genesis key.
func (t *Tree) Genesis() keys.PublicKey { return t.dag.Genesis() }

// DAG returns the tree's sections DAG. Callers must not modify it.
func (t *Tree) DAG() *DAG { return t.dag }

// Len is the number of known sections.
func (t *Tree) Len() int { return len(t.sections) }

// Update verifies u and records its SAP. It reports whether anything
// changed.
//
// The SAP must verify under its own key and that key must be the last
// key of the proof chain. If the prefix is already known, the chain
// must include the key we hold for it, and a SAP under the same key
// must carry a higher generation. If the prefix is new, the chain's
// genesis must be a key we already trust. A SAP whose prefix is an
// ancestor of a known prefix is ignored.
func (t *Tree) Update(u Update) (bool, error) {
	const op = "section.Tree.Update"
	signed := u.SAP
	sap := signed.SAP
	if u.ProofChain == nil {
		return false, neterr.E(op, neterr.UntrustedProofChain, "missing proof chain", nil)
	}
	if err := signed.Verify(); err != nil {
		return false, err
	}
	if !u.ProofChain.SelfVerify() {
		return false, neterr.E(op, neterr.UntrustedProofChain, "proof chain fails verification", nil)
	}
	last, err := u.ProofChain.LastKey()
	if err != nil {
		return false, neterr.E(op, neterr.UntrustedProofChain, "", err)
	}
	if last != sap.Key {
		return false, neterr.E(op, neterr.UntrustedProofChain,
			"section key "+sap.Key.String()+" is not the last key of the proof chain", nil)
	}

	if current, ok := t.sections[sap.Prefix]; ok {
		switch {
		case current.Equal(signed):
			return false, nil
		case current.SAP.Key == sap.Key:
			if sap.Generation <= current.SAP.Generation {
				t.logger.Debug("ignoring stale section authority",
					"prefix", sap.Prefix.String(),
					"generation", sap.Generation,
					"current_generation", current.SAP.Generation,
				)
				return false, nil
			}
		case !u.ProofChain.HasKey(current.SAP.Key):
			return false, neterr.E(op, neterr.UntrustedProofChain,
				"proof chain does not cover the current key "+current.SAP.Key.String(), nil)
		}
		if len(sap.Members) < len(current.SAP.Members) {
			t.logger.Warn("section authority shrinks membership",
				"prefix", sap.Prefix.String(),
				"members", len(sap.Members),
				"current_members", len(current.SAP.Members),
			)
		}
	} else if !u.ProofChain.CheckTrust(t.dag.Keys()) {
		return false, neterr.E(op, neterr.UntrustedProofChain,
			"no key of the proof chain is trusted for "+sap.String(), nil)
	}

	if known, split := t.splitBelow(sap.Prefix); split {
		t.logger.Debug("dropping section authority for a split prefix",
			"prefix", sap.Prefix.String(),
			"known", known.String(),
		)
		return false, nil
	}

	// The sections map and the DAG change together or not at all.
	merged := t.dag.Clone()
	if err := merged.Merge(u.ProofChain); err != nil {
		return false, err
	}
	*t.dag = *merged
	t.sections[sap.Prefix] = signed
	for _, ancestor := range sap.Prefix.Ancestors() {
		delete(t.sections, ancestor)
	}
	return true, nil
}

// splitBelow returns a known prefix that extends prefix, if any.
func (t *Tree) splitBelow(prefix xorname.Prefix) (xorname.Prefix, bool) {
	for known := range t.sections {
		if known.IsExtensionOf(prefix) {
			return known, true
		}
	}
	return xorname.Prefix{}, false
}

// Get returns the signed SAP for exactly prefix.
func (t *Tree) Get(prefix xorname.Prefix) (SignedSAP, bool) {
	signed, ok := t.sections[prefix]
	return signed, ok
}

// GetByKey returns the signed SAP whose section key is key.
func (t *Tree) GetByKey(key keys.PublicKey) (SignedSAP, bool) {
	for _, prefix := range t.prefixes() {
		if signed := t.sections[prefix]; signed.SAP.Key == key {
			return signed, true
		}
	}
	return SignedSAP{}, false
}

// All returns every known SAP ordered by prefix.
func (t *Tree) All() []SAP {
	prefixes := t.prefixes()
	saps := make([]SAP, len(prefixes))
	for i, prefix := range prefixes {
		saps[i] = t.sections[prefix].SAP
	}
	return saps
}

// SectionKeys returns the key of every known section, ordered by
// prefix.
func (t *Tree) SectionKeys() []keys.PublicKey {
	saps := t.All()
	keyList := make([]keys.PublicKey, len(saps))
	for i, sap := range saps {
		keyList[i] = sap.Key
	}
	return keyList
}

// Closest returns the known section closest to name, whether or not
// name falls under it. A non-nil exclude skips that prefix.
func (t *Tree) Closest(name xorname.Name, exclude *xorname.Prefix) (SignedSAP, bool) {
	var best SignedSAP
	found := false
	for _, prefix := range t.prefixes() {
		if exclude != nil && prefix == *exclude {
			continue
		}
		if !found || xorname.CompareDistance(prefix, best.SAP.Prefix, name) < 0 {
			best, found = t.sections[prefix], true
		}
	}
	return best, found
}

// SectionByName returns the SAP whose prefix shares the most leading
// bits with name; for a complete tree that is the section responsible
// for it.
func (t *Tree) SectionByName(name xorname.Name) (SAP, error) {
	var best SAP
	bestBits := -1
	for _, prefix := range t.prefixes() {
		bits := min(prefix.Name().CommonPrefixLen(name), prefix.BitCount())
		if bits > bestBits {
			best, bestBits = t.sections[prefix].SAP, bits
		}
	}
	if bestBits < 0 {
		return SAP{}, neterr.E("section.Tree.SectionByName", neterr.NoMatchingSection, name.String(), nil)
	}
	return best, nil
}

// SectionByPrefix returns the SAP best matching prefix.
func (t *Tree) SectionByPrefix(prefix xorname.Prefix) (SAP, error) {
	return t.SectionByName(prefix.Name())
}

// Clone returns a deep copy.
func (t *Tree) Clone() *Tree {
	return &Tree{sections: maps.Clone(t.sections), dag: t.dag.Clone(), logger: t.logger}
}

func (t *Tree) prefixes() []xorname.Prefix {
	prefixes := slices.Collect(maps.Keys(t.sections))
	slices.SortFunc(prefixes, func(a, b xorname.Prefix) int {
		return cmp.Or(a.Name().Compare(b.Name()), cmp.Compare(a.BitCount(), b.BitCount()))
	})
	return prefixes
}

type treeWire struct {
	DAG      *DAG        `cbor:"1,keyasint"`
	Sections []SignedSAP `cbor:"2,keyasint,omitempty"`
}

// MarshalCBOR implements cbor.Marshaler.
func (t *Tree) MarshalCBOR() ([]byte, error) {
	wire := treeWire{DAG: t.dag}
	for _, prefix := range t.prefixes() {
		wire.Sections = append(wire.Sections, t.sections[prefix])
	}
	return codec.Marshal(wire)
}

// UnmarshalCBOR implements cbor.Unmarshaler. Every SAP must verify and
// its key must be in the decoded DAG.
func (t *Tree) UnmarshalCBOR(data []byte) error {
	var wire treeWire
	if err := codec.Unmarshal(data, &wire); err != nil {
		return err
	}
	if wire.DAG == nil {
		return neterr.E("section.Tree.Unmarshal", neterr.Serialisation, "missing DAG", nil)
	}
	decoded := &Tree{sections: make(map[xorname.Prefix]SignedSAP), dag: wire.DAG, logger: t.logger}
	if decoded.logger == nil {
		decoded.logger = slog.New(slog.DiscardHandler)
	}
	for _, signed := range wire.Sections {
		if err := signed.Verify(); err != nil {
			return err
		}
		if !decoded.dag.HasKey(signed.SAP.Key) {
			return neterr.E("section.Tree.Unmarshal", neterr.UntrustedSAP,
				"key of "+signed.SAP.String()+" is not in the DAG", nil)
		}
		decoded.sections[signed.SAP.Prefix] = signed
	}
	*t = *decoded
	return nil
}
