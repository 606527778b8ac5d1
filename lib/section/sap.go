// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package section

import (
	"fmt"
	"slices"

	"github.com/safenet-project/safenet/lib/codec"
	"github.com/safenet-project/safenet/lib/keys"
	"github.com/safenet-project/safenet/lib/neterr"
	"github.com/safenet-project/safenet/lib/xorname"
)

// Member is one node of a section.
type Member struct {
	Name xorname.Name `cbor:"1,keyasint" json:"name"`
	Addr string       `cbor:"2,keyasint" json:"addr"`
}

func (m Member) String() string { return fmt.Sprintf("%s@%s", m.Name, m.Addr) }

// SAP is a section authority provider. Generation increases with every
// membership change signed under the same Key; a new Key restarts it.
type SAP struct {
	Prefix     xorname.Prefix `cbor:"1,keyasint"`
	Key        keys.PublicKey `cbor:"2,keyasint"`
	Members    []Member       `cbor:"3,keyasint"`
	Generation uint64         `cbor:"4,keyasint,omitempty"`
}

// NewSAP builds a SAP with members sorted by name.
func NewSAP(prefix xorname.Prefix, key keys.PublicKey, members []Member, generation uint64) SAP {
	sorted := slices.Clone(members)
	slices.SortFunc(sorted, func(a, b Member) int { return a.Name.Compare(b.Name) })
	sorted = slices.CompactFunc(sorted, func(a, b Member) bool { return a.Name == b.Name })
	return SAP{Prefix: prefix, Key: key, Members: sorted, Generation: generation}
}

// Member returns the member called name.
func (s SAP) Member(name xorname.Name) (Member, bool) {
	index, found := slices.BinarySearchFunc(s.Members, name, func(m Member, target xorname.Name) int {
		return m.Name.Compare(target)
	})
	if !found {
		return Member{}, false
	}
	return s.Members[index], true
}

// HasMember reports whether name is a member.
func (s SAP) HasMember(name xorname.Name) bool {
	_, ok := s.Member(name)
	return ok
}

// Names returns the member names in order.
func (s SAP) Names() []xorname.Name {
	names := make([]xorname.Name, len(s.Members))
	for i, member := range s.Members {
		names[i] = member.Name
	}
	return names
}

// ClosestMember returns the member whose name is XOR-closest to target.
func (s SAP) ClosestMember(target xorname.Name) (Member, bool) {
	if len(s.Members) == 0 {
		return Member{}, false
	}
	closest := s.Members[0]
	for _, member := range s.Members[1:] {
		if target.CompareDistance(member.Name, closest.Name) < 0 {
			closest = member
		}
	}
	return closest, true
}

// ClosestMembers returns up to count members ordered by XOR distance
// to target.
func (s SAP) ClosestMembers(target xorname.Name, count int) []Member {
	sorted := slices.Clone(s.Members)
	slices.SortFunc(sorted, func(a, b Member) int { return target.CompareDistance(a.Name, b.Name) })
	return sorted[:min(count, len(sorted))]
}

func (s SAP) String() string {
	return fmt.Sprintf("SAP(prefix=%q key=%s members=%d gen=%d)", s.Prefix.String(), s.Key, len(s.Members), s.Generation)
}

// SignedSAP is a SAP with its own section key's signature.
type SignedSAP struct {
	SAP       SAP            `cbor:"1,keyasint"`
	Signature keys.Signature `cbor:"2,keyasint"`
}

const sapDomain = "safenet/section/sap/"

func sapMessage(sap SAP) ([]byte, error) {
	body, err := codec.Marshal(sap)
	if err != nil {
		return nil, neterr.E("section.SignSAP", neterr.Serialisation, "", err)
	}
	return append([]byte(sapDomain), body...), nil
}

// SignSAP signs sap with the section keypair. The keypair must be the
// SAP's own key.
func SignSAP(sap SAP, keypair *keys.Keypair) (SignedSAP, error) {
	if keypair.Public() != sap.Key {
		return SignedSAP{}, neterr.E("section.SignSAP", neterr.InvalidInput,
			"signing key "+keypair.Public().String()+" is not the section key "+sap.Key.String(), nil)
	}
	message, err := sapMessage(sap)
	if err != nil {
		return SignedSAP{}, err
	}
	return SignedSAP{SAP: sap, Signature: keypair.Sign(message)}, nil
}

// Verify checks the signature under the SAP's own key.
func (s SignedSAP) Verify() error {
	message, err := sapMessage(s.SAP)
	if err != nil {
		return err
	}
	if !s.SAP.Key.Verify(message, s.Signature) {
		return neterr.E("section.Verify", neterr.UntrustedSAP, "invalid signature on "+s.SAP.String(), nil)
	}
	return nil
}

// Equal reports whether two signed SAPs encode identically.
func (s SignedSAP) Equal(other SignedSAP) bool {
	return codec.Equal(s, other)
}
