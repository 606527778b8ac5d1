// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package section

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/safenet-project/safenet/lib/codec"
	"github.com/safenet-project/safenet/lib/keys"
	"github.com/safenet-project/safenet/lib/neterr"
	"github.com/safenet-project/safenet/lib/xorname"
)

func generate(t *testing.T) *keys.Keypair {
	t.Helper()
	keypair, err := keys.Generate()
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	return keypair
}

func mustPrefix(t *testing.T, bits string) xorname.Prefix {
	t.Helper()
	prefix, err := xorname.ParsePrefix(bits)
	if err != nil {
		t.Fatalf("ParsePrefix(%q) error: %v", bits, err)
	}
	return prefix
}

func randomMembers(count int) []Member {
	members := make([]Member, count)
	for i := range members {
		members[i] = Member{Name: xorname.Random(), Addr: "127.0.0.1:0"}
	}
	return members
}

// chain extends dag with a new key signed by parent.
func chain(t *testing.T, dag *DAG, parent *keys.Keypair) *keys.Keypair {
	t.Helper()
	child := generate(t)
	if err := dag.Insert(parent.Public(), child.Public(), SignKey(parent, child.Public())); err != nil {
		t.Fatalf("Insert() error: %v", err)
	}
	return child
}

func signedSAP(t *testing.T, prefix xorname.Prefix, keypair *keys.Keypair, members []Member, generation uint64) SignedSAP {
	t.Helper()
	signed, err := SignSAP(NewSAP(prefix, keypair.Public(), members, generation), keypair)
	if err != nil {
		t.Fatalf("SignSAP() error: %v", err)
	}
	return signed
}

func TestSignedSAP_Verify(t *testing.T) {
	keypair := generate(t)
	signed := signedSAP(t, xorname.Prefix{}, keypair, randomMembers(3), 0)
	if err := signed.Verify(); err != nil {
		t.Fatalf("Verify() error: %v", err)
	}

	tampered := signed
	tampered.SAP.Members = tampered.SAP.Members[:2]
	if err := tampered.Verify(); !errors.Is(err, neterr.UntrustedSAP) {
		t.Errorf("Verify(tampered) error = %v, want UntrustedSAP", err)
	}

	if _, err := SignSAP(signed.SAP, generate(t)); !errors.Is(err, neterr.InvalidInput) {
		t.Errorf("SignSAP(wrong key) error = %v, want InvalidInput", err)
	}
}

func TestSAP_MembersSortedAndClosest(t *testing.T) {
	var a, b, c xorname.Name
	a[0], b[0], c[0] = 0x80, 0x10, 0x40
	sap := NewSAP(xorname.Prefix{}, generate(t).Public(), []Member{{Name: a}, {Name: b}, {Name: c}, {Name: b}}, 0)
	if len(sap.Members) != 3 || sap.Members[0].Name != b || sap.Members[2].Name != a {
		t.Fatalf("members not sorted and deduplicated: %v", sap.Members)
	}
	if !sap.HasMember(c) {
		t.Error("HasMember(c) = false")
	}
	var target xorname.Name
	target[0] = 0x41
	closest, ok := sap.ClosestMember(target)
	if !ok || closest.Name != c {
		t.Errorf("ClosestMember() = %v, want %v", closest.Name, c)
	}
	if got := sap.ClosestMembers(target, 2); len(got) != 2 || got[0].Name != c || got[1].Name != b {
		t.Errorf("ClosestMembers() = %v", got)
	}
}

func TestDAG_InsertAndQueries(t *testing.T) {
	genesis := generate(t)
	dag := NewDAG(genesis.Public())
	k1 := chain(t, dag, genesis)
	k2 := chain(t, dag, k1)
	k3 := chain(t, dag, k1)

	if !dag.HasKey(k2.Public()) || dag.Len() != 4 {
		t.Fatalf("HasKey/Len wrong: len=%d", dag.Len())
	}
	parent, ok, err := dag.Parent(k2.Public())
	if err != nil || !ok || parent != k1.Public() {
		t.Errorf("Parent(k2) = %v, %v, %v", parent, ok, err)
	}
	if _, ok, err := dag.Parent(genesis.Public()); ok || err != nil {
		t.Errorf("Parent(genesis) = %v, %v", ok, err)
	}
	ancestors, err := dag.Ancestors(k3.Public())
	if err != nil || len(ancestors) != 2 || ancestors[0] != k1.Public() || ancestors[1] != genesis.Public() {
		t.Errorf("Ancestors(k3) = %v, %v", ancestors, err)
	}
	children, err := dag.Children(k1.Public())
	if err != nil || len(children) != 2 {
		t.Errorf("Children(k1) = %v, %v", children, err)
	}
	if leaves := dag.LeafKeys(); len(leaves) != 2 {
		t.Errorf("LeafKeys() = %d keys, want 2", len(leaves))
	}
	if _, err := dag.LastKey(); !errors.Is(err, neterr.InvalidBranch) {
		t.Errorf("LastKey() on a branching DAG error = %v, want InvalidBranch", err)
	}
	if !dag.SelfVerify() {
		t.Error("SelfVerify() = false")
	}
	if !dag.CheckTrust([]keys.PublicKey{generate(t).Public(), genesis.Public()}) {
		t.Error("CheckTrust(with genesis) = false")
	}
	if _, _, err := dag.Parent(generate(t).Public()); !errors.Is(err, neterr.KeyNotFound) {
		t.Errorf("Parent(unknown) error = %v, want KeyNotFound", err)
	}
}

func TestDAG_InsertRejects(t *testing.T) {
	genesis := generate(t)
	dag := NewDAG(genesis.Public())
	child := generate(t)

	if err := dag.Insert(genesis.Public(), child.Public(), keys.Signature{}); !errors.Is(err, neterr.InvalidSignature) {
		t.Errorf("Insert(bad signature) error = %v, want InvalidSignature", err)
	}
	stranger := generate(t)
	if err := dag.Insert(stranger.Public(), child.Public(), SignKey(stranger, child.Public())); !errors.Is(err, neterr.KeyNotFound) {
		t.Errorf("Insert(unknown parent) error = %v, want KeyNotFound", err)
	}
	if err := dag.Insert(genesis.Public(), child.Public(), SignKey(genesis, child.Public())); err != nil {
		t.Fatalf("Insert() error: %v", err)
	}
	if err := dag.Insert(genesis.Public(), child.Public(), SignKey(genesis, child.Public())); err != nil {
		t.Errorf("repeated Insert() error: %v", err)
	}
}

func TestDAG_PartialAndMerge(t *testing.T) {
	genesis := generate(t)
	full := NewDAG(genesis.Public())
	k1 := chain(t, full, genesis)
	k2 := chain(t, full, k1)
	side := chain(t, full, genesis)

	partial, err := full.PartialDAG(k1.Public(), k2.Public())
	if err != nil {
		t.Fatalf("PartialDAG() error: %v", err)
	}
	if partial.Genesis() != k1.Public() || partial.Len() != 2 {
		t.Fatalf("partial genesis/len = %v/%d", partial.Genesis(), partial.Len())
	}
	last, err := partial.LastKey()
	if err != nil || last != k2.Public() {
		t.Errorf("LastKey() = %v, %v", last, err)
	}
	if _, err := full.PartialDAG(side.Public(), k2.Public()); !errors.Is(err, neterr.InvalidBranch) {
		t.Errorf("PartialDAG(non-ancestor) error = %v, want InvalidBranch", err)
	}
	if _, err := full.PartialDAG(genesis.Public(), generate(t).Public()); !errors.Is(err, neterr.KeyNotFound) {
		t.Errorf("PartialDAG(unknown to) error = %v, want KeyNotFound", err)
	}

	// Merging a chain rooted above the receiver re-roots it.
	lower := NewDAG(k1.Public())
	k3 := chain(t, lower, k1)
	upper, err := full.PartialDAG(genesis.Public(), k1.Public())
	if err != nil {
		t.Fatalf("PartialDAG() error: %v", err)
	}
	if err := lower.Merge(upper); err != nil {
		t.Fatalf("Merge() error: %v", err)
	}
	if lower.Genesis() != genesis.Public() || !lower.HasKey(k3.Public()) {
		t.Errorf("merged DAG genesis=%v has k3=%v", lower.Genesis(), lower.HasKey(k3.Public()))
	}

	unrelated := NewDAG(generate(t).Public())
	if err := full.Merge(unrelated); !errors.Is(err, neterr.KeyNotFound) {
		t.Errorf("Merge(unrelated) error = %v, want KeyNotFound", err)
	}
}

func TestDAG_CBORVerifiesEdges(t *testing.T) {
	genesis := generate(t)
	dag := NewDAG(genesis.Public())
	chain(t, dag, chain(t, dag, genesis))

	data, err := codec.Marshal(dag)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	decoded := &DAG{}
	if err := codec.Unmarshal(data, decoded); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	if decoded.Len() != dag.Len() || !decoded.SelfVerify() {
		t.Errorf("decoded len=%d verify=%v", decoded.Len(), decoded.SelfVerify())
	}

	forged := dagWire{Genesis: genesis.Public(), Edges: []Edge{{Parent: genesis.Public(), Key: generate(t).Public()}}}
	data, err = codec.Marshal(forged)
	if err != nil {
		t.Fatal(err)
	}
	if err := codec.Unmarshal(data, &DAG{}); err == nil {
		t.Error("Unmarshal() accepted an unsigned edge")
	}
}

func TestTree_GenesisUpdate(t *testing.T) {
	genesis := generate(t)
	tree := NewTree(genesis.Public())
	update := NewUpdate(signedSAP(t, xorname.Prefix{}, genesis, randomMembers(3), 0), NewDAG(genesis.Public()))

	changed, err := tree.Update(update)
	if err != nil || !changed {
		t.Fatalf("Update() = %v, %v", changed, err)
	}
	changed, err = tree.Update(update)
	if err != nil || changed {
		t.Errorf("repeated Update() = %v, %v, want false, nil", changed, err)
	}
	sap, err := tree.SectionByName(xorname.Random())
	if err != nil || sap.Key != genesis.Public() {
		t.Errorf("SectionByName() = %v, %v", sap, err)
	}
}

func TestTree_UpdateRejectsUntrusted(t *testing.T) {
	genesis := generate(t)
	tree := NewTree(genesis.Public())

	rogue := generate(t)
	_, err := tree.Update(NewUpdate(signedSAP(t, xorname.Prefix{}, rogue, nil, 0), NewDAG(rogue.Public())))
	if !errors.Is(err, neterr.UntrustedProofChain) {
		t.Errorf("Update(rogue genesis) error = %v, want UntrustedProofChain", err)
	}

	proof := NewDAG(genesis.Public())
	next := chain(t, proof, genesis)
	other := generate(t)
	_, err = tree.Update(NewUpdate(signedSAP(t, xorname.Prefix{}, other, nil, 0), proof))
	if !errors.Is(err, neterr.UntrustedProofChain) {
		t.Errorf("Update(key not last in chain) error = %v, want UntrustedProofChain", err)
	}

	bad := signedSAP(t, xorname.Prefix{}, next, nil, 0)
	bad.Signature[0] ^= 1
	if _, err := tree.Update(NewUpdate(bad, proof)); !errors.Is(err, neterr.UntrustedSAP) {
		t.Errorf("Update(bad signature) error = %v, want UntrustedSAP", err)
	}
	if _, err := tree.Update(Update{SAP: signedSAP(t, xorname.Prefix{}, next, nil, 0)}); !errors.Is(err, neterr.UntrustedProofChain) {
		t.Errorf("Update(no chain) error = %v, want UntrustedProofChain", err)
	}
}

func TestTree_KeyRotationAndGenerations(t *testing.T) {
	genesis := generate(t)
	tree := NewTree(genesis.Public())
	members := randomMembers(3)
	if _, err := tree.Update(NewUpdate(signedSAP(t, xorname.Prefix{}, genesis, members, 0), NewDAG(genesis.Public()))); err != nil {
		t.Fatalf("Update(genesis) error: %v", err)
	}

	// Same key, later generation: accepted. Same key, older: ignored.
	grown := append(members, randomMembers(1)...)
	changed, err := tree.Update(NewUpdate(signedSAP(t, xorname.Prefix{}, genesis, grown, 1), NewDAG(genesis.Public())))
	if err != nil || !changed {
		t.Fatalf("Update(generation 1) = %v, %v", changed, err)
	}
	changed, err = tree.Update(NewUpdate(signedSAP(t, xorname.Prefix{}, genesis, members, 0), NewDAG(genesis.Public())))
	if err != nil || changed {
		t.Errorf("Update(stale generation) = %v, %v, want false, nil", changed, err)
	}

	// New key chained from genesis replaces the SAP.
	proof := NewDAG(genesis.Public())
	next := chain(t, proof, genesis)
	changed, err = tree.Update(NewUpdate(signedSAP(t, xorname.Prefix{}, next, grown, 0), proof))
	if err != nil || !changed {
		t.Fatalf("Update(rotated key) = %v, %v", changed, err)
	}
	if !tree.DAG().HasKey(next.Public()) {
		t.Error("DAG was not updated with the rotated key")
	}

	// A chain that skips the current key is rejected.
	skip := NewDAG(genesis.Public())
	branch := chain(t, skip, genesis)
	_, err = tree.Update(NewUpdate(signedSAP(t, xorname.Prefix{}, branch, grown, 0), skip))
	if !errors.Is(err, neterr.UntrustedProofChain) {
		t.Errorf("Update(sibling key) error = %v, want UntrustedProofChain", err)
	}
}

func TestTree_UpdateFailedMergeChangesNothing(t *testing.T) {
	genesis := generate(t)
	tree := NewTree(genesis.Public())
	if _, err := tree.Update(NewUpdate(signedSAP(t, xorname.Prefix{}, genesis, randomMembers(2), 0), NewDAG(genesis.Public()))); err != nil {
		t.Fatal(err)
	}
	proof := NewDAG(genesis.Public())
	zero := chain(t, proof, genesis)
	if _, err := tree.Update(NewUpdate(signedSAP(t, mustPrefix(t, "0"), zero, randomMembers(2), 0), proof)); err != nil {
		t.Fatalf("Update(0) error: %v", err)
	}
	before := tree.DAG().Keys()
	sections := tree.All()

	// The chain re-parents zero's key under a fresh key. Its first edge
	// merges cleanly, its second conflicts.
	conflicting := NewDAG(genesis.Public())
	detour := chain(t, conflicting, genesis)
	if err := conflicting.Insert(detour.Public(), zero.Public(), SignKey(detour, zero.Public())); err != nil {
		t.Fatalf("Insert() error: %v", err)
	}
	_, err := tree.Update(NewUpdate(signedSAP(t, mustPrefix(t, "1"), zero, randomMembers(2), 0), conflicting))
	if !errors.Is(err, neterr.InvalidBranch) {
		t.Fatalf("Update(conflicting chain) error = %v, want InvalidBranch", err)
	}

	if _, ok := tree.Get(mustPrefix(t, "1")); ok {
		t.Error("rejected SAP was recorded")
	}
	if tree.DAG().HasKey(detour.Public()) {
		t.Error("DAG kept an edge from the rejected chain")
	}
	if after := tree.DAG().Keys(); len(after) != len(before) {
		t.Errorf("DAG has %d keys after the failed update, want %d", len(after), len(before))
	}
	if after := tree.All(); len(after) != len(sections) {
		t.Errorf("tree has %d sections after the failed update, want %d", len(after), len(sections))
	}
	if parent, _, err := tree.DAG().Parent(zero.Public()); err != nil || parent != genesis.Public() {
		t.Errorf("Parent(zero) = %v, %v, want genesis", parent, err)
	}
}

func TestTree_SplitPrunesAncestors(t *testing.T) {
	genesis := generate(t)
	tree := NewTree(genesis.Public())
	if _, err := tree.Update(NewUpdate(signedSAP(t, xorname.Prefix{}, genesis, randomMembers(2), 0), NewDAG(genesis.Public()))); err != nil {
		t.Fatal(err)
	}

	proof := NewDAG(genesis.Public())
	zero := chain(t, proof, genesis)
	zeroProof, _ := proof.PartialDAG(genesis.Public(), zero.Public())
	one := chain(t, proof, genesis)
	oneProof, _ := proof.PartialDAG(genesis.Public(), one.Public())

	if _, err := tree.Update(NewUpdate(signedSAP(t, mustPrefix(t, "0"), zero, randomMembers(2), 0), zeroProof)); err != nil {
		t.Fatalf("Update(0) error: %v", err)
	}
	if _, err := tree.Update(NewUpdate(signedSAP(t, mustPrefix(t, "1"), one, randomMembers(2), 0), oneProof)); err != nil {
		t.Fatalf("Update(1) error: %v", err)
	}
	if tree.Len() != 2 {
		t.Fatalf("Len() = %d, want 2 after split", tree.Len())
	}
	if _, ok := tree.Get(xorname.Prefix{}); ok {
		t.Error("parent prefix survived the split")
	}

	// The pre-split SAP is now an ancestor of known prefixes.
	changed, err := tree.Update(NewUpdate(signedSAP(t, xorname.Prefix{}, genesis, randomMembers(5), 9), NewDAG(genesis.Public())))
	if err != nil || changed {
		t.Errorf("Update(ancestor prefix) = %v, %v, want false, nil", changed, err)
	}

	var name xorname.Name
	name[0] = 0xf0
	sap, err := tree.SectionByName(name)
	if err != nil || sap.Key != one.Public() {
		t.Errorf("SectionByName(1...) = %v, %v", sap.Key, err)
	}
	closest, ok := tree.Closest(name, nil)
	if !ok || closest.SAP.Key != one.Public() {
		t.Errorf("Closest(1...) = %v", closest.SAP.Key)
	}
	excluded := mustPrefix(t, "1")
	closest, ok = tree.Closest(name, &excluded)
	if !ok || closest.SAP.Key != zero.Public() {
		t.Errorf("Closest(1..., exclude 1) = %v", closest.SAP.Key)
	}
	if got, ok := tree.GetByKey(zero.Public()); !ok || got.SAP.Prefix != mustPrefix(t, "0") {
		t.Errorf("GetByKey(zero) = %v, %v", got.SAP.Prefix, ok)
	}
	if keyList := tree.SectionKeys(); len(keyList) != 2 || keyList[0] != zero.Public() {
		t.Errorf("SectionKeys() = %v", keyList)
	}
}

func TestTree_SectionByNameEmpty(t *testing.T) {
	tree := NewTree(generate(t).Public())
	if _, err := tree.SectionByName(xorname.Random()); !errors.Is(err, neterr.NoMatchingSection) {
		t.Errorf("SectionByName() error = %v, want NoMatchingSection", err)
	}
}

func TestTree_NetworkStats(t *testing.T) {
	genesis := generate(t)
	tree := NewTree(genesis.Public())
	proof := NewDAG(genesis.Public())
	one := chain(t, proof, genesis)
	if _, err := tree.Update(NewUpdate(signedSAP(t, mustPrefix(t, "1"), one, randomMembers(4), 0), proof)); err != nil {
		t.Fatal(err)
	}

	our := NewSAP(mustPrefix(t, "0"), generate(t).Public(), randomMembers(6), 0)
	stats := tree.NetworkStats(our)
	if !stats.Exact || stats.KnownMembers != 10 || stats.TotalMembers != 10 {
		t.Errorf("stats = %+v, want exact 10/10", stats)
	}

	partial := NewSAP(mustPrefix(t, "01"), generate(t).Public(), randomMembers(6), 0)
	stats = tree.NetworkStats(partial)
	if stats.Exact {
		t.Error("stats.Exact with 00 unknown")
	}
	// 10 members over 3/4 of the name space.
	if stats.TotalMembers != 14 {
		t.Errorf("TotalMembers = %d, want 14", stats.TotalMembers)
	}
}

func TestTree_FileRoundTrip(t *testing.T) {
	genesis := generate(t)
	tree := NewTree(genesis.Public())
	proof := NewDAG(genesis.Public())
	next := chain(t, proof, genesis)
	if _, err := tree.Update(NewUpdate(signedSAP(t, xorname.Prefix{}, next, randomMembers(3), 2), proof)); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "nested", "section_tree")
	if err := tree.WriteFile(path); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}
	loaded, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error: %v", err)
	}
	if loaded.Genesis() != genesis.Public() || loaded.Len() != 1 || !loaded.DAG().HasKey(next.Public()) {
		t.Fatalf("loaded tree genesis=%v len=%d", loaded.Genesis(), loaded.Len())
	}
	original, _ := tree.Get(xorname.Prefix{})
	restored, _ := loaded.Get(xorname.Prefix{})
	if !original.Equal(restored) {
		t.Error("restored SAP differs")
	}
}

func TestContacts(t *testing.T) {
	genesis := generate(t)
	peer := xorname.Random()
	document := []byte(`{
		// the network's first key
		"genesis_key": "` + genesis.Public().Hex() + `",
		"peers": [
			{"name": "` + peer.Hex() + `", "addr": "10.0.0.2:12000"}, /* seed */
		],
	}`)
	contacts, err := ParseContacts(document)
	if err != nil {
		t.Fatalf("ParseContacts() error: %v", err)
	}
	if contacts.GenesisKey != genesis.Public() || len(contacts.Peers) != 1 || contacts.Peers[0].Name != peer {
		t.Fatalf("contacts = %+v", contacts)
	}

	path := filepath.Join(t.TempDir(), "contacts.jsonc")
	if err := WriteContacts(path, contacts); err != nil {
		t.Fatalf("WriteContacts() error: %v", err)
	}
	reread, err := ReadContacts(path)
	if err != nil {
		t.Fatalf("ReadContacts() error: %v", err)
	}
	if reread.GenesisKey != contacts.GenesisKey || reread.Peers[0] != contacts.Peers[0] {
		t.Errorf("reread = %+v", reread)
	}

	if _, err := ParseContacts([]byte(`{"genesis_key": "zz", "peers": []}`)); err == nil {
		t.Error("ParseContacts() accepted a bad key")
	}
}
