// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package register

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/safenet-project/safenet/lib/keys"
	"github.com/safenet-project/safenet/lib/neterr"
	"github.com/safenet-project/safenet/lib/xorname"
)

func generateKeypair(t *testing.T) *keys.Keypair {
	t.Helper()
	keypair, err := keys.Generate()
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	return keypair
}

func ownedRegister(owner User, name xorname.Name) *Register {
	return New(owner, name, 43_000, NewPolicy(owner, nil))
}

func TestEntryHash_DependsOnValueAndChildren(t *testing.T) {
	owner := UserKey(generateKeypair(t).Public())
	name := xorname.Random()
	replica1 := ownedRegister(owner, name)
	replica2 := ownedRegister(owner, name)

	hash11, _, err := replica1.Write([]byte("one"), nil)
	if err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	hash12, _, _ := replica1.Write([]byte("two"), nil)
	if hash11 == hash12 {
		t.Error("different values from the same root share a hash")
	}

	hash21, _, _ := replica2.Write([]byte("one"), nil)
	if hash11 != hash21 {
		t.Error("same value from the same root differs across replicas")
	}

	hash113, _, _ := replica1.Write([]byte("three"), []EntryHash{hash11})
	hash214, _, _ := replica2.Write([]byte("four"), []EntryHash{hash11})
	if hash113 == hash214 {
		t.Error("different values over the same parent share a hash")
	}
}

func TestWrite_HeadsFollowChildren(t *testing.T) {
	register := ownedRegister(UserKey(generateKeypair(t).Public()), xorname.Random())

	first, _, _ := register.Write([]byte("a"), nil)
	second, _, _ := register.Write([]byte("b"), nil)
	if heads := register.Read(); len(heads) != 2 {
		t.Fatalf("Read() returned %d heads, want 2 concurrent branches", len(heads))
	}

	merged, _, err := register.Write([]byte("c"), []EntryHash{first, second})
	if err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	heads := register.Read()
	if len(heads) != 1 || heads[0].Hash != merged || !bytes.Equal(heads[0].Value, []byte("c")) {
		t.Errorf("Read() = %v, want the merging entry only", heads)
	}
	if register.Size() != 3 {
		t.Errorf("Size() = %d, want 3", register.Size())
	}

	if _, _, err := register.Write([]byte("d"), []EntryHash{{0x01}}); !errors.Is(err, neterr.InvalidBranch) {
		t.Errorf("Write over unknown child error = %v, want InvalidBranch", err)
	}
}

func TestApplyOp_ConcurrentWritesConverge(t *testing.T) {
	owner := generateKeypair(t)
	writer := generateKeypair(t)
	name := xorname.Random()
	policy := NewPolicy(UserKey(owner.Public()), map[User]Permissions{
		UserKey(writer.Public()): {Write: true},
	})

	replica1 := New(UserKey(owner.Public()), name, 1, policy)
	replica2 := New(UserKey(writer.Public()), name, 1, policy)

	_, op1, _ := replica1.Write([]byte("from owner"), nil)
	_, op2, _ := replica2.Write([]byte("from writer"), nil)

	if err := replica1.ApplyOp(op2); err != nil {
		t.Fatalf("ApplyOp() error: %v", err)
	}
	if err := replica2.ApplyOp(op1); err != nil {
		t.Fatalf("ApplyOp() error: %v", err)
	}
	// Applying twice is a no-op.
	if err := replica2.ApplyOp(op1); err != nil {
		t.Fatalf("ApplyOp() repeat error: %v", err)
	}

	assertSameHeads(t, replica1, replica2)
	if replica1.Size() != 2 || replica2.Size() != 2 {
		t.Errorf("sizes = %d, %d, want 2, 2", replica1.Size(), replica2.Size())
	}
}

func TestApplyOp_OrphansWaitForChildren(t *testing.T) {
	owner := UserKey(generateKeypair(t).Public())
	name := xorname.Random()
	source := ownedRegister(owner, name)

	_, op1, _ := source.Write([]byte("1"), nil)
	hash1 := op1.Hash
	_, op2, _ := source.Write([]byte("2"), []EntryHash{hash1})
	_, op3, _ := source.Write([]byte("3"), []EntryHash{op2.Hash})

	target := ownedRegister(owner, name)
	for _, op := range []Op{op3, op2} {
		if err := target.ApplyOp(op); err != nil {
			t.Fatalf("ApplyOp() error: %v", err)
		}
	}
	if target.Size() != 0 {
		t.Fatalf("Size() = %d before the root arrived, want 0", target.Size())
	}
	if err := target.ApplyOp(op1); err != nil {
		t.Fatalf("ApplyOp() error: %v", err)
	}
	if target.Size() != 3 {
		t.Fatalf("Size() = %d after the root arrived, want 3", target.Size())
	}
	assertSameHeads(t, source, target)
}

func TestApplyOp_RejectsTamperedOp(t *testing.T) {
	register := ownedRegister(UserKey(generateKeypair(t).Public()), xorname.Random())
	_, op, _ := register.Write([]byte("value"), nil)

	other := ownedRegister(register.Owner(), register.Name())
	op.Value = []byte("tampered")
	if err := other.ApplyOp(op); !errors.Is(err, neterr.InvalidBranch) {
		t.Errorf("ApplyOp(tampered) error = %v, want InvalidBranch", err)
	}

	foreign := ownedRegister(register.Owner(), xorname.Random())
	_, foreignOp, _ := foreign.Write([]byte("x"), nil)
	if err := register.ApplyOp(foreignOp); !errors.Is(err, neterr.RegisterAddrMismatch) {
		t.Errorf("ApplyOp(foreign) error = %v, want RegisterAddrMismatch", err)
	}
}

func TestWrite_Limits(t *testing.T) {
	register := ownedRegister(UserKey(generateKeypair(t).Public()), xorname.Random())

	if _, _, err := register.Write(make([]byte, MaxEntrySize+1), nil); !errors.Is(err, neterr.EntryTooBig) {
		t.Errorf("oversized Write error = %v, want EntryTooBig", err)
	}
	for i := range MaxEntries {
		if _, _, err := register.Write(fmt.Appendf(nil, "entry %d", i), nil); err != nil {
			t.Fatalf("Write(%d) error: %v", i, err)
		}
	}
	if _, _, err := register.Write([]byte("one too many"), nil); !errors.Is(err, neterr.TooManyEntries) {
		t.Errorf("Write past the limit error = %v, want TooManyEntries", err)
	}
}

func TestApplyOp_OrphansCountTowardLimit(t *testing.T) {
	owner := UserKey(generateKeypair(t).Public())
	name := xorname.Random()
	source := ownedRegister(owner, name)
	ops := make([]Op, MaxEntries)
	for i := range ops {
		_, op, err := source.Write(fmt.Appendf(nil, "entry %d", i), nil)
		if err != nil {
			t.Fatalf("Write(%d) error: %v", i, err)
		}
		ops[i] = op
	}

	// Without the first op every later one waits for its child.
	target := ownedRegister(owner, name)
	for i := len(ops) - 1; i > 0; i-- {
		if err := target.ApplyOp(ops[i]); err != nil {
			t.Fatalf("ApplyOp(%d) error: %v", i, err)
		}
	}
	if target.Size() != 0 {
		t.Fatalf("Size() = %d with every op orphaned, want 0", target.Size())
	}
	if err := target.ApplyOp(ops[len(ops)-1]); err != nil {
		t.Errorf("re-applying a buffered orphan error: %v", err)
	}
	if _, _, err := target.Write([]byte("local"), nil); err != nil {
		t.Fatalf("Write(local) error: %v", err)
	}
	if err := target.ApplyOp(ops[0]); !errors.Is(err, neterr.TooManyEntries) {
		t.Errorf("ApplyOp past the limit error = %v, want TooManyEntries", err)
	}
	if _, _, err := target.Write([]byte("another"), nil); !errors.Is(err, neterr.TooManyEntries) {
		t.Errorf("Write past the limit error = %v, want TooManyEntries", err)
	}
}

func TestGetAndPermissions(t *testing.T) {
	owner := generateKeypair(t)
	reader := generateKeypair(t)
	policy := NewPolicy(UserKey(owner.Public()), map[User]Permissions{
		UserKey(reader.Public()): {Write: false},
	})
	register := New(UserKey(owner.Public()), xorname.Random(), 5, policy)

	hash, _, _ := register.Write([]byte("hello"), nil)
	value, err := register.Get(hash)
	if err != nil || string(value) != "hello" {
		t.Fatalf("Get() = %q, %v", value, err)
	}
	if _, err := register.Get(EntryHash{0xaa}); !errors.Is(err, neterr.NoSuchEntry) {
		t.Errorf("Get(missing) error = %v, want NoSuchEntry", err)
	}

	if _, err := register.Permissions(UserKey(reader.Public())); err != nil {
		t.Errorf("Permissions(reader) error: %v", err)
	}
	if _, err := register.Permissions(Anyone); !errors.Is(err, neterr.NoSuchUser) {
		t.Errorf("Permissions(Anyone) error = %v, want NoSuchUser", err)
	}

	if err := register.CheckPermissions(Read, UserKey(reader.Public())); err != nil {
		t.Errorf("reader denied Read: %v", err)
	}
	if err := register.CheckPermissions(Write, UserKey(reader.Public())); !errors.Is(err, neterr.AccessDenied) {
		t.Errorf("reader Write error = %v, want AccessDenied", err)
	}
	stranger := UserKey(generateKeypair(t).Public())
	if err := register.CheckPermissions(Read, stranger); !errors.Is(err, neterr.AccessDenied) {
		t.Errorf("stranger Read error = %v, want AccessDenied", err)
	}
	if err := register.CheckPermissions(Write, register.Owner()); err != nil {
		t.Errorf("owner denied Write: %v", err)
	}
}

func TestPolicy_Public(t *testing.T) {
	owner := UserKey(generateKeypair(t).Public())
	stranger := UserKey(generateKeypair(t).Public())

	public := NewPolicy(owner, map[User]Permissions{Anyone: {Write: false}})
	if !public.IsPublic() {
		t.Error("IsPublic() = false with Anyone listed")
	}
	if err := public.IsActionAllowed(stranger, Read); err != nil {
		t.Errorf("public Read denied: %v", err)
	}
	if err := public.IsActionAllowed(stranger, Write); err == nil {
		t.Error("public read-only policy allowed Write")
	}

	writable := NewPolicy(owner, map[User]Permissions{Anyone: {Write: true}})
	if err := writable.IsActionAllowed(stranger, Write); err != nil {
		t.Errorf("Anyone-writable policy denied Write: %v", err)
	}
}

func TestMergeAndSnapshot(t *testing.T) {
	owner := UserKey(generateKeypair(t).Public())
	name := xorname.Random()
	a := ownedRegister(owner, name)
	b := ownedRegister(owner, name)

	a.Write([]byte("a1"), nil)
	hashB, _, _ := b.Write([]byte("b1"), nil)
	b.Write([]byte("b2"), []EntryHash{hashB})

	if err := a.Merge(b); err != nil {
		t.Fatalf("Merge() error: %v", err)
	}
	if err := b.Merge(a); err != nil {
		t.Fatalf("Merge() error: %v", err)
	}
	assertSameHeads(t, a, b)
	if a.Size() != 3 {
		t.Errorf("Size() = %d after merge, want 3", a.Size())
	}

	rebuilt, err := FromSnapshot(owner, a.Snapshot())
	if err != nil {
		t.Fatalf("FromSnapshot() error: %v", err)
	}
	assertSameHeads(t, a, rebuilt)

	other := ownedRegister(owner, xorname.Random())
	if err := a.Merge(other); !errors.Is(err, neterr.RegisterAddrMismatch) {
		t.Errorf("Merge(other address) error = %v, want RegisterAddrMismatch", err)
	}
}

func assertSameHeads(t *testing.T, a, b *Register) {
	t.Helper()
	headsA, headsB := a.Read(), b.Read()
	if len(headsA) != len(headsB) {
		t.Fatalf("head counts differ: %d vs %d", len(headsA), len(headsB))
	}
	for i := range headsA {
		if headsA[i].Hash != headsB[i].Hash || !bytes.Equal(headsA[i].Value, headsB[i].Value) {
			t.Fatalf("head %d differs: %v vs %v", i, headsA[i], headsB[i])
		}
	}
}
