// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"bytes"
	"errors"
	"testing"

	"github.com/safenet-project/safenet/comm"
	"github.com/safenet-project/safenet/lib/keys"
	"github.com/safenet-project/safenet/lib/neterr"
	"github.com/safenet-project/safenet/lib/register"
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

func TestWireAndOpen(t *testing.T) {
	owner := generate(t)
	cmd, err := register.NewCreate(owner, xorname.Random(), 7, register.NewPolicy(register.UserKey(owner.Public()), nil))
	if err != nil {
		t.Fatalf("NewCreate() error: %v", err)
	}
	id := comm.NewMsgID()
	dst := comm.Dst{Name: cmd.Dst().Name, SectionKey: owner.Public()}

	wire, err := Wire(id, dst, Payload{Kind: KindCmd, Cmd: &cmd})
	if err != nil {
		t.Fatalf("Wire() error: %v", err)
	}
	msg, payload, err := Open(wire)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	if msg.ID != id || msg.Dst != dst {
		t.Errorf("envelope = %v %v, want %v %v", msg.ID, msg.Dst, id, dst)
	}
	if payload.Kind != KindCmd || payload.Cmd.Dst() != cmd.Dst() {
		t.Errorf("payload = %s for %v", payload.Kind, payload.Cmd)
	}

	again, err := Wire(id, dst, Payload{Kind: KindCmd, Cmd: &cmd})
	if err != nil {
		t.Fatalf("Wire() error: %v", err)
	}
	if !bytes.Equal(wire, again) {
		t.Error("encoding the same message twice produced different bytes")
	}
}

func TestOpen_ErrorReply(t *testing.T) {
	id := comm.NewMsgID()
	dst := comm.Dst{Name: xorname.Random()}
	cause := neterr.E("registerstore.Read", neterr.RegisterNotFound, "abc/1", nil)

	first := ErrorWire(id, dst, cause)
	second := ErrorWire(id, dst, cause)
	if !bytes.Equal(first, second) {
		t.Fatal("error replies for the same failure differ")
	}

	msg, _, err := Open(first)
	if !errors.Is(err, neterr.RegisterNotFound) {
		t.Fatalf("Open() error = %v, want RegisterNotFound", err)
	}
	if msg.ID != id {
		t.Errorf("ID = %s, want %s", msg.ID, id)
	}
}

func TestDecode_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		payload Payload
	}{
		{"cmd without command", Payload{Kind: KindCmd}},
		{"cmd with no variant", Payload{Kind: KindCmd, Cmd: &register.Command{}}},
		{"query without query", Payload{Kind: KindQuery}},
		{"response without response", Payload{Kind: KindResponse}},
		{"anti-entropy without message", Payload{Kind: KindAntiEntropy}},
		{"empty bundle", Payload{Kind: KindBundle}},
		{"unknown kind", Payload{Kind: 42}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			data, err := test.payload.Encode()
			if err != nil {
				t.Fatalf("Encode() error: %v", err)
			}
			if _, err := Decode(data); !errors.Is(err, neterr.InvalidMessage) {
				t.Fatalf("Decode() error = %v, want InvalidMessage", err)
			}
		})
	}
}

func TestSignedQuery(t *testing.T) {
	reader := generate(t)
	query := register.Query{Kind: register.ReadRegister, Address: register.Address{Name: xorname.Random(), Tag: 1}}
	signed, err := SignQuery(reader, query)
	if err != nil {
		t.Fatalf("SignQuery() error: %v", err)
	}
	if err := signed.Verify(); err != nil {
		t.Fatalf("Verify() error: %v", err)
	}
	if signed.Requester() != register.UserKey(reader.Public()) {
		t.Errorf("Requester() = %s", signed.Requester())
	}

	signed.Query.Kind = register.GetPolicy
	if err := signed.Verify(); !errors.Is(err, neterr.InvalidSignature) {
		t.Fatalf("Verify() after tampering error = %v, want InvalidSignature", err)
	}
}
