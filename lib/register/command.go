// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package register

import (
	"github.com/safenet-project/safenet/lib/codec"
	"github.com/safenet-project/safenet/lib/keys"
	"github.com/safenet-project/safenet/lib/neterr"
	"github.com/safenet-project/safenet/lib/xorname"
)

// CreateOp establishes a register.
type CreateOp struct {
	Name   xorname.Name `cbor:"1,keyasint"`
	Tag    uint64       `cbor:"2,keyasint"`
	Policy Policy       `cbor:"3,keyasint"`
}

// Address returns the address the op creates.
func (c CreateOp) Address() Address { return Address{Name: c.Name, Tag: c.Tag} }

// EditOp applies one CRDT op to the register at Address.
type EditOp struct {
	Address Address `cbor:"1,keyasint"`
	Edit    Op      `cbor:"2,keyasint"`
}

// Auth is a signature over the CBOR encoding of an op.
type Auth struct {
	PublicKey keys.PublicKey `cbor:"1,keyasint"`
	Signature keys.Signature `cbor:"2,keyasint"`
}

// Verify checks the signature over op's canonical encoding.
func (a Auth) Verify(op any) error {
	message, err := codec.Marshal(op)
	if err != nil {
		return neterr.E("register.Verify", neterr.Serialisation, "", err)
	}
	if !a.PublicKey.Verify(message, a.Signature) {
		return neterr.E("register.Verify", neterr.InvalidSignature, "signer "+a.PublicKey.String(), nil)
	}
	return nil
}

// SignedCreate is a CreateOp with the owner's signature.
type SignedCreate struct {
	Op   CreateOp `cbor:"1,keyasint"`
	Auth Auth     `cbor:"2,keyasint"`
}

// SignedEdit is an EditOp with a writer's signature.
type SignedEdit struct {
	Op   EditOp `cbor:"1,keyasint"`
	Auth Auth   `cbor:"2,keyasint"`
}

// Command is either a Create or an Edit. Exactly one field is set.
type Command struct {
	Create *SignedCreate `cbor:"1,keyasint,omitempty"`
	Edit   *SignedEdit   `cbor:"2,keyasint,omitempty"`
}

// Dst is the address the command targets.
func (c Command) Dst() Address {
	if c.Create != nil {
		return c.Create.Op.Address()
	}
	if c.Edit != nil {
		return c.Edit.Op.Address
	}
	return Address{}
}

// IsCreate reports whether c is a Create.
func (c Command) IsCreate() bool { return c.Create != nil }

// Validate checks that exactly one variant is set.
func (c Command) Validate() error {
	if (c.Create == nil) == (c.Edit == nil) {
		return neterr.E("register.Command", neterr.InvalidMessage, "exactly one of Create and Edit must be set", nil)
	}
	return nil
}

func sign(keypair *keys.Keypair, op any) (Auth, error) {
	message, err := codec.Marshal(op)
	if err != nil {
		return Auth{}, neterr.E("register.Sign", neterr.Serialisation, "", err)
	}
	return Auth{PublicKey: keypair.Public(), Signature: keypair.Sign(message)}, nil
}

// NewCreate signs a CreateOp with keypair. The policy owner should be
// keypair's public key for replicas to accept it.
func NewCreate(keypair *keys.Keypair, name xorname.Name, tag uint64, policy Policy) (Command, error) {
	op := CreateOp{Name: name, Tag: tag, Policy: policy}
	auth, err := sign(keypair, op)
	if err != nil {
		return Command{}, err
	}
	return Command{Create: &SignedCreate{Op: op, Auth: auth}}, nil
}

// NewEdit signs an edit carrying op with keypair.
func NewEdit(keypair *keys.Keypair, op Op) (Command, error) {
	edit := EditOp{Address: op.Address, Edit: op}
	auth, err := sign(keypair, edit)
	if err != nil {
		return Command{}, err
	}
	return Command{Edit: &SignedEdit{Op: edit, Auth: auth}}, nil
}
