// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package register

// QueryKind selects what a Query asks for.
type QueryKind uint8

const (
	// GetRegister returns a snapshot of the whole register.
	GetRegister QueryKind = iota
	// ReadRegister returns the current heads.
	ReadRegister
	GetOwner
	GetEntry
	GetPolicy
	GetUserPermissions
)

func (k QueryKind) String() string {
	switch k {
	case GetRegister:
		return "GetRegister"
	case ReadRegister:
		return "ReadRegister"
	case GetOwner:
		return "GetOwner"
	case GetEntry:
		return "GetEntry"
	case GetPolicy:
		return "GetPolicy"
	case GetUserPermissions:
		return "GetUserPermissions"
	}
	return "QueryKind(?)"
}

// Query is a read against one register. Hash is used by GetEntry,
// User by GetUserPermissions.
type Query struct {
	Kind    QueryKind `cbor:"1,keyasint"`
	Address Address   `cbor:"2,keyasint"`
	Hash    EntryHash `cbor:"3,keyasint,omitempty"`
	User    User      `cbor:"4,keyasint,omitempty"`
}

// QueryResponse answers a Query. Exactly one result field is set on
// success; Error carries the failure kind otherwise.
type QueryResponse struct {
	Kind        QueryKind    `cbor:"1,keyasint"`
	Register    *Snapshot    `cbor:"2,keyasint,omitempty"`
	Entries     []Entry      `cbor:"3,keyasint,omitempty"`
	Owner       *User        `cbor:"4,keyasint,omitempty"`
	Entry       []byte       `cbor:"5,keyasint,omitempty"`
	Policy      *Policy      `cbor:"6,keyasint,omitempty"`
	Permissions *Permissions `cbor:"7,keyasint,omitempty"`
	Error       string       `cbor:"8,keyasint,omitempty"`
	Detail      string       `cbor:"9,keyasint,omitempty"`
}
