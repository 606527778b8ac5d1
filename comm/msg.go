// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package comm

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"github.com/safenet-project/safenet/lib/codec"
	"github.com/safenet-project/safenet/lib/keys"
	"github.com/safenet-project/safenet/lib/neterr"
	"github.com/safenet-project/safenet/lib/xorname"
)

// MsgID identifies one message and every reply to it.
type MsgID uint64

// NewMsgID returns a random id.
func NewMsgID() MsgID {
	var b [8]byte
	rand.Read(b[:])
	return MsgID(binary.BigEndian.Uint64(b[:]))
}

func (id MsgID) String() string { return fmt.Sprintf("%016x", uint64(id)) }

// Peer is a network participant: the name its key hashes to and the
// address it listens on. Peers compare and order by name.
type Peer struct {
	Name xorname.Name `cbor:"1,keyasint"`
	Addr string       `cbor:"2,keyasint"`
}

func (p Peer) String() string { return p.Name.String() + "@" + p.Addr }

// Dst is the section a message is meant for: a name inside the
// section's prefix and the section key the sender believes current.
type Dst struct {
	Name       xorname.Name   `cbor:"1,keyasint"`
	SectionKey keys.PublicKey `cbor:"2,keyasint"`
}

// ErrorPayload is the body of a locally constructed error reply.
type ErrorPayload struct {
	Kind   string `cbor:"1,keyasint"`
	Detail string `cbor:"2,keyasint,omitempty"`
}

// NetworkMsg is the envelope every peer exchanges. Payload is opaque to
// this package; a message carrying Error has no payload.
type NetworkMsg struct {
	ID      MsgID         `cbor:"1,keyasint"`
	Dst     Dst           `cbor:"2,keyasint"`
	Payload []byte        `cbor:"3,keyasint,omitempty"`
	Error   *ErrorPayload `cbor:"4,keyasint,omitempty"`
}

// Encode serialises msg deterministically, so equal messages produce
// equal bytes.
func (m NetworkMsg) Encode() ([]byte, error) {
	data, err := codec.Marshal(m)
	if err != nil {
		return nil, neterr.E("comm.Encode", neterr.Serialisation, "network message", err)
	}
	return data, nil
}

// DecodeMsg parses a network message received from a peer.
func DecodeMsg(data []byte) (NetworkMsg, error) {
	var msg NetworkMsg
	if err := codec.Unmarshal(data, &msg); err != nil {
		return NetworkMsg{}, neterr.E("comm.DecodeMsg", neterr.InvalidMsgReceived, "", err)
	}
	return msg, nil
}

// ErrorReply builds the error message returned in place of a reply.
func ErrorReply(id MsgID, dst Dst, kind neterr.Kind, detail string) []byte {
	data, err := NetworkMsg{ID: id, Dst: dst, Error: &ErrorPayload{Kind: string(kind), Detail: detail}}.Encode()
	if err != nil {
		// Every field has a fixed CBOR form.
		panic(err)
	}
	return data
}
