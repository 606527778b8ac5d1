// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"errors"
	"fmt"

	"github.com/safenet-project/safenet/comm"
	"github.com/safenet-project/safenet/lib/antientropy"
	"github.com/safenet-project/safenet/lib/codec"
	"github.com/safenet-project/safenet/lib/keys"
	"github.com/safenet-project/safenet/lib/neterr"
	"github.com/safenet-project/safenet/lib/register"
)

// Kind selects the variant of a Payload.
type Kind uint8

const (
	// KindCmd carries a signed register command.
	KindCmd Kind = iota + 1
	// KindQuery carries a signed register query.
	KindQuery
	// KindAck answers a command that every replica applied.
	KindAck
	// KindResponse answers a query.
	KindResponse
	// KindAntiEntropy carries a Retry, Redirect or Update.
	KindAntiEntropy
	// KindBundle carries compressed replica logs for a new member.
	KindBundle
)

func (k Kind) String() string {
	switch k {
	case KindCmd:
		return "cmd"
	case KindQuery:
		return "query"
	case KindAck:
		return "ack"
	case KindResponse:
		return "response"
	case KindAntiEntropy:
		return "anti_entropy"
	case KindBundle:
		return "bundle"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// SignedQuery is a query with the requester's signature over it. The
// signer is the user whose read permission is checked.
type SignedQuery struct {
	Query register.Query `cbor:"1,keyasint"`
	Auth  register.Auth  `cbor:"2,keyasint"`
}

// Requester is the user the query is answered for.
func (q SignedQuery) Requester() register.User { return register.UserKey(q.Auth.PublicKey) }

// Verify checks the signature.
func (q SignedQuery) Verify() error { return q.Auth.Verify(q.Query) }

// SignQuery signs query with keypair.
func SignQuery(keypair *keys.Keypair, query register.Query) (SignedQuery, error) {
	message, err := codec.Marshal(query)
	if err != nil {
		return SignedQuery{}, neterr.E("protocol.SignQuery", neterr.Serialisation, "", err)
	}
	return SignedQuery{
		Query: query,
		Auth:  register.Auth{PublicKey: keypair.Public(), Signature: keypair.Sign(message)},
	}, nil
}

// Payload is the body of a comm.NetworkMsg. Exactly the field matching
// Kind is set.
type Payload struct {
	Kind Kind `cbor:"1,keyasint"`

	// Forwarded marks a Cmd or Query relayed by a section member to
	// the other replicas. Replicas answer it from their own store
	// without fanning out again.
	Forwarded bool `cbor:"2,keyasint,omitempty"`

	Cmd         *register.Command       `cbor:"3,keyasint,omitempty"`
	Query       *SignedQuery            `cbor:"4,keyasint,omitempty"`
	Response    *register.QueryResponse `cbor:"5,keyasint,omitempty"`
	AntiEntropy *antientropy.Message    `cbor:"6,keyasint,omitempty"`
	Bundle      []byte                  `cbor:"7,keyasint,omitempty"`
}

// Validate checks that the field matching Kind is set.
func (p Payload) Validate() error {
	var ok bool
	switch p.Kind {
	case KindCmd:
		ok = p.Cmd != nil && p.Cmd.Validate() == nil
	case KindQuery:
		ok = p.Query != nil
	case KindAck:
		ok = true
	case KindResponse:
		ok = p.Response != nil
	case KindAntiEntropy:
		ok = p.AntiEntropy != nil
	case KindBundle:
		ok = len(p.Bundle) > 0
	}
	if !ok {
		return neterr.E("protocol.Payload", neterr.InvalidMessage, "malformed "+p.Kind.String()+" payload", nil)
	}
	return nil
}

// Encode serialises p.
func (p Payload) Encode() ([]byte, error) {
	data, err := codec.Marshal(p)
	if err != nil {
		return nil, neterr.E("protocol.Encode", neterr.Serialisation, p.Kind.String(), err)
	}
	return data, nil
}

// Decode parses and validates a payload.
func Decode(data []byte) (Payload, error) {
	var p Payload
	if err := codec.Unmarshal(data, &p); err != nil {
		return Payload{}, neterr.E("protocol.Decode", neterr.InvalidMessage, "", err)
	}
	if err := p.Validate(); err != nil {
		return Payload{}, err
	}
	return p, nil
}

// Wire wraps p in a network message for dst and encodes it.
func Wire(id comm.MsgID, dst comm.Dst, p Payload) ([]byte, error) {
	body, err := p.Encode()
	if err != nil {
		return nil, err
	}
	return comm.NetworkMsg{ID: id, Dst: dst, Payload: body}.Encode()
}

// ErrorWire is the error reply to message id for err. Replicas that
// fail the same way produce identical bytes.
func ErrorWire(id comm.MsgID, dst comm.Dst, err error) []byte {
	kind := neterr.KindOf(err)
	detail := ""
	var netErr *neterr.Error
	if errors.As(err, &netErr) {
		detail = netErr.Detail
	}
	return comm.ErrorReply(id, dst, kind, detail)
}

// Open decodes a network message and its payload. A message carrying
// an error reply is returned as that error.
func Open(wire []byte) (comm.NetworkMsg, Payload, error) {
	msg, err := comm.DecodeMsg(wire)
	if err != nil {
		return comm.NetworkMsg{}, Payload{}, err
	}
	if msg.Error != nil {
		return msg, Payload{}, ReplyError(msg.Error)
	}
	payload, err := Decode(msg.Payload)
	if err != nil {
		return msg, Payload{}, err
	}
	return msg, payload, nil
}

// ReplyError turns an error reply back into a kind-tagged error.
func ReplyError(reply *comm.ErrorPayload) error {
	return neterr.E("remote", neterr.Kind(reply.Kind), reply.Detail, nil)
}
