// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package antientropy

import (
	"fmt"

	"github.com/safenet-project/safenet/lib/codec"
	"github.com/safenet-project/safenet/lib/neterr"
	"github.com/safenet-project/safenet/lib/section"
)

// Kind selects what an AE message asks of its receiver.
type Kind uint8

const (
	// Retry: resend the bounced message to the same peer under the
	// attached section key.
	Retry Kind = iota + 1
	// Redirect: resend the bounced message to the attached section.
	Redirect
	// Update: integrate the attached authority; nothing to resend.
	Update
)

func (k Kind) String() string {
	switch k {
	case Retry:
		return "retry"
	case Redirect:
		return "redirect"
	case Update:
		return "update"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Message is an anti-entropy message.
type Message struct {
	Kind Kind `cbor:"1,keyasint"`

	// Authority is a signed SAP with the proof chain ending at its key.
	Authority section.Update `cbor:"2,keyasint"`

	// Bounced is the encoded network message that triggered a Retry
	// or Redirect.
	Bounced []byte `cbor:"3,keyasint,omitempty"`
}

// Encode serialises m.
func (m Message) Encode() ([]byte, error) {
	data, err := codec.Marshal(m)
	if err != nil {
		return nil, neterr.E("antientropy.Encode", neterr.Serialisation, "", err)
	}
	return data, nil
}

// DecodeMessage parses an AE message, verifying the proof chain's
// signatures along the way.
func DecodeMessage(data []byte) (Message, error) {
	var m Message
	if err := codec.Unmarshal(data, &m); err != nil {
		return Message{}, neterr.E("antientropy.DecodeMessage", neterr.InvalidMessage, "", err)
	}
	switch m.Kind {
	case Retry, Redirect:
		if len(m.Bounced) == 0 {
			return Message{}, neterr.E("antientropy.DecodeMessage", neterr.InvalidMessage, m.Kind.String()+" without a bounced message", nil)
		}
	case Update:
	default:
		return Message{}, neterr.E("antientropy.DecodeMessage", neterr.InvalidMessage, "unknown "+m.Kind.String(), nil)
	}
	if m.Authority.ProofChain == nil {
		return Message{}, neterr.E("antientropy.DecodeMessage", neterr.InvalidMessage, "missing proof chain", nil)
	}
	return m, nil
}
