// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package antientropy

import (
	"context"

	"github.com/safenet-project/safenet/comm"
	"github.com/safenet-project/safenet/lib/neterr"
	"github.com/safenet-project/safenet/lib/section"
)

// Check decides whether a message addressed to dst may be handled
// here. It returns nil to accept, or the Retry or Redirect to send
// back, with raw (the encoded message) as the bounced message.
func (k *Knowledge) Check(dst comm.Dst, raw []byte) (*Message, error) {
	const op = "antientropy.Check"
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.our == nil {
		return nil, neterr.E(op, neterr.InvalidInput, "only section members check entropy", nil)
	}
	our := *k.our

	if !our.SAP.Prefix.Matches(dst.Name) {
		closest, ok := k.tree.Closest(dst.Name, nil)
		if !ok {
			return nil, neterr.E(op, neterr.NoMatchingSection, dst.Name.String(), nil)
		}
		chain, err := k.proofChain(dst.SectionKey, closest.SAP.Key)
		if err != nil {
			return nil, err
		}
		k.logger.Debug("redirecting message for another section",
			"dst", dst.Name.String(),
			"prefix", closest.SAP.Prefix.String(),
		)
		return &Message{Kind: Redirect, Authority: section.NewUpdate(closest, chain), Bounced: raw}, nil
	}

	if dst.SectionKey == our.SAP.Key {
		return nil, nil
	}

	chain, err := k.proofChain(dst.SectionKey, our.SAP.Key)
	if err != nil {
		return nil, err
	}
	k.logger.Debug("asking sender to retry under our current key",
		"their_key", dst.SectionKey.String(),
		"section_key", our.SAP.Key.String(),
	)
	return &Message{Kind: Retry, Authority: section.NewUpdate(our, chain), Bounced: raw}, nil
}

// Resend is a bounced message ready to go out again.
type Resend struct {
	To  comm.Peer
	Msg comm.NetworkMsg
}

// HandleBounce integrates the authority carried by a Retry or Redirect
// from sender and works out where the bounced message goes next. It
// returns nil when the message should be dropped: the authority did not
// move the destination key, or the attached section has no members. The
// call waits on sender's resend limiter.
func (k *Knowledge) HandleBounce(ctx context.Context, sender comm.Peer, m Message) (*Resend, Change, error) {
	const op = "antientropy.HandleBounce"
	if m.Kind != Retry && m.Kind != Redirect {
		return nil, Change{}, neterr.E(op, neterr.InvalidMessage, "not a bounce: "+m.Kind.String(), nil)
	}
	change, err := k.Integrate(m.Authority)
	if err != nil {
		k.logger.Warn("rejecting section authority from bounce", "peer", sender.String(), "error", err)
		return nil, Change{}, err
	}

	bounced, err := comm.DecodeMsg(m.Bounced)
	if err != nil {
		return nil, change, err
	}
	sap := m.Authority.SAP.SAP
	if bounced.Dst.SectionKey == sap.Key {
		k.logger.Warn("dropping bounced message already sent under the suggested key",
			"msg_id", bounced.ID.String(),
			"section_key", sap.Key.String(),
		)
		return nil, change, nil
	}

	to := sender
	if m.Kind == Redirect {
		member, ok := sap.ClosestMember(sap.Key.Name())
		if !ok {
			k.logger.Warn("redirect names a section with no members", "prefix", sap.Prefix.String())
			return nil, change, nil
		}
		to = comm.Peer{Name: member.Name, Addr: member.Addr}
	}

	if err := k.limiter(to.Name).Wait(ctx); err != nil {
		return nil, change, err
	}
	bounced.Dst.SectionKey = sap.Key
	return &Resend{To: to, Msg: bounced}, change, nil
}

// HandleUpdate integrates a periodic Update from a section peer.
func (k *Knowledge) HandleUpdate(sender comm.Peer, m Message) (Change, error) {
	if m.Kind != Update {
		return Change{}, neterr.E("antientropy.HandleUpdate", neterr.InvalidMessage, "not an update: "+m.Kind.String(), nil)
	}
	change, err := k.Integrate(m.Authority)
	if err != nil {
		k.logger.Warn("rejecting section authority update", "peer", sender.String(), "error", err)
	}
	return change, err
}
