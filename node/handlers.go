// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package node

import (
	"context"
	"errors"

	"github.com/safenet-project/safenet/comm"
	"github.com/safenet-project/safenet/lib/antientropy"
	"github.com/safenet-project/safenet/lib/neterr"
	"github.com/safenet-project/safenet/lib/xorname"
	"github.com/safenet-project/safenet/protocol"
)

// handleCmd applies a register command. A command relayed by a member
// is answered from our store alone. A command from a client is
// applied here first; if that succeeds it is relayed to the other
// replicas and the client receives their agreed reply.
func (n *Node) handleCmd(ctx context.Context, in *inbound) error {
	cmd := *in.payload.Cmd
	address := cmd.Dst()
	err := n.store.Write(ctx, cmd)
	if err != nil && !errors.Is(err, neterr.DataExists) {
		n.logger.Info("register command rejected",
			"address", address.String(),
			"msg_id", in.id().String(),
			"error", err,
		)
	}

	var local []byte
	if err != nil {
		local = protocol.ErrorWire(in.id(), in.dst(), err)
	} else {
		local, err = protocol.Wire(in.id(), in.dst(), protocol.Payload{Kind: protocol.KindAck})
		if err != nil {
			return err
		}
	}
	if in.payload.Forwarded && in.member {
		n.reply(ctx, in.event, local)
		return nil
	}
	if err != nil {
		n.reply(ctx, in.event, local)
		return nil
	}

	relay := in.payload
	relay.Forwarded = true
	return n.fanOut(ctx, in, address.Name, relay, local)
}

// handleQuery answers a signed register query. Relayed queries are
// answered from our store; client queries go to the other replicas,
// or are answered here when we are the only one.
func (n *Node) handleQuery(ctx context.Context, in *inbound) error {
	signed := *in.payload.Query
	if err := signed.Verify(); err != nil {
		n.reply(ctx, in.event, protocol.ErrorWire(in.id(), in.dst(), err))
		return nil
	}

	if in.payload.Forwarded && in.member {
		n.reply(ctx, in.event, n.answer(ctx, in, signed))
		return nil
	}
	relay := in.payload
	relay.Forwarded = true
	return n.fanOut(ctx, in, signed.Query.Address.Name, relay, nil)
}

// answer reads the store for one query and encodes the reply.
func (n *Node) answer(ctx context.Context, in *inbound, signed protocol.SignedQuery) []byte {
	response, err := n.store.Read(ctx, signed.Query, signed.Requester())
	if err != nil {
		return protocol.ErrorWire(in.id(), in.dst(), err)
	}
	wire, err := protocol.Wire(in.id(), in.dst(), protocol.Payload{Kind: protocol.KindResponse, Response: &response})
	if err != nil {
		return protocol.ErrorWire(in.id(), in.dst(), err)
	}
	return wire
}

// fanOut relays payload to the other replicas of name. With a stream
// to answer, the replicas' quorum reply goes back on it; a majority
// must reply and every reply must agree. With no other replica the
// sender gets local, or for a query our own answer.
func (n *Node) fanOut(ctx context.Context, in *inbound, name xorname.Name, relay protocol.Payload, local []byte) error {
	replicas := n.replicas(name)
	if len(replicas) == 0 {
		if local == nil {
			local = n.answer(ctx, in, *relay.Query)
		}
		n.reply(ctx, in.event, local)
		return nil
	}

	wire, err := protocol.Wire(in.id(), in.dst(), relay)
	if err != nil {
		n.reply(ctx, in.event, protocol.ErrorWire(in.id(), in.dst(), err))
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, n.requestTimeout)
	defer cancel()

	if in.event.Stream == nil {
		for _, peer := range replicas {
			if _, err := n.comm.SendMsg(ctx, peer, in.id(), wire); err != nil {
				n.logger.Warn("relaying to replica failed", "peer", peer.String(), "error", err)
			}
		}
		return nil
	}

	requests := make(map[comm.Peer][]byte, len(replicas))
	for _, peer := range replicas {
		requests[peer] = wire
	}
	n.logger.Debug("relaying to replicas",
		"kind", relay.Kind.String(),
		"msg_id", in.id().String(),
		"replicas", len(replicas),
	)
	return n.comm.SendAndRespondOnStream(ctx, in.id(), in.dst(), requests, len(replicas)/2+1, in.event.Stream)
}

// replicas returns the members other than us among the replicaCount
// members closest to name.
func (n *Node) replicas(name xorname.Name) []comm.Peer {
	our, _ := n.knowledge.Our()
	var peers []comm.Peer
	for _, member := range our.SAP.ClosestMembers(name, n.replicaCount) {
		if member.Name == n.self {
			continue
		}
		peers = append(peers, comm.Peer{Name: member.Name, Addr: member.Addr})
	}
	return peers
}

// handleBundle imports replica logs shipped by a section member.
func (n *Node) handleBundle(ctx context.Context, in *inbound) error {
	if !in.member {
		return neterr.E("node.handleBundle", neterr.AccessDenied, "bundle from non-member "+in.sender().String(), nil)
	}
	count, err := n.store.ImportBundle(ctx, in.payload.Bundle)
	if err != nil {
		return err
	}
	n.logger.Info("imported replica bundle", "peer", in.sender().String(), "registers", count)
	return nil
}

// handleAntiEntropy integrates the authority an AE message carries and
// resends a bounced message within our section.
func (n *Node) handleAntiEntropy(ctx context.Context, in *inbound) {
	message := *in.payload.AntiEntropy
	logger := n.logger.With("peer", in.sender().String(), "kind", message.Kind.String())

	if message.Kind == antientropy.Update {
		change, err := n.knowledge.HandleUpdate(in.sender(), message)
		if err != nil {
			return
		}
		n.applyChange(ctx, change)
		return
	}

	resend, change, err := n.knowledge.HandleBounce(ctx, in.sender(), message)
	if err != nil {
		logger.Warn("handling bounce failed", "error", err)
		return
	}
	n.applyChange(ctx, change)
	if resend == nil {
		return
	}
	if !n.comm.IsMember(resend.To.Name) {
		logger.Info("not resending bounced message outside our section", "to", resend.To.String())
		return
	}
	wire, err := resend.Msg.Encode()
	if err != nil {
		logger.Error("encoding resend", "error", err)
		return
	}
	if _, err := n.comm.SendMsg(ctx, resend.To, resend.Msg.ID, wire); err != nil {
		logger.Warn("resending bounced message failed", "to", resend.To.String(), "error", err)
	}
}
