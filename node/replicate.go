// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package node

import (
	"context"

	"github.com/safenet-project/safenet/comm"
	"github.com/safenet-project/safenet/lib/antientropy"
	"github.com/safenet-project/safenet/lib/section"
	"github.com/safenet-project/safenet/protocol"
)

// syncTargets points the comm at our section's members other than us.
func (n *Node) syncTargets() {
	members := n.knowledge.Members()
	peers := make([]comm.Peer, 0, len(members))
	for _, member := range members {
		if member.Name == n.self {
			continue
		}
		peers = append(peers, comm.Peer{Name: member.Name, Addr: member.Addr})
	}
	n.comm.SetCommTargets(peers)
}

// applyChange follows an accepted authority for our section.
func (n *Node) applyChange(ctx context.Context, change antientropy.Change) {
	if !change.Ours {
		return
	}
	n.syncTargets()
	for _, member := range change.Left {
		n.logger.Info("member left our section", "peer", member.String())
	}
	if len(change.Joined) > 0 {
		n.replicate(ctx, change.Joined)
	}
}

// replicate ships every log under our prefix to members that joined.
func (n *Node) replicate(ctx context.Context, joined []section.Member) {
	our, ok := n.knowledge.Our()
	if !ok {
		return
	}
	bundle, count, err := n.store.ExportBundle(ctx, our.SAP.Prefix)
	if err != nil {
		n.logger.Error("exporting replica bundle failed", "prefix", our.SAP.Prefix.String(), "error", err)
		return
	}
	if count == 0 {
		return
	}
	for _, member := range joined {
		if member.Name == n.self {
			continue
		}
		peer := comm.Peer{Name: member.Name, Addr: member.Addr}
		id := comm.NewMsgID()
		dst := comm.Dst{Name: member.Name, SectionKey: our.SAP.Key}
		wire, err := protocol.Wire(id, dst, protocol.Payload{Kind: protocol.KindBundle, Bundle: bundle})
		if err != nil {
			n.logger.Error("encoding replica bundle failed", "error", err)
			return
		}
		if _, err := n.comm.SendMsg(ctx, peer, id, wire); err != nil {
			n.logger.Warn("sending replica bundle failed", "peer", peer.String(), "error", err)
			continue
		}
		n.logger.Info("replicating to new member",
			"peer", peer.String(),
			"registers", count,
			"bytes", len(bundle),
		)
	}
}

// broadcast sends an AE Update to every other member.
func (n *Node) broadcast(ctx context.Context, update antientropy.Message) {
	our, ok := n.knowledge.Our()
	if !ok {
		return
	}
	for _, peer := range n.comm.Members() {
		id := comm.NewMsgID()
		dst := comm.Dst{Name: peer.Name, SectionKey: our.SAP.Key}
		wire, err := protocol.Wire(id, dst, protocol.Payload{Kind: protocol.KindAntiEntropy, AntiEntropy: &update})
		if err != nil {
			n.logger.Error("encoding section update failed", "error", err)
			return
		}
		if _, err := n.comm.SendMsg(ctx, peer, id, wire); err != nil {
			n.logger.Debug("sending section update failed", "peer", peer.String(), "error", err)
		}
	}
}

// Integrate accepts an authority learned outside the message flow,
// such as from an operator, and follows it like an AE Update.
func (n *Node) Integrate(ctx context.Context, u section.Update) (antientropy.Change, error) {
	change, err := n.knowledge.Integrate(u)
	if err != nil {
		return change, err
	}
	n.applyChange(ctx, change)
	return change, nil
}
