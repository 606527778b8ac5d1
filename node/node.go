// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package node

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/safenet-project/safenet/comm"
	"github.com/safenet-project/safenet/lib/antientropy"
	"github.com/safenet-project/safenet/lib/clock"
	"github.com/safenet-project/safenet/lib/neterr"
	"github.com/safenet-project/safenet/lib/registerstore"
	"github.com/safenet-project/safenet/lib/xorname"
	"github.com/safenet-project/safenet/protocol"
)

const (
	// DefaultReplicaCount is how many section members hold each
	// register.
	DefaultReplicaCount = 4

	// DefaultRequestTimeout bounds a fan-out to replicas.
	DefaultRequestTimeout = 10 * time.Second
)

// Config assembles a Node. Comm, Knowledge and Store are required;
// Knowledge must hold our own section's authority.
type Config struct {
	Comm      *comm.Comm
	Knowledge *antientropy.Knowledge
	Store     *registerstore.Store

	Clock          clock.Clock
	ReplicaCount   int
	RequestTimeout time.Duration
	UpdateInterval time.Duration

	Logger *slog.Logger
}

// handler processes one accepted message. Handlers answer through
// reply and return only errors worth logging.
type handler func(ctx context.Context, in *inbound) error

// inbound is a decoded message from a peer.
type inbound struct {
	event   comm.CommEvent
	payload protocol.Payload
	// member is set when the sender belongs to our section.
	member bool
}

func (in *inbound) id() comm.MsgID { return in.event.Msg.ID }
func (in *inbound) dst() comm.Dst { return in.event.Msg.Dst }
func (in *inbound) sender() comm.Peer { return in.event.Sender }

// Node is a running section member.
type Node struct {
	self      xorname.Name
	comm      *comm.Comm
	knowledge *antientropy.Knowledge
	store     *registerstore.Store
	clock     clock.Clock

	replicaCount   int
	requestTimeout time.Duration
	updateInterval time.Duration

	handlers map[protocol.Kind]handler
	logger   *slog.Logger

	handling sync.WaitGroup
}

// New builds a node and points its comm at our section's members.
func New(cfg Config) (*Node, error) {
	if cfg.Comm == nil || cfg.Knowledge == nil || cfg.Store == nil {
		return nil, errors.New("node: Comm, Knowledge and Store are required")
	}
	if _, ok := cfg.Knowledge.Our(); !ok {
		return nil, neterr.E("node.New", neterr.InvalidInput, "knowledge holds no section of our own", nil)
	}
	if cfg.Knowledge.Self() != cfg.Comm.Name() {
		return nil, neterr.E("node.New", neterr.InvalidInput, "knowledge and comm disagree on our name", nil)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	replicas := cfg.ReplicaCount
	if replicas <= 0 {
		replicas = DefaultReplicaCount
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	n := &Node{
		self:           cfg.Comm.Name(),
		comm:           cfg.Comm,
		knowledge:      cfg.Knowledge,
		store:          cfg.Store,
		clock:          clk,
		replicaCount:   replicas,
		requestTimeout: timeout,
		updateInterval: cfg.UpdateInterval,
		logger:         logger.With("node", cfg.Comm.Name().String()),
	}
	n.handlers = map[protocol.Kind]handler{
		protocol.KindCmd:    n.handleCmd,
		protocol.KindQuery:  n.handleQuery,
		protocol.KindBundle: n.handleBundle,
	}
	n.syncTargets()
	return n, nil
}

// Name is the node's peer name.
func (n *Node) Name() xorname.Name { return n.self }

// Run handles events until ctx ends or the comm closes, returning nil,
// or until the node is removed from its section, returning a
// RejoinRequired error. Handlers still running are waited for.
func (n *Node) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		n.handling.Wait()
	}()

	n.handling.Add(1)
	go func() {
		defer n.handling.Done()
		n.knowledge.RunUpdates(ctx, n.clock, n.updateInterval, n.broadcast)
	}()

	our, _ := n.knowledge.Our()
	n.logger.Info("node running",
		"address", n.comm.Addr(),
		"prefix", our.SAP.Prefix.String(),
		"section_key", our.SAP.Key.String(),
		"members", len(our.SAP.Members),
	)

	events := n.comm.Events()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-n.knowledge.RejoinRequired():
			return neterr.E("node.Run", neterr.RejoinRequired, "removed from section "+our.SAP.Prefix.String(), nil)
		case event, ok := <-events:
			if !ok {
				return nil
			}
			n.handling.Add(1)
			go func() {
				defer n.handling.Done()
				n.dispatch(ctx, event)
			}()
		}
	}
}

// dispatch decodes one event and routes it. A requester always hears
// back: a stream nothing answered is reset on the way out.
func (n *Node) dispatch(ctx context.Context, event comm.CommEvent) {
	logger := n.logger.With("peer", event.Sender.String())
	if event.Stream != nil {
		defer func() {
			if err := event.Stream.Reset(ctx); err != nil {
				logger.Debug("resetting unanswered stream failed", "error", err)
			}
		}()
	}
	if event.Kind == comm.EventError {
		logger.Debug("peer error", "error", event.Err)
		return
	}
	msg := event.Msg
	logger = logger.With("msg_id", msg.ID.String())
	if msg.Error != nil {
		logger.Debug("ignoring unsolicited error reply", "kind", msg.Error.Kind, "detail", msg.Error.Detail)
		return
	}
	payload, err := protocol.Decode(msg.Payload)
	if err != nil {
		logger.Warn("dropping malformed payload", "error", err)
		n.reply(ctx, event, protocol.ErrorWire(msg.ID, msg.Dst, err))
		return
	}
	in := &inbound{event: event, payload: payload, member: n.comm.IsMember(event.Sender.Name)}

	if payload.Kind == protocol.KindAntiEntropy {
		n.handleAntiEntropy(ctx, in)
		return
	}

	bounce, err := n.knowledge.Check(msg.Dst, event.Raw)
	if err != nil {
		logger.Warn("entropy check failed", "error", err)
		n.reply(ctx, event, protocol.ErrorWire(msg.ID, msg.Dst, err))
		return
	}
	if bounce != nil {
		logger.Debug("bouncing message", "kind", bounce.Kind.String(), "dst", msg.Dst.Name.String())
		wire, err := protocol.Wire(msg.ID, msg.Dst, protocol.Payload{Kind: protocol.KindAntiEntropy, AntiEntropy: bounce})
		if err != nil {
			logger.Error("encoding anti-entropy reply", "error", err)
			return
		}
		n.reply(ctx, event, wire)
		return
	}

	handle, ok := n.handlers[payload.Kind]
	if !ok {
		logger.Debug("ignoring unsolicited payload", "kind", payload.Kind.String())
		if event.Stream != nil {
			n.reply(ctx, event, protocol.ErrorWire(msg.ID, msg.Dst,
				neterr.E("node.dispatch", neterr.InvalidMsgReceived, "unexpected "+payload.Kind.String()+" payload", nil)))
		}
		return
	}
	if err := handle(ctx, in); err != nil {
		logger.Warn("handling message failed", "kind", payload.Kind.String(), "error", err)
	}
}

// reply answers event on its stream, or with a one-way message when
// the sender is a member that sent without waiting.
func (n *Node) reply(ctx context.Context, event comm.CommEvent, wire []byte) {
	if event.Stream != nil {
		if err := event.Stream.Respond(ctx, wire); err != nil {
			n.logger.Debug("responding on stream failed", "peer", event.Sender.String(), "error", err)
		}
		return
	}
	if !n.comm.IsMember(event.Sender.Name) {
		return
	}
	if _, err := n.comm.SendMsg(ctx, event.Sender, event.Msg.ID, wire); err != nil {
		n.logger.Debug("replying to member failed", "peer", event.Sender.String(), "error", err)
	}
}
