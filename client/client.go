// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/safenet-project/safenet/comm"
	"github.com/safenet-project/safenet/lib/antientropy"
	"github.com/safenet-project/safenet/lib/clock"
	"github.com/safenet-project/safenet/lib/keys"
	"github.com/safenet-project/safenet/lib/neterr"
	"github.com/safenet-project/safenet/lib/section"
	"github.com/safenet-project/safenet/lib/xorname"
	"github.com/safenet-project/safenet/protocol"
	"github.com/safenet-project/safenet/transport"
)

const (
	// DefaultMaxBounces bounds how many anti-entropy replies one
	// request follows.
	DefaultMaxBounces = 5

	// DefaultTimeout bounds one request, bounces included.
	DefaultTimeout = 30 * time.Second
)

// Config assembles a Client.
type Config struct {
	// Keypair signs commands and queries. Nil generates a fresh one.
	Keypair *keys.Keypair

	// Tree is the starting network knowledge. The client takes
	// ownership.
	Tree *section.Tree

	Dialer transport.Dialer

	Clock          clock.Clock
	MaxSendRetries int
	RetryWait      time.Duration
	MaxBounces     int
	Timeout        time.Duration

	Logger *slog.Logger
}

// Client sends register commands and queries to the network. It is
// safe for concurrent use.
type Client struct {
	keypair    *keys.Keypair
	comm       *comm.Comm
	knowledge  *antientropy.Knowledge
	maxBounces int
	timeout    time.Duration
	logger     *slog.Logger
}

// New builds a client. It opens no connection until the first request.
func New(cfg Config) (*Client, error) {
	if cfg.Tree == nil {
		return nil, errors.New("client: Tree is required")
	}
	if cfg.Dialer == nil {
		return nil, errors.New("client: Dialer is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	keypair := cfg.Keypair
	if keypair == nil {
		var err error
		if keypair, err = keys.Generate(); err != nil {
			return nil, err
		}
	}
	maxBounces := cfg.MaxBounces
	if maxBounces <= 0 {
		maxBounces = DefaultMaxBounces
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	knowledge, err := antientropy.New(antientropy.Config{Tree: cfg.Tree, Self: keypair.Name(), Logger: logger})
	if err != nil {
		return nil, err
	}
	endpoint, err := transport.NewEndpoint(transport.EndpointConfig{
		Keypair: keypair,
		Dialer:  cfg.Dialer,
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}
	communication, err := comm.New(comm.Config{
		Endpoint:       endpoint,
		Clock:          cfg.Clock,
		MaxSendRetries: cfg.MaxSendRetries,
		RetryWait:      cfg.RetryWait,
		Logger:         logger,
	})
	if err != nil {
		return nil, err
	}
	// Nodes answer on request streams; anything else is noise.
	go func() {
		for event := range communication.Events() {
			if event.Kind == comm.EventError {
				logger.Debug("peer error", "peer", event.Sender.String(), "error", event.Err)
			}
		}
	}()

	c := &Client{
		keypair:    keypair,
		comm:       communication,
		knowledge:  knowledge,
		maxBounces: maxBounces,
		timeout:    timeout,
		logger:     logger,
	}
	c.syncTargets()
	return c, nil
}

// PublicKey is the key the client signs with.
func (c *Client) PublicKey() keys.PublicKey { return c.keypair.Public() }

// Tree returns a copy of the client's current network knowledge.
func (c *Client) Tree() *section.Tree { return c.knowledge.Tree() }

// Close drops every connection.
func (c *Client) Close() { c.comm.CloseEndpoint() }

// syncTargets lets the comm reach every member of every known section.
func (c *Client) syncTargets() {
	var peers []comm.Peer
	for _, sap := range c.knowledge.Tree().All() {
		for _, member := range sap.Members {
			peers = append(peers, comm.Peer{Name: member.Name, Addr: member.Addr})
		}
	}
	c.comm.SetCommTargets(peers)
}

// exchange sends payload for name and returns the reply, following
// Retry and Redirect replies. The section's members are tried in order
// of closeness to name until one answers.
func (c *Client) exchange(ctx context.Context, name xorname.Name, payload protocol.Payload) (protocol.Payload, error) {
	const op = "client.exchange"
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := payload.Encode()
	if err != nil {
		return protocol.Payload{}, err
	}
	signed, err := c.knowledge.Closest(name)
	if err != nil {
		return protocol.Payload{}, err
	}
	msg := comm.NetworkMsg{
		ID:      comm.NewMsgID(),
		Dst:     comm.Dst{Name: name, SectionKey: signed.SAP.Key},
		Payload: body,
	}
	candidates := peers(signed.SAP.ClosestMembers(name, len(signed.SAP.Members)))
	logger := c.logger.With("msg_id", msg.ID.String(), "kind", payload.Kind.String())

	for bounces := 0; ; bounces++ {
		wire, err := msg.Encode()
		if err != nil {
			return protocol.Payload{}, err
		}
		reply, from, err := c.request(ctx, candidates, msg.ID, wire)
		if err != nil {
			return protocol.Payload{}, err
		}
		_, answer, err := protocol.Open(reply)
		if err != nil {
			return protocol.Payload{}, err
		}
		if answer.Kind != protocol.KindAntiEntropy {
			return answer, nil
		}

		if bounces == c.maxBounces {
			return protocol.Payload{}, neterr.E(op, neterr.FailedSend, "too many anti-entropy bounces", nil)
		}
		resend, _, err := c.knowledge.HandleBounce(ctx, from, *answer.AntiEntropy)
		if err != nil {
			return protocol.Payload{}, err
		}
		if resend == nil {
			return protocol.Payload{}, neterr.E(op, neterr.FailedSend, "bounced without a newer section key", nil)
		}
		logger.Debug("following anti-entropy reply",
			"ae_kind", answer.AntiEntropy.Kind.String(),
			"to", resend.To.String(),
			"section_key", resend.Msg.Dst.SectionKey.String(),
		)
		c.syncTargets()
		msg = resend.Msg
		candidates = []comm.Peer{resend.To}
		if answer.AntiEntropy.Kind == antientropy.Redirect {
			sap := answer.AntiEntropy.Authority.SAP.SAP
			candidates = peers(sap.ClosestMembers(sap.Key.Name(), len(sap.Members)))
		}
	}
}

// request tries candidates in order and returns the first reply with
// the peer that sent it.
func (c *Client) request(ctx context.Context, candidates []comm.Peer, id comm.MsgID, wire []byte) ([]byte, comm.Peer, error) {
	if len(candidates) == 0 {
		return nil, comm.Peer{}, neterr.E("client.request", neterr.NoMatchingSection, "section has no members", nil)
	}
	var errs []error
	for _, peer := range candidates {
		reply, err := c.comm.Request(ctx, peer, id, wire)
		if err == nil {
			return reply, peer, nil
		}
		c.logger.Debug("peer did not answer", "peer", peer.String(), "msg_id", id.String(), "error", err)
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	return nil, comm.Peer{}, neterr.E("client.request", neterr.FailedSend, "no member answered", errors.Join(errs...))
}

func peers(members []section.Member) []comm.Peer {
	list := make([]comm.Peer, len(members))
	for i, member := range members {
		list[i] = comm.Peer{Name: member.Name, Addr: member.Addr}
	}
	return list
}
