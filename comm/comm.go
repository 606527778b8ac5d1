// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package comm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/safenet-project/safenet/lib/clock"
	"github.com/safenet-project/safenet/lib/neterr"
	"github.com/safenet-project/safenet/lib/xorname"
	"github.com/safenet-project/safenet/transport"
)

// EventKind distinguishes CommEvent variants.
type EventKind uint8

const (
	// EventMsg carries a message from a peer.
	EventMsg EventKind = iota + 1
	// EventError reports a lost connection or an undeliverable send.
	EventError
)

// CommEvent is something that arrived from, or happened to, a peer.
type CommEvent struct {
	Kind   EventKind
	Sender Peer

	// Msg and Raw are set for EventMsg. Raw is the encoded form of Msg.
	Msg NetworkMsg
	Raw []byte

	// Stream is set when the sender waits for a reply on it.
	Stream *transport.Message

	// Err is set for EventError.
	Err error
}

// Config assembles a Comm.
type Config struct {
	Endpoint *transport.Endpoint

	Clock          clock.Clock
	MaxSendRetries int
	RetryWait      time.Duration
	// SessionQueue bounds the sends queued per peer.
	SessionQueue int
	// EventBuffer bounds undelivered events before readers stall.
	EventBuffer int

	Logger *slog.Logger
}

// Comm is the membership-scoped communication core. Sessions exist
// only for members; anyone may connect to us, but a connection from a
// non-member is only used to answer that connection's own requests.
type Comm struct {
	endpoint *transport.Endpoint
	link     linkConfig
	queue    int
	logger   *slog.Logger

	// emitMu guards sends on events against its close.
	emitMu       sync.RWMutex
	events       chan CommEvent
	eventsClosed bool

	ctx    context.Context
	cancel context.CancelFunc
	conns  sync.WaitGroup

	mu       sync.Mutex
	members  map[xorname.Name]Peer
	sessions map[xorname.Name]*PeerSession
	closed   bool
}

// New starts accepting connections on cfg.Endpoint.
func New(cfg Config) (*Comm, error) {
	if cfg.Endpoint == nil {
		return nil, errors.New("comm: Endpoint is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	retries := cfg.MaxSendRetries
	if retries <= 0 {
		retries = DefaultMaxSendRetries
	}
	retryWait := cfg.RetryWait
	if retryWait <= 0 {
		retryWait = DefaultRetryWait
	}
	queue := cfg.SessionQueue
	if queue <= 0 {
		queue = 32
	}
	buffer := cfg.EventBuffer
	if buffer <= 0 {
		buffer = 256
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Comm{
		endpoint: cfg.Endpoint,
		queue:    queue,
		logger:   logger,
		events:   make(chan CommEvent, buffer),
		ctx:      ctx,
		cancel:   cancel,
		members:  make(map[xorname.Name]Peer),
		sessions: make(map[xorname.Name]*PeerSession),
	}
	c.link = linkConfig{
		endpoint:   cfg.Endpoint,
		clock:      clk,
		maxRetries: retries,
		retryWait:  retryWait,
		opened:     c.serve,
		logger:     logger,
	}

	if cfg.Endpoint.Addr() != "" {
		c.conns.Add(1)
		go func() {
			defer c.conns.Done()
			if err := cfg.Endpoint.Serve(ctx, c.accept); err != nil {
				logger.Error("accept loop stopped", "error", err)
			}
		}()
	}
	return c, nil
}

// Events delivers inbound messages and peer errors. It is closed by
// CloseEndpoint.
func (c *Comm) Events() <-chan CommEvent { return c.events }

// Name is our own peer name.
func (c *Comm) Name() xorname.Name { return c.endpoint.Name() }

// Addr is our listen address.
func (c *Comm) Addr() string { return c.endpoint.Addr() }

// SetCommTargets replaces the member set. Sessions to peers that left,
// or whose address changed, are closed; sessions to new members are
// created on first use.
func (c *Comm) SetCommTargets(peers []Peer) {
	next := make(map[xorname.Name]Peer, len(peers))
	for _, peer := range peers {
		next[peer.Name] = peer
	}

	c.mu.Lock()
	var stale []*PeerSession
	for name, session := range c.sessions {
		if peer, ok := next[name]; !ok || peer.Addr != session.Peer().Addr {
			stale = append(stale, session)
			delete(c.sessions, name)
		}
	}
	c.members = next
	c.mu.Unlock()

	for _, session := range stale {
		c.logger.Debug("closing session to departed member", "peer", session.Peer().String())
		session.Close()
	}
}

// Members returns the member set ordered by name.
func (c *Comm) Members() []Peer {
	c.mu.Lock()
	defer c.mu.Unlock()
	peers := make([]Peer, 0, len(c.members))
	for _, peer := range c.members {
		peers = append(peers, peer)
	}
	slices.SortFunc(peers, func(a, b Peer) int { return a.Name.Compare(b.Name) })
	return peers
}

// IsMember reports whether name is in the member set.
func (c *Comm) IsMember(name xorname.Name) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.members[name]
	return ok
}

// session returns the member's session, creating it if needed.
func (c *Comm) session(op string, peer Peer) (*PeerSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, neterr.E(op, neterr.FailedSend, "endpoint closed", transport.ErrClosed)
	}
	member, ok := c.members[peer.Name]
	if !ok {
		return nil, neterr.E(op, neterr.ConnectingToUnknownNode, peer.String(), nil)
	}
	if session := c.sessions[peer.Name]; session != nil {
		return session, nil
	}
	session := newPeerSession(newPeerLink(member, c.link), c.queue, c.logger, c.evict)
	c.sessions[peer.Name] = session
	return session, nil
}

// evict drops a session whose link gave up. The member stays; the next
// send opens a fresh session.
func (c *Comm) evict(session *PeerSession, cause error) {
	c.mu.Lock()
	if c.sessions[session.Peer().Name] == session {
		delete(c.sessions, session.Peer().Name)
	}
	c.mu.Unlock()
	// Close waits for in-flight sends, including the caller.
	go session.Close()
	c.emit(c.ctx, CommEvent{Kind: EventError, Sender: session.Peer(), Err: cause})
}

// SendMsg queues a one-way message to a member.
func (c *Comm) SendMsg(ctx context.Context, peer Peer, id MsgID, wire []byte) (*SendWatcher, error) {
	session, err := c.session("comm.SendMsg", peer)
	if err != nil {
		return nil, err
	}
	return session.Send(ctx, id, wire)
}

// SendAndReturnResponse sends wire to a member on its own stream and
// delivers the response on Events as if the member had sent it. A
// request that drew no response is not an error.
func (c *Comm) SendAndReturnResponse(ctx context.Context, peer Peer, id MsgID, wire []byte) error {
	const op = "comm.SendAndReturnResponse"
	session, err := c.session(op, peer)
	if err != nil {
		return err
	}
	response, err := session.SendWithBiResponse(ctx, id, wire)
	if err != nil {
		if IsRecvError(err) {
			c.logger.Debug("no response from peer", "peer", peer.String(), "msg_id", id.String(), "error", err)
			return nil
		}
		return err
	}
	msg, err := DecodeMsg(response)
	if err != nil {
		return neterr.E(op, neterr.InvalidMsgReceived, "response from "+peer.String(), err)
	}
	if !c.emit(ctx, CommEvent{Kind: EventMsg, Sender: session.Peer(), Msg: msg, Raw: response}) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return neterr.E(op, neterr.FailedSend, "endpoint closed", transport.ErrClosed)
	}
	return nil
}

// Request sends wire to a member on its own stream and returns the raw
// response.
func (c *Comm) Request(ctx context.Context, peer Peer, id MsgID, wire []byte) ([]byte, error) {
	session, err := c.session("comm.Request", peer)
	if err != nil {
		return nil, err
	}
	return session.SendWithBiResponse(ctx, id, wire)
}

// SendAndRespondOnStream sends requests[p] to each member p, waits for
// every reply, and answers stream with the single agreed reply. Fewer
// than expected replies, or replies that differ in any byte, produce
// an error reply for id and dst instead.
func (c *Comm) SendAndRespondOnStream(ctx context.Context, id MsgID, dst Dst, requests map[Peer][]byte, expected int, stream *transport.Message) error {
	type result struct {
		peer  Peer
		reply []byte
		err   error
	}
	results := make(chan result, len(requests))
	for peer, wire := range requests {
		go func() {
			reply, err := c.Request(ctx, peer, id, wire)
			results <- result{peer, reply, err}
		}()
	}

	replies := make([][]byte, 0, len(requests))
	for range requests {
		r := <-results
		if r.err != nil {
			c.logger.Debug("replica did not reply", "peer", r.peer.String(), "msg_id", id.String(), "error", r.err)
			continue
		}
		replies = append(replies, r.reply)
	}

	return stream.Respond(ctx, Quorum(id, dst, replies, expected))
}

// Quorum returns the reply to relay for a fan-out: the common reply
// when at least expected replies arrived and all are byte-equal, and a
// FailedQuorum error reply otherwise.
func Quorum(id MsgID, dst Dst, replies [][]byte, expected int) []byte {
	if len(replies) == 0 || len(replies) < expected {
		return ErrorReply(id, dst, neterr.FailedQuorum,
			fmt.Sprintf("received %d of %d expected replies", len(replies), expected))
	}
	for _, reply := range replies[1:] {
		if !bytes.Equal(reply, replies[0]) {
			return ErrorReply(id, dst, neterr.FailedQuorum, "replicas disagree")
		}
	}
	return replies[0]
}

// CloseEndpoint closes every session, which drops their pending
// watchers, stops accepting connections and closes Events.
func (c *Comm) CloseEndpoint() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	sessions := make([]*PeerSession, 0, len(c.sessions))
	for _, session := range c.sessions {
		sessions = append(sessions, session)
	}
	c.sessions = make(map[xorname.Name]*PeerSession)
	c.mu.Unlock()

	c.cancel()
	for _, session := range sessions {
		session.Close()
	}
	c.endpoint.Close()
	c.conns.Wait()

	c.emitMu.Lock()
	c.eventsClosed = true
	close(c.events)
	c.emitMu.Unlock()
}

// accept handles a connection a peer opened to us.
func (c *Comm) accept(conn *transport.Conn) {
	peer := Peer{Name: conn.RemoteName(), Addr: conn.RemoteAddr()}
	c.mu.Lock()
	member, isMember := c.members[peer.Name]
	c.mu.Unlock()
	if isMember {
		peer = member
		if session, err := c.session("comm.accept", member); err == nil {
			session.Link().Add(conn)
		}
	}
	c.serve(peer, conn)
}

// serve reads conn until it closes. It returns at once; the reader
// runs on its own goroutine.
func (c *Comm) serve(peer Peer, conn *transport.Conn) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conns.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.conns.Done()
		logger := c.logger.With("peer", peer.String())
		for message := range conn.Incoming() {
			msg, err := DecodeMsg(message.Payload)
			if err != nil {
				logger.Warn("dropping undecodable message", "error", err)
				message.Reset(c.ctx)
				continue
			}
			event := CommEvent{Kind: EventMsg, Sender: peer, Msg: msg, Raw: message.Payload}
			if message.ExpectsResponse() {
				event.Stream = message
			}
			if !c.emit(c.ctx, event) {
				conn.Close()
			}
		}
		if err := conn.Err(); err != nil && !errors.Is(err, transport.ErrClosed) && c.ctx.Err() == nil {
			c.emit(c.ctx, CommEvent{Kind: EventError, Sender: peer, Err: err})
		}
	}()
}

// emit reports false if ctx ended or the comm is closing.
func (c *Comm) emit(ctx context.Context, event CommEvent) bool {
	c.emitMu.RLock()
	defer c.emitMu.RUnlock()
	if c.eventsClosed {
		return false
	}
	select {
	case c.events <- event:
		return true
	case <-ctx.Done():
		return false
	case <-c.ctx.Done():
		return false
	}
}
