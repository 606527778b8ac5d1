// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package comm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/safenet-project/safenet/lib/clock"
	"github.com/safenet-project/safenet/lib/keys"
	"github.com/safenet-project/safenet/lib/neterr"
	"github.com/safenet-project/safenet/lib/testutil"
	"github.com/safenet-project/safenet/transport"
)

const wait = 5 * time.Second

type harness struct {
	t       *testing.T
	network *transport.MemoryNetwork
	clock   *clock.FakeClock
}

func newHarness(t *testing.T) *harness {
	return &harness{t: t, network: transport.NewMemoryNetwork(), clock: clock.Fake(time.Unix(0, 0))}
}

type testNode struct {
	comm *Comm
	peer Peer
}

func (h *harness) node(address string) *testNode {
	h.t.Helper()
	keypair, err := keys.Generate()
	if err != nil {
		h.t.Fatalf("Generate() error: %v", err)
	}
	listener, err := h.network.Listen(address)
	if err != nil {
		h.t.Fatalf("Listen() error: %v", err)
	}
	endpoint, err := transport.NewEndpoint(transport.EndpointConfig{
		Keypair:  keypair,
		Listener: listener,
		Dialer:   h.network,
		Logger:   testutil.Logger(h.t),
	})
	if err != nil {
		h.t.Fatalf("NewEndpoint() error: %v", err)
	}
	comm, err := New(Config{Endpoint: endpoint, Clock: h.clock, Logger: testutil.Logger(h.t)})
	if err != nil {
		h.t.Fatalf("New() error: %v", err)
	}
	h.t.Cleanup(comm.CloseEndpoint)
	return &testNode{comm: comm, peer: Peer{Name: keypair.Name(), Addr: address}}
}

func wire(t *testing.T, id MsgID, payload string) []byte {
	t.Helper()
	data, err := NetworkMsg{ID: id, Payload: []byte(payload)}.Encode()
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}
	return data
}

func nextEvent(t *testing.T, n *testNode) CommEvent {
	t.Helper()
	return testutil.RequireReceive(t, n.comm.Events(), wait, "event on %s", n.peer)
}

// respondWith answers every request reaching n with reply.
func respondWith(t *testing.T, n *testNode, reply []byte) {
	go func() {
		for event := range n.comm.Events() {
			if event.Stream != nil {
				event.Stream.Respond(context.Background(), reply)
			}
		}
	}()
}

func TestSendMsg_Delivered(t *testing.T) {
	h := newHarness(t)
	a, b := h.node("a"), h.node("b")
	a.comm.SetCommTargets([]Peer{b.peer})

	watcher, err := a.comm.SendMsg(context.Background(), b.peer, 7, wire(t, 7, "hello"))
	if err != nil {
		t.Fatalf("SendMsg() error: %v", err)
	}
	status, err := watcher.Wait(context.Background())
	if err != nil || status != Sent {
		t.Fatalf("Wait() = %v, %v; want Sent", status, err)
	}

	event := nextEvent(t, b)
	if event.Kind != EventMsg || event.Msg.ID != 7 || string(event.Msg.Payload) != "hello" {
		t.Fatalf("event = %+v", event)
	}
	if event.Sender.Name != a.peer.Name || event.Stream != nil {
		t.Fatalf("sender = %v stream = %v", event.Sender, event.Stream)
	}
}

func TestSendMsg_UnknownNode(t *testing.T) {
	h := newHarness(t)
	a, b := h.node("a"), h.node("b")

	_, err := a.comm.SendMsg(context.Background(), b.peer, 1, wire(t, 1, "x"))
	if !errors.Is(err, neterr.ConnectingToUnknownNode) {
		t.Fatalf("SendMsg() error = %v, want ConnectingToUnknownNode", err)
	}
	if err := a.comm.SendAndReturnResponse(context.Background(), b.peer, 1, wire(t, 1, "x")); !errors.Is(err, neterr.ConnectingToUnknownNode) {
		t.Fatalf("SendAndReturnResponse() error = %v, want ConnectingToUnknownNode", err)
	}
	if dials := h.network.Dials("b"); dials != 0 {
		t.Fatalf("Dials(b) = %d, want no network I/O", dials)
	}
}

func TestSendMsg_MaxRetriesEvicts(t *testing.T) {
	h := newHarness(t)
	a, b := h.node("a"), h.node("b")
	a.comm.SetCommTargets([]Peer{b.peer})
	h.network.SetUnreachable("b", true)

	watcher, err := a.comm.SendMsg(context.Background(), b.peer, 2, wire(t, 2, "x"))
	if err != nil {
		t.Fatalf("SendMsg() error: %v", err)
	}
	for range DefaultMaxSendRetries {
		h.clock.WaitForTimers(1)
		if got := watcher.Status(); got != TransientError {
			t.Fatalf("status during retry = %v, want TransientError", got)
		}
		h.clock.Advance(DefaultRetryWait)
	}
	if status, _ := watcher.Wait(context.Background()); status != MaxRetriesReached {
		t.Fatalf("final status = %v, want MaxRetriesReached", status)
	}
	if dials := h.network.Dials("b"); dials != DefaultMaxSendRetries+1 {
		t.Fatalf("Dials(b) = %d, want %d", dials, DefaultMaxSendRetries+1)
	}

	event := nextEvent(t, a)
	if event.Kind != EventError || event.Sender.Name != b.peer.Name || !errors.Is(event.Err, neterr.FailedSend) {
		t.Fatalf("event = %+v, want FailedSend error for b", event)
	}

	// The member survives eviction; a later send gets a new session.
	h.network.SetUnreachable("b", false)
	watcher, err = a.comm.SendMsg(context.Background(), b.peer, 3, wire(t, 3, "y"))
	if err != nil {
		t.Fatalf("SendMsg() after eviction error: %v", err)
	}
	if status, _ := watcher.Wait(context.Background()); status != Sent {
		t.Fatalf("status after eviction = %v, want Sent", status)
	}
}

func TestSendMsg_RetryRecovers(t *testing.T) {
	h := newHarness(t)
	a, b := h.node("a"), h.node("b")
	a.comm.SetCommTargets([]Peer{b.peer})
	h.network.SetUnreachable("b", true)

	watcher, err := a.comm.SendMsg(context.Background(), b.peer, 4, wire(t, 4, "late"))
	if err != nil {
		t.Fatalf("SendMsg() error: %v", err)
	}
	h.clock.WaitForTimers(1)
	h.network.SetUnreachable("b", false)
	h.clock.Advance(DefaultRetryWait)

	if status, _ := watcher.Wait(context.Background()); status != Sent {
		t.Fatalf("status = %v, want Sent", status)
	}
	if event := nextEvent(t, b); string(event.Msg.Payload) != "late" {
		t.Fatalf("payload = %q", event.Msg.Payload)
	}
}

func TestSetCommTargets_ClosesDepartedSessions(t *testing.T) {
	h := newHarness(t)
	a, b, c := h.node("a"), h.node("b"), h.node("c")
	a.comm.SetCommTargets([]Peer{b.peer, c.peer})

	watcher, err := a.comm.SendMsg(context.Background(), b.peer, 5, wire(t, 5, "x"))
	if err != nil {
		t.Fatalf("SendMsg() error: %v", err)
	}
	watcher.Wait(context.Background())
	a.comm.mu.Lock()
	link := a.comm.sessions[b.peer.Name].Link()
	a.comm.mu.Unlock()
	if !link.HasConnections() {
		t.Fatal("link has no connection after a send")
	}

	a.comm.SetCommTargets([]Peer{c.peer})
	if link.HasConnections() {
		t.Fatal("departed member's link still has connections")
	}
	if _, err := a.comm.SendMsg(context.Background(), b.peer, 6, wire(t, 6, "x")); !errors.Is(err, neterr.ConnectingToUnknownNode) {
		t.Fatalf("SendMsg() to departed member error = %v", err)
	}
	if members := a.comm.Members(); len(members) != 1 || members[0] != c.peer {
		t.Fatalf("Members() = %v", members)
	}
}

func TestSendAndReturnResponse(t *testing.T) {
	h := newHarness(t)
	a, b := h.node("a"), h.node("b")
	a.comm.SetCommTargets([]Peer{b.peer})
	respondWith(t, b, wire(t, 9, "pong"))

	if err := a.comm.SendAndReturnResponse(context.Background(), b.peer, 9, wire(t, 9, "ping")); err != nil {
		t.Fatalf("SendAndReturnResponse() error: %v", err)
	}
	event := nextEvent(t, a)
	if event.Kind != EventMsg || event.Sender != b.peer || string(event.Msg.Payload) != "pong" {
		t.Fatalf("event = %+v", event)
	}
}

func TestSendAndReturnResponse_NoResponseTolerated(t *testing.T) {
	h := newHarness(t)
	a, b := h.node("a"), h.node("b")
	a.comm.SetCommTargets([]Peer{b.peer})
	go func() {
		for event := range b.comm.Events() {
			if event.Stream != nil {
				event.Stream.Reset(context.Background())
			}
		}
	}()

	if err := a.comm.SendAndReturnResponse(context.Background(), b.peer, 10, wire(t, 10, "ping")); err != nil {
		t.Fatalf("SendAndReturnResponse() error: %v", err)
	}
	testutil.RequireNone(t, a.comm.Events(), 50*time.Millisecond, "no event without a response")
}

func TestSendAndReturnResponse_InvalidResponse(t *testing.T) {
	h := newHarness(t)
	a, b := h.node("a"), h.node("b")
	a.comm.SetCommTargets([]Peer{b.peer})
	respondWith(t, b, []byte{0xff, 0x00})

	err := a.comm.SendAndReturnResponse(context.Background(), b.peer, 11, wire(t, 11, "ping"))
	if !errors.Is(err, neterr.InvalidMsgReceived) {
		t.Fatalf("SendAndReturnResponse() error = %v, want InvalidMsgReceived", err)
	}
}

func TestSendAndRespondOnStream(t *testing.T) {
	tests := []struct {
		name        string
		replies     []string // "" marks an unreachable replica
		expected    int
		wantPayload string
	}{
		{"all agree", []string{"A", "A", "A"}, 3, "A"},
		{"one diverges", []string{"A", "A", "B"}, 3, ""},
		{"one missing", []string{"A", "A", ""}, 3, ""},
		{"fewer expected", []string{"A", "A", ""}, 2, "A"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			h := newHarness(t)
			client, entry := h.node("client"), h.node("entry")

			requests := make(map[Peer][]byte)
			var replicas []Peer
			for i, reply := range test.replies {
				replica := h.node(string(rune('p' + i)))
				replicas = append(replicas, replica.peer)
				requests[replica.peer] = wire(t, 20, "query")
				if reply == "" {
					h.network.SetUnreachable(replica.peer.Addr, true)
					continue
				}
				respondWith(t, replica, []byte(reply))
			}
			entry.comm.SetCommTargets(replicas)
			client.comm.SetCommTargets([]Peer{entry.peer})

			dst := Dst{Name: entry.peer.Name}
			go func() {
				for event := range entry.comm.Events() {
					if event.Stream == nil {
						continue
					}
					entry.comm.SendAndRespondOnStream(context.Background(), event.Msg.ID, dst, requests, test.expected, event.Stream)
				}
			}()

			// Unreachable replicas run through their retry waits.
			go func() {
				for range DefaultMaxSendRetries {
					h.clock.WaitForTimers(1)
					h.clock.Advance(DefaultRetryWait)
				}
			}()

			reply, err := client.comm.Request(context.Background(), entry.peer, 20, wire(t, 20, "query"))
			if err != nil {
				t.Fatalf("Request() error: %v", err)
			}
			if test.wantPayload != "" {
				if string(reply) != test.wantPayload {
					t.Fatalf("reply = %q, want %q", reply, test.wantPayload)
				}
				return
			}
			msg, err := DecodeMsg(reply)
			if err != nil {
				t.Fatalf("DecodeMsg() error: %v", err)
			}
			if msg.ID != 20 || msg.Error == nil || msg.Error.Kind != string(neterr.FailedQuorum) || msg.Dst != dst {
				t.Fatalf("reply = %+v, want FailedQuorum error for msg 20", msg)
			}
		})
	}
}

func TestQuorum(t *testing.T) {
	dst := Dst{}
	a, b := []byte("A"), []byte("B")
	failed := ErrorReply(1, dst, neterr.FailedQuorum, "replicas disagree")

	if got := Quorum(1, dst, [][]byte{a, a, a}, 3); string(got) != "A" {
		t.Fatalf("Quorum(A,A,A) = %q", got)
	}
	if got := Quorum(1, dst, [][]byte{a, a, b}, 3); string(got) != string(failed) {
		t.Fatal("Quorum(A,A,B) did not return the error reply")
	}
	for _, replies := range [][][]byte{{a, a}, nil} {
		msg, err := DecodeMsg(Quorum(1, dst, replies, 3))
		if err != nil || msg.Error == nil || msg.Error.Kind != "FailedQuorum" {
			t.Fatalf("Quorum(%d replies) = %+v, %v", len(replies), msg, err)
		}
	}
	// Identical inputs give identical error bytes on every node.
	if string(Quorum(1, dst, [][]byte{a, b}, 2)) != string(Quorum(1, dst, [][]byte{b, a}, 2)) {
		t.Fatal("error replies differ for the same request")
	}
}

func TestCloseEndpoint_DropsWatchers(t *testing.T) {
	h := newHarness(t)
	a, b := h.node("a"), h.node("b")
	a.comm.SetCommTargets([]Peer{b.peer})
	h.network.SetUnreachable("b", true)

	watcher, err := a.comm.SendMsg(context.Background(), b.peer, 30, wire(t, 30, "x"))
	if err != nil {
		t.Fatalf("SendMsg() error: %v", err)
	}
	h.clock.WaitForTimers(1)
	a.comm.CloseEndpoint()

	if status, _ := watcher.Wait(context.Background()); status != WatcherDropped {
		t.Fatalf("status = %v, want WatcherDropped", status)
	}
	testutil.RequireClosed(t, a.comm.Events(), wait, "events closed")
	if _, err := a.comm.SendMsg(context.Background(), b.peer, 31, wire(t, 31, "x")); !errors.Is(err, neterr.FailedSend) {
		t.Fatalf("SendMsg() after close error = %v, want FailedSend", err)
	}
}

func TestInboundFromMemberReusedForReplies(t *testing.T) {
	h := newHarness(t)
	a, b := h.node("a"), h.node("b")
	a.comm.SetCommTargets([]Peer{b.peer})
	b.comm.SetCommTargets([]Peer{a.peer})

	watcher, _ := a.comm.SendMsg(context.Background(), b.peer, 40, wire(t, 40, "first"))
	watcher.Wait(context.Background())
	nextEvent(t, b)

	// b answers over the connection a opened, so no dial to a happens.
	watcher, err := b.comm.SendMsg(context.Background(), a.peer, 41, wire(t, 41, "reply"))
	if err != nil {
		t.Fatalf("SendMsg() error: %v", err)
	}
	if status, _ := watcher.Wait(context.Background()); status != Sent {
		t.Fatalf("status = %v, want Sent", status)
	}
	if event := nextEvent(t, a); string(event.Msg.Payload) != "reply" {
		t.Fatalf("payload = %q", event.Msg.Payload)
	}
	if dials := h.network.Dials("a"); dials != 0 {
		t.Fatalf("Dials(a) = %d, want 0", dials)
	}
}
