// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package nodetest runs sections of nodes on an in-memory network for
// tests of code that talks to them.
package nodetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/safenet-project/safenet/comm"
	"github.com/safenet-project/safenet/lib/antientropy"
	"github.com/safenet-project/safenet/lib/keys"
	"github.com/safenet-project/safenet/lib/registerstore"
	"github.com/safenet-project/safenet/lib/section"
	"github.com/safenet-project/safenet/lib/section/sectiontest"
	"github.com/safenet-project/safenet/lib/testutil"
	"github.com/safenet-project/safenet/node"
	"github.com/safenet-project/safenet/transport"
)

const stopTimeout = 5 * time.Second

// Cluster is a set of would-be members sharing one in-memory network
// and one genesis key.
type Cluster struct {
	t        testing.TB
	Network  *transport.MemoryNetwork
	Sections *sectiontest.Network
	Keypairs []*keys.Keypair
	Members  []section.Member
}

// NewCluster prepares one member per entry of prefixes, named under
// that prefix and listening on "node-<index>".
func NewCluster(t testing.TB, prefixes ...string) *Cluster {
	t.Helper()
	c := &Cluster{t: t, Network: transport.NewMemoryNetwork(), Sections: sectiontest.New(t)}
	for i, bits := range prefixes {
		keypair := sectiontest.KeypairIn(t, bits)
		c.Keypairs = append(c.Keypairs, keypair)
		c.Members = append(c.Members, section.Member{Name: keypair.Name(), Addr: fmt.Sprintf("node-%d", i)})
	}
	return c
}

// Node is a running member.
type Node struct {
	*node.Node
	Comm      *comm.Comm
	Store     *registerstore.Store
	Knowledge *antientropy.Knowledge
	Member    section.Member
}

// Start runs member index with a tree holding saps, the last of which
// is its own section. The node stops when the test ends.
func (c *Cluster) Start(index int, saps ...section.SignedSAP) *Node {
	t := c.t
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	member := c.Members[index]
	logger := testutil.Logger(t).With("test_node", index)

	listener, err := c.Network.Listen(member.Addr)
	if err != nil {
		t.Fatalf("Listen() error: %v", err)
	}
	endpoint, err := transport.NewEndpoint(transport.EndpointConfig{
		Keypair:  c.Keypairs[index],
		Listener: listener,
		Dialer:   c.Network,
		Logger:   logger,
	})
	if err != nil {
		t.Fatalf("NewEndpoint() error: %v", err)
	}
	communication, err := comm.New(comm.Config{Endpoint: endpoint, RetryWait: 10 * time.Millisecond, Logger: logger})
	if err != nil {
		t.Fatalf("comm.New() error: %v", err)
	}
	our := saps[len(saps)-1]
	knowledge, err := antientropy.New(antientropy.Config{
		Tree:   c.Sections.Tree(saps...),
		Self:   member.Name,
		Our:    &our,
		Logger: logger,
	})
	if err != nil {
		t.Fatalf("antientropy.New() error: %v", err)
	}
	store, err := registerstore.Open(ctx, registerstore.Config{Root: t.TempDir(), Logger: logger})
	if err != nil {
		t.Fatalf("registerstore.Open() error: %v", err)
	}
	n, err := node.New(node.Config{
		Comm:           communication,
		Knowledge:      knowledge,
		Store:          store,
		UpdateInterval: time.Hour,
		RequestTimeout: stopTimeout,
		Logger:         logger,
	})
	if err != nil {
		t.Fatalf("node.New() error: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- n.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		communication.CloseEndpoint()
		testutil.RequireReceive(t, done, stopTimeout, "node %d stops", index)
		store.Close()
	})
	return &Node{Node: n, Comm: communication, Store: store, Knowledge: knowledge, Member: member}
}

// StartSection signs one section authority over every member and
// starts them all under it.
func (c *Cluster) StartSection() (section.SignedSAP, []*Node) {
	c.t.Helper()
	sap := c.Sections.SAP("", c.Sections.Genesis, 0, c.Members)
	nodes := make([]*Node, len(c.Members))
	for i := range nodes {
		nodes[i] = c.Start(i, sap)
	}
	return sap, nodes
}
