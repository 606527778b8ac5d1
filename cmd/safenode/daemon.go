// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/safenet-project/safenet/comm"
	"github.com/safenet-project/safenet/lib/antientropy"
	"github.com/safenet-project/safenet/lib/registerstore"
	"github.com/safenet-project/safenet/lib/service"
	"github.com/safenet-project/safenet/node"
	"github.com/safenet-project/safenet/transport"
)

// daemon owns everything a running node holds open.
type daemon struct {
	node      *node.Node
	comm      *comm.Comm
	store     *registerstore.Store
	knowledge *antientropy.Knowledge
	treePath  string
	logger    *slog.Logger
}

// newDaemon assembles the node from bootstrap state. It takes
// ownership of listener.
func newDaemon(ctx context.Context, boot *service.BootstrapResult, listener transport.Listener, dialer transport.Dialer) (*daemon, error) {
	cfg := boot.Config
	logger := boot.Logger

	self := boot.Keypair.Name()
	for _, member := range boot.Our.SAP.Members {
		if member.Name == self && member.Addr != cfg.AdvertiseAddr() {
			logger.Warn("section lists a different address for this node",
				"section_addr", member.Addr,
				"advertise", cfg.AdvertiseAddr(),
			)
		}
	}

	store, err := registerstore.Open(ctx, registerstore.Config{
		Root:        cfg.Paths.Registers,
		PoolSize:    cfg.Storage.PoolSize,
		Compression: cfg.Storage.Compression,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("opening register store: %w", err)
	}

	our := boot.Our
	knowledge, err := antientropy.New(antientropy.Config{
		Tree:           boot.Tree,
		Self:           self,
		Our:            &our,
		ClosestTTL:     cfg.AntiEntropy.ClosestCacheTTL,
		ResendInterval: cfg.AntiEntropy.ResendInterval,
		ResendBurst:    cfg.AntiEntropy.ResendBurst,
		Logger:         logger,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	endpoint, err := transport.NewEndpoint(transport.EndpointConfig{
		Keypair:  boot.Keypair,
		Listener: listener,
		Dialer:   dialer,
		Logger:   logger,
	})
	if err != nil {
		store.Close()
		return nil, err
	}
	communication, err := comm.New(comm.Config{
		Endpoint:       endpoint,
		Clock:          boot.Clock,
		MaxSendRetries: cfg.Comm.MaxSendRetries,
		RetryWait:      cfg.Comm.RetryWait,
		SessionQueue:   cfg.Comm.SessionQueue,
		EventBuffer:    cfg.Comm.EventBuffer,
		Logger:         logger,
	})
	if err != nil {
		endpoint.Close()
		store.Close()
		return nil, err
	}

	n, err := node.New(node.Config{
		Comm:           communication,
		Knowledge:      knowledge,
		Store:          store,
		Clock:          boot.Clock,
		ReplicaCount:   cfg.Replication.ReplicaCount,
		RequestTimeout: cfg.Replication.RequestTimeout,
		UpdateInterval: cfg.AntiEntropy.UpdateInterval,
		Logger:         logger,
	})
	if err != nil {
		communication.CloseEndpoint()
		store.Close()
		return nil, err
	}

	return &daemon{
		node:      n,
		comm:      communication,
		store:     store,
		knowledge: knowledge,
		treePath:  cfg.Paths.SectionTree,
		logger:    logger,
	}, nil
}

// run serves until ctx is cancelled or the section drops the node,
// then closes everything and persists the section tree learned while
// running.
func (d *daemon) run(ctx context.Context) error {
	stats := d.knowledge.Stats()
	d.logger.Info("safenode starting",
		"name", d.node.Name().String(),
		"addr", d.comm.Addr(),
		"known_members", stats.KnownMembers,
		"estimated_members", stats.TotalMembers,
	)

	runErr := d.node.Run(ctx)
	d.comm.CloseEndpoint()

	if err := d.knowledge.WriteFile(d.treePath); err != nil {
		d.logger.Error("failed to persist section tree", "path", d.treePath, "error", err)
	} else {
		d.logger.Info("section tree saved", "path", d.treePath)
	}
	if err := d.store.Close(); err != nil {
		d.logger.Error("failed to close register store", "error", err)
	}

	if runErr != nil {
		d.logger.Error("node stopped", "error", runErr)
		return runErr
	}
	d.logger.Info("safenode stopped")
	return nil
}
