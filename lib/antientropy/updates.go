// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package antientropy

import (
	"context"
	"time"

	"github.com/safenet-project/safenet/lib/clock"
	"github.com/safenet-project/safenet/lib/neterr"
	"github.com/safenet-project/safenet/lib/section"
)

// DefaultUpdateInterval separates periodic Update broadcasts.
const DefaultUpdateInterval = 30 * time.Second

// UpdateMessage returns an Update carrying our section's authority
// with its full chain from genesis.
func (k *Knowledge) UpdateMessage() (Message, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.our == nil {
		return Message{}, neterr.E("antientropy.UpdateMessage", neterr.InvalidInput, "no section of our own", nil)
	}
	chain, err := k.tree.DAG().PartialDAG(k.tree.Genesis(), k.our.SAP.Key)
	if err != nil {
		return Message{}, err
	}
	return Message{Kind: Update, Authority: section.NewUpdate(*k.our, chain)}, nil
}

// RunUpdates calls broadcast with a fresh Update every interval until
// ctx ends.
func (k *Knowledge) RunUpdates(ctx context.Context, clk clock.Clock, interval time.Duration, broadcast func(context.Context, Message)) {
	if interval <= 0 {
		interval = DefaultUpdateInterval
	}
	ticker := clk.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			message, err := k.UpdateMessage()
			if err != nil {
				k.logger.Warn("cannot build section update", "error", err)
				continue
			}
			broadcast(ctx, message)
		}
	}
}
