// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package antientropy

import (
	"log/slog"
	"slices"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/safenet-project/safenet/lib/keys"
	"github.com/safenet-project/safenet/lib/neterr"
	"github.com/safenet-project/safenet/lib/section"
	"github.com/safenet-project/safenet/lib/xorname"
)

const (
	// DefaultClosestTTL bounds how long a closest-section answer is
	// reused without a tree change.
	DefaultClosestTTL = 30 * time.Second

	// DefaultResendInterval and DefaultResendBurst shape the per-peer
	// resend limiter.
	DefaultResendInterval = 200 * time.Millisecond
	DefaultResendBurst    = 5

	backoffIdle = 5 * time.Minute
)

// Config assembles Knowledge.
type Config struct {
	// Tree is the starting section tree. Knowledge takes ownership.
	Tree *section.Tree

	// Self is our own name. Nodes also set Our, the authority of the
	// section they belong to, which must already be in Tree.
	Self xorname.Name
	Our  *section.SignedSAP

	ClosestTTL     time.Duration
	ResendInterval time.Duration
	ResendBurst    int

	Logger *slog.Logger
}

// Change describes the effect of one accepted authority.
type Change struct {
	// Updated is false when the authority was already known or stale.
	Updated bool

	// Ours is set when the authority is for our own section. Joined
	// and Left then list the member differences.
	Ours   bool
	Joined []section.Member
	Left   []section.Member

	// Rejoin is set on the single change that removed us.
	Rejoin bool
}

// Knowledge is a peer's view of the network's sections. It is safe for
// concurrent use.
type Knowledge struct {
	self   xorname.Name
	logger *slog.Logger

	mu   sync.RWMutex
	tree *section.Tree
	our  *section.SignedSAP

	closest *gocache.Cache
	backoff *gocache.Cache

	resendEvery rate.Limit
	resendBurst int

	rejoinOnce sync.Once
	rejoin     chan struct{}
}

// New builds Knowledge from cfg.
func New(cfg Config) (*Knowledge, error) {
	if cfg.Tree == nil {
		return nil, neterr.E("antientropy.New", neterr.InvalidInput, "section tree is required", nil)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Our != nil {
		held, ok := cfg.Tree.Get(cfg.Our.SAP.Prefix)
		if !ok || !held.Equal(*cfg.Our) {
			return nil, neterr.E("antientropy.New", neterr.InvalidInput,
				"our section authority "+cfg.Our.SAP.String()+" is not in the section tree", nil)
		}
		if !cfg.Our.SAP.Prefix.Matches(cfg.Self) {
			return nil, neterr.E("antientropy.New", neterr.InvalidInput, "our prefix does not match our name", nil)
		}
	}
	ttl := cfg.ClosestTTL
	if ttl <= 0 {
		ttl = DefaultClosestTTL
	}
	interval := cfg.ResendInterval
	if interval <= 0 {
		interval = DefaultResendInterval
	}
	burst := cfg.ResendBurst
	if burst <= 0 {
		burst = DefaultResendBurst
	}
	cfg.Tree.SetLogger(logger)
	return &Knowledge{
		self:        cfg.Self,
		logger:      logger,
		tree:        cfg.Tree,
		our:         cfg.Our,
		closest:     gocache.New(ttl, 2*ttl),
		backoff:     gocache.New(backoffIdle, backoffIdle),
		resendEvery: rate.Every(interval),
		resendBurst: burst,
		rejoin:      make(chan struct{}),
	}, nil
}

// Self is our own name.
func (k *Knowledge) Self() xorname.Name { return k.self }

// Tree returns a copy of the section tree.
func (k *Knowledge) Tree() *section.Tree {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.tree.Clone()
}

// Our returns our section's authority. It reports false for clients.
func (k *Knowledge) Our() (section.SignedSAP, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.our == nil {
		return section.SignedSAP{}, false
	}
	return *k.our, true
}

// SectionKey is our section's current key.
func (k *Knowledge) SectionKey() (keys.PublicKey, bool) {
	our, ok := k.Our()
	return our.SAP.Key, ok
}

// Members returns our section's members.
func (k *Knowledge) Members() []section.Member {
	our, ok := k.Our()
	if !ok {
		return nil
	}
	return slices.Clone(our.SAP.Members)
}

// SectionFor returns the section responsible for name.
func (k *Knowledge) SectionFor(name xorname.Name) (section.SAP, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.tree.SectionByName(name)
}

// Closest returns the known section whose prefix is closest to name.
func (k *Knowledge) Closest(name xorname.Name) (section.SignedSAP, error) {
	if cached, ok := k.closest.Get(name.Hex()); ok {
		return cached.(section.SignedSAP), nil
	}
	k.mu.RLock()
	signed, ok := k.tree.Closest(name, nil)
	k.mu.RUnlock()
	if !ok {
		return section.SignedSAP{}, neterr.E("antientropy.Closest", neterr.NoMatchingSection, name.String(), nil)
	}
	k.closest.Set(name.Hex(), signed, gocache.DefaultExpiration)
	return signed, nil
}

// Stats estimates the network size.
func (k *Knowledge) Stats() section.NetworkStats {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.our != nil {
		return k.tree.NetworkStats(k.our.SAP)
	}
	saps := k.tree.All()
	if len(saps) == 0 {
		return section.NetworkStats{}
	}
	return k.tree.NetworkStats(saps[0])
}

// WriteFile persists the section tree.
func (k *Knowledge) WriteFile(path string) error {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.tree.WriteFile(path)
}

// RejoinRequired is closed once an accepted authority for our section
// no longer lists us.
func (k *Knowledge) RejoinRequired() <-chan struct{} { return k.rejoin }

// Integrate verifies u against the tree and records it. Invalid
// authorities are returned as errors and leave the tree unchanged.
func (k *Knowledge) Integrate(u section.Update) (Change, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	updated, err := k.tree.Update(u)
	if err != nil || !updated {
		return Change{}, err
	}
	k.closest.Flush()

	change := Change{Updated: true}
	sap := u.SAP.SAP
	if k.our == nil || !sap.Prefix.Matches(k.self) {
		k.logger.Debug("section authority updated", "prefix", sap.Prefix.String(), "section_key", sap.Key.String())
		return change, nil
	}
	held, ok := k.tree.Get(sap.Prefix)
	if !ok || !held.Equal(u.SAP) {
		return change, nil
	}

	previous := k.our.SAP
	change.Ours = true
	for _, member := range sap.Members {
		if !previous.HasMember(member.Name) {
			change.Joined = append(change.Joined, member)
		}
	}
	for _, member := range previous.Members {
		if !sap.HasMember(member.Name) {
			change.Left = append(change.Left, member)
		}
	}
	our := u.SAP
	k.our = &our
	k.logger.Info("our section authority changed",
		"prefix", sap.Prefix.String(),
		"section_key", sap.Key.String(),
		"generation", sap.Generation,
		"joined", len(change.Joined),
		"left", len(change.Left),
	)

	if previous.HasMember(k.self) && !sap.HasMember(k.self) {
		k.rejoinOnce.Do(func() {
			change.Rejoin = true
			k.logger.Error("removed from our section", "prefix", sap.Prefix.String())
			close(k.rejoin)
		})
	}
	return change, nil
}

// proofChain returns the chain from the sender's key down to key, or
// from genesis when the sender's key is unknown or not an ancestor.
// Callers hold k.mu.
func (k *Knowledge) proofChain(from, to keys.PublicKey) (*section.DAG, error) {
	dag := k.tree.DAG()
	if dag.HasKey(from) {
		if chain, err := dag.PartialDAG(from, to); err == nil {
			return chain, nil
		}
	}
	return dag.PartialDAG(dag.Genesis(), to)
}

// limiter returns peer's resend limiter.
func (k *Knowledge) limiter(peer xorname.Name) *rate.Limiter {
	key := peer.Hex()
	if cached, ok := k.backoff.Get(key); ok {
		return cached.(*rate.Limiter)
	}
	limiter := rate.NewLimiter(k.resendEvery, k.resendBurst)
	if err := k.backoff.Add(key, limiter, gocache.DefaultExpiration); err != nil {
		if cached, ok := k.backoff.Get(key); ok {
			return cached.(*rate.Limiter)
		}
	}
	return limiter
}
