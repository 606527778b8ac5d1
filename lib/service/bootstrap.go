// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/safenet-project/safenet/lib/clock"
	"github.com/safenet-project/safenet/lib/config"
	"github.com/safenet-project/safenet/lib/keys"
	"github.com/safenet-project/safenet/lib/section"
)

// PassphraseEnvVar names the environment variable holding the
// passphrase the node secret key is sealed under. Unset keeps the key
// unencrypted.
const PassphraseEnvVar = "SAFENET_KEY_PASSPHRASE"

// CommonFlags holds the flag values shared by all safenet daemons.
// Call [RegisterCommonFlags] to bind these to the default flag set
// before calling flag.Parse.
type CommonFlags struct {
	ConfigPath  string
	ShowVersion bool
}

// RegisterCommonFlags binds [CommonFlags] fields to the default flag
// set with standard names, defaults, and help text.
func RegisterCommonFlags(flags *CommonFlags) {
	flag.StringVar(&flags.ConfigPath, "config", "", "path to the node config file (default: $"+config.EnvVar+")")
	flag.BoolVar(&flags.ShowVersion, "version", false, "print version information and exit")
}

// BootstrapConfig controls the [Bootstrap] process.
type BootstrapConfig struct {
	// Flags are the parsed common flag values.
	Flags CommonFlags

	// Logger is used for bootstrap output. If nil, Bootstrap creates
	// one with [NewLogger] at the configured level.
	Logger *slog.Logger

	// Clock defaults to the real clock.
	Clock clock.Clock
}

// BootstrapResult holds the state produced by [Bootstrap].
type BootstrapResult struct {
	Config *config.Config

	// Keypair is the node identity. Its name is the node's name.
	Keypair *keys.Keypair

	// GeneratedKey reports whether Keypair was created on this start.
	GeneratedKey bool

	Contacts section.Contacts

	// Tree is the persisted section tree, trusting the contacts'
	// genesis key.
	Tree *section.Tree

	// Our is the authority of the section this node is a member of.
	Our section.SignedSAP

	Clock  clock.Clock
	Logger *slog.Logger
}

// Bootstrap performs the common startup sequence for a node:
//
//  1. Load the config file named by --config or SAFENET_CONFIG
//  2. Validate it and create the configured directories
//  3. Load the node keypair, generating one on first start
//  4. Read the network contacts and check the genesis key
//  5. Read the persisted section tree and find our section in it
//
// A node that is not a member of any section in its tree cannot
// start; joining is not automatic.
func Bootstrap(cfg BootstrapConfig) (*BootstrapResult, error) {
	flags := cfg.Flags

	var (
		conf *config.Config
		err  error
	)
	if flags.ConfigPath != "" {
		conf, err = config.LoadFile(flags.ConfigPath)
	} else {
		conf, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := conf.EnsurePaths(); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = NewLogger(conf.Log.SlogLevel())
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}

	keypair, generated, err := keys.LoadOrGenerate(conf.Paths.Keys, os.Getenv(PassphraseEnvVar))
	if err != nil {
		return nil, fmt.Errorf("loading node keypair from %s: %w", conf.Paths.Keys, err)
	}
	if generated {
		logger.Info("generated node keypair", "name", keypair.Name().String(), "keys", conf.Paths.Keys)
	}

	contacts, err := section.ReadContacts(conf.Network.Contacts)
	if err != nil {
		return nil, err
	}
	if conf.Network.GenesisKey != "" {
		configured, err := keys.ParsePublicKey(conf.Network.GenesisKey)
		if err != nil {
			return nil, fmt.Errorf("network.genesis_key: %w", err)
		}
		if configured != contacts.GenesisKey {
			return nil, fmt.Errorf("network.genesis_key %s does not match contacts genesis key %s", configured, contacts.GenesisKey)
		}
	}

	tree, err := section.ReadFile(conf.Paths.SectionTree)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("no section tree at %s: a node starts from a tree in which it is a section member", conf.Paths.SectionTree)
	}
	if err != nil {
		return nil, fmt.Errorf("reading section tree: %w", err)
	}
	if tree.Genesis() != contacts.GenesisKey {
		return nil, fmt.Errorf("section tree genesis %s does not match contacts genesis key %s", tree.Genesis(), contacts.GenesisKey)
	}

	our, err := OurSection(tree, keypair)
	if err != nil {
		return nil, err
	}

	logger.Info("bootstrap complete",
		"name", keypair.Name().String(),
		"prefix", our.SAP.Prefix.String(),
		"section_key", our.SAP.Key.String(),
		"members", len(our.SAP.Members),
		"contacts", len(contacts.Peers),
	)

	return &BootstrapResult{
		Config:       conf,
		Keypair:      keypair,
		GeneratedKey: generated,
		Contacts:     contacts,
		Tree:         tree,
		Our:          our,
		Clock:        clk,
		Logger:       logger,
	}, nil
}

// OurSection returns the authority in tree of the section keypair's
// name belongs to, provided that section lists it as a member.
func OurSection(tree *section.Tree, keypair *keys.Keypair) (section.SignedSAP, error) {
	name := keypair.Name()
	sap, err := tree.SectionByName(name)
	if err != nil {
		return section.SignedSAP{}, fmt.Errorf("finding section of %s: %w", name, err)
	}
	if !sap.HasMember(name) {
		return section.SignedSAP{}, fmt.Errorf("node %s is not a member of section %s", name, sap.Prefix)
	}
	signed, ok := tree.Get(sap.Prefix)
	if !ok {
		return section.SignedSAP{}, fmt.Errorf("section tree lost prefix %s", sap.Prefix)
	}
	return signed, nil
}

// NewLogger creates the standard daemon logger: a JSON handler writing
// to stderr at level. It also sets the default slog logger so that
// third-party code using slog.Info etc. gets the same handler.
func NewLogger(level slog.Level) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	return logger
}
