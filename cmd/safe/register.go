// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/pflag"

	"github.com/safenet-project/safenet/client"
	"github.com/safenet-project/safenet/cmd/safe/cli"
	"github.com/safenet-project/safenet/lib/keys"
	"github.com/safenet-project/safenet/lib/register"
	"github.com/safenet-project/safenet/lib/safeurl"
	"github.com/safenet-project/safenet/lib/section"
	"github.com/safenet-project/safenet/lib/service"
	"github.com/safenet-project/safenet/lib/xorname"
)

// networkFlags is the flag group shared by every command that talks to
// running nodes.
type networkFlags struct {
	tree        string
	keys        string
	timeout     time.Duration
	dialTimeout time.Duration
	verbose     bool
}

func (f *networkFlags) AddFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&f.tree, "tree", "section-tree", "section tree file; updated with what the network reports")
	flagSet.StringVar(&f.keys, "keys", "", "key directory to sign with (a throwaway key if empty)")
	flagSet.DurationVar(&f.timeout, "timeout", client.DefaultTimeout, "deadline for each request")
	flagSet.DurationVar(&f.dialTimeout, "dial-timeout", 10*time.Second, "deadline for connecting to a node")
	flagSet.BoolVarP(&f.verbose, "verbose", "v", false, "log redirects and peer failures")
}

// session is a connected client plus the tree file it writes back to.
type session struct {
	client   *client.Client
	treePath string
	logger   *slog.Logger
}

func (f *networkFlags) connect(env *environment) (*session, error) {
	logger := env.commandLogger(f.verbose)
	tree, err := section.ReadFile(f.tree)
	if err != nil {
		return nil, fmt.Errorf("reading section tree: %w", err)
	}
	tree.SetLogger(logger)
	var keypair *keys.Keypair
	if f.keys != "" {
		if keypair, err = keys.Load(f.keys, os.Getenv(service.PassphraseEnvVar)); err != nil {
			return nil, err
		}
	}
	c, err := client.New(client.Config{
		Keypair: keypair,
		Tree:    tree,
		Dialer:  env.dial(f.dialTimeout),
		Timeout: f.timeout,
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}
	return &session{client: c, treePath: f.tree, logger: logger}, nil
}

// close saves the section tree, with whatever anti-entropy taught the
// client, and closes the client.
func (s *session) close() {
	defer s.client.Close()
	if err := s.client.Tree().WriteFile(s.treePath); err != nil {
		s.logger.Warn("saving section tree", "path", s.treePath, "error", err)
	}
}

func registerCommand(env *environment) *cli.Command {
	return &cli.Command{
		Name:    "register",
		Summary: "Create, write and read registers",
		Subcommands: []*cli.Command{
			registerCreateCommand(env),
			registerWriteCommand(env),
			registerReadCommand(env),
		},
	}
}

func registerCreateCommand(env *environment) *cli.Command {
	var params struct {
		Network networkFlags
		cli.JSONOutput
		Name    string `flag:"name" desc:"register name as 64 hex digits (random if empty)"`
		Tag     uint64 `flag:"tag" desc:"type tag" default:"15000"`
		Private bool   `flag:"private" desc:"only the owner may read and write"`
		Base    string `flag:"base" desc:"URL base: base32z, base32 or base64" default:"base32z"`
	}
	return &cli.Command{
		Name:    "create",
		Summary: "Create a register owned by --keys",
		Description: "Create a register. A public register is readable by anyone and\n" +
			"writable only by its owner; a private register admits only the owner.",
		Usage: "safe register create [--private] [--tag N] --keys <dir> --tree <file>",
		Examples: []cli.Example{
			{
				Description: "Create a public register",
				Command:     "safe register create --keys ~/.safe/keys --tree net/section-tree",
			},
		},
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("create", &params) },
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument %q", args[0])
			}
			name := xorname.Random()
			if params.Name != "" {
				parsed, err := xorname.Parse(params.Name)
				if err != nil {
					return err
				}
				name = parsed
			}
			base, err := safeurl.ParseBase(params.Base)
			if err != nil {
				return err
			}
			var permissions map[register.User]register.Permissions
			if !params.Private {
				permissions = map[register.User]register.Permissions{register.Anyone: {}}
			}

			s, err := params.Network.connect(env)
			if err != nil {
				return err
			}
			defer s.close()
			ctx, cancel := signalContext()
			defer cancel()
			address, err := s.client.CreateRegister(ctx, name, params.Tag, permissions)
			if err != nil {
				return err
			}
			url, err := client.RegisterURL(address, params.Private, base)
			if err != nil {
				return err
			}
			if done, err := params.EmitJSON(env.out, map[string]any{
				"url":  url,
				"name": address.Name.Hex(),
				"tag":  address.Tag,
			}); done {
				return err
			}
			fmt.Fprintln(env.out, url)
			return nil
		},
	}
}

func registerWriteCommand(env *environment) *cli.Command {
	var params struct {
		Network networkFlags
		Parents []string `flag:"parent" desc:"entry hashes to write on top of (default: every head)"`
	}
	return &cli.Command{
		Name:    "write",
		Summary: "Append an entry to a register",
		Usage:   "safe register write [--parent <hash>...] <url> <value>",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("write", &params) },
		Run: func(args []string) error {
			if len(args) != 2 {
				return fmt.Errorf("expected <url> <value>, got %d arguments", len(args))
			}
			address, err := client.RegisterAddress(args[0])
			if err != nil {
				return err
			}
			var parents []register.EntryHash
			for _, parent := range params.Parents {
				hash, err := register.ParseEntryHash(parent)
				if err != nil {
					return err
				}
				parents = append(parents, hash)
			}

			s, err := params.Network.connect(env)
			if err != nil {
				return err
			}
			defer s.close()
			ctx, cancel := signalContext()
			defer cancel()
			hash, err := s.client.WriteRegister(ctx, address, []byte(args[1]), parents)
			if err != nil {
				return err
			}
			fmt.Fprintln(env.out, hash)
			return nil
		},
	}
}

// entryOutput is the --json form of a register entry.
type entryOutput struct {
	Hash  string `json:"hash"`
	Value string `json:"value"`
}

func registerReadCommand(env *environment) *cli.Command {
	var params struct {
		Network networkFlags
		cli.JSONOutput
		Hash string `flag:"hash" desc:"print this entry instead of the current heads"`
	}
	return &cli.Command{
		Name:    "read",
		Summary: "Print a register's current heads",
		Description: "Print the register's current heads, one \"<hash> <value>\" line each.\n" +
			"Several heads mean concurrent writes that a later write will merge.",
		Usage: "safe register read [--hash <hash>] <url>",
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("read", &params) },
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("expected exactly one URL, got %d arguments", len(args))
			}
			address, err := client.RegisterAddress(args[0])
			if err != nil {
				return err
			}

			s, err := params.Network.connect(env)
			if err != nil {
				return err
			}
			defer s.close()
			ctx, cancel := signalContext()
			defer cancel()

			var entries []register.Entry
			if params.Hash != "" {
				hash, err := register.ParseEntryHash(params.Hash)
				if err != nil {
					return err
				}
				value, err := s.client.GetEntry(ctx, address, hash)
				if err != nil {
					return err
				}
				entries = []register.Entry{{Hash: hash, Value: value}}
			} else if entries, err = s.client.ReadRegister(ctx, address); err != nil {
				return err
			}

			output := make([]entryOutput, len(entries))
			for i, entry := range entries {
				output[i] = entryOutput{Hash: entry.Hash.String(), Value: string(entry.Value)}
			}
			if done, err := params.EmitJSON(env.out, output); done {
				return err
			}
			for _, entry := range output {
				fmt.Fprintf(env.out, "%s %s\n", entry.Hash, entry.Value)
			}
			return nil
		},
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}
