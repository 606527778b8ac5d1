// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/safenet-project/safenet/cmd/safe/cli"
	"github.com/safenet-project/safenet/lib/keys"
	"github.com/safenet-project/safenet/lib/service"
)

func keysCommand(env *environment) *cli.Command {
	return &cli.Command{
		Name:    "keys",
		Summary: "Generate and inspect keypairs",
		Subcommands: []*cli.Command{
			keysGenerateCommand(env),
			keysShowCommand(env),
		},
	}
}

// keyInfo is the --json form of a keypair's public half.
type keyInfo struct {
	PublicKey string `json:"public_key"`
	Name      string `json:"name"`
	Dir       string `json:"dir"`
}

func printKey(env *environment, output *cli.JSONOutput, dir string, keypair *keys.Keypair) error {
	info := keyInfo{PublicKey: keypair.Public().Hex(), Name: keypair.Name().Hex(), Dir: dir}
	if done, err := output.EmitJSON(env.out, info); done {
		return err
	}
	fmt.Fprintf(env.out, "public key: %s\nname:       %s\n", info.PublicKey, info.Name)
	return nil
}

func keysGenerateCommand(env *environment) *cli.Command {
	var params struct {
		cli.JSONOutput
		Dir   string `flag:"dir" desc:"directory to write secret-key and public-key into"`
		Force bool   `flag:"force" desc:"replace an existing keypair"`
	}
	return &cli.Command{
		Name:    "generate",
		Summary: "Generate a keypair",
		Description: "Generate an ed25519 keypair and save it. When " + service.PassphraseEnvVar +
			" is set the secret key is encrypted under it. The printed name is the\n" +
			"network name a node with this key takes.",
		Usage: "safe keys generate --dir <dir> [--force]",
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("generate", &params) },
		Run: func(args []string) error {
			if params.Dir == "" {
				return fmt.Errorf("--dir is required")
			}
			existing := filepath.Join(params.Dir, "secret-key")
			if _, err := os.Stat(existing); err == nil && !params.Force {
				return fmt.Errorf("%s already exists (use --force to replace it)", existing)
			} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}
			keypair, err := keys.Generate()
			if err != nil {
				return err
			}
			if err := keys.Save(params.Dir, keypair, os.Getenv(service.PassphraseEnvVar)); err != nil {
				return err
			}
			return printKey(env, &params.JSONOutput, params.Dir, keypair)
		},
	}
}

func keysShowCommand(env *environment) *cli.Command {
	var params struct {
		cli.JSONOutput
		Dir string `flag:"dir" desc:"key directory"`
	}
	return &cli.Command{
		Name:    "show",
		Summary: "Print the public key and network name of a keypair",
		Usage:   "safe keys show --dir <dir>",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("show", &params) },
		Run: func(args []string) error {
			if params.Dir == "" {
				return fmt.Errorf("--dir is required")
			}
			keypair, err := keys.Load(params.Dir, os.Getenv(service.PassphraseEnvVar))
			if err != nil {
				return err
			}
			return printKey(env, &params.JSONOutput, params.Dir, keypair)
		},
	}
}
