// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"

	"github.com/safenet-project/safenet/cmd/safe/cli"
	"github.com/safenet-project/safenet/lib/keys"
	"github.com/safenet-project/safenet/lib/section"
	"github.com/safenet-project/safenet/lib/service"
	"github.com/safenet-project/safenet/lib/xorname"
)

const (
	sectionTreeFile = "section-tree"
	contactsFile    = "contacts.jsonc"
)

func networkCommand(env *environment) *cli.Command {
	return &cli.Command{
		Name:    "network",
		Summary: "Create and inspect section trees",
		Subcommands: []*cli.Command{
			networkGenesisCommand(env),
			networkShowCommand(env),
		},
	}
}

func networkGenesisCommand(env *environment) *cli.Command {
	var params struct {
		Members     []string `flag:"member" desc:"founding member as <name>@<addr>, repeatable"`
		Out         string   `flag:"out" desc:"directory to write section-tree and contacts.jsonc into"`
		GenesisKeys string   `flag:"genesis-keys" desc:"directory to save the genesis keypair into (default <out>/genesis-keys)"`
	}
	return &cli.Command{
		Name:    "genesis",
		Summary: "Found a network with a single section",
		Description: "Generate a genesis key and sign a section authority over the whole\n" +
			"name space naming the founding members. Writes the section tree every\n" +
			"node and client starts from, and a contacts file pinning the genesis key.",
		Usage: "safe network genesis --member <name>@<addr> [--member ...] --out <dir>",
		Examples: []cli.Example{
			{
				Description: "Found a three-node network",
				Command:     "safe network genesis --member <name-a>@10.0.0.1:12000 --member <name-b>@10.0.0.2:12000 --out ./net",
			},
		},
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("genesis", &params) },
		Run: func(args []string) error {
			if params.Out == "" {
				return fmt.Errorf("--out is required")
			}
			members, err := parseMembers(params.Members)
			if err != nil {
				return err
			}
			genesisKeys := params.GenesisKeys
			if genesisKeys == "" {
				genesisKeys = filepath.Join(params.Out, "genesis-keys")
			}

			genesis, err := keys.Generate()
			if err != nil {
				return err
			}
			tree, err := foundNetwork(genesis, members)
			if err != nil {
				return err
			}
			if err := keys.Save(genesisKeys, genesis, os.Getenv(service.PassphraseEnvVar)); err != nil {
				return err
			}
			if err := tree.WriteFile(filepath.Join(params.Out, sectionTreeFile)); err != nil {
				return err
			}
			contacts := section.Contacts{GenesisKey: genesis.Public(), Peers: members}
			if err := section.WriteContacts(filepath.Join(params.Out, contactsFile), contacts); err != nil {
				return err
			}
			fmt.Fprintf(env.out, "genesis key: %s\nmembers:     %d\nwrote %s and %s\n",
				genesis.Public().Hex(), len(members),
				filepath.Join(params.Out, sectionTreeFile), filepath.Join(params.Out, contactsFile))
			return nil
		},
	}
}

// foundNetwork returns a tree trusting genesis that holds one section
// over the whole name space, signed by genesis itself.
func foundNetwork(genesis *keys.Keypair, members []section.Member) (*section.Tree, error) {
	sap, err := section.SignSAP(section.NewSAP(xorname.Prefix{}, genesis.Public(), members, 0), genesis)
	if err != nil {
		return nil, err
	}
	tree := section.NewTree(genesis.Public())
	if _, err := tree.Update(section.NewUpdate(sap, section.NewDAG(genesis.Public()))); err != nil {
		return nil, err
	}
	return tree, nil
}

func parseMembers(specs []string) ([]section.Member, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("at least one --member is required")
	}
	seen := make(map[xorname.Name]bool, len(specs))
	members := make([]section.Member, 0, len(specs))
	for _, spec := range specs {
		nameHex, addr, ok := strings.Cut(spec, "@")
		if !ok || addr == "" {
			return nil, fmt.Errorf("member %q: want <name>@<addr>", spec)
		}
		name, err := xorname.Parse(nameHex)
		if err != nil {
			return nil, fmt.Errorf("member %q: %w", spec, err)
		}
		if seen[name] {
			return nil, fmt.Errorf("member %s listed twice", name)
		}
		seen[name] = true
		members = append(members, section.Member{Name: name, Addr: addr})
	}
	return members, nil
}

func networkShowCommand(env *environment) *cli.Command {
	var params struct {
		cli.JSONOutput
		Tree string `flag:"tree" desc:"section tree file"`
	}
	return &cli.Command{
		Name:    "show",
		Summary: "List the sections of a section tree",
		Usage:   "safe network show --tree <file>",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("show", &params) },
		Run: func(args []string) error {
			if params.Tree == "" {
				return fmt.Errorf("--tree is required")
			}
			tree, err := section.ReadFile(params.Tree)
			if err != nil {
				return err
			}
			type sectionInfo struct {
				Prefix     string   `json:"prefix"`
				Key        string   `json:"key"`
				Generation uint64   `json:"generation"`
				Members    []string `json:"members"`
			}
			var sections []sectionInfo
			for _, sap := range tree.All() {
				info := sectionInfo{Prefix: sap.Prefix.String(), Key: sap.Key.Hex(), Generation: sap.Generation}
				for _, member := range sap.Members {
					info.Members = append(info.Members, member.Name.Hex()+"@"+member.Addr)
				}
				sections = append(sections, info)
			}
			if done, err := params.EmitJSON(env.out, sections); done {
				return err
			}
			fmt.Fprintf(env.out, "genesis key: %s\n", tree.Genesis().Hex())
			for _, info := range sections {
				fmt.Fprintf(env.out, "section %q (generation %d, key %s)\n", info.Prefix, info.Generation, info.Key)
				for _, member := range info.Members {
					fmt.Fprintf(env.out, "  %s\n", member)
				}
			}
			return nil
		},
	}
}
