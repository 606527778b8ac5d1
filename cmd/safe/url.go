// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/safenet-project/safenet/cmd/safe/cli"
	"github.com/safenet-project/safenet/lib/neterr"
	"github.com/safenet-project/safenet/lib/safeurl"
	"github.com/safenet-project/safenet/lib/xorname"
)

func urlCommand(env *environment) *cli.Command {
	return &cli.Command{
		Name:    "url",
		Summary: "Encode, decode and resolve safe:// URLs",
		Subcommands: []*cli.Command{
			urlEncodeCommand(env),
			urlDecodeCommand(env),
			urlResolveCommand(env),
		},
	}
}

type urlEncodeParams struct {
	Name        string   `flag:"name" desc:"content name as 64 hex digits (random if empty)"`
	Tag         uint64   `flag:"tag" desc:"type tag"`
	DataType    string   `flag:"type" desc:"data type, e.g. PublicRegister or SafeKey" default:"PublicRegister"`
	ContentType string   `flag:"content-type" desc:"Raw, Wallet, FilesContainer, NrsMapContainer or a media type" default:"Raw"`
	Base        string   `flag:"base" desc:"base32z, base32 or base64" default:"base32z"`
	SubNames    []string `flag:"sub-names" desc:"sub-names, most specific first"`
	Path        string   `flag:"path" desc:"path within the content"`
	Version     uint64   `flag:"content-version" desc:"content version to pin (0 for none)"`
}

func urlEncodeCommand(env *environment) *cli.Command {
	var params urlEncodeParams
	return &cli.Command{
		Name:    "encode",
		Summary: "Encode a URL from its header fields",
		Usage:   "safe url encode [flags]",
		Examples: []cli.Example{
			{
				Description: "URL of a public register",
				Command:     "safe url encode --name 5e1c...0a --tag 15000 --type PublicRegister",
			},
		},
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("encode", &params) },
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
			dataType, err := parseDataType(params.DataType)
			if err != nil {
				return err
			}
			base, err := safeurl.ParseBase(params.Base)
			if err != nil {
				return err
			}
			u, err := safeurl.New(name, params.Tag, dataType, parseContentType(params.ContentType))
			if err != nil {
				return err
			}
			if err := u.SetSubNames(params.SubNames); err != nil {
				return err
			}
			if err := u.SetPath(params.Path); err != nil {
				return err
			}
			if params.Version > 0 {
				u.SetContentVersion(params.Version)
			}
			encoded, err := u.ToBase(base)
			if err != nil {
				return err
			}
			fmt.Fprintln(env.out, encoded)
			return nil
		},
	}
}

// decodedURL is the --json form of a decoded URL.
type decodedURL struct {
	Name           string   `json:"name"`
	TypeTag        uint64   `json:"type_tag"`
	DataType       string   `json:"data_type"`
	ContentType    string   `json:"content_type"`
	SubNames       []string `json:"sub_names"`
	Path           string   `json:"path"`
	ContentVersion *uint64  `json:"content_version,omitempty"`
	QueryParams    []string `json:"query_params"`
}

func urlDecodeCommand(env *environment) *cli.Command {
	var params struct {
		cli.JSONOutput
	}
	return &cli.Command{
		Name:    "decode",
		Summary: "Print the fields of a URL",
		Usage:   "safe url decode [--json] <url>",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("decode", &params) },
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("expected exactly one URL, got %d arguments", len(args))
			}
			u, err := safeurl.Decode(args[0])
			if err != nil {
				return err
			}
			decoded := decodedURL{
				Name:        u.Name().Hex(),
				TypeTag:     u.TypeTag(),
				DataType:    u.DataType().String(),
				ContentType: u.ContentType().String(),
				SubNames:    u.SubNames(),
				Path:        u.Path(),
				QueryParams: u.QueryParams(),
			}
			if version, ok := u.ContentVersion(); ok {
				decoded.ContentVersion = &version
			}
			if done, err := params.EmitJSON(env.out, decoded); done {
				return err
			}

			tw := tabwriter.NewWriter(env.out, 2, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "name:\t%s\n", decoded.Name)
			fmt.Fprintf(tw, "type tag:\t%d\n", decoded.TypeTag)
			fmt.Fprintf(tw, "data type:\t%s\n", decoded.DataType)
			fmt.Fprintf(tw, "content type:\t%s\n", decoded.ContentType)
			if len(decoded.SubNames) > 0 {
				fmt.Fprintf(tw, "sub-names:\t%s\n", strings.Join(decoded.SubNames, "."))
			}
			if decoded.Path != "" {
				fmt.Fprintf(tw, "path:\t%s\n", decoded.Path)
			}
			if decoded.ContentVersion != nil {
				fmt.Fprintf(tw, "content version:\t%d\n", *decoded.ContentVersion)
			}
			if len(decoded.QueryParams) > 0 {
				fmt.Fprintf(tw, "query:\t%s\n", strings.Join(decoded.QueryParams, "&"))
			}
			return tw.Flush()
		},
	}
}

func urlResolveCommand(env *environment) *cli.Command {
	var params struct {
		Register bool `flag:"register" desc:"exit with status 2 unless the URL names a register"`
	}
	return &cli.Command{
		Name:    "resolve",
		Summary: "Print what a URL resolves to",
		Usage:   "safe url resolve [--register] <url>",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("resolve", &params) },
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("expected exactly one URL, got %d arguments", len(args))
			}
			resolution, err := safeurl.Resolve(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(env.out, resolution.Kind)
			if params.Register && resolution.Kind != safeurl.ResolvesToRegister {
				return &cli.ExitError{Code: 2}
			}
			return nil
		},
	}
}

func parseDataType(name string) (safeurl.DataType, error) {
	for dataType := safeurl.DataType(0); dataType.Valid(); dataType++ {
		if strings.EqualFold(dataType.String(), name) {
			return dataType, nil
		}
	}
	return 0, neterr.E("safe url", neterr.InvalidInput, fmt.Sprintf("unknown data type %q", name), nil)
}

// parseContentType maps a reserved content type name to its value and
// anything else to a media type, which safeurl.New validates.
func parseContentType(name string) safeurl.ContentType {
	for _, reserved := range []safeurl.ContentType{safeurl.Raw, safeurl.Wallet, safeurl.FilesContainer, safeurl.NrsMapContainer} {
		if strings.EqualFold(reserved.String(), name) {
			return reserved
		}
	}
	return safeurl.MediaType(name)
}
