// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

func TestCommand_Execute_NestedSubcommands(t *testing.T) {
	var called string
	var receivedArgs []string

	root := &Command{
		Name: "safe",
		Subcommands: []*Command{
			{
				Name: "register",
				Subcommands: []*Command{
					{
						Name: "read",
						Run: func(args []string) error {
							called = "register read"
							receivedArgs = args
							return nil
						},
					},
				},
			},
			{Name: "url", Run: func(args []string) error { called = "url"; return nil }},
		},
	}

	if err := root.Execute([]string{"register", "read", "safe://hyryyry"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if called != "register read" {
		t.Errorf("dispatched to %q, want %q", called, "register read")
	}
	if len(receivedArgs) != 1 || receivedArgs[0] != "safe://hyryyry" {
		t.Errorf("args = %v, want [safe://hyryyry]", receivedArgs)
	}
}

func TestCommand_Execute_FlagParsing(t *testing.T) {
	var base string
	var target string

	command := &Command{
		Name: "encode",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("encode", pflag.ContinueOnError)
			flagSet.StringVar(&base, "base", "base32z", "URL base")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				target = args[0]
			}
			return nil
		},
	}

	if err := command.Execute([]string{"--base", "base64", "name"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if base != "base64" {
		t.Errorf("base = %q, want %q", base, "base64")
	}
	if target != "name" {
		t.Errorf("target = %q, want %q", target, "name")
	}
}

func TestCommand_Execute_UnknownFlag(t *testing.T) {
	command := &Command{
		Name: "write",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("write", pflag.ContinueOnError)
			flagSet.String("network", "", "section tree file")
			flagSet.Bool("json", false, "output as JSON")
			return flagSet
		},
		Run: func(args []string) error { return nil },
	}

	tests := []struct {
		arg     string
		suggest string
	}{
		{"--netwrok", "did you mean --network"},
		{"--jsno=true", "did you mean --json"},
		{"--zzzzzzzzz", ""},
	}
	for _, tt := range tests {
		t.Run(tt.arg, func(t *testing.T) {
			err := command.Execute([]string{tt.arg})
			if err == nil {
				t.Fatal("Execute() = nil, want error for unknown flag")
			}
			if !strings.Contains(err.Error(), "--help") {
				t.Errorf("error = %q, should point to --help", err)
			}
			if tt.suggest == "" {
				if strings.Contains(err.Error(), "did you mean") {
					t.Errorf("error = %q, should not suggest for a distant flag", err)
				}
			} else if !strings.Contains(err.Error(), tt.suggest) {
				t.Errorf("error = %q, want %q", err, tt.suggest)
			}
		})
	}
}

func TestCommand_Execute_UnknownSubcommand(t *testing.T) {
	root := &Command{
		Name:        "safe",
		Subcommands: []*Command{{Name: "url"}, {Name: "keys"}, {Name: "register"}},
	}

	err := root.Execute([]string{"regster"})
	if err == nil || !strings.Contains(err.Error(), `did you mean "register"`) {
		t.Errorf("Execute(regster) error = %v, want a suggestion for register", err)
	}
	err = root.Execute([]string{"zzzzzzz"})
	if err == nil || strings.Contains(err.Error(), "did you mean") {
		t.Errorf("Execute(zzzzzzz) error = %v, want no suggestion", err)
	}
}

func TestCommand_Execute_Help(t *testing.T) {
	for _, helpArg := range []string{"-h", "--help", "help"} {
		t.Run(helpArg, func(t *testing.T) {
			var help bytes.Buffer
			root := &Command{
				Name:        "safe",
				Summary:     "safe network operator tool",
				HelpOutput:  &help,
				Subcommands: []*Command{{Name: "url", Summary: "Encode and decode safe:// URLs"}},
			}

			if err := root.Execute([]string{"url", helpArg}); err != nil {
				t.Errorf("Execute(url %s) error: %v", helpArg, err)
			}
			if !strings.Contains(help.String(), "safe url") {
				t.Errorf("subcommand help did not reach the inherited output:\n%s", help.String())
			}
		})
	}
}

func TestCommand_Execute_NoArgsShowsHelp(t *testing.T) {
	var help bytes.Buffer
	root := &Command{
		Name:        "safe",
		HelpOutput:  &help,
		Subcommands: []*Command{{Name: "keys", Summary: "Key management"}},
	}

	err := root.Execute(nil)
	if err == nil || !strings.Contains(err.Error(), "subcommand required") {
		t.Fatalf("Execute() error = %v, want 'subcommand required'", err)
	}
	if !strings.Contains(help.String(), "Key management") {
		t.Errorf("help output = %q", help.String())
	}
}

func TestCommand_PrintHelp(t *testing.T) {
	command := &Command{
		Name:        "safe",
		Description: "Operator tool for a safe network.",
		Subcommands: []*Command{
			{Name: "url", Summary: "Encode, decode and resolve safe:// URLs"},
			{Name: "register", Summary: "Create, write and read registers"},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("safe", pflag.ContinueOnError)
			flagSet.String("network", "", "section tree file")
			return flagSet
		},
		Examples: []Example{
			{
				Description: "Read a register",
				Command:     "safe register read --network tree safe://hyryyry",
			},
		},
	}

	var buffer bytes.Buffer
	command.PrintHelp(&buffer)
	output := buffer.String()

	for _, want := range []string{
		"Operator tool for a safe network.",
		"Usage:",
		"safe <command> [flags]",
		"Commands:",
		"Create, write and read registers",
		"Flags:",
		"--network",
		"Examples:",
		"# Read a register",
		"Run 'safe <command> --help'",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("help output missing %q\n\nFull output:\n%s", want, output)
		}
	}
}

func TestCommand_FullName(t *testing.T) {
	root := &Command{Name: "safe"}
	register := &Command{Name: "register", parent: root}
	read := &Command{Name: "read", parent: register}

	if got := read.fullName(); got != "safe register read" {
		t.Errorf("fullName() = %q, want %q", got, "safe register read")
	}
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"", "abc", 3},
		{"abc", "abc", 0},
		{"abc", "abd", 1},
		{"abc", "bac", 2},
		{"kitten", "sitting", 3},
		{"register", "regster", 1},
	}

	for _, test := range tests {
		if got := levenshtein(test.a, test.b); got != test.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", test.a, test.b, got, test.want)
		}
		if got := levenshtein(test.b, test.a); got != test.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", test.b, test.a, got, test.want)
		}
	}
}

func TestExitError(t *testing.T) {
	var err error = &ExitError{Code: 2}
	coder, ok := err.(interface{ ExitCode() int })
	if !ok || coder.ExitCode() != 2 {
		t.Errorf("ExitError does not report code 2")
	}
}
