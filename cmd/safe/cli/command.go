// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"cmp"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/pflag"
)

// Command is one node of the safe command tree. A group has
// Subcommands and no Run; a leaf has Run and no Subcommands.
type Command struct {
	// Name is the word typed to select the command, e.g. "read".
	Name string

	// Summary is the one-line description listed under the parent.
	Summary string

	// Description, when set, replaces Summary at the top of the
	// command's own help.
	Description string

	// Usage overrides the synthesized usage line.
	Usage string

	Examples []Example

	// Flags builds the command's flag set. It is called once per
	// Execute and again for help, so it must bind to the same targets
	// each time. Nil means the command takes no flags.
	Flags func() *pflag.FlagSet

	Subcommands []*Command

	// Run receives the positional arguments left after flag parsing.
	Run func(args []string) error

	// HelpOutput receives help text; subcommands inherit it. Nil means
	// stderr.
	HelpOutput io.Writer

	// parent is set while dispatching so help can print the full path.
	parent *Command
}

// Example is one annotated command line in help output.
type Example struct {
	Description string
	Command     string
}

// Execute runs the command tree against args.
func (c *Command) Execute(args []string) error {
	if len(args) > 0 && isHelpFlag(args[0]) {
		c.PrintHelp(c.helpOutput())
		return nil
	}
	if len(c.Subcommands) > 0 {
		return c.dispatch(args)
	}
	if c.Run == nil {
		return fmt.Errorf("%s: command has no action", c.fullName())
	}
	args, err := c.parseFlags(args)
	if err != nil {
		return err
	}
	return c.Run(args)
}

// dispatch hands args to the subcommand named by args[0].
func (c *Command) dispatch(args []string) error {
	if len(args) == 0 {
		c.PrintHelp(c.helpOutput())
		return errors.New("subcommand required")
	}
	if strings.HasPrefix(args[0], "-") {
		c.PrintHelp(c.helpOutput())
		return fmt.Errorf("subcommand required (got flag %q)", args[0])
	}
	for _, sub := range c.Subcommands {
		if sub.Name == args[0] {
			sub.parent = c
			return sub.Execute(args[1:])
		}
	}
	message := fmt.Sprintf("unknown command %q", args[0])
	if suggestion := suggestCommand(args[0], c.Subcommands); suggestion != "" {
		message += fmt.Sprintf(" (did you mean %q?)", suggestion)
	}
	return c.usageError(message)
}

// parseFlags parses args against the command's flags and returns the
// positional arguments.
func (c *Command) parseFlags(args []string) ([]string, error) {
	if c.Flags == nil {
		return args, nil
	}
	flagSet := c.Flags()
	flagSet.SetOutput(io.Discard)
	if err := flagSet.Parse(args); err != nil {
		message := err.Error()
		if strings.HasPrefix(message, "unknown") {
			// A fresh set: the failed parse may have left state behind.
			if suggestion := suggestFlag(args, c.Flags()); suggestion != "" {
				message += " (did you mean " + suggestion + "?)"
			}
		}
		return nil, c.usageError(message)
	}
	return flagSet.Args(), nil
}

func (c *Command) usageError(message string) error {
	return fmt.Errorf("%s\n\nRun '%s --help' for usage.", message, c.fullName())
}

// PrintHelp writes the command's help to w.
func (c *Command) PrintHelp(w io.Writer) {
	name := c.fullName()
	if text := cmp.Or(c.Description, c.Summary); text != "" {
		fmt.Fprintf(w, "%s\n\n", text)
	}

	usage := c.Usage
	if usage == "" {
		usage = name + " [flags]"
		if len(c.Subcommands) > 0 {
			usage = name + " <command> [flags]"
		}
	}
	fmt.Fprintf(w, "Usage:\n  %s\n", usage)

	if len(c.Subcommands) > 0 {
		fmt.Fprint(w, "\nCommands:\n")
		tw := tabwriter.NewWriter(w, 2, 0, 3, ' ', 0)
		for _, sub := range c.Subcommands {
			fmt.Fprintf(tw, "  %s\t%s\n", sub.Name, sub.Summary)
		}
		tw.Flush()
	}

	if c.Flags != nil {
		if usage := c.Flags().FlagUsages(); usage != "" {
			fmt.Fprintf(w, "\nFlags:\n%s", usage)
		}
	}

	if len(c.Examples) > 0 {
		fmt.Fprint(w, "\nExamples:\n")
		for _, example := range c.Examples {
			if example.Description == "" {
				fmt.Fprintf(w, "  %s\n", example.Command)
				continue
			}
			fmt.Fprintf(w, "  # %s\n  %s\n\n", example.Description, example.Command)
		}
	}

	if len(c.Subcommands) > 0 {
		fmt.Fprintf(w, "\nRun '%s <command> --help' for more information on a command.\n", name)
	}
}

// fullName is the command path from the root, e.g. "safe register read".
func (c *Command) fullName() string {
	if c.parent == nil {
		return c.Name
	}
	return c.parent.fullName() + " " + c.Name
}

func (c *Command) helpOutput() io.Writer {
	for command := c; command != nil; command = command.parent {
		if command.HelpOutput != nil {
			return command.HelpOutput
		}
	}
	return os.Stderr
}

func isHelpFlag(arg string) bool {
	return arg == "-h" || arg == "--help" || arg == "help"
}
