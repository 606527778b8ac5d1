// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Command safe is the operator and client tool for a safe network. It
// encodes and decodes safe:// URLs, manages keys, writes the genesis
// section tree, and creates, writes and reads registers against
// running nodes.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/safenet-project/safenet/cmd/safe/cli"
	"github.com/safenet-project/safenet/lib/version"
	"github.com/safenet-project/safenet/transport"
)

func main() {
	if err := run(); err != nil {
		// Commands that print their own output (like url resolve)
		// return an ExitError with the desired exit code.
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	return rootCommand(&environment{out: os.Stdout}).Execute(os.Args[1:])
}

// environment carries what commands would otherwise take from the
// process: output, the dialer used to reach nodes, and the logger.
type environment struct {
	out io.Writer

	// dialer overrides the TCP dialer built from --dial-timeout.
	dialer transport.Dialer

	// logger overrides the command logger built from --verbose.
	logger *slog.Logger
}

func (e *environment) dial(timeout time.Duration) transport.Dialer {
	if e.dialer != nil {
		return e.dialer
	}
	return &transport.TCPDialer{Timeout: timeout}
}

func (e *environment) commandLogger(verbose bool) *slog.Logger {
	if e.logger != nil {
		return e.logger
	}
	return cli.NewCommandLogger(verbose)
}

func rootCommand(env *environment) *cli.Command {
	return &cli.Command{
		Name:        "safe",
		Description: "Operator and client tool for a safe network.",
		Subcommands: []*cli.Command{
			urlCommand(env),
			keysCommand(env),
			networkCommand(env),
			registerCommand(env),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(args []string) error {
					fmt.Fprintln(env.out, version.Full())
					return nil
				},
			},
		},
	}
}
