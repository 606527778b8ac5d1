// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/safenet-project/safenet/lib/neterr"
	"github.com/safenet-project/safenet/lib/process"
	"github.com/safenet-project/safenet/lib/service"
	"github.com/safenet-project/safenet/lib/version"
	"github.com/safenet-project/safenet/transport"
)

// exitRejoin is the exit status when the section has dropped this
// node, so supervisors can tell it apart from a crash.
const exitRejoin = 3

func main() {
	if err := run(); err != nil {
		if errors.Is(err, neterr.RejoinRequired) {
			err = process.WithExitCode(err, exitRejoin)
		}
		process.Fatal(err)
	}
}

func run() error {
	var flags service.CommonFlags
	service.RegisterCommonFlags(&flags)
	flag.Parse()

	if flags.ShowVersion {
		fmt.Printf("safenode %s\n", version.Info())
		return nil
	}

	boot, err := service.Bootstrap(service.BootstrapConfig{Flags: flags})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	listener, err := transport.ListenTCP(boot.Config.Network.Listen)
	if err != nil {
		return err
	}

	d, err := newDaemon(ctx, boot, listener, &transport.TCPDialer{Timeout: boot.Config.Network.DialTimeout})
	if err != nil {
		listener.Close()
		return err
	}
	return d.run(ctx)
}
