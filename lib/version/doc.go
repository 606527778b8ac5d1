// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version provides build version information for safenode and
// safe.
//
// Four package-level variables are injected at build time via
// -ldflags -X, for example:
//
//	go build -ldflags "-X github.com/safenet-project/safenet/lib/version.GitCommit=$(git rev-parse --short HEAD)"
//
// They default to "unknown" / "0.1.0-dev" when not injected, which
// occurs during development builds and test runs. [Info] formats them
// for --version output and [Full] adds the Go version and platform.
package version
