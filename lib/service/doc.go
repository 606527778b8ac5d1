// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package service provides shared startup scaffolding for safenet
// daemons.
//
// A daemon composes these utilities in its own main() rather than
// subclassing a framework:
//
//   - [RegisterCommonFlags] binds --config and --version.
//   - [NewLogger] builds the JSON logger on stderr and installs it as
//     the slog default.
//   - [Bootstrap] loads and validates the configuration, loads or
//     generates the node keypair, reads the network contacts and the
//     persisted section tree, and finds the section the node belongs
//     to.
//
// Bootstrap does not create a signal context or open any socket;
// callers own their lifecycle.
package service
