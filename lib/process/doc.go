// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides entrypoint helpers for the safenet
// binaries: reporting the error that ended run() before or after the
// structured logger exists, and choosing the exit status for it.
//
// Supervisors restart a node on any non-zero status, but some failures
// need a different response (a node dropped from its section must
// rejoin with a fresh identity rather than restart). Such errors carry
// their status with [WithExitCode].
package process
