// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil holds helpers shared by the safenet test suites.
//
// [RequireReceive], [RequireSend] and [RequireClosed] bound channel
// operations with a wall-clock timeout so a broken test fails instead
// of hanging. Everything else in the tests runs on [clock.Fake].
//
// [Logger] routes slog output through t.Log so it only appears for
// failing or verbose runs.
package testutil
