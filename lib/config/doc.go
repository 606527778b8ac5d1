// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for safenode.
//
// Configuration is loaded from a single file specified by either the
// SAFENET_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There are no fallbacks, no ~/.config discovery,
// and no automatic file search.
//
// The configuration file supports environment-specific sections
// (development, staging, production) that override base values when
// [Config].Environment matches. Production without an explicit
// section logs at info rather than debug.
//
// Variable expansion is performed on path fields after loading:
// ${HOME}, ${SAFENET_ROOT}, and ${VAR:-default} patterns are expanded.
// No other environment variables override config values.
//
// Durations are Go duration strings ("500ms", "1m"). Compression is
// one of none, lz4 or zstd.
package config
