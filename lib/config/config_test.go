// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/safenet-project/safenet/lib/compress"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "safenode.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Environment != Development {
		t.Errorf("expected environment=development, got %s", cfg.Environment)
	}
	if cfg.Replication.ReplicaCount != 4 {
		t.Errorf("expected replica_count=4, got %d", cfg.Replication.ReplicaCount)
	}
	if cfg.Storage.Compression != compress.Zstd {
		t.Errorf("expected compression=zstd, got %s", cfg.Storage.Compression)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default().Validate() error: %v", err)
	}
}

func TestLoad_RequiresSafenetConfig(t *testing.T) {
	t.Setenv(EnvVar, "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when SAFENET_CONFIG not set, got nil")
	}
	if !strings.HasPrefix(err.Error(), "SAFENET_CONFIG environment variable not set") {
		t.Errorf("unexpected error message %q", err)
	}
}

func TestLoad_WithSafenetConfig(t *testing.T) {
	path := writeConfig(t, `
environment: staging
paths:
  root: /test/root
network:
  listen: 127.0.0.1:9000
`)
	t.Setenv(EnvVar, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Environment != Staging {
		t.Errorf("expected environment=staging, got %s", cfg.Environment)
	}
	if cfg.Network.Listen != "127.0.0.1:9000" {
		t.Errorf("expected listen=127.0.0.1:9000, got %s", cfg.Network.Listen)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
environment: staging

paths:
  root: /custom/root
  registers: /custom/registers

network:
  listen: 0.0.0.0:13000
  advertise: node-1.example:13000
  dial_timeout: 3s

comm:
  max_send_retries: 5
  retry_wait: 250ms

storage:
  pool_size: 2
  compression: lz4

anti_entropy:
  update_interval: 2m
  resend_burst: 8

replication:
  replica_count: 7

log:
  level: warn
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.Paths.Registers != "/custom/registers" {
		t.Errorf("expected registers=/custom/registers, got %s", cfg.Paths.Registers)
	}
	if cfg.AdvertiseAddr() != "node-1.example:13000" {
		t.Errorf("AdvertiseAddr() = %s", cfg.AdvertiseAddr())
	}
	if cfg.Network.DialTimeout != 3*time.Second {
		t.Errorf("expected dial_timeout=3s, got %s", cfg.Network.DialTimeout)
	}
	if cfg.Comm.MaxSendRetries != 5 || cfg.Comm.RetryWait != 250*time.Millisecond {
		t.Errorf("comm = %+v", cfg.Comm)
	}
	// Unset fields keep their defaults.
	if cfg.Comm.SessionQueue != Default().Comm.SessionQueue {
		t.Errorf("expected default session_queue, got %d", cfg.Comm.SessionQueue)
	}
	if cfg.Storage.Compression != compress.LZ4 || cfg.Storage.PoolSize != 2 {
		t.Errorf("storage = %+v", cfg.Storage)
	}
	if cfg.AntiEntropy.UpdateInterval != 2*time.Minute || cfg.AntiEntropy.ResendBurst != 8 {
		t.Errorf("anti_entropy = %+v", cfg.AntiEntropy)
	}
	if cfg.Replication.ReplicaCount != 7 {
		t.Errorf("expected replica_count=7, got %d", cfg.Replication.ReplicaCount)
	}
	if cfg.Log.SlogLevel().String() != "WARN" {
		t.Errorf("expected warn level, got %s", cfg.Log.SlogLevel())
	}
}

func TestLoadFile_Malformed(t *testing.T) {
	for name, content := range map[string]string{
		"bad compression": "storage:\n  compression: brotli\n",
		"bad duration":    "comm:\n  retry_wait: soon\n",
		"not yaml":        "paths: [unterminated\n",
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := LoadFile(writeConfig(t, content)); err == nil {
				t.Fatal("LoadFile() succeeded, want an error")
			}
		})
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, `
environment: production

paths:
  root: /default/root

storage:
  pool_size: 8
  compression: lz4

replication:
  replica_count: 3

production:
  paths:
    root: /prod/root
  storage:
    pool_size: 16
  replication:
    replica_count: 5
  log:
    level: error
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.Paths.Root != "/prod/root" {
		t.Errorf("expected root=/prod/root, got %s", cfg.Paths.Root)
	}
	if cfg.Storage.PoolSize != 16 {
		t.Errorf("expected pool_size=16, got %d", cfg.Storage.PoolSize)
	}
	if cfg.Storage.Compression != compress.LZ4 {
		t.Errorf("override without compression changed it to %s", cfg.Storage.Compression)
	}
	if cfg.Replication.ReplicaCount != 5 {
		t.Errorf("expected replica_count=5, got %d", cfg.Replication.ReplicaCount)
	}
	if cfg.Log.Level != "error" {
		t.Errorf("expected level=error, got %s", cfg.Log.Level)
	}
}

func TestEnvironmentOverrides_ProductionDefaults(t *testing.T) {
	cfg, err := LoadFile(writeConfig(t, "environment: production\n"))
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("expected production level=info, got %s", cfg.Log.Level)
	}
}

func TestEnvVarsDoNotOverride(t *testing.T) {
	t.Setenv("SAFENET_ROOT", "/env/root")
	t.Setenv("SAFENET_ENVIRONMENT", "staging")

	cfg, err := LoadFile(writeConfig(t, `
environment: development
paths:
  root: /file/root
`))
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.Environment != Development {
		t.Errorf("expected environment=development from file, got %s", cfg.Environment)
	}
	if cfg.Paths.Root != "/file/root" {
		t.Errorf("expected root=/file/root from file, got %s", cfg.Paths.Root)
	}
}

func TestLoadFile_ExpandsPaths(t *testing.T) {
	t.Setenv("HOME", "/home/operator")

	cfg, err := LoadFile(writeConfig(t, `
paths:
  root: ${HOME}/safenet
  registers: ${SAFENET_ROOT}/registers
  keys: ${KEY_DIR:-/etc/safenet/keys}
network:
  contacts: ${SAFENET_ROOT}/contacts.jsonc
`))
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	want := map[string]string{
		"root":      "/home/operator/safenet",
		"registers": "/home/operator/safenet/registers",
		"keys":      "/etc/safenet/keys",
		"contacts":  "/home/operator/safenet/contacts.jsonc",
	}
	got := map[string]string{
		"root":      cfg.Paths.Root,
		"registers": cfg.Paths.Registers,
		"keys":      cfg.Paths.Keys,
		"contacts":  cfg.Network.Contacts,
	}
	for field, value := range want {
		if got[field] != value {
			t.Errorf("%s = %q, want %q", field, got[field], value)
		}
	}
}

func TestExpandVars(t *testing.T) {
	tests := []struct {
		input    string
		vars     map[string]string
		expected string
	}{
		{
			input:    "${HOME}/safenet",
			vars:     map[string]string{"HOME": "/home/user"},
			expected: "/home/user/safenet",
		},
		{
			input:    "${MISSING:-default}",
			vars:     map[string]string{},
			expected: "default",
		},
		{
			input:    "${PRESENT:-default}",
			vars:     map[string]string{"PRESENT": "value"},
			expected: "value",
		},
		{
			input:    "${A}/${B}",
			vars:     map[string]string{"A": "first", "B": "second"},
			expected: "first/second",
		},
		{
			input:    "no variables here",
			vars:     map[string]string{},
			expected: "no variables here",
		},
	}

	for _, tt := range tests {
		result := expandVars(tt.input, tt.vars)
		if result != tt.expected {
			t.Errorf("expandVars(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{
			name:   "valid default config",
			modify: func(c *Config) {},
		},
		{
			name:    "invalid environment",
			modify:  func(c *Config) { c.Environment = "invalid" },
			wantErr: "invalid environment",
		},
		{
			name:    "empty root path",
			modify:  func(c *Config) { c.Paths.Root = "" },
			wantErr: "paths.root",
		},
		{
			name:    "empty listen address",
			modify:  func(c *Config) { c.Network.Listen = "" },
			wantErr: "network.listen",
		},
		{
			name:    "zero replica count",
			modify:  func(c *Config) { c.Replication.ReplicaCount = 0 },
			wantErr: "replication.replica_count",
		},
		{
			name:    "zero update interval",
			modify:  func(c *Config) { c.AntiEntropy.UpdateInterval = 0 },
			wantErr: "anti_entropy.update_interval",
		},
		{
			name:    "unknown log level",
			modify:  func(c *Config) { c.Log.Level = "chatty" },
			wantErr: "log.level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.Paths.Root = ""
	cfg.Storage.PoolSize = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() succeeded")
	}
	for _, want := range []string{"paths.root", "storage.pool_size"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Validate() error %q does not mention %s", err, want)
		}
	}
}

func TestEnsurePaths(t *testing.T) {
	root := filepath.Join(t.TempDir(), "safenet")

	cfg := Default()
	cfg.Paths.Root = root
	cfg.Paths.State = filepath.Join(root, "state")
	cfg.Paths.Registers = filepath.Join(root, "registers")
	cfg.Paths.Keys = filepath.Join(root, "keys")
	cfg.Paths.SectionTree = filepath.Join(root, "tree", "section-tree")

	if err := cfg.EnsurePaths(); err != nil {
		t.Fatalf("EnsurePaths failed: %v", err)
	}

	for _, path := range []string{root, cfg.Paths.State, cfg.Paths.Registers, cfg.Paths.Keys, filepath.Dir(cfg.Paths.SectionTree)} {
		info, err := os.Stat(path)
		if err != nil {
			t.Errorf("path %s not created: %v", path, err)
			continue
		}
		if !info.IsDir() {
			t.Errorf("path %s is not a directory", path)
		}
	}
	info, err := os.Stat(cfg.Paths.Keys)
	if err == nil && info.Mode().Perm() != 0700 {
		t.Errorf("keys directory mode = %o, want 0700", info.Mode().Perm())
	}
}
