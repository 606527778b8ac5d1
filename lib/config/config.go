// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/safenet-project/safenet/lib/compress"
)

// EnvVar names the environment variable Load reads the config path from.
const EnvVar = "SAFENET_CONFIG"

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local networks and test clusters.
	Development Environment = "development"
	// Staging is for pre-production networks.
	Staging Environment = "staging"
	// Production is for production deployments.
	Production Environment = "production"
)

// Config is the master configuration of a node.
type Config struct {
	// Environment identifies the deployment type (development, staging, production).
	Environment Environment `yaml:"environment"`

	Paths       PathsConfig       `yaml:"paths"`
	Network     NetworkConfig     `yaml:"network"`
	Comm        CommConfig        `yaml:"comm"`
	Storage     StorageConfig     `yaml:"storage"`
	AntiEntropy AntiEntropyConfig `yaml:"anti_entropy"`
	Replication ReplicationConfig `yaml:"replication"`
	Log         LogConfig         `yaml:"log"`

	// Per-environment overrides, applied after the base config is loaded.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	Paths       *PathsConfig       `yaml:"paths,omitempty"`
	Network     *NetworkConfig     `yaml:"network,omitempty"`
	Comm        *CommConfig        `yaml:"comm,omitempty"`
	Storage     *StorageOverrides  `yaml:"storage,omitempty"`
	AntiEntropy *AntiEntropyConfig `yaml:"anti_entropy,omitempty"`
	Replication *ReplicationConfig `yaml:"replication,omitempty"`
	Log         *LogConfig         `yaml:"log,omitempty"`
}

// PathsConfig configures directory locations.
type PathsConfig struct {
	// Root is the base directory for node data.
	Root string `yaml:"root"`

	// State holds runtime state that is not part of the register store.
	State string `yaml:"state"`

	// Registers is the register store root. One node per directory;
	// the store holds an exclusive lock on it.
	Registers string `yaml:"registers"`

	// Keys holds the node keypair (secret-key, public-key).
	Keys string `yaml:"keys"`

	// SectionTree is the file the node's section tree is persisted to
	// and restored from.
	SectionTree string `yaml:"section_tree"`
}

// NetworkConfig configures how the node reaches the network.
type NetworkConfig struct {
	// Listen is the TCP address to accept peer connections on.
	Listen string `yaml:"listen"`

	// Advertise is the address other nodes dial. Empty means Listen.
	Advertise string `yaml:"advertise"`

	// Contacts is a JSON-with-comments file naming the genesis key and
	// bootstrap peers.
	Contacts string `yaml:"contacts"`

	// DialTimeout bounds one outgoing connection attempt.
	DialTimeout time.Duration `yaml:"dial_timeout"`

	// GenesisKey is the hex genesis section key. When set it must
	// match the contacts file.
	GenesisKey string `yaml:"genesis_key"`
}

// CommConfig tunes the peer sessions.
type CommConfig struct {
	MaxSendRetries int           `yaml:"max_send_retries"`
	RetryWait      time.Duration `yaml:"retry_wait"`
	SessionQueue   int           `yaml:"session_queue"`
	EventBuffer    int           `yaml:"event_buffer"`
}

// StorageConfig tunes the register store.
type StorageConfig struct {
	// PoolSize is the number of index database connections.
	PoolSize int `yaml:"pool_size"`

	// Compression is the algorithm replica bundles are sealed with:
	// none, lz4 or zstd.
	Compression compress.Tag `yaml:"compression"`
}

// StorageOverrides is StorageConfig with an optional compression,
// since "none" is also the zero value.
type StorageOverrides struct {
	PoolSize    int           `yaml:"pool_size"`
	Compression *compress.Tag `yaml:"compression"`
}

// AntiEntropyConfig tunes network knowledge propagation.
type AntiEntropyConfig struct {
	// UpdateInterval is how often the node pushes its section
	// authority to the other sections.
	UpdateInterval time.Duration `yaml:"update_interval"`

	// ClosestCacheTTL bounds how long a closest-section lookup is
	// cached. Accepted authorities flush the cache regardless.
	ClosestCacheTTL time.Duration `yaml:"closest_cache_ttl"`

	// ResendInterval and ResendBurst rate limit resends of bounced
	// messages per peer.
	ResendInterval time.Duration `yaml:"resend_interval"`
	ResendBurst    int           `yaml:"resend_burst"`
}

// ReplicationConfig configures data placement.
type ReplicationConfig struct {
	// ReplicaCount is how many section members closest to a register
	// hold it.
	ReplicaCount int `yaml:"replica_count"`

	// RequestTimeout bounds a fan-out to the replicas.
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
}

// SlogLevel converts Level for slog. Unknown values map to info;
// Validate rejects them.
func (l LogConfig) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// Default returns the default configuration.
// These defaults are used as a base before loading the config file.
// They exist primarily to ensure all fields have sensible zero-values,
// not as a fallback - the config file is required.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultRoot := filepath.Join(homeDir, ".local", "share", "safenet")

	return &Config{
		Environment: Development,
		Paths: PathsConfig{
			Root:        defaultRoot,
			State:       filepath.Join(defaultRoot, "state"),
			Registers:   filepath.Join(defaultRoot, "registers"),
			Keys:        filepath.Join(defaultRoot, "keys"),
			SectionTree: filepath.Join(defaultRoot, "state", "section-tree"),
		},
		Network: NetworkConfig{
			Listen:      "0.0.0.0:12000",
			Contacts:    filepath.Join(defaultRoot, "contacts.jsonc"),
			DialTimeout: 10 * time.Second,
		},
		Comm: CommConfig{
			MaxSendRetries: 3,
			RetryWait:      500 * time.Millisecond,
			SessionQueue:   64,
			EventBuffer:    256,
		},
		Storage: StorageConfig{
			PoolSize:    4,
			Compression: compress.Zstd,
		},
		AntiEntropy: AntiEntropyConfig{
			UpdateInterval:  time.Minute,
			ClosestCacheTTL: 30 * time.Second,
			ResendInterval:  100 * time.Millisecond,
			ResendBurst:     4,
		},
		Replication: ReplicationConfig{
			ReplicaCount:   4,
			RequestTimeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level: "debug",
		},
	}
}

// Load loads configuration from the SAFENET_CONFIG environment variable.
//
// There are no fallbacks or defaults - if SAFENET_CONFIG is not set, this fails.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvVar)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your safenode.yaml config file, or use --config flag", EnvVar)
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
//
// The config file is the single source of truth. Environment variables do not
// override config values. The only expansion performed is ${HOME},
// ${SAFENET_ROOT} and similar path variables for portability.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// applyEnvironmentOverrides applies the environment-specific overrides.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
		// Production defaults: quieter logs.
		if overrides == nil {
			overrides = &ConfigOverrides{Log: &LogConfig{Level: "info"}}
		}
	}

	if overrides == nil {
		return
	}

	if o := overrides.Paths; o != nil {
		setString(&c.Paths.Root, o.Root)
		setString(&c.Paths.State, o.State)
		setString(&c.Paths.Registers, o.Registers)
		setString(&c.Paths.Keys, o.Keys)
		setString(&c.Paths.SectionTree, o.SectionTree)
	}

	if o := overrides.Network; o != nil {
		setString(&c.Network.Listen, o.Listen)
		setString(&c.Network.Advertise, o.Advertise)
		setString(&c.Network.Contacts, o.Contacts)
		setString(&c.Network.GenesisKey, o.GenesisKey)
		setDuration(&c.Network.DialTimeout, o.DialTimeout)
	}

	if o := overrides.Comm; o != nil {
		setInt(&c.Comm.MaxSendRetries, o.MaxSendRetries)
		setDuration(&c.Comm.RetryWait, o.RetryWait)
		setInt(&c.Comm.SessionQueue, o.SessionQueue)
		setInt(&c.Comm.EventBuffer, o.EventBuffer)
	}

	if o := overrides.Storage; o != nil {
		setInt(&c.Storage.PoolSize, o.PoolSize)
		if o.Compression != nil {
			c.Storage.Compression = *o.Compression
		}
	}

	if o := overrides.AntiEntropy; o != nil {
		setDuration(&c.AntiEntropy.UpdateInterval, o.UpdateInterval)
		setDuration(&c.AntiEntropy.ClosestCacheTTL, o.ClosestCacheTTL)
		setDuration(&c.AntiEntropy.ResendInterval, o.ResendInterval)
		setInt(&c.AntiEntropy.ResendBurst, o.ResendBurst)
	}

	if o := overrides.Replication; o != nil {
		setInt(&c.Replication.ReplicaCount, o.ReplicaCount)
		setDuration(&c.Replication.RequestTimeout, o.RequestTimeout)
	}

	if o := overrides.Log; o != nil {
		setString(&c.Log.Level, o.Level)
	}
}

func setString(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}

func setInt(dst *int, value int) {
	if value != 0 {
		*dst = value
	}
}

func setDuration(dst *time.Duration, value time.Duration) {
	if value != 0 {
		*dst = value
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"SAFENET_ROOT": c.Paths.Root,
		"HOME":         os.Getenv("HOME"),
	}

	c.Paths.Root = expandVars(c.Paths.Root, vars)
	vars["SAFENET_ROOT"] = c.Paths.Root // Update for dependent paths.

	c.Paths.State = expandVars(c.Paths.State, vars)
	c.Paths.Registers = expandVars(c.Paths.Registers, vars)
	c.Paths.Keys = expandVars(c.Paths.Keys, vars)
	c.Paths.SectionTree = expandVars(c.Paths.SectionTree, vars)
	c.Network.Contacts = expandVars(c.Network.Contacts, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} patterns.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors. Every problem is
// reported, not just the first.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if c.Paths.Root == "" {
		errs = append(errs, errors.New("paths.root is required"))
	}
	if c.Paths.Registers == "" {
		errs = append(errs, errors.New("paths.registers is required"))
	}
	if c.Paths.Keys == "" {
		errs = append(errs, errors.New("paths.keys is required"))
	}

	if c.Network.Listen == "" {
		errs = append(errs, errors.New("network.listen is required"))
	}
	if c.Network.Contacts == "" {
		errs = append(errs, errors.New("network.contacts is required"))
	}
	if c.Network.DialTimeout <= 0 {
		errs = append(errs, errors.New("network.dial_timeout must be positive"))
	}

	if c.Comm.MaxSendRetries < 0 {
		errs = append(errs, errors.New("comm.max_send_retries must not be negative"))
	}
	if c.Comm.SessionQueue < 0 || c.Comm.EventBuffer < 0 {
		errs = append(errs, errors.New("comm queue sizes must not be negative"))
	}

	if c.Storage.PoolSize < 1 {
		errs = append(errs, errors.New("storage.pool_size must be at least 1"))
	}
	if c.Storage.Compression > compress.Zstd {
		errs = append(errs, fmt.Errorf("storage.compression: unknown algorithm %s", c.Storage.Compression))
	}

	if c.AntiEntropy.UpdateInterval <= 0 {
		errs = append(errs, errors.New("anti_entropy.update_interval must be positive"))
	}
	if c.AntiEntropy.ResendBurst < 0 {
		errs = append(errs, errors.New("anti_entropy.resend_burst must not be negative"))
	}

	if c.Replication.ReplicaCount < 1 {
		errs = append(errs, errors.New("replication.replica_count must be at least 1"))
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}

	return errors.Join(errs...)
}

// AdvertiseAddr is the address peers should dial.
func (c *Config) AdvertiseAddr() string {
	if c.Network.Advertise != "" {
		return c.Network.Advertise
	}
	return c.Network.Listen
}

// EnsurePaths creates all configured directories if they don't exist.
func (c *Config) EnsurePaths() error {
	paths := []string{
		c.Paths.Root,
		c.Paths.State,
		c.Paths.Registers,
		filepath.Dir(c.Paths.SectionTree),
	}

	for _, path := range paths {
		if path == "" || path == "." {
			continue
		}
		if err := os.MkdirAll(path, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}
	// The key directory holds a secret key.
	if c.Paths.Keys != "" {
		if err := os.MkdirAll(c.Paths.Keys, 0700); err != nil {
			return fmt.Errorf("creating %s: %w", c.Paths.Keys, err)
		}
	}

	return nil
}
