// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package registerstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
	"zombiezen.com/go/sqlite"

	"github.com/safenet-project/safenet/lib/compress"
	"github.com/safenet-project/safenet/lib/neterr"
	"github.com/safenet-project/safenet/lib/register"
	"github.com/safenet-project/safenet/lib/sqlitepool"
	"github.com/safenet-project/safenet/lib/xorname"
)

// Config holds the parameters for opening a store.
type Config struct {
	// Root is the store directory. It is created if missing.
	Root string

	// PoolSize is the SQLite index pool size. Zero uses the
	// sqlitepool default.
	PoolSize int

	// Compression is applied to bundles produced by ExportBundle.
	Compression compress.Tag

	Logger *slog.Logger
}

// Store holds register logs on local disk. It is safe for concurrent
// use.
type Store struct {
	root        string
	logDir      string
	cacheDir    string
	pool        *sqlitepool.Pool
	lockFile    *os.File
	locks       addressLocks
	compression compress.Tag
	logger      *slog.Logger
}

// Open opens or creates the store under cfg.Root, takes the root lock
// and reconciles the index with the log files present.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Root == "" {
		return nil, fmt.Errorf("registerstore: Root is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	store := &Store{
		root:        cfg.Root,
		logDir:      filepath.Join(cfg.Root, "registers"),
		cacheDir:    filepath.Join(cfg.Root, "cache"),
		compression: cfg.Compression,
		logger:      logger,
	}
	for _, dir := range []string{store.logDir, store.cacheDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("registerstore: %w", err)
		}
	}

	lockFile, err := lockRoot(cfg.Root)
	if err != nil {
		return nil, err
	}
	store.lockFile = lockFile

	store.pool, err = sqlitepool.Open(sqlitepool.Config{
		Path:       filepath.Join(cfg.Root, "index.db"),
		PoolSize:   cfg.PoolSize,
		Migrations: indexMigrations,
		Logger:     logger,
	})
	if err != nil {
		lockFile.Close()
		return nil, fmt.Errorf("registerstore: %w", err)
	}

	if err := store.reconcile(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("registerstore: reconciling index: %w", err)
	}
	return store, nil
}

func lockRoot(root string) (*os.File, error) {
	path := filepath.Join(root, "LOCK")
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("registerstore: %w", err)
	}
	if err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		file.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("registerstore: %s is in use by another process", root)
		}
		return nil, fmt.Errorf("registerstore: locking %s: %w", path, err)
	}
	return file, nil
}

// Close closes the index and releases the root lock.
func (s *Store) Close() error {
	var errs []error
	if s.pool != nil {
		errs = append(errs, s.pool.Close())
	}
	if s.lockFile != nil {
		errs = append(errs, unix.Flock(int(s.lockFile.Fd()), unix.LOCK_UN), s.lockFile.Close())
	}
	return errors.Join(errs...)
}

func (s *Store) logPath(id xorname.Name) string {
	return filepath.Join(s.logDir, id.Hex()+".log")
}

func (s *Store) cachePath(id xorname.Name) string {
	return filepath.Join(s.cacheDir, id.Hex()+".state")
}

// loaded is one address's log held under its lock.
type loaded struct {
	stored  *register.StoredRegister
	records []record
	seen    map[digest]struct{}

	hadState bool
	before   int
	pending  [][]byte
	sums     []digest
}

func (s *Store) load(address register.Address) (*loaded, error) {
	id := address.ID()
	records, err := readLog(s.logPath(id), s.logger)
	if err != nil && !isNotExist(err) {
		return nil, neterr.E("registerstore.load", neterr.Io, address.String(), err)
	}

	commands := make([]register.Command, len(records))
	seen := make(map[digest]struct{}, len(records))
	for i, rec := range records {
		commands[i] = rec.command
		seen[rec.digest] = struct{}{}
	}

	var stored *register.StoredRegister
	if state, ok := readCache(s.cachePath(id), records); ok && state.Address() == address {
		stored = &register.StoredRegister{Address: address, State: state, Log: commands}
	} else {
		stored = register.Rebuild(address, commands, s.logger)
		if stored.State != nil {
			if err := writeCache(s.cachePath(id), stored.State, records); err != nil {
				s.logger.Warn("refreshing register state cache failed", "address", address.String(), "error", err)
			}
		}
	}
	return &loaded{
		stored:   stored,
		records:  records,
		seen:     seen,
		hadState: stored.State != nil,
		before:   len(records),
	}, nil
}

// apply runs cmd through the state machine. It reports whether the
// command was appended; an exact repeat of a logged edit is skipped.
func (s *Store) apply(l *loaded, cmd register.Command) (bool, error) {
	rec, payload, err := encodeCommand(cmd)
	if err != nil {
		return false, neterr.E("registerstore.apply", neterr.Serialisation, "", err)
	}
	if _, dup := l.seen[rec.digest]; dup && !cmd.IsCreate() {
		return false, nil
	}
	if err := l.stored.Apply(cmd, s.logger); err != nil {
		return false, err
	}
	l.seen[rec.digest] = struct{}{}
	l.pending = append(l.pending, payload)
	l.sums = append(l.sums, rec.digest)
	return true, nil
}

// persist writes the commands appended since load. When replaying a
// Create dropped buffered edits the log is rewritten instead.
func (s *Store) persist(ctx context.Context, l *loaded) error {
	if len(l.pending) == 0 {
		return nil
	}
	address := l.stored.Address
	id := address.ID()
	path := s.logPath(id)

	if len(l.stored.Log) == l.before+len(l.pending) {
		if err := appendLog(path, l.pending, l.sums); err != nil {
			return neterr.E("registerstore.persist", neterr.Io, address.String(), err)
		}
		for i, sum := range l.sums {
			l.records = append(l.records, record{command: l.stored.Log[l.before+i], digest: sum})
		}
	} else {
		records, err := rewriteLog(path, l.stored.Log)
		if err != nil {
			return neterr.E("registerstore.persist", neterr.Io, address.String(), err)
		}
		l.records = records
	}
	l.before = len(l.records)
	l.pending, l.sums = nil, nil

	if l.stored.State != nil {
		if err := writeCache(s.cachePath(id), l.stored.State, l.records); err != nil {
			s.logger.Warn("writing register state cache failed", "address", address.String(), "error", err)
		}
	}

	row := indexRow{Address: address, Commands: len(l.records), Created: l.stored.State != nil}
	if err := s.pool.Tx(ctx, func(conn *sqlite.Conn) error { return upsertRow(conn, row) }); err != nil {
		return neterr.E("registerstore.persist", neterr.Io, "index "+address.String(), err)
	}
	return nil
}

// reconcile adds index rows for logs the index does not know and drops
// rows whose log is gone.
func (s *Store) reconcile(ctx context.Context) error {
	rows, err := s.listRows(ctx, xorname.Prefix{})
	if err != nil {
		return err
	}
	indexed := make(map[xorname.Name]bool, len(rows))
	for _, row := range rows {
		indexed[row.Address.ID()] = true
	}

	entries, err := os.ReadDir(s.logDir)
	if err != nil {
		return err
	}
	onDisk := make(map[xorname.Name]bool, len(entries))
	for _, entry := range entries {
		hexID, ok := strings.CutSuffix(entry.Name(), ".log")
		if !ok || entry.IsDir() {
			continue
		}
		id, err := xorname.Parse(hexID)
		if err != nil {
			s.logger.Warn("ignoring unexpected file in register log directory", "file", entry.Name())
			continue
		}
		onDisk[id] = true
		if indexed[id] {
			continue
		}
		if err := s.reindex(ctx, id); err != nil {
			return err
		}
	}

	for _, row := range rows {
		id := row.Address.ID()
		if onDisk[id] {
			continue
		}
		s.logger.Info("dropping index row for missing register log", "address", row.Address.String())
		if err := s.pool.Tx(ctx, func(conn *sqlite.Conn) error { return deleteRow(conn, id) }); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) reindex(ctx context.Context, id xorname.Name) error {
	path := s.logPath(id)
	records, err := readLog(path, s.logger)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		s.logger.Warn("removing empty register log", "path", path)
		return os.Remove(path)
	}
	address := records[0].command.Dst()
	if address.ID() != id {
		s.logger.Warn("register log holds commands for another address",
			"path", path,
			"address", address.String(),
		)
		return nil
	}
	commands := make([]register.Command, len(records))
	for i, rec := range records {
		commands[i] = rec.command
	}
	stored := register.Rebuild(address, commands, s.logger)
	row := indexRow{Address: address, Commands: len(records), Created: stored.State != nil}
	s.logger.Info("indexed register log", "address", address.String(), "commands", len(records))
	return s.pool.Tx(ctx, func(conn *sqlite.Conn) error { return upsertRow(conn, row) })
}
