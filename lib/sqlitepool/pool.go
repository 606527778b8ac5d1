// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sqlitepool

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// Migration is one schema step. Steps are applied in slice order and
// never edited once released; new schema goes in a new step.
type Migration string

// Config holds the parameters for opening a pool.
type Config struct {
	// Path is the database file. The parent directory must exist.
	// ":memory:" is accepted, but each connection then sees its own
	// database, so PoolSize should be 1.
	Path string

	// PoolSize defaults to max(runtime.NumCPU(), 4).
	PoolSize int

	// Migrations are applied on every new connection, skipping steps
	// already recorded in PRAGMA user_version.
	Migrations []Migration

	// Logger defaults to a discarding logger.
	Logger *slog.Logger
}

// Pool is a fixed-size set of prepared connections. It is safe for
// concurrent use; a connection taken from it is not.
type Pool struct {
	inner  *sqlitex.Pool
	logger *slog.Logger
	path   string

	closeOnce sync.Once
	closeErr  error
}

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA cache_size=-4096",
	"PRAGMA temp_store=MEMORY",
}

// Open creates the pool. Connections are prepared lazily on first
// Take, so schema errors surface there rather than here.
func Open(cfg Config) (*Pool, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlitepool: Path is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	size := cfg.PoolSize
	if size <= 0 {
		size = max(runtime.NumCPU(), 4)
	}

	migrations := cfg.Migrations
	inner, err := sqlitex.NewPool(cfg.Path, sqlitex.PoolOptions{
		PoolSize: size,
		PrepareConn: func(conn *sqlite.Conn) error {
			return prepare(conn, migrations)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("sqlitepool: opening %s: %w", cfg.Path, err)
	}
	logger.Debug("sqlite pool opened", "path", cfg.Path, "pool_size", size)
	return &Pool{inner: inner, logger: logger, path: cfg.Path}, nil
}

// Take borrows a connection, blocking until one is free or ctx ends.
// Every successful Take must be paired with Put.
func (p *Pool) Take(ctx context.Context) (*sqlite.Conn, error) {
	conn, err := p.inner.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("sqlitepool: take: %w", err)
	}
	return conn, nil
}

// Put returns a connection. A nil conn is ignored.
func (p *Pool) Put(conn *sqlite.Conn) {
	if conn == nil {
		return
	}
	p.inner.Put(conn)
}

// Do runs fn on a borrowed connection without a transaction.
func (p *Pool) Do(ctx context.Context, fn func(conn *sqlite.Conn) error) error {
	conn, err := p.Take(ctx)
	if err != nil {
		return err
	}
	defer p.Put(conn)
	return fn(conn)
}

// Tx runs fn inside an IMMEDIATE transaction. The transaction commits
// when fn returns nil and rolls back otherwise.
func (p *Pool) Tx(ctx context.Context, fn func(conn *sqlite.Conn) error) (err error) {
	conn, err := p.Take(ctx)
	if err != nil {
		return err
	}
	defer p.Put(conn)

	end, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("sqlitepool: begin: %w", err)
	}
	defer end(&err)
	return fn(conn)
}

// Close waits for borrowed connections to come back, then closes them.
// Later calls return the first call's result.
func (p *Pool) Close() error {
	p.closeOnce.Do(func() {
		if err := p.inner.Close(); err != nil {
			p.logger.Error("sqlite pool close failed", "path", p.path, "error", err)
			p.closeErr = fmt.Errorf("sqlitepool: closing %s: %w", p.path, err)
			return
		}
		p.logger.Debug("sqlite pool closed", "path", p.path)
	})
	return p.closeErr
}

func prepare(conn *sqlite.Conn, migrations []Migration) error {
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("sqlitepool: %s: %w", pragma, err)
		}
	}
	return migrate(conn, migrations)
}

// migrate applies the steps past the stored user_version. Concurrent
// connections race on first open, so the check and the steps share
// one IMMEDIATE transaction.
func migrate(conn *sqlite.Conn, migrations []Migration) (err error) {
	if len(migrations) == 0 {
		return nil
	}
	end, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("sqlitepool: migrate: %w", err)
	}
	defer end(&err)

	current, err := userVersion(conn)
	if err != nil {
		return err
	}
	if current > len(migrations) {
		return fmt.Errorf("sqlitepool: database schema version %d is newer than this binary (%d)", current, len(migrations))
	}
	for index := current; index < len(migrations); index++ {
		if err := sqlitex.ExecuteScript(conn, string(migrations[index]), nil); err != nil {
			return fmt.Errorf("sqlitepool: migration %d: %w", index+1, err)
		}
	}
	if current == len(migrations) {
		return nil
	}
	return sqlitex.ExecuteTransient(conn, fmt.Sprintf("PRAGMA user_version=%d", len(migrations)), nil)
}

// UserVersion reports the number of migrations applied to the database
// behind conn.
func UserVersion(conn *sqlite.Conn) (int, error) {
	return userVersion(conn)
}

func userVersion(conn *sqlite.Conn) (int, error) {
	version := 0
	err := sqlitex.ExecuteTransient(conn, "PRAGMA user_version", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			version = stmt.ColumnInt(0)
			return nil
		},
	})
	if err != nil {
		return 0, fmt.Errorf("sqlitepool: reading user_version: %w", err)
	}
	return version, nil
}
