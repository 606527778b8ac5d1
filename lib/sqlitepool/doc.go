// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool opens SQLite databases for node-local indexes.
//
// A [Pool] wraps zombiezen's sqlitex.Pool. Every connection gets the
// same pragmas (WAL journal, NORMAL synchronous, a busy timeout and an
// in-memory temp store) and then has the caller's [Migration] list
// applied, keyed on PRAGMA user_version so each step runs once per
// database file.
//
// The register store keeps its address index here. The index is
// derived data: the append-only register logs are the source of truth,
// so losing the last few committed index rows to an OS crash is
// recoverable by a rescan.
//
//	pool, err := sqlitepool.Open(sqlitepool.Config{
//	    Path:       filepath.Join(root, "index.db"),
//	    Migrations: []sqlitepool.Migration{createRegisters},
//	    Logger:     logger,
//	})
//	...
//	err = pool.Tx(ctx, func(conn *sqlite.Conn) error {
//	    return sqlitex.Execute(conn, "INSERT ...", &sqlitex.ExecOptions{Args: ...})
//	})
package sqlitepool
