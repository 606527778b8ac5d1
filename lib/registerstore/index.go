// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package registerstore

import (
	"context"
	"fmt"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/safenet-project/safenet/lib/register"
	"github.com/safenet-project/safenet/lib/sqlitepool"
	"github.com/safenet-project/safenet/lib/xorname"
)

var indexMigrations = []sqlitepool.Migration{
	`CREATE TABLE registers (
		id       TEXT PRIMARY KEY,
		name     TEXT NOT NULL,
		tag      INTEGER NOT NULL,
		commands INTEGER NOT NULL,
		created  INTEGER NOT NULL
	);
	CREATE INDEX registers_by_name ON registers(name);`,
}

// indexRow is what the index knows about one address.
type indexRow struct {
	Address  register.Address
	Commands int
	Created  bool
}

func upsertRow(conn *sqlite.Conn, row indexRow) error {
	created := 0
	if row.Created {
		created = 1
	}
	return sqlitex.Execute(conn, `
		INSERT INTO registers (id, name, tag, commands, created) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET commands = excluded.commands, created = excluded.created`,
		&sqlitex.ExecOptions{Args: []any{
			row.Address.ID().Hex(),
			row.Address.Name.Hex(),
			int64(row.Address.Tag),
			row.Commands,
			created,
		}})
}

func deleteRow(conn *sqlite.Conn, id xorname.Name) error {
	return sqlitex.Execute(conn, "DELETE FROM registers WHERE id = ?",
		&sqlitex.ExecOptions{Args: []any{id.Hex()}})
}

func scanRow(stmt *sqlite.Stmt) (indexRow, error) {
	name, err := xorname.Parse(stmt.GetText("name"))
	if err != nil {
		return indexRow{}, fmt.Errorf("index row %s: %w", stmt.GetText("id"), err)
	}
	return indexRow{
		Address:  register.Address{Name: name, Tag: uint64(stmt.GetInt64("tag"))},
		Commands: int(stmt.GetInt64("commands")),
		Created:  stmt.GetInt64("created") != 0,
	}, nil
}

// listRows returns the rows whose name matches prefix, ordered by id.
// The byte-aligned part of the prefix narrows the scan in SQL and the
// remaining bits are checked here.
func (s *Store) listRows(ctx context.Context, prefix xorname.Prefix) ([]indexRow, error) {
	pattern := prefix.Name().Hex()[:prefix.BitCount()/4] + "%"
	var rows []indexRow
	err := s.pool.Do(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			"SELECT id, name, tag, commands, created FROM registers WHERE name LIKE ? ORDER BY id",
			&sqlitex.ExecOptions{
				Args: []any{pattern},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					row, err := scanRow(stmt)
					if err != nil {
						return err
					}
					if prefix.Matches(row.Address.Name) {
						rows = append(rows, row)
					}
					return nil
				},
			})
	})
	if err != nil {
		return nil, fmt.Errorf("listing index: %w", err)
	}
	return rows, nil
}
