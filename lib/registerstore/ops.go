// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package registerstore

import (
	"context"
	"errors"
	"os"

	"zombiezen.com/go/sqlite"

	"github.com/safenet-project/safenet/lib/neterr"
	"github.com/safenet-project/safenet/lib/register"
	"github.com/safenet-project/safenet/lib/xorname"
)

// ReplicaLog is the full command log of one address, as exchanged
// between replicas.
type ReplicaLog struct {
	Address register.Address   `cbor:"1,keyasint"`
	Log     []register.Command `cbor:"2,keyasint"`
}

// Write applies cmd to the log of its destination and persists it when
// accepted. A Create for an address that already holds a register
// fails with DataExists. An edit identical to one already logged is
// accepted without being stored twice.
func (s *Store) Write(ctx context.Context, cmd register.Command) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	address := cmd.Dst()
	unlock := s.locks.lock(address.ID())
	defer unlock()

	l, err := s.load(address)
	if err != nil {
		return err
	}
	if _, err := s.apply(l, cmd); err != nil {
		return err
	}
	return s.persist(ctx, l)
}

// Read answers query on behalf of requester. The requester must hold
// read permission under the register's policy.
func (s *Store) Read(ctx context.Context, query register.Query, requester register.User) (register.QueryResponse, error) {
	const op = "registerstore.Read"
	address := query.Address
	unlock := s.locks.lock(address.ID())
	l, err := s.load(address)
	unlock()
	if err != nil {
		return register.QueryResponse{}, err
	}
	state := l.stored.State
	if state == nil {
		return register.QueryResponse{}, neterr.E(op, neterr.RegisterNotFound, address.String(), nil)
	}
	if err := state.CheckPermissions(register.Read, requester); err != nil {
		return register.QueryResponse{}, err
	}

	response := register.QueryResponse{Kind: query.Kind}
	switch query.Kind {
	case register.GetRegister:
		snapshot := state.Snapshot()
		response.Register = &snapshot
	case register.ReadRegister:
		response.Entries = state.Read()
	case register.GetOwner:
		owner := state.Owner()
		response.Owner = &owner
	case register.GetEntry:
		value, err := state.Get(query.Hash)
		if err != nil {
			return register.QueryResponse{}, err
		}
		response.Entry = value
	case register.GetPolicy:
		policy := state.Policy()
		response.Policy = &policy
	case register.GetUserPermissions:
		permissions, err := state.Permissions(query.User)
		if err != nil {
			return register.QueryResponse{}, err
		}
		response.Permissions = &permissions
	default:
		return register.QueryResponse{}, neterr.E(op, neterr.InvalidInput, "unknown query kind "+query.Kind.String(), nil)
	}
	return response, nil
}

// Update ingests a peer's log for one address. Commands that fail
// validation, including a second Create, are discarded with a warning.
// Only storage failures are returned.
func (s *Store) Update(ctx context.Context, replica ReplicaLog) error {
	address := replica.Address
	unlock := s.locks.lock(address.ID())
	defer unlock()

	l, err := s.load(address)
	if err != nil {
		return err
	}
	for _, cmd := range replica.Log {
		if cmd.Validate() == nil && cmd.Dst() != address {
			s.logger.Warn("discarding replicated command for another address",
				"address", address.String(),
				"command_address", cmd.Dst().String(),
			)
			continue
		}
		if _, err := s.apply(l, cmd); err != nil {
			s.logger.Warn("discarding replicated register command",
				"address", address.String(),
				"error", err,
			)
		}
	}
	return s.persist(ctx, l)
}

// Replica returns the stored log for address.
func (s *Store) Replica(ctx context.Context, address register.Address) (ReplicaLog, error) {
	unlock := s.locks.lock(address.ID())
	defer unlock()

	records, err := readLog(s.logPath(address.ID()), s.logger)
	if isNotExist(err) || (err == nil && len(records) == 0) {
		return ReplicaLog{}, neterr.E("registerstore.Replica", neterr.RegisterNotFound, address.String(), nil)
	}
	if err != nil {
		return ReplicaLog{}, neterr.E("registerstore.Replica", neterr.Io, address.String(), err)
	}
	replica := ReplicaLog{Address: address, Log: make([]register.Command, len(records))}
	for i, rec := range records {
		replica.Log[i] = rec.command
	}
	return replica, nil
}

// Export returns the logs of every held address whose name matches
// prefix, ordered by address id. The empty prefix exports everything.
func (s *Store) Export(ctx context.Context, prefix xorname.Prefix) ([]ReplicaLog, error) {
	rows, err := s.listRows(ctx, prefix)
	if err != nil {
		return nil, neterr.E("registerstore.Export", neterr.Io, prefix.String(), err)
	}
	replicas := make([]ReplicaLog, 0, len(rows))
	for _, row := range rows {
		replica, err := s.Replica(ctx, row.Address)
		if errors.Is(err, neterr.RegisterNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		replicas = append(replicas, replica)
	}
	return replicas, nil
}

// Addresses lists every address with a log, ordered by address id.
func (s *Store) Addresses(ctx context.Context) ([]register.Address, error) {
	rows, err := s.listRows(ctx, xorname.Prefix{})
	if err != nil {
		return nil, neterr.E("registerstore.Addresses", neterr.Io, "", err)
	}
	addresses := make([]register.Address, len(rows))
	for i, row := range rows {
		addresses[i] = row.Address
	}
	return addresses, nil
}

// Remove deletes the log, cached state and index row of address.
func (s *Store) Remove(ctx context.Context, address register.Address) error {
	const op = "registerstore.Remove"
	id := address.ID()
	unlock := s.locks.lock(id)
	defer unlock()

	err := os.Remove(s.logPath(id))
	if isNotExist(err) {
		return neterr.E(op, neterr.RegisterNotFound, address.String(), nil)
	}
	if err != nil {
		return neterr.E(op, neterr.Io, address.String(), err)
	}
	if err := os.Remove(s.cachePath(id)); err != nil && !isNotExist(err) {
		s.logger.Warn("removing register state cache failed", "address", address.String(), "error", err)
	}
	if err := s.pool.Tx(ctx, func(conn *sqlite.Conn) error { return deleteRow(conn, id) }); err != nil {
		return neterr.E(op, neterr.Io, "index "+address.String(), err)
	}
	s.logger.Info("removed register", "address", address.String())
	return nil
}
