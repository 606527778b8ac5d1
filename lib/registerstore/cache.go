// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package registerstore

import (
	"os"

	"github.com/google/renameio"

	"github.com/safenet-project/safenet/lib/codec"
	"github.com/safenet-project/safenet/lib/register"
)

// cachedState is the on-disk materialised register. It is valid only
// for the log whose last record has digest Head and which holds
// Commands records.
type cachedState struct {
	Head     digest            `cbor:"1,keyasint"`
	Commands int               `cbor:"2,keyasint"`
	Snapshot register.Snapshot `cbor:"3,keyasint"`
}

func readCache(path string, records []record) (*register.Register, bool) {
	if len(records) == 0 {
		return nil, false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	var cached cachedState
	if err := codec.Unmarshal(data, &cached); err != nil {
		return nil, false
	}
	if cached.Commands != len(records) || cached.Head != records[len(records)-1].digest {
		return nil, false
	}
	state, err := register.FromSnapshot(cached.Snapshot.Policy.Owner, cached.Snapshot)
	if err != nil {
		return nil, false
	}
	return state, true
}

func writeCache(path string, state *register.Register, records []record) error {
	data, err := codec.Marshal(cachedState{
		Head:     records[len(records)-1].digest,
		Commands: len(records),
		Snapshot: state.Snapshot(),
	})
	if err != nil {
		return err
	}
	return renameio.WriteFile(path, data, 0o644)
}
