// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package registerstore

import (
	"sync"

	"github.com/safenet-project/safenet/lib/xorname"
)

// addressLocks hands out one mutex per address id. Entries are dropped
// once no goroutine holds or waits for them.
type addressLocks struct {
	mu    sync.Mutex
	locks map[xorname.Name]*addressLock
}

type addressLock struct {
	sync.Mutex
	refs int
}

func (l *addressLocks) lock(id xorname.Name) func() {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[xorname.Name]*addressLock)
	}
	entry := l.locks[id]
	if entry == nil {
		entry = &addressLock{}
		l.locks[id] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.Lock()
	return func() {
		entry.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}
