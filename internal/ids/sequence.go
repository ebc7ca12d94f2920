// Copyright 2024 The Erigon Authors
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Erigon is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Erigon. If not, see <http://www.gnu.org/licenses/>.

package ids

import (
	"errors"
	"fmt"
	"sync"

	"github.com/erigontech/dirstore/internal/kv"
)

const nextIDKey = "next_id"

// reserveBatch bounds how many ids a crash between Next calls can
// waste: Sequence durably reserves a batch at a time rather than
// fsyncing on every allocation.
const reserveBatch = 4096

// retryingUpdater is implemented by backends that can transparently
// retry a transaction that failed on a transient condition
// (internal/kv/mdbxkv.DB.UpdateRetrying). Sequence uses it when
// available, since a batch reservation that fails to commit would
// otherwise waste the whole reserved range.
type retryingUpdater interface {
	UpdateRetrying(f func(kv.RwTx) error) error
}

// Sequence is a Generator that persists its high-water mark in a
// kv.DB's Meta table, reserveBatch ids at a time. The first id it ever
// hands out is 1 — 0 is NOID.
type Sequence struct {
	mu       sync.Mutex
	db       kv.DB
	next     ID
	reserved ID
}

// NewSequence opens (or initializes) a Sequence against db.
func NewSequence(db kv.DB) (*Sequence, error) {
	s := &Sequence{db: db, next: 1, reserved: 1}
	err := db.View(func(tx kv.Tx) error {
		v, err := tx.GetOne(kv.Meta, []byte(nextIDKey))
		if errors.Is(err, kv.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		s.next = Decode(v)
		s.reserved = s.next
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ids: open sequence: %w", err)
	}
	return s, nil
}

// Next returns the next unused id, reserving a fresh batch first if
// the current one is exhausted.
func (s *Sequence) Next() (ID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.next >= s.reserved {
		reserved := s.next + reserveBatch
		put := func(tx kv.RwTx) error {
			return tx.Put(kv.Meta, []byte(nextIDKey), Encode(reserved))
		}
		update := s.db.Update
		if r, ok := s.db.(retryingUpdater); ok {
			update = r.UpdateRetrying
		}
		if err := update(put); err != nil {
			return NOID, fmt.Errorf("ids: reserve batch: %w", err)
		}
		s.reserved = reserved
	}

	id := s.next
	s.next++
	return id, nil
}
