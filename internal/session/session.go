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

// Package session is component F: it enforces the single-cursor
// discipline of §4.F. Exactly one cursor over the primary store is
// open between Open and Close; any call that needs a real read-write
// transaction must close that cursor first and reopen it afterward,
// because a long-lived cursor and an explicit transaction do not
// compose on the same handle.
package session

import (
	"fmt"

	"go.uber.org/multierr"

	"github.com/erigontech/dirstore/internal/ids"
	"github.com/erigontech/dirstore/internal/kv"
)

// Session owns the shared cursor over kv.Id2Entry.
type Session struct {
	db  kv.DB
	tx  kv.Tx
	cur kv.Cursor

	// lastID is the id the cursor last yielded via First/Seek/Next, or
	// ids.NOID if it has never yielded one. WithRwTx tears down and
	// reopens the cursor around every call, so a freshly opened cursor
	// must be fast-forwarded back to lastID — otherwise it resumes
	// unpositioned and the next Next() looks like end-of-table.
	lastID ids.ID
}

// Open starts a Session with its cursor positioned before the first
// entry.
func Open(db kv.DB) (*Session, error) {
	s := &Session{db: db, lastID: ids.NOID}
	if err := s.openCursor(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Session) openCursor() error {
	tx, err := s.db.BeginRo()
	if err != nil {
		return fmt.Errorf("session: begin ro: %w", err)
	}
	cur, err := tx.Cursor(kv.Id2Entry)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("session: open cursor: %w", err)
	}
	s.tx, s.cur = tx, cur

	if s.lastID != ids.NOID {
		if _, _, err := cur.Seek(ids.Encode(s.lastID)); err != nil {
			return fmt.Errorf("session: reposition cursor: %w", err)
		}
	}
	return nil
}

func (s *Session) closeCursor() {
	if s.cur != nil {
		s.cur.Close()
		s.cur = nil
	}
	if s.tx != nil {
		s.tx.Rollback()
		s.tx = nil
	}
}

// Get reads one entry by id without disturbing the shared cursor's
// position.
func (s *Session) Get(id ids.ID) ([]byte, error) {
	return s.tx.GetOne(kv.Id2Entry, ids.Encode(id))
}

// First positions the shared cursor at the lowest id in the primary
// store.
func (s *Session) First() (ids.ID, []byte, error) {
	k, v, err := s.cur.First()
	if err != nil {
		return ids.NOID, nil, err
	}
	if k == nil {
		return ids.NOID, nil, kv.ErrNotFound
	}
	id := ids.Decode(k)
	s.lastID = id
	return id, v, nil
}

// Seek positions the shared cursor at the first id >= id.
func (s *Session) Seek(id ids.ID) (ids.ID, []byte, error) {
	k, v, err := s.cur.Seek(ids.Encode(id))
	if err != nil {
		return ids.NOID, nil, err
	}
	if k == nil {
		return ids.NOID, nil, kv.ErrNotFound
	}
	got := ids.Decode(k)
	s.lastID = got
	return got, v, nil
}

// Next advances the shared cursor.
func (s *Session) Next() (ids.ID, []byte, error) {
	k, v, err := s.cur.Next()
	if err != nil {
		return ids.NOID, nil, err
	}
	if k == nil {
		return ids.NOID, nil, kv.ErrNotFound
	}
	id := ids.Decode(k)
	s.lastID = id
	return id, v, nil
}

// WithRwTx closes the shared cursor, runs f under a fresh read-write
// transaction — committing on success, rolling back on error — and
// reopens the cursor before returning, regardless of outcome. The
// reopened cursor is repositioned at the last id First/Seek/Next
// yielded, so a caller driving a scan through WithRwTx calls can
// resume with Next() exactly as if the cursor had never been closed.
func (s *Session) WithRwTx(f func(tx kv.RwTx) error) error {
	s.closeCursor()

	rwtx, err := s.db.BeginRw()
	if err != nil {
		return multierr.Append(fmt.Errorf("session: begin rw: %w", err), s.openCursor())
	}

	ferr := f(rwtx)
	if ferr != nil {
		rwtx.Rollback()
	} else {
		ferr = rwtx.Commit()
	}
	return multierr.Append(ferr, s.openCursor())
}

// Close releases the shared cursor and its backing transaction.
func (s *Session) Close() {
	s.closeCursor()
}
