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

// Package kv is the narrow slice of erigon-lib/kv's Tx/Cursor contract
// that the bulk-load core needs: duplicate-key-capable tables, ordered
// cursors, and explicit read-write transactions. It is deliberately
// store-agnostic — internal/kv/mdbxkv and internal/kv/boltkv are the
// two adapters that exist today.
package kv

import "errors"

// ErrNotFound is returned by GetOne and by the dup-sort cursor's
// SeekExact, FirstDup and NextDup when the key (or the next duplicate)
// is absent. First, Seek and Next report the end of the table with a
// nil key and a nil error instead. Callers
// treat it as a branch, never as a propagated error (§7, KV-notfound).
var ErrNotFound = errors.New("kv: key not found")

// ErrKeyExists is returned by RwCursorDupSort.PutDup with NoDupData when the
// exact (key, value) duplicate already exists. §7 requires this be
// treated as success, not surfaced.
var ErrKeyExists = errors.New("kv: duplicate key/value exists")

// Tx is a read-only view. All reads inside one Tx observe one
// consistent snapshot.
type Tx interface {
	// GetOne returns the first value stored at key, or ErrNotFound.
	GetOne(table string, key []byte) ([]byte, error)
	// Cursor opens a forward-ordered cursor over table. Callers must
	// Close it; session.Session enforces the single-cursor discipline
	// of §4.F on top of this primitive.
	Cursor(table string) (Cursor, error)
	// CursorDupSort opens a cursor over a table that stores multiple
	// values per key, ordered, with per-key duplicate iteration.
	CursorDupSort(table string) (CursorDupSort, error)
	// Rollback releases the transaction's resources. Safe to call
	// after Commit on an RwTx; a no-op on an already-closed Tx.
	Rollback()
}

// RwTx is a read-write transaction (§6: explicit txn_begin/commit/abort).
type RwTx interface {
	Tx
	Put(table string, key, value []byte) error
	Delete(table string, key []byte) error
	RwCursor(table string) (RwCursor, error)
	RwCursorDupSort(table string) (RwCursorDupSort, error)
	Commit() error
}

// Cursor walks one table in key order.
type Cursor interface {
	First() (k, v []byte, err error)
	Seek(seek []byte) (k, v []byte, err error)
	Next() (k, v []byte, err error)
	Close()
}

// CursorDupSort adds per-key duplicate iteration (§6: DB_NEXT_DUP,
// c_count) to Cursor.
type CursorDupSort interface {
	Cursor
	// SeekExact positions at key and returns its first duplicate, or
	// ErrNotFound if the key is absent.
	SeekExact(key []byte) (v []byte, err error)
	// FirstDup returns the first duplicate at the cursor's current key.
	FirstDup() (v []byte, err error)
	// NextDup advances to the next duplicate of the current key, or
	// ErrNotFound if there is none (§6: DB_NEXT_DUP).
	NextDup() (k, v []byte, err error)
	// CountDuplicates returns the number of duplicates at the cursor's
	// current key (§6: c_count).
	CountDuplicates() (uint64, error)
}

// PutFlag mirrors the BDB/MDBX put-flag vocabulary §6 assumes exists
// (PUT_NODUPDATA, KEYFIRST, KEYLAST).
type PutFlag int

const (
	// KeyLast appends the value as the last (highest-sorting)
	// duplicate for the key, skipping the comparator. Used when the
	// caller already knows the value sorts last (e.g. monotonically
	// increasing ids).
	KeyLast PutFlag = iota
	// KeyFirst inserts the value respecting the duplicate sort order,
	// i.e. a normal sorted insert.
	KeyFirst
	// NoDupData rejects (as ErrKeyExists) an insert whose (key, value)
	// pair already exists, rather than silently duplicating it.
	NoDupData
)

// RwCursor adds mutation to Cursor.
type RwCursor interface {
	Cursor
	Put(k, v []byte) error
	// DeleteCurrent deletes the key/value pair the cursor currently
	// sits on (§6: c_del).
	DeleteCurrent() error
}

// RwCursorDupSort is the cursor type the IDL cache flush path (§4.A)
// is written against.
type RwCursorDupSort interface {
	CursorDupSort
	RwCursor
	// PutDup inserts v as a duplicate of k using flag's ordering hint.
	PutDup(k, v []byte, flag PutFlag) error
	// DeleteCurrentDuplicates removes every duplicate at the cursor's
	// current key, leaving the key absent.
	DeleteCurrentDuplicates() error
}

// DB opens transactions against the three persisted tables of §6
// (primary, dn2id, one secondary per indexed attribute).
type DB interface {
	View(f func(tx Tx) error) error
	Update(f func(tx RwTx) error) error
	// BeginRo starts an explicit read-only transaction whose lifetime
	// outlives a single closure. session.Session uses this to keep one
	// cursor open across many calls (§4.F).
	BeginRo() (Tx, error)
	// BeginRw starts an explicit read-write transaction. Callers must
	// Commit or Rollback it. Used by the Load Pipeline (§4.D), which
	// needs transaction lifetime to outlive a single closure when not
	// in quick mode.
	BeginRw() (RwTx, error)
	Close() error
}
