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

// Package boltkv backs internal/kv with go.etcd.io/bbolt. bbolt has no
// native MDBX_DUPSORT equivalent, so dup-sort tables store each
// (key, value) duplicate as its own bucket entry, composite-keyed as
// uint16(len(key)) ‖ key ‖ value. Because every value this module
// stores in a dup-sort table is a fixed-width 8-byte id (§6), the
// composite key's byte order reduces to "group by key, then sort by
// id" — exactly the duplicate-sort order §3 assumes. This backend has
// no cgo dependency, so it is what every package's tests run against;
// internal/kv/mdbxkv is the production backend.
package boltkv

import (
	"bytes"
	"encoding/binary"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/erigontech/dirstore/internal/kv"
)

// DB is a bbolt-backed kv.DB.
type DB struct {
	bdb *bolt.DB
}

// Open creates (if needed) every table in tables as a top-level bucket.
func Open(path string, tables []string) (*DB, error) {
	bdb, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("boltkv: open %s: %w", path, err)
	}
	err = bdb.Update(func(tx *bolt.Tx) error {
		for _, t := range tables {
			if _, err := tx.CreateBucketIfNotExists([]byte(t)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		bdb.Close()
		return nil, fmt.Errorf("boltkv: create buckets: %w", err)
	}
	return &DB{bdb: bdb}, nil
}

func (d *DB) Close() error { return d.bdb.Close() }

func (d *DB) View(f func(kv.Tx) error) error {
	return d.bdb.View(func(tx *bolt.Tx) error { return f(&roTx{tx: tx}) })
}

func (d *DB) Update(f func(kv.RwTx) error) error {
	return d.bdb.Update(func(tx *bolt.Tx) error { return f(&rwTx{roTx{tx: tx}}) })
}

func (d *DB) BeginRo() (kv.Tx, error) {
	tx, err := d.bdb.Begin(false)
	if err != nil {
		return nil, fmt.Errorf("boltkv: begin ro: %w", err)
	}
	return &roTx{tx: tx}, nil
}

func (d *DB) BeginRw() (kv.RwTx, error) {
	tx, err := d.bdb.Begin(true)
	if err != nil {
		return nil, fmt.Errorf("boltkv: begin rw: %w", err)
	}
	return &rwTx{roTx{tx: tx}}, nil
}

func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

type roTx struct{ tx *bolt.Tx }

func (t *roTx) bucket(table string) (*bolt.Bucket, error) {
	b := t.tx.Bucket([]byte(table))
	if b == nil {
		return nil, fmt.Errorf("boltkv: no such table %q", table)
	}
	return b, nil
}

func (t *roTx) GetOne(table string, key []byte) ([]byte, error) {
	b, err := t.bucket(table)
	if err != nil {
		return nil, err
	}
	v := b.Get(key)
	if v == nil {
		return nil, kv.ErrNotFound
	}
	return copyBytes(v), nil
}

func (t *roTx) Cursor(table string) (kv.Cursor, error) {
	b, err := t.bucket(table)
	if err != nil {
		return nil, err
	}
	return &cursor{c: b.Cursor(), b: b}, nil
}

func (t *roTx) CursorDupSort(table string) (kv.CursorDupSort, error) {
	b, err := t.bucket(table)
	if err != nil {
		return nil, err
	}
	return &dupCursor{c: b.Cursor(), b: b}, nil
}

func (t *roTx) Rollback() { t.tx.Rollback() }

type rwTx struct{ roTx }

func (t *rwTx) Put(table string, key, value []byte) error {
	b, err := t.bucket(table)
	if err != nil {
		return err
	}
	return b.Put(key, value)
}

func (t *rwTx) Delete(table string, key []byte) error {
	b, err := t.bucket(table)
	if err != nil {
		return err
	}
	return b.Delete(key)
}

func (t *rwTx) RwCursor(table string) (kv.RwCursor, error) {
	b, err := t.bucket(table)
	if err != nil {
		return nil, err
	}
	return &cursor{c: b.Cursor(), b: b}, nil
}

func (t *rwTx) RwCursorDupSort(table string) (kv.RwCursorDupSort, error) {
	b, err := t.bucket(table)
	if err != nil {
		return nil, err
	}
	return &dupCursor{c: b.Cursor(), b: b}, nil
}

func (t *rwTx) Commit() error { return t.tx.Commit() }

// cursor is a plain (non-dup-sort) cursor: the primary store and the
// name-to-id map use it directly, one value per key.
type cursor struct {
	c *bolt.Cursor
	b *bolt.Bucket
}

func (cu *cursor) First() ([]byte, []byte, error) {
	k, v := cu.c.First()
	return copyBytes(k), copyBytes(v), nil
}

func (cu *cursor) Seek(seek []byte) ([]byte, []byte, error) {
	k, v := cu.c.Seek(seek)
	return copyBytes(k), copyBytes(v), nil
}

func (cu *cursor) Next() ([]byte, []byte, error) {
	k, v := cu.c.Next()
	return copyBytes(k), copyBytes(v), nil
}

func (cu *cursor) Close() {}

func (cu *cursor) Put(k, v []byte) error { return cu.b.Put(k, v) }
func (cu *cursor) DeleteCurrent() error  { return cu.c.Delete() }

// composite encodes a (key, value) dup-sort pair as a single bucket
// key: uint16(len(key)) ‖ key ‖ value. The length prefix means no
// ambiguity can arise between one key's long composite and another
// key's short one, regardless of how their raw bytes overlap.
func composite(key, val []byte) []byte {
	out := make([]byte, 2+len(key)+len(val))
	binary.BigEndian.PutUint16(out[:2], uint16(len(key)))
	copy(out[2:2+len(key)], key)
	copy(out[2+len(key):], val)
	return out
}

func splitComposite(ck []byte) (key, val []byte) {
	if len(ck) < 2 {
		return nil, nil
	}
	klen := int(binary.BigEndian.Uint16(ck[:2]))
	if len(ck) < 2+klen {
		return nil, nil
	}
	return ck[2 : 2+klen], ck[2+klen:]
}

// dupCursor emulates kv.RwCursorDupSort over a plain bbolt bucket.
type dupCursor struct {
	c      *bolt.Cursor
	b      *bolt.Bucket
	curKey []byte
}

func (dc *dupCursor) First() ([]byte, []byte, error) {
	ck, _ := dc.c.First()
	if ck == nil {
		return nil, nil, nil
	}
	key, val := splitComposite(ck)
	dc.curKey = copyBytes(key)
	return copyBytes(key), copyBytes(val), nil
}

func (dc *dupCursor) Seek(seek []byte) ([]byte, []byte, error) {
	ck, _ := dc.c.Seek(composite(seek, nil))
	if ck == nil {
		return nil, nil, nil
	}
	key, val := splitComposite(ck)
	dc.curKey = copyBytes(key)
	return copyBytes(key), copyBytes(val), nil
}

func (dc *dupCursor) Next() ([]byte, []byte, error) {
	for {
		ck, _ := dc.c.Next()
		if ck == nil {
			return nil, nil, nil
		}
		key, val := splitComposite(ck)
		if !bytes.Equal(key, dc.curKey) {
			dc.curKey = copyBytes(key)
			return copyBytes(key), copyBytes(val), nil
		}
	}
}

func (dc *dupCursor) Close() {}

func (dc *dupCursor) SeekExact(key []byte) ([]byte, error) {
	ck, _ := dc.c.Seek(composite(key, nil))
	if ck == nil {
		return nil, kv.ErrNotFound
	}
	gotKey, val := splitComposite(ck)
	if !bytes.Equal(gotKey, key) {
		return nil, kv.ErrNotFound
	}
	dc.curKey = copyBytes(key)
	return copyBytes(val), nil
}

func (dc *dupCursor) FirstDup() ([]byte, error) {
	ck, _ := dc.c.Seek(composite(dc.curKey, nil))
	if ck == nil {
		return nil, kv.ErrNotFound
	}
	key, val := splitComposite(ck)
	if !bytes.Equal(key, dc.curKey) {
		return nil, kv.ErrNotFound
	}
	return copyBytes(val), nil
}

func (dc *dupCursor) NextDup() ([]byte, []byte, error) {
	ck, _ := dc.c.Next()
	if ck == nil {
		return nil, nil, kv.ErrNotFound
	}
	key, val := splitComposite(ck)
	if !bytes.Equal(key, dc.curKey) {
		return nil, nil, kv.ErrNotFound
	}
	return copyBytes(key), copyBytes(val), nil
}

func (dc *dupCursor) CountDuplicates() (uint64, error) {
	if dc.curKey == nil {
		return 0, kv.ErrNotFound
	}
	ck, _ := dc.c.Seek(composite(dc.curKey, nil))
	var n uint64
	for ck != nil {
		key, _ := splitComposite(ck)
		if !bytes.Equal(key, dc.curKey) {
			break
		}
		n++
		ck, _ = dc.c.Next()
	}
	return n, nil
}

func (dc *dupCursor) Put(k, v []byte) error { return dc.b.Put(composite(k, v), v) }
func (dc *dupCursor) DeleteCurrent() error  { return dc.c.Delete() }

func (dc *dupCursor) PutDup(k, v []byte, flag kv.PutFlag) error {
	ck := composite(k, v)
	if flag == kv.NoDupData {
		if existing := dc.b.Get(ck); existing != nil {
			return kv.ErrKeyExists
		}
	}
	dc.curKey = copyBytes(k)
	return dc.b.Put(ck, v)
}

func (dc *dupCursor) DeleteCurrentDuplicates() error {
	if dc.curKey == nil {
		return nil
	}
	// Re-seek after every delete: once bbolt has materialized the leaf
	// node, Delete followed by Next skips the element that slid into
	// the deleted slot.
	for {
		ck, _ := dc.c.Seek(composite(dc.curKey, nil))
		if ck == nil {
			return nil
		}
		key, _ := splitComposite(ck)
		if !bytes.Equal(key, dc.curKey) {
			return nil
		}
		if err := dc.c.Delete(); err != nil {
			return err
		}
	}
}
