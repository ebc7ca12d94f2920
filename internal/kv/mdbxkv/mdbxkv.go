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

// Package mdbxkv backs internal/kv with github.com/erigontech/mdbx-go,
// the production store. Unlike internal/kv/boltkv it needs no
// composite-key emulation: MDBX_DUPSORT tables are opened as such up
// front, so every dup-sort table named by kv.IsDupSort gets the native
// multi-value-per-key layout §6 assumes (DB_NEXT_DUP, c_count, and
// PUT_NODUPDATA all map onto real MDBX cursor operations instead of a
// bbolt bucket-key trick). This is the backend cmd/dirload opens by
// default; internal/kv/boltkv exists so the rest of the module's tests
// don't carry a cgo dependency.
package mdbxkv

import (
	"fmt"
	"os"

	"github.com/erigontech/mdbx-go/mdbx"

	"github.com/erigontech/dirstore/internal/kv"
)

// DB is an mdbx-go-backed kv.DB.
type DB struct {
	env  *mdbx.Env
	dbis map[string]mdbx.DBI
}

// Open creates (if needed) an MDBX environment at path, with one named
// database per entry in tables, and returns a ready DB. Tables for
// which kv.IsDupSort reports true are opened MDBX_DUPSORT; every other
// table holds one value per key.
func Open(path string, tables []string) (*DB, error) {
	env, err := mdbx.NewEnv()
	if err != nil {
		return nil, fmt.Errorf("mdbxkv: new env: %w", err)
	}
	if err := env.SetMaxDBs(len(tables)); err != nil {
		env.Close()
		return nil, fmt.Errorf("mdbxkv: set max dbs: %w", err)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		env.Close()
		return nil, fmt.Errorf("mdbxkv: mkdir %s: %w", path, err)
	}
	if err := env.Open(path, 0, 0o644); err != nil {
		env.Close()
		return nil, fmt.Errorf("mdbxkv: open %s: %w", path, err)
	}

	dbis := make(map[string]mdbx.DBI, len(tables))
	err = env.Update(func(txn *mdbx.Txn) error {
		for _, t := range tables {
			flags := uint(mdbx.Create)
			if kv.IsDupSort(t) {
				flags |= uint(mdbx.DupSort)
			}
			dbi, err := txn.OpenDBI(t, flags)
			if err != nil {
				return fmt.Errorf("open dbi %q: %w", t, err)
			}
			dbis[t] = dbi
		}
		return nil
	})
	if err != nil {
		env.Close()
		return nil, fmt.Errorf("mdbxkv: create tables: %w", err)
	}
	return &DB{env: env, dbis: dbis}, nil
}

func (d *DB) Close() error {
	d.env.Close()
	return nil
}

func (d *DB) View(f func(kv.Tx) error) error {
	return d.env.View(func(txn *mdbx.Txn) error { return f(&roTx{txn: txn, dbis: d.dbis}) })
}

func (d *DB) Update(f func(kv.RwTx) error) error {
	return d.env.Update(func(txn *mdbx.Txn) error { return f(&rwTx{roTx{txn: txn, dbis: d.dbis}}) })
}

func (d *DB) BeginRo() (kv.Tx, error) {
	txn, err := d.env.BeginTxn(nil, mdbx.Readonly)
	if err != nil {
		return nil, fmt.Errorf("mdbxkv: begin ro: %w", err)
	}
	return &roTx{txn: txn, dbis: d.dbis}, nil
}

func (d *DB) BeginRw() (kv.RwTx, error) {
	txn, err := d.env.BeginTxn(nil, 0)
	if err != nil {
		return nil, fmt.Errorf("mdbxkv: begin rw: %w", err)
	}
	return &rwTx{roTx{txn: txn, dbis: d.dbis}}, nil
}

func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// isNotFound/isKeyExist translate the two MDBX error codes §7 calls
// out (KV-notfound, KV-keyexists) into the kv package's sentinels.
func isNotFound(err error) bool { return mdbx.IsNotFound(err) }
func isKeyExist(err error) bool { return mdbx.IsKeyExist(err) }

type roTx struct {
	txn  *mdbx.Txn
	dbis map[string]mdbx.DBI
}

func (t *roTx) dbi(table string) (mdbx.DBI, error) {
	d, ok := t.dbis[table]
	if !ok {
		return 0, fmt.Errorf("mdbxkv: no such table %q", table)
	}
	return d, nil
}

func (t *roTx) GetOne(table string, key []byte) ([]byte, error) {
	dbi, err := t.dbi(table)
	if err != nil {
		return nil, err
	}
	v, err := t.txn.Get(dbi, key)
	if isNotFound(err) {
		return nil, kv.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return copyBytes(v), nil
}

func (t *roTx) Cursor(table string) (kv.Cursor, error) {
	dbi, err := t.dbi(table)
	if err != nil {
		return nil, err
	}
	cur, err := t.txn.OpenCursor(dbi)
	if err != nil {
		return nil, fmt.Errorf("mdbxkv: open cursor %q: %w", table, err)
	}
	return &cursor{cur: cur}, nil
}

func (t *roTx) CursorDupSort(table string) (kv.CursorDupSort, error) {
	dbi, err := t.dbi(table)
	if err != nil {
		return nil, err
	}
	cur, err := t.txn.OpenCursor(dbi)
	if err != nil {
		return nil, fmt.Errorf("mdbxkv: open dupsort cursor %q: %w", table, err)
	}
	return &dupCursor{cur: cur}, nil
}

func (t *roTx) Rollback() { t.txn.Abort() }

type rwTx struct{ roTx }

func (t *rwTx) Put(table string, key, value []byte) error {
	dbi, err := t.dbi(table)
	if err != nil {
		return err
	}
	return t.txn.Put(dbi, key, value, 0)
}

func (t *rwTx) Delete(table string, key []byte) error {
	dbi, err := t.dbi(table)
	if err != nil {
		return err
	}
	return t.txn.Del(dbi, key, nil)
}

func (t *rwTx) RwCursor(table string) (kv.RwCursor, error) {
	dbi, err := t.dbi(table)
	if err != nil {
		return nil, err
	}
	cur, err := t.txn.OpenCursor(dbi)
	if err != nil {
		return nil, fmt.Errorf("mdbxkv: open rwcursor %q: %w", table, err)
	}
	return &cursor{cur: cur}, nil
}

func (t *rwTx) RwCursorDupSort(table string) (kv.RwCursorDupSort, error) {
	dbi, err := t.dbi(table)
	if err != nil {
		return nil, err
	}
	cur, err := t.txn.OpenCursor(dbi)
	if err != nil {
		return nil, fmt.Errorf("mdbxkv: open rw dupsort cursor %q: %w", table, err)
	}
	return &dupCursor{cur: cur}, nil
}

func (t *rwTx) Commit() error { return t.txn.Commit() }

// cursor is a plain (non-dup-sort) cursor over one MDBX database.
type cursor struct {
	cur *mdbx.Cursor
}

func (cu *cursor) First() ([]byte, []byte, error) {
	k, v, err := cu.cur.Get(nil, nil, mdbx.First)
	if isNotFound(err) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return copyBytes(k), copyBytes(v), nil
}

func (cu *cursor) Seek(seek []byte) ([]byte, []byte, error) {
	k, v, err := cu.cur.Get(seek, nil, mdbx.SetRange)
	if isNotFound(err) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return copyBytes(k), copyBytes(v), nil
}

func (cu *cursor) Next() ([]byte, []byte, error) {
	k, v, err := cu.cur.Get(nil, nil, mdbx.Next)
	if isNotFound(err) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return copyBytes(k), copyBytes(v), nil
}

func (cu *cursor) Close() { cu.cur.Close() }

func (cu *cursor) Put(k, v []byte) error { return cu.cur.Put(k, v, 0) }
func (cu *cursor) DeleteCurrent() error  { return cu.cur.Del(0) }

// dupCursor is a cursor over an MDBX_DUPSORT database: every kv
// duplicate-iteration primitive is a direct MDBX cursor op, no
// composite-key bookkeeping needed (contrast internal/kv/boltkv).
type dupCursor struct {
	cur *mdbx.Cursor
}

func (dc *dupCursor) First() ([]byte, []byte, error) {
	k, v, err := dc.cur.Get(nil, nil, mdbx.First)
	if isNotFound(err) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return copyBytes(k), copyBytes(v), nil
}

func (dc *dupCursor) Seek(seek []byte) ([]byte, []byte, error) {
	k, v, err := dc.cur.Get(seek, nil, mdbx.SetRange)
	if isNotFound(err) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return copyBytes(k), copyBytes(v), nil
}

func (dc *dupCursor) Next() ([]byte, []byte, error) {
	k, v, err := dc.cur.Get(nil, nil, mdbx.NextNoDup)
	if isNotFound(err) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return copyBytes(k), copyBytes(v), nil
}

func (dc *dupCursor) Close() { dc.cur.Close() }

func (dc *dupCursor) Put(k, v []byte) error { return dc.cur.Put(k, v, 0) }
func (dc *dupCursor) DeleteCurrent() error  { return dc.cur.Del(0) }

func (dc *dupCursor) SeekExact(key []byte) ([]byte, error) {
	_, v, err := dc.cur.Get(key, nil, mdbx.SetKey)
	if isNotFound(err) {
		return nil, kv.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return copyBytes(v), nil
}

func (dc *dupCursor) FirstDup() ([]byte, error) {
	_, v, err := dc.cur.Get(nil, nil, mdbx.FirstDup)
	if isNotFound(err) {
		return nil, kv.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return copyBytes(v), nil
}

func (dc *dupCursor) NextDup() ([]byte, []byte, error) {
	k, v, err := dc.cur.Get(nil, nil, mdbx.NextDup)
	if isNotFound(err) {
		return nil, nil, kv.ErrNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	return copyBytes(k), copyBytes(v), nil
}

func (dc *dupCursor) CountDuplicates() (uint64, error) {
	n, err := dc.cur.Count()
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (dc *dupCursor) PutDup(k, v []byte, flag kv.PutFlag) error {
	var mflags uint
	switch flag {
	case kv.NoDupData:
		mflags = mdbx.NoDupData
	case kv.KeyLast:
		mflags = mdbx.AppendDup
	case kv.KeyFirst:
		mflags = 0
	}
	err := dc.cur.Put(k, v, mflags)
	if isKeyExist(err) {
		return kv.ErrKeyExists
	}
	return err
}

func (dc *dupCursor) DeleteCurrentDuplicates() error {
	return dc.cur.Del(mdbx.NoDupData)
}
