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

// Package idlcache is component A of the bulk-load core: a per-index-key
// in-memory buffer of entry-ids, batch-flushed to the secondary
// databases using the duplicate-key protocol of §4.A.
package idlcache

import (
	"bytes"
	"errors"
	"fmt"
	"sync"

	"github.com/google/btree"

	"github.com/erigontech/dirstore/internal/dsmetrics"
	"github.com/erigontech/dirstore/internal/ids"
	"github.com/erigontech/dirstore/internal/kv"
)

// IDBlockCap is IDBLOCK: the fixed capacity of one id-block (§3).
const IDBlockCap = 1024

type block struct {
	next *block
	ids  [IDBlockCap]ids.ID
	len  int
}

// entry is one IDL cache entry (§3).
type entry struct {
	key         []byte
	head, tail  *block
	first, last ids.ID
	count       uint64
}

func lessEntry(a, b *entry) bool {
	if len(a.key) != len(b.key) {
		return len(a.key) < len(b.key)
	}
	return bytes.Compare(a.key, b.key) < 0
}

// Cache is the in-memory IDL buffer shared by every secondary database
// touched during one load. It is not safe for concurrent use — §5
// assigns it to the single producer thread.
type Cache struct {
	threshold uint64 // DB_SIZE_THRESHOLD
	maxBlocks int    // idl_cache_max_size; 0 disables caching

	// freeList/totalBlocks are the free list and global block count of
	// §5. Cache holds no lock of its own; callers serialize access (see
	// Binding).
	freeList    *block
	totalBlocks int

	trees map[string]*btree.BTreeG[*entry]
}

// New builds a Cache. threshold is DB_SIZE_THRESHOLD; maxBlocks is
// idl_cache_max_size (0 disables batching and forces direct writes,
// per §6).
func New(threshold uint64, maxBlocks int) *Cache {
	return &Cache{
		threshold: threshold,
		maxBlocks: maxBlocks,
		trees:     make(map[string]*btree.BTreeG[*entry]),
	}
}

func (c *Cache) treeFor(table string) *btree.BTreeG[*entry] {
	t, ok := c.trees[table]
	if !ok {
		t = btree.NewG(32, lessEntry)
		c.trees[table] = t
	}
	return t
}

func (c *Cache) allocBlock() *block {
	defer func() { dsmetrics.IDLCacheBlocksInUse.Set(float64(c.totalBlocks)) }()
	if c.freeList != nil {
		b := c.freeList
		c.freeList = b.next
		c.totalBlocks++
		*b = block{}
		return b
	}
	c.totalBlocks++
	return &block{}
}

func (c *Cache) releaseBlock(b *block) {
	b.next = c.freeList
	c.freeList = b
	c.totalBlocks--
	dsmetrics.IDLCacheBlocksInUse.Set(float64(c.totalBlocks))
}

func (c *Cache) releaseChain(head *block) {
	for head != nil {
		next := head.next
		c.releaseBlock(head)
		head = next
	}
}

func (c *Cache) overBudget() bool {
	return c.maxBlocks > 0 && c.totalBlocks >= c.maxBlocks
}

// needsNewBlock reports whether inserting one more id into e, in its
// current state, requires allocating a fresh block (i.e. e is still a
// list and its tail is full or absent). Used to decide whether the
// memory-pressure check of §4.A applies to this particular insert.
func (e *entry) needsNewBlock(threshold uint64) bool {
	return e.count < threshold && (e.tail == nil || e.tail.len == IDBlockCap)
}

// insert applies the state-transition rules of §4.A to e.
func (e *entry) insert(id ids.ID, threshold uint64, c *Cache) {
	switch {
	case e.count < threshold:
		if e.tail == nil || e.tail.len == IDBlockCap {
			nb := c.allocBlock()
			if e.head == nil {
				e.head = nb
			} else {
				e.tail.next = nb
			}
			e.tail = nb
		}
		e.tail.ids[e.tail.len] = id
		e.tail.len++
		if e.count == 0 {
			e.first = id
		}
		e.count++
	case e.count == threshold:
		c.releaseChain(e.head)
		e.head, e.tail = nil, nil
		e.last = id
		e.count++
	default:
		e.last = id
		e.count++
	}
}

// recoverEntry performs the "Initial count recovery" of §4.A: consult
// the store for prior-load state before this cache entry starts
// accumulating new inserts.
func recoverEntry(tx kv.Tx, table string, key []byte, threshold uint64) (*entry, error) {
	e := &entry{key: append([]byte(nil), key...)}
	cur, err := tx.CursorDupSort(table)
	if err != nil {
		return nil, fmt.Errorf("idlcache: open cursor on %s: %w", table, err)
	}
	defer cur.Close()

	v, err := cur.SeekExact(key)
	if errors.Is(err, kv.ErrNotFound) {
		return e, nil
	}
	if err != nil {
		return nil, fmt.Errorf("idlcache: seek %s/%x: %w", table, key, err)
	}
	if ids.Decode(v) == ids.NOID {
		e.count = threshold + 1
		return e, nil
	}
	cnt, err := cur.CountDuplicates()
	if err != nil {
		return nil, fmt.Errorf("idlcache: count duplicates %s/%x: %w", table, key, err)
	}
	e.count = cnt
	e.first = ids.Decode(v)
	return e, nil
}

// Insert appends id to the cache entry for (table, key), creating it
// (with store-backed initial count recovery) on first touch. tx must
// be a read-write transaction: a memory-pressure flush may need to
// write through it before the insert completes.
func (c *Cache) Insert(tx kv.RwTx, table string, key []byte, id ids.ID) error {
	if c.maxBlocks == 0 {
		return c.insertDirect(tx, table, key, id)
	}

	tree := c.treeFor(table)
	e, found := tree.Get(&entry{key: key})
	if !found {
		recovered, err := recoverEntry(tx, table, key, c.threshold)
		if err != nil {
			return err
		}
		e = recovered
		tree.ReplaceOrInsert(e)
	}

	if e.needsNewBlock(c.threshold) && c.overBudget() {
		if err := c.Flush(tx, table); err != nil {
			return fmt.Errorf("idlcache: pressure flush %s: %w", table, err)
		}
		c.treeFor(table).ReplaceOrInsert(e)
	}

	e.insert(id, c.threshold, c)
	return nil
}

// insertDirect bypasses batching entirely: idl_cache_max_size == 0
// (§6) forces every insert straight to the secondary database.
func (c *Cache) insertDirect(tx kv.RwTx, table string, key []byte, id ids.ID) error {
	cur, err := tx.RwCursorDupSort(table)
	if err != nil {
		return fmt.Errorf("idlcache: open rw cursor on %s: %w", table, err)
	}
	defer cur.Close()
	if err := cur.PutDup(key, ids.Encode(id), kv.NoDupData); err != nil && !errors.Is(err, kv.ErrKeyExists) {
		return fmt.Errorf("idlcache: direct insert %s/%x: %w", table, key, err)
	}
	return nil
}

// Binding adapts a Cache to one transaction's schema.Inserter (§6:
// "idl_insert(be, db, txn, key, id)") without this package needing to
// import the schema package — the method signature alone satisfies
// that interface structurally. Insert may be called from the index
// worker pool's goroutines: calls through one Binding are serialized.
type Binding struct {
	mu sync.Mutex
	c  *Cache
	tx kv.RwTx
}

// Bind returns an Inserter that writes into c under tx. Callers pass
// the result to a schema.Indexer's RecRun for the lifetime of tx.
func (c *Cache) Bind(tx kv.RwTx) *Binding {
	return &Binding{c: c, tx: tx}
}

func (b *Binding) Insert(table string, key []byte, id ids.ID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.c.Insert(b.tx, table, key, id)
}

// Tables lists the secondary databases this cache currently holds
// entries for.
func (c *Cache) Tables() []string {
	out := make([]string, 0, len(c.trees))
	for t := range c.trees {
		out = append(out, t)
	}
	return out
}

// Flush persists table's entire tree to disk in key order and clears
// it (§4.A "Flush(db)"). Any entry whose caller needs to keep
// inserting (the memory-pressure path in Insert) must re-add it to
// the tree afterward — Flush itself always empties the tree.
func (c *Cache) Flush(tx kv.RwTx, table string) error {
	tree, ok := c.trees[table]
	if !ok {
		return nil
	}
	dsmetrics.IDLCacheFlushes.WithLabelValues(table).Inc()
	entries := make([]*entry, 0, tree.Len())
	tree.Ascend(func(e *entry) bool {
		entries = append(entries, e)
		return true
	})
	c.trees[table] = btree.NewG(32, lessEntry)

	for _, e := range entries {
		if err := c.flushEntry(tx, table, e); err != nil {
			return err
		}
		c.releaseChain(e.head)
		e.head, e.tail = nil, nil
	}
	return nil
}

// FlushAll flushes every database's tree. Called at close (§4.D).
func (c *Cache) FlushAll(tx kv.RwTx) error {
	for _, table := range c.Tables() {
		if err := c.Flush(tx, table); err != nil {
			return err
		}
	}
	return nil
}

func (c *Cache) flushEntry(tx kv.RwTx, table string, e *entry) error {
	// Never written to locally: recovered metadata only, nothing new
	// to persist (§4.A Flush step 1).
	if e.head == nil && e.count <= c.threshold {
		return nil
	}

	cur, err := tx.RwCursorDupSort(table)
	if err != nil {
		return fmt.Errorf("idlcache: open rw cursor on %s: %w", table, err)
	}
	defer cur.Close()

	firstVal, err := cur.SeekExact(e.key)
	existed := true
	if errors.Is(err, kv.ErrNotFound) {
		existed = false
		err = nil
	}
	if err != nil {
		return fmt.Errorf("idlcache: seek %s/%x: %w", table, e.key, err)
	}

	isRange := e.count > c.threshold

	switch {
	case !existed && !isRange:
		return c.flushListDuplicates(cur, e)
	case !existed && isRange:
		if err := cur.PutDup(e.key, ids.Encode(ids.NOID), kv.KeyLast); err != nil {
			return err
		}
		if err := cur.PutDup(e.key, ids.Encode(e.first), kv.KeyLast); err != nil {
			return err
		}
		return cur.PutDup(e.key, ids.Encode(e.last), kv.KeyLast)
	case existed && !isRange:
		return c.flushListDuplicates(cur, e)
	default: // existed && isRange
		if ids.Decode(firstVal) != ids.NOID {
			// was a list on disk: normalize to range form.
			if err := cur.DeleteCurrentDuplicates(); err != nil {
				return err
			}
			if err := cur.PutDup(e.key, ids.Encode(ids.NOID), kv.KeyFirst); err != nil {
				return err
			}
			if err := cur.PutDup(e.key, ids.Encode(e.first), kv.KeyLast); err != nil {
				return err
			}
			return cur.PutDup(e.key, ids.Encode(e.last), kv.KeyLast)
		}
		// was already a range: advance past marker and old first,
		// replace old last with the new one.
		if _, _, err := cur.NextDup(); err != nil {
			return fmt.Errorf("idlcache: advance past marker %s/%x: %w", table, e.key, err)
		}
		if _, _, err := cur.NextDup(); err != nil && !errors.Is(err, kv.ErrNotFound) {
			return fmt.Errorf("idlcache: advance to old last %s/%x: %w", table, e.key, err)
		}
		if err := cur.DeleteCurrent(); err != nil {
			return err
		}
		return cur.PutDup(e.key, ids.Encode(e.last), kv.KeyLast)
	}
}

func (c *Cache) flushListDuplicates(cur kv.RwCursorDupSort, e *entry) error {
	for b := e.head; b != nil; b = b.next {
		for i := 0; i < b.len; i++ {
			if err := cur.PutDup(e.key, ids.Encode(b.ids[i]), kv.NoDupData); err != nil && !errors.Is(err, kv.ErrKeyExists) {
				return fmt.Errorf("idlcache: put %x: %w", b.ids[i], err)
			}
		}
	}
	return nil
}
