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

// Package reindex is component E: it walks the primary store by id
// and replays index-add for every entry, either in one pass over
// every configured attribute or, in linear-index mode, one full pass
// per attribute to bound peak IDL-cache memory (§4.E).
//
// The REDESIGN FLAGS note on linear-index mode permits the simpler
// "loop over attributes and reopen the cursor" strategy in place of
// the original's in-place slot-rotation, as long as the per-pass
// memory bound holds — that is what this package does.
package reindex

import (
	"errors"
	"fmt"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/erigontech/dirstore/internal/direntry"
	"github.com/erigontech/dirstore/internal/idlcache"
	"github.com/erigontech/dirstore/internal/indexpool"
	"github.com/erigontech/dirstore/internal/kv"
	"github.com/erigontech/dirstore/internal/schema"
	"github.com/erigontech/dirstore/internal/session"
)

// Reindexer drives a full-store reindex pass.
type Reindexer struct {
	db      kv.DB
	sess    *session.Session
	cache   *idlcache.Cache
	indexer schema.Indexer
	encoder direntry.Encoder
	pool    *indexpool.Pool
	quick   bool
}

// Open builds a Reindexer. pool may be nil, in which case every
// entry's indexing runs inline on the caller's goroutine with stride 1.
func Open(db kv.DB, cache *idlcache.Cache, indexer schema.Indexer, encoder direntry.Encoder, pool *indexpool.Pool, quick bool) (*Reindexer, error) {
	sess, err := session.Open(db)
	if err != nil {
		return nil, fmt.Errorf("reindex: open session: %w", err)
	}
	return &Reindexer{db: db, sess: sess, cache: cache, indexer: indexer, encoder: encoder, pool: pool, quick: quick}, nil
}

// Run performs a single full pass, building postings for every
// configured attribute at once.
func (r *Reindexer) Run() error {
	_, err := r.scan(r.indexer.Attributes())
	return err
}

// RunLinear performs one full pass per configured attribute. Each
// pass's visited-id set is compared by cardinality to the first
// pass's: since the primary store must not mutate during a reindex,
// any mismatch means entries were skipped or duplicated and is
// reported rather than silently producing an incomplete secondary
// database.
func (r *Reindexer) RunLinear() error {
	var firstPassCount uint64
	for i, attr := range r.indexer.Attributes() {
		visited, err := r.scan([]schema.Descriptor{attr})
		if err != nil {
			return fmt.Errorf("reindex: linear pass %s: %w", attr.Attribute, err)
		}
		count := visited.GetCardinality()
		if i == 0 {
			firstPassCount = count
		} else if count != firstPassCount {
			return fmt.Errorf("reindex: linear pass %s visited %d entries, want %d seen in the first pass", attr.Attribute, count, firstPassCount)
		}
		if err := r.sess.WithRwTx(func(tx kv.RwTx) error {
			return r.cache.Flush(tx, attr.Table)
		}); err != nil {
			return fmt.Errorf("reindex: flush %s: %w", attr.Table, err)
		}
	}
	return nil
}

// scan walks the primary store once, indexing every entry against
// attrs, and returns the set of ids it visited.
func (r *Reindexer) scan(attrs []schema.Descriptor) (*roaring64.Bitmap, error) {
	visited := roaring64.New()

	id, raw, err := r.sess.First()
	for {
		if errors.Is(err, kv.ErrNotFound) {
			break
		}
		if err != nil {
			return nil, err
		}

		e, decErr := r.encoder.Decode(raw)
		if decErr != nil {
			return nil, fmt.Errorf("reindex: decode id=%d: %w", id, decErr)
		}
		e.ID = id

		if err := r.indexOne(e, attrs); err != nil {
			return nil, fmt.Errorf("reindex: index id=%d: %w", id, err)
		}
		visited.Add(uint64(id))

		id, raw, err = r.sess.Next()
	}
	return visited, nil
}

func (r *Reindexer) indexOne(e *direntry.Entry, attrs []schema.Descriptor) error {
	var recs []schema.Record
	for _, d := range attrs {
		recs = append(recs, r.indexer.RecSet(d, e)...)
	}

	do := func(tx kv.RwTx) error {
		ins := r.cache.Bind(tx)
		if r.pool != nil {
			return r.pool.Dispatch(recs, e.ID, ins)
		}
		return r.indexer.RecRun(recs, e.ID, 0, 1, ins)
	}

	if r.quick {
		return r.db.Update(do)
	}
	return r.sess.WithRwTx(do)
}

// Close flushes every remaining IDL cache tree and releases the
// shared cursor.
func (r *Reindexer) Close() error {
	if r.pool != nil {
		r.pool.Shutdown()
	}
	err := r.sess.WithRwTx(func(tx kv.RwTx) error {
		return r.cache.FlushAll(tx)
	})
	r.sess.Close()
	return err
}
