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

// Package loadpipeline is component D: the per-entry bulk-load
// sequence of §4.D, wiring the resolver, the IDL cache, and the index
// worker pool together around one store transaction per entry.
package loadpipeline

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/erigontech/dirstore/internal/direntry"
	"github.com/erigontech/dirstore/internal/dsmetrics"
	"github.com/erigontech/dirstore/internal/idlcache"
	"github.com/erigontech/dirstore/internal/ids"
	"github.com/erigontech/dirstore/internal/indexpool"
	"github.com/erigontech/dirstore/internal/kv"
	"github.com/erigontech/dirstore/internal/resolver"
	"github.com/erigontech/dirstore/internal/schema"
	"github.com/erigontech/dirstore/internal/session"
)

// Pipeline drives Put for one load (§4.D). Not safe for concurrent
// use: it is the single producer of §5's concurrency model.
type Pipeline struct {
	db       kv.DB
	sess     *session.Session
	resolver *resolver.Resolver
	cache    *idlcache.Cache
	indexer  schema.Indexer
	encoder  direntry.Encoder
	pool     *indexpool.Pool

	quick       bool
	linearIndex bool
}

// Config selects the load mode (§6 "Configuration").
type Config struct {
	Quick       bool
	LinearIndex bool
	Workers     int // thread_max; ignored when LinearIndex is set
}

// Open builds a Pipeline. The index worker pool is started only when
// cfg.LinearIndex is false and indexer has at least one configured
// attribute (§4.B "Shutdown": "only used in the non-transactional
// 'quick' mode and only when at least one indexed attribute is
// configured" — generalized here to either mode, since a transactional
// load benefits from the same fan-out).
func Open(db kv.DB, res *resolver.Resolver, cache *idlcache.Cache, indexer schema.Indexer, encoder direntry.Encoder, cfg Config) (*Pipeline, error) {
	sess, err := session.Open(db)
	if err != nil {
		return nil, fmt.Errorf("loadpipeline: open session: %w", err)
	}

	p := &Pipeline{
		db:          db,
		sess:        sess,
		resolver:    res,
		cache:       cache,
		indexer:     indexer,
		encoder:     encoder,
		quick:       cfg.Quick,
		linearIndex: cfg.LinearIndex,
	}
	if !cfg.LinearIndex && len(indexer.Attributes()) > 0 {
		workers := cfg.Workers
		if workers < 1 {
			workers = 1
		}
		p.pool = indexpool.New(workers, indexer)
		p.pool.Start()
	}
	return p, nil
}

// Put assigns e's id, indexes it (unless linear-index mode defers
// indexing to the Reindex Pipeline), and writes it to the primary
// store (§4.D steps 1-6). On any error the returned id is ids.NOID.
func (p *Pipeline) Put(e *direntry.Entry) (ids.ID, error) {
	timer := prometheus.NewTimer(dsmetrics.LoadDuration)
	defer timer.ObserveDuration()

	do := func(tx kv.RwTx) error {
		id, err := p.resolver.Assign(tx, e.CanonicalName)
		if err != nil {
			return fmt.Errorf("assign %q: %w", e.CanonicalName, err)
		}
		e.ID = id

		if !p.linearIndex && p.pool != nil {
			recs := p.buildRecords(e)
			if err := p.pool.Dispatch(recs, id, p.cache.Bind(tx)); err != nil {
				return fmt.Errorf("index %q: %w", e.CanonicalName, err)
			}
		}

		enc, err := p.encoder.Encode(e)
		if err != nil {
			return fmt.Errorf("encode %q: %w", e.CanonicalName, err)
		}
		if err := tx.Put(kv.Id2Entry, ids.Encode(id), enc); err != nil {
			return fmt.Errorf("write %q: %w", e.CanonicalName, err)
		}
		return nil
	}

	var err error
	if p.quick {
		// "quick" skips the cursor-close dance §4.F requires around a
		// cursor-coexisting transaction: each entry still commits
		// atomically in its own transaction, with the same durability
		// as the transactional path.
		err = p.db.Update(do)
	} else {
		err = p.sess.WithRwTx(do)
	}
	if err != nil {
		dsmetrics.LoadErrors.WithLabelValues(strconv.FormatBool(p.quick)).Inc()
		err = fmt.Errorf("loadpipeline: put %q: %w", e.CanonicalName, err)
		if p.quick {
			err = QuickPartialError(err)
		}
		return ids.NOID, err
	}
	dsmetrics.EntriesLoaded.Inc()
	return e.ID, nil
}

// Get reads one entry by id without disturbing the in-progress load
// (§9 supplemented feature "single-entry random access": the original
// exposes bdb_tool_entry_get for maintenance reads outside the bulk
// append path).
func (p *Pipeline) Get(id ids.ID) (*direntry.Entry, error) {
	raw, err := p.sess.Get(id)
	if err != nil {
		return nil, fmt.Errorf("loadpipeline: get id=%d: %w", id, err)
	}
	e, err := p.encoder.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("loadpipeline: decode id=%d: %w", id, err)
	}
	e.ID = id
	return e, nil
}

// Replace overwrites an already-assigned entry's stored record in
// place (§9 supplemented feature "bdb_tool_entry_put": in-place
// attribute fixups outside the bulk load path). e.ID must already be
// set by a prior Put or Get; Replace does not touch the resolver or
// any secondary database — callers that changed an indexed attribute
// are responsible for their own reindex.
func (p *Pipeline) Replace(e *direntry.Entry) error {
	if e.ID == ids.NOID {
		return fmt.Errorf("loadpipeline: replace: entry has no id")
	}
	enc, err := p.encoder.Encode(e)
	if err != nil {
		return fmt.Errorf("loadpipeline: replace id=%d: encode: %w", e.ID, err)
	}

	put := func(tx kv.RwTx) error {
		return tx.Put(kv.Id2Entry, ids.Encode(e.ID), enc)
	}
	var updateErr error
	if p.quick {
		updateErr = p.db.Update(put)
	} else {
		updateErr = p.sess.WithRwTx(put)
	}
	if updateErr != nil {
		return fmt.Errorf("loadpipeline: replace id=%d: %w", e.ID, updateErr)
	}
	return nil
}

func (p *Pipeline) buildRecords(e *direntry.Entry) []schema.Record {
	var recs []schema.Record
	for _, d := range p.indexer.Attributes() {
		recs = append(recs, p.indexer.RecSet(d, e)...)
	}
	return recs
}

// Close drains the worker pool, flushes every IDL cache tree, and
// verifies the resolver's hole set is empty (§4.D "Close").
func (p *Pipeline) Close() error {
	if p.pool != nil {
		p.pool.Shutdown()
	}

	flushErr := p.sess.WithRwTx(func(tx kv.RwTx) error {
		return p.cache.FlushAll(tx)
	})
	p.sess.Close()

	holeErr := p.resolver.Close()
	if flushErr != nil {
		return flushErr
	}
	return holeErr
}

var errQuickPartial = errors.New("loadpipeline: quick-mode load aborted with partial state")

// QuickPartialError wraps cause to note that, because the load ran in
// quick mode, the store may contain a partially-indexed prefix of the
// entries processed so far (§4.D step 5, "In quick mode ... errors
// leave partial state").
func QuickPartialError(cause error) error {
	return fmt.Errorf("%w: %w", errQuickPartial, cause)
}
