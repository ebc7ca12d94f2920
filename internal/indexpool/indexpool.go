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

// Package indexpool is component B: a fixed-size rendezvous barrier
// that fans one entry's indexing work out across N-1 background
// workers plus the producer itself (§4.B). The load and reindex
// pipelines use it in both quick and transactional mode, whenever at
// least one attribute is indexed and linear-index mode is off.
package indexpool

import (
	"fmt"
	"runtime"
	stdsync "sync"

	"github.com/anacrolix/sync"

	"github.com/erigontech/dirstore/internal/ids"
	"github.com/erigontech/dirstore/internal/schema"
)

// Pool dispatches one entry's indexing work at a time across N
// goroutines: the caller of Dispatch runs slice 0 inline, and N-1
// background workers run slices 1..N-1. It is not a general worker
// pool — only one entry is ever in flight.
type Pool struct {
	n       int
	indexer schema.Indexer

	mu       sync.Mutex
	cond     *stdsync.Cond
	gen      uint64
	tcount   int // workers still running the current round
	busy     []bool
	results  []error
	shutdown bool
	wg       stdsync.WaitGroup

	// published to workers under mu before each broadcast.
	recs []schema.Record
	id   ids.ID
	ins  schema.Inserter
}

// New builds a Pool of width n (n-1 background workers; n must be >=
// 1). Start must be called before the first Dispatch.
func New(n int, indexer schema.Indexer) *Pool {
	if n < 1 {
		n = 1
	}
	p := &Pool{
		n:       n,
		indexer: indexer,
		busy:    make([]bool, n),
		results: make([]error, n),
	}
	p.cond = stdsync.NewCond(&p.mu)
	return p
}

// Start launches the n-1 background workers.
func (p *Pool) Start() {
	for i := 1; i < p.n; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Shutdown sets the global shutdown flag and waits for every worker
// to observe it and exit (§4.B "Shutdown").
func (p *Pool) Shutdown() {
	p.mu.Lock()
	p.shutdown = true
	p.cond.Broadcast()
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Pool) worker(base int) {
	defer p.wg.Done()
	var lastGen uint64
	for {
		p.mu.Lock()
		for p.gen == lastGen && !p.shutdown {
			p.cond.Wait()
		}
		if p.shutdown {
			p.mu.Unlock()
			return
		}
		gen := p.gen
		recs, id, ins := p.recs, p.id, p.ins
		p.mu.Unlock()

		err := p.indexer.RecRun(recs, id, base, p.n, ins)

		p.mu.Lock()
		p.results[base] = err
		p.busy[base] = false
		p.tcount--
		if p.tcount == 0 {
			p.cond.Broadcast()
		}
		p.mu.Unlock()
		lastGen = gen
	}
}

// Dispatch runs the schema-driven indexer over recs for one entry:
// base 0 inline on the caller's goroutine, bases 1..n-1 on the
// background workers. It returns the first error encountered across
// every slice, in slice order.
func (p *Pool) Dispatch(recs []schema.Record, id ids.ID, ins schema.Inserter) error {
	p.mu.Lock()
	for p.tcount != 0 {
		p.cond.Wait()
	}
	for i := 1; i < p.n; i++ {
		p.busy[i] = true
		p.results[i] = nil
	}
	p.recs, p.id, p.ins = recs, id, ins
	p.tcount = p.n - 1
	p.gen++
	p.cond.Broadcast()
	p.mu.Unlock()

	err0 := p.indexer.RecRun(recs, id, 0, p.n, ins)

	var first error
	if err0 != nil {
		first = fmt.Errorf("indexpool: slice 0: %w", err0)
	}
	for i := 1; i < p.n; i++ {
		for {
			p.mu.Lock()
			b := p.busy[i]
			p.mu.Unlock()
			if !b {
				break
			}
			runtime.Gosched()
		}
		if first == nil {
			p.mu.Lock()
			err := p.results[i]
			p.mu.Unlock()
			if err != nil {
				first = fmt.Errorf("indexpool: slice %d: %w", i, err)
			}
		}
	}
	return first
}
