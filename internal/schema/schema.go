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

// Package schema is the schema subsystem's contract (§6): it supplies
// per-attribute indexing descriptors and turns one entry's attributes
// into postings written to the IDL cache. The subsystem itself is an
// external collaborator; this package defines the interface the core
// drives it through (recset/recrun) plus one concrete, exact-match
// Indexer for tests and cmd/dirload.
package schema

import (
	"fmt"

	"github.com/erigontech/dirstore/internal/direntry"
	"github.com/erigontech/dirstore/internal/ids"
)

// Descriptor names one indexed attribute and the secondary table its
// postings live in.
type Descriptor struct {
	Attribute string
	Table     string
}

// Inserter is the IDL cache's insertion entry point, as recrun needs
// it (§6: "idl_insert(be, db, txn, key, id)").
type Inserter interface {
	Insert(table string, key []byte, id ids.ID) error
}

// Indexer is the schema-driven index builder §4.B's worker pool and
// §4.D/E's pipelines drive.
//
// Attributes returns the configured set (§9 "SUPPLEMENTED FEATURES":
// this may be a prefix of the full schema when index_nattrs < the
// schema's attribute count).
//
// RecSet populates a private per-attribute record vector from one
// entry (one call per configured attribute, made by the producer
// before dispatching to the worker pool).
//
// RecRun writes postings for every record whose ordinal satisfies
// ordinal%stride==base into the caches reachable through ins. The
// indexer decides the partition; callers only guarantee stride-wide,
// non-overlapping dispatch (§4.B "Slice semantics").
type Indexer interface {
	Attributes() []Descriptor
	RecSet(attr Descriptor, e *direntry.Entry) []Record
	RecRun(recs []Record, id ids.ID, base, stride int, ins Inserter) error
}

// Record is one schema-private posting candidate produced by RecSet.
// The core never inspects it.
type Record struct {
	Table string
	Key   []byte
}

// ExactMatch is a minimal Indexer: one posting per attribute value,
// keyed by the value's raw bytes in the attribute's own table. It
// exists so the core's own
// tests can exercise §4.B/D/E without a real schema subsystem.
type ExactMatch struct {
	descs []Descriptor
}

// NewExactMatch builds an ExactMatch indexer over nattrs of the given
// attribute names, honoring the index_nattrs supplemented feature: if
// nattrs < len(attrs), only the first nattrs are indexed.
func NewExactMatch(attrs []string, nattrs int) *ExactMatch {
	if nattrs > len(attrs) {
		nattrs = len(attrs)
	}
	descs := make([]Descriptor, 0, nattrs)
	for _, a := range attrs[:nattrs] {
		descs = append(descs, Descriptor{Attribute: a, Table: "Index_" + a})
	}
	return &ExactMatch{descs: descs}
}

func (x *ExactMatch) Attributes() []Descriptor { return x.descs }

func (x *ExactMatch) RecSet(attr Descriptor, e *direntry.Entry) []Record {
	var recs []Record
	for _, a := range e.Attrs {
		if a.Type != attr.Attribute {
			continue
		}
		for _, v := range a.Values {
			key := make([]byte, 0, len(v))
			key = append(key, v...)
			recs = append(recs, Record{Table: attr.Table, Key: key})
		}
	}
	return recs
}

func (x *ExactMatch) RecRun(recs []Record, id ids.ID, base, stride int, ins Inserter) error {
	if stride <= 0 {
		return fmt.Errorf("schema: invalid stride %d", stride)
	}
	for i, r := range recs {
		if i%stride != base {
			continue
		}
		if err := ins.Insert(r.Table, r.Key, id); err != nil {
			return fmt.Errorf("schema: insert %s/%x: %w", r.Table, r.Key, err)
		}
	}
	return nil
}
