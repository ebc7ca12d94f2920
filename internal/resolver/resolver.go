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

// Package resolver is component C: the name-to-id resolver. It
// materializes ancestors that were only ever referenced, never
// loaded, as "holes" — entries whose real arrival later must close
// them out (§3 "Hole", §4.C).
package resolver

import (
	"errors"
	"fmt"

	"github.com/erigontech/dirstore/internal/dirname"
	"github.com/erigontech/dirstore/internal/ids"
	"github.com/erigontech/dirstore/internal/kv"
)

type hole struct {
	id   ids.ID
	name dirname.Name
}

// Resolver assigns ids to canonical names, auto-materializing any
// ancestor that has not been seen yet. It is not safe for concurrent
// use — §4.D's producer owns it exclusively.
type Resolver struct {
	suffix dirname.Name
	gen    ids.Generator

	// holes is append-ordered in id space: ids are allocated
	// monotonically, so appending at Assign time keeps it sorted and
	// lets closeHole's scan on every hit lookup early-exit (§4.C
	// invariant ii).
	holes []hole
}

// New builds a Resolver rooted at suffix, drawing fresh ids from gen.
func New(suffix dirname.Name, gen ids.Generator) *Resolver {
	return &Resolver{suffix: suffix, gen: gen}
}

// Assign resolves ndn to an id under tx, creating it — and any
// unmaterialized ancestor — as needed (§4.C). An id drawn from the
// generator is not handed back if linking the name under it then
// fails; that id is simply left unused, a gap in the id space.
func (r *Resolver) Assign(tx kv.RwTx, ndn dirname.Name) (ids.ID, error) {
	if ndn == dirname.Root {
		return ids.NOID, nil
	}
	return r.assign(tx, ndn, false)
}

func (r *Resolver) assign(tx kv.RwTx, ndn dirname.Name, holeCall bool) (ids.ID, error) {
	v, err := tx.GetOne(kv.Dn2Id, []byte(ndn))
	if err == nil {
		id := ids.Decode(v)
		if !holeCall {
			r.closeHole(id)
		}
		return id, nil
	}
	if !errors.Is(err, kv.ErrNotFound) {
		return ids.NOID, fmt.Errorf("resolver: lookup %q: %w", ndn, err)
	}

	if !ndn.IsSuffix(r.suffix) {
		if parent, ok := ndn.Parent(); ok {
			if _, err := r.assign(tx, parent, true); err != nil {
				return ids.NOID, err
			}
		}
	}

	newID, err := r.gen.Next()
	if err != nil {
		return ids.NOID, fmt.Errorf("resolver: allocate id for %q: %w", ndn, err)
	}
	if err := tx.Put(kv.Dn2Id, []byte(ndn), ids.Encode(newID)); err != nil {
		return ids.NOID, fmt.Errorf("resolver: link %q: %w", ndn, err)
	}
	if holeCall {
		r.holes = append(r.holes, hole{id: newID, name: ndn})
	}
	return newID, nil
}

// closeHole removes the hole for id, if one is pending (§4.C step 3).
// The hole list is ascending in id, so the scan can stop the instant
// it passes where id would be.
func (r *Resolver) closeHole(id ids.ID) {
	for i := range r.holes {
		if r.holes[i].id > id {
			return
		}
		if r.holes[i].id == id {
			r.holes = append(r.holes[:i], r.holes[i+1:]...)
			return
		}
	}
}

// Close verifies every hole was closed by a matching real entry. A
// non-empty hole set is a fatal load error (§4.C invariant iii): every
// surviving (id, name) pair is named in the returned error.
func (r *Resolver) Close() error {
	if len(r.holes) == 0 {
		return nil
	}
	msg := "resolver: unresolved ancestors:"
	for _, h := range r.holes {
		msg += fmt.Sprintf(" (id=%d name=%q)", h.id, h.name)
	}
	return errors.New(msg)
}
