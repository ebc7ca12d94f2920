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

// Package direntry holds the opaque entry tuple of §3 and one concrete
// Encoder the core never needs to understand semantically: the
// external entry parser/serializer (§6) is out of scope, but the
// bulk-load core still has to round-trip bytes in its own tests.
package direntry

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/golang/snappy"

	"github.com/erigontech/dirstore/internal/dirname"
	"github.com/erigontech/dirstore/internal/ids"
)

// Attribute is one named, possibly multi-valued attribute. The core
// never inspects Values; it hands the whole Entry to the schema's
// index builder (§4.B).
type Attribute struct {
	Type   string
	Values [][]byte
}

// Entry is the opaque tuple of §3: (id, name, canonical-name,
// attribute-list).
type Entry struct {
	ID            ids.ID
	Name          string
	CanonicalName dirname.Name
	Attrs         []Attribute
}

// Encoder is the external entry encoder's contract (§6: "Opaque
// serialized entry produced by the external encoder").
type Encoder interface {
	Encode(e *Entry) ([]byte, error)
	Decode(b []byte) (*Entry, error)
}

// SnappyGob is a concrete Encoder used by this module's own tests and
// by cmd/dirload when no other encoder is configured: gob for shape,
// snappy for the on-disk footprint, the same pairing the teacher's
// storage layer reaches for when it needs a quick compact encoding.
type SnappyGob struct{}

func (SnappyGob) Encode(e *Entry) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(e); err != nil {
		return nil, fmt.Errorf("direntry: encode: %w", err)
	}
	return snappy.Encode(nil, buf.Bytes()), nil
}

func (SnappyGob) Decode(b []byte) (*Entry, error) {
	raw, err := snappy.Decode(nil, b)
	if err != nil {
		return nil, fmt.Errorf("direntry: snappy decode: %w", err)
	}
	var e Entry
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&e); err != nil {
		return nil, fmt.Errorf("direntry: gob decode: %w", err)
	}
	return &e, nil
}
