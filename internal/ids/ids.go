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

// Package ids defines the entry-id type shared by every component of
// the bulk-load core (§3: "Entry-id (ID)").
package ids

import "encoding/binary"

// ID is the backend's entry identifier. Ids are allocated monotonically
// by Generator and, once allocated, are never reused within a load.
type ID uint64

// NOID is the reserved sentinel meaning "none": the virtual ancestor
// above the configured suffix (§4.C step 1) and the value returned for
// a failed Put (§4.D step 6).
const NOID ID = 0

// Size is the on-disk width of an encoded id: a fixed-width big-endian
// unsigned integer (§6). The duplicate-sort order of ids stored as
// values in an index table relies on this encoding's byte order
// matching numeric order.
const Size = 8

// Encode renders id as Size big-endian bytes.
func Encode(id ID) []byte {
	buf := make([]byte, Size)
	binary.BigEndian.PutUint64(buf, uint64(id))
	return buf
}

// PutEncode writes id into the first Size bytes of buf, which must
// have length >= Size. Unlike Encode it does not allocate.
func PutEncode(buf []byte, id ID) {
	binary.BigEndian.PutUint64(buf, uint64(id))
}

// Decode parses the first Size bytes of b as a big-endian id.
func Decode(b []byte) ID {
	return ID(binary.BigEndian.Uint64(b))
}

// Generator hands out monotonically increasing ids. The concrete
// implementation backing it is an external collaborator (§6:
// "a monotonic next_id() generator"); Sequence is the one this module
// ships, backed by a kv.DB's Sequence-style counter table.
type Generator interface {
	Next() (ID, error)
}
