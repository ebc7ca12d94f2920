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

package kv

import "strings"

const (
	// Id2Entry is the primary store: id_u64_be -> serialized entry (§6).
	Id2Entry = "Id2Entry"

	// Dn2Id is the name-to-id map: canonical-name -> id_u64_be. Not a
	// dup-sort table: each canonical name has exactly one id.
	Dn2Id = "Dn2Id"

	// Meta holds small fixed-key bookkeeping values, currently just the
	// id generator's persisted high-water mark (internal/ids.Sequence).
	Meta = "Meta"

	indexTablePrefix = "Index_"
)

// IndexTable returns the secondary-database name for an indexed
// attribute (§6: "Secondary store keys. Schema-defined byte strings").
// One table per indexed attribute, dup-sort, holding either a list of
// id duplicates or the three-duplicate range form.
func IndexTable(attr string) string {
	return indexTablePrefix + attr
}

// IsDupSort reports whether table holds duplicate-sorted records. Only
// the per-attribute index tables do; backends that must declare
// dup-sort support up front (internal/kv/mdbxkv) use this to pick
// per-table open flags.
func IsDupSort(table string) bool {
	return strings.HasPrefix(table, indexTablePrefix)
}

// ChaindataTables lists every table this backend knows how to open.
// Database adapters use it to create buckets/dbis up front; callers
// append the per-attribute index tables via IndexTable before passing
// the combined list to a DB constructor.
var ChaindataTables = []string{
	Id2Entry,
	Dn2Id,
	Meta,
}
