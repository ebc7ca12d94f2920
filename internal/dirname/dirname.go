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

// Package dirname provides the one operation the resolver needs from
// the canonical-name parsing library that §6 puts out of scope: given
// a canonicalized hierarchical name, derive its immediate parent by
// stripping one name component. The library itself (escaping, UTF-8
// normalization, attribute-type aliasing) is an external collaborator;
// this package assumes its output is already the comma-joined,
// most-specific-first form ("cn=a,ou=b,o=x") and only walks it.
package dirname

import "strings"

// Name is a canonicalized hierarchical name.
type Name string

// Root is the empty name: the virtual ancestor above any configured
// suffix (§4.C step 1).
const Root Name = ""

// Parent returns n's immediate ancestor by stripping the leading RDN
// component, and false if n is already Root.
func (n Name) Parent() (Name, bool) {
	if n == Root {
		return Root, false
	}
	i := strings.IndexByte(string(n), ',')
	if i < 0 {
		return Root, true
	}
	return n[i+1:], true
}

// IsSuffix reports whether n is exactly the configured suffix, the
// point at which §4.C step 4 stops recursing up the ancestor chain.
func (n Name) IsSuffix(suffix Name) bool {
	return n == suffix
}
