// Copyright 2024 The Erigon Authors
// This work is derived from erigon-lib/common/math.
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

// Package dsmath carries the small integer helpers the bulk-load core
// needs; it is the part of erigon-lib/common/math that survived once
// everything hex/JSON/crypto-random related (unused by a storage core)
// was trimmed.
package dsmath

// CeilDiv divides x by y, rounding up; a zero y yields 0.
func CeilDiv(x, y int) int {
	if y == 0 {
		return 0
	}
	return (x + y - 1) / y
}

// Min returns the smaller of x and y.
func Min(x, y uint64) uint64 {
	if x < y {
		return x
	}
	return y
}

// Max returns the larger of x and y.
func Max(x, y uint64) uint64 {
	if x > y {
		return x
	}
	return y
}
