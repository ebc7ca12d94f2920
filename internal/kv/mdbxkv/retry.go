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

package mdbxkv

import (
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/erigontech/mdbx-go/mdbx"

	"github.com/erigontech/dirstore/internal/kv"
)

// retryMaxElapsed bounds how long UpdateRetrying keeps retrying a
// reader-slot/map-resize contention before giving up and surfacing the
// error. A bulk-load run has a single producer opening one write
// transaction at a time (§5), so contention here comes from something
// external to the load itself (a concurrent reader opening the
// environment, a resize racing a new transaction).
const retryMaxElapsed = 10 * time.Second

func newRetryBackoff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 5 * time.Millisecond
	bo.MaxElapsedTime = retryMaxElapsed
	return bo
}

// isRetryable reports whether err is one of MDBX's well-known
// transient conditions rather than a real failure: MDBX_BUSY (another
// process holds the writer or a reader slot is momentarily
// unavailable) and MDBX_UNABLE_EXTEND_MAPSIZE (a resize raced an
// in-flight transaction and must be retried against the new size).
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch err {
	case mdbx.ErrBusy, mdbx.ErrUnableExtendMapsize:
		return true
	default:
		return false
	}
}

// UpdateRetrying runs f in a read-write transaction like DB.Update,
// retrying it with backoff when MDBX reports one of the transient
// conditions isRetryable recognizes. Its one caller is
// internal/ids.Sequence's batch reservation; the load and reindex
// pipelines call DB.Update (or open their transactions through
// internal/session) and do not retry.
func (d *DB) UpdateRetrying(f func(kv.RwTx) error) error {
	return backoff.Retry(func() error {
		err := d.env.Update(func(txn *mdbx.Txn) error {
			return f(&rwTx{roTx{txn: txn, dbis: d.dbis}})
		})
		if err != nil && isRetryable(err) {
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}, newRetryBackoff())
}
