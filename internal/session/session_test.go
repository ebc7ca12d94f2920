package session

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/erigontech/dirstore/internal/ids"
	"github.com/erigontech/dirstore/internal/kv"
	"github.com/erigontech/dirstore/internal/kv/boltkv"
)

func openTestDB(t *testing.T) kv.DB {
	t.Helper()
	db, err := boltkv.Open(filepath.Join(t.TempDir(), "session.db"), []string{kv.Id2Entry})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSessionScansInIDOrder(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.Update(func(tx kv.RwTx) error {
		for _, id := range []ids.ID{3, 1, 2} {
			if err := tx.Put(kv.Id2Entry, ids.Encode(id), []byte("entry")); err != nil {
				return err
			}
		}
		return nil
	}))

	s, err := Open(db)
	require.NoError(t, err)
	defer s.Close()

	id, _, err := s.First()
	require.NoError(t, err)
	require.Equal(t, ids.ID(1), id)

	id, _, err = s.Next()
	require.NoError(t, err)
	require.Equal(t, ids.ID(2), id)

	id, _, err = s.Next()
	require.NoError(t, err)
	require.Equal(t, ids.ID(3), id)

	_, _, err = s.Next()
	require.ErrorIs(t, err, kv.ErrNotFound)
}

// WithRwTx's write must be visible to the cursor once reopened, and
// the cursor must still work at all after the round trip.
func TestWithRwTxReopensCursor(t *testing.T) {
	db := openTestDB(t)
	s, err := Open(db)
	require.NoError(t, err)
	defer s.Close()

	err = s.WithRwTx(func(tx kv.RwTx) error {
		return tx.Put(kv.Id2Entry, ids.Encode(42), []byte("entry"))
	})
	require.NoError(t, err)

	id, _, err := s.First()
	require.NoError(t, err)
	require.Equal(t, ids.ID(42), id)
}

// The reopened cursor must resume exactly where it left off: a scan
// that interleaves First/Next with WithRwTx (as reindex.scan does)
// must not lose its place.
func TestWithRwTxPreservesScanPosition(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.Update(func(tx kv.RwTx) error {
		for _, id := range []ids.ID{1, 2, 3} {
			if err := tx.Put(kv.Id2Entry, ids.Encode(id), []byte("entry")); err != nil {
				return err
			}
		}
		return nil
	}))

	s, err := Open(db)
	require.NoError(t, err)
	defer s.Close()

	id, _, err := s.First()
	require.NoError(t, err)
	require.Equal(t, ids.ID(1), id)

	require.NoError(t, s.WithRwTx(func(tx kv.RwTx) error { return nil }))

	id, _, err = s.Next()
	require.NoError(t, err)
	require.Equal(t, ids.ID(2), id)

	require.NoError(t, s.WithRwTx(func(tx kv.RwTx) error { return nil }))

	id, _, err = s.Next()
	require.NoError(t, err)
	require.Equal(t, ids.ID(3), id)

	_, _, err = s.Next()
	require.ErrorIs(t, err, kv.ErrNotFound)
}

// A failing body rolls back and still leaves the cursor usable.
func TestWithRwTxRollsBackOnError(t *testing.T) {
	db := openTestDB(t)
	s, err := Open(db)
	require.NoError(t, err)
	defer s.Close()

	boom := errors.New("boom")
	err = s.WithRwTx(func(tx kv.RwTx) error {
		if err := tx.Put(kv.Id2Entry, ids.Encode(1), []byte("entry")); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, _, err = s.First()
	require.ErrorIs(t, err, kv.ErrNotFound)
}
