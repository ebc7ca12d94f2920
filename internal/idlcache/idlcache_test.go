package idlcache

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/erigontech/dirstore/internal/ids"
	"github.com/erigontech/dirstore/internal/kv"
	"github.com/erigontech/dirstore/internal/kv/boltkv"
)

const testTable = "Index_cn"

func openTestDB(t *testing.T) kv.DB {
	t.Helper()
	db, err := boltkv.Open(filepath.Join(t.TempDir(), "idlcache.db"), []string{testTable})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func readAllDups(t *testing.T, db kv.DB, key []byte) []ids.ID {
	t.Helper()
	var out []ids.ID
	require.NoError(t, db.View(func(tx kv.Tx) error {
		cur, err := tx.CursorDupSort(testTable)
		if err != nil {
			return err
		}
		defer cur.Close()
		v, err := cur.SeekExact(key)
		if err != nil {
			return err
		}
		out = append(out, ids.Decode(v))
		for {
			_, v, err := cur.NextDup()
			if err != nil {
				break
			}
			out = append(out, ids.Decode(v))
		}
		return nil
	}))
	return out
}

// A list that never crosses the threshold flushes as plain duplicates,
// one per inserted id, in ascending order (§4.A, "list" form).
func TestCacheFlushSmallList(t *testing.T) {
	db := openTestDB(t)
	c := New(10, 64)

	rwtx, err := db.BeginRw()
	require.NoError(t, err)
	for _, id := range []ids.ID{1, 2, 3} {
		require.NoError(t, c.Insert(rwtx, testTable, []byte("alice"), id))
	}
	require.NoError(t, c.FlushAll(rwtx))
	require.NoError(t, rwtx.Commit())

	got := readAllDups(t, db, []byte("alice"))
	require.Equal(t, []ids.ID{1, 2, 3}, got)
}

// Once count exceeds threshold, the entry degrades to the range form:
// a NOID marker, the first id seen, and the last id seen — never the
// full membership (§4.A, "range" form, §8 "cache size stays bounded").
func TestCacheFlushBecomesRange(t *testing.T) {
	db := openTestDB(t)
	threshold := uint64(3)
	c := New(threshold, 64)

	rwtx, err := db.BeginRw()
	require.NoError(t, err)
	for id := ids.ID(1); id <= 6; id++ {
		require.NoError(t, c.Insert(rwtx, testTable, []byte("bob"), id))
	}
	require.NoError(t, c.FlushAll(rwtx))
	require.NoError(t, rwtx.Commit())

	got := readAllDups(t, db, []byte("bob"))
	require.Equal(t, []ids.ID{ids.NOID, 1, 6}, got)
}

// A second load pass against a key already stored as a range (on disk,
// from a prior Flush) extends the range's last id without touching the
// marker or first value.
func TestCacheFlushExtendsExistingRange(t *testing.T) {
	db := openTestDB(t)
	threshold := uint64(2)

	rwtx, err := db.BeginRw()
	require.NoError(t, err)
	require.NoError(t, rwtx.Put(testTable, compositeOf(t, []byte("carl"), ids.Encode(ids.NOID)), ids.Encode(ids.NOID)))
	require.NoError(t, rwtx.Put(testTable, compositeOf(t, []byte("carl"), ids.Encode(10)), ids.Encode(10)))
	require.NoError(t, rwtx.Put(testTable, compositeOf(t, []byte("carl"), ids.Encode(20)), ids.Encode(20)))
	require.NoError(t, rwtx.Commit())

	c := New(threshold, 64)
	rwtx, err = db.BeginRw()
	require.NoError(t, err)
	require.NoError(t, c.Insert(rwtx, testTable, []byte("carl"), 30))
	require.NoError(t, c.FlushAll(rwtx))
	require.NoError(t, rwtx.Commit())

	got := readAllDups(t, db, []byte("carl"))
	require.Equal(t, []ids.ID{ids.NOID, 10, 30}, got)
}

// A key already stored on disk as a plain list (from a prior, smaller
// load) that crosses the threshold on this pass is normalized to the
// range form: every old duplicate is dropped and replaced by the
// marker/first/last triple.
func TestCacheFlushNormalizesListToRange(t *testing.T) {
	db := openTestDB(t)
	threshold := uint64(5)

	rwtx, err := db.BeginRw()
	require.NoError(t, err)
	for _, id := range []ids.ID{1, 2} {
		require.NoError(t, rwtx.Put(testTable, compositeOf(t, []byte("dana"), ids.Encode(id)), ids.Encode(id)))
	}
	require.NoError(t, rwtx.Commit())

	c := New(threshold, 64)
	rwtx, err = db.BeginRw()
	require.NoError(t, err)
	for id := ids.ID(3); id <= 10; id++ {
		require.NoError(t, c.Insert(rwtx, testTable, []byte("dana"), id))
	}
	require.NoError(t, c.FlushAll(rwtx))
	require.NoError(t, rwtx.Commit())

	got := readAllDups(t, db, []byte("dana"))
	require.Equal(t, []ids.ID{ids.NOID, 1, 10}, got)
}

// idl_cache_max_size == 0 disables batching: every insert lands
// immediately, with no in-memory tree ever populated.
func TestCacheDirectWriteBypassesBatching(t *testing.T) {
	db := openTestDB(t)
	c := New(10, 0)

	rwtx, err := db.BeginRw()
	require.NoError(t, err)
	require.NoError(t, c.Insert(rwtx, testTable, []byte("erin"), 1))
	require.NoError(t, c.Insert(rwtx, testTable, []byte("erin"), 2))
	require.NoError(t, rwtx.Commit())
	require.Empty(t, c.Tables())

	got := readAllDups(t, db, []byte("erin"))
	require.Equal(t, []ids.ID{1, 2}, got)
}

// Memory pressure mid-load forces an early Flush of the whole table;
// the cache keeps accepting inserts for the same key afterward and a
// later FlushAll still produces the correct final on-disk state.
func TestCachePressureFlushThenContinue(t *testing.T) {
	db := openTestDB(t)
	c := New(100000, 1) // threshold never reached; one block of headroom forces a mid-list flush

	rwtx, err := db.BeginRw()
	require.NoError(t, err)
	for id := ids.ID(1); id <= IDBlockCap+5; id++ {
		require.NoError(t, c.Insert(rwtx, testTable, []byte("frank"), id))
	}
	require.NoError(t, c.FlushAll(rwtx))
	require.NoError(t, rwtx.Commit())

	got := readAllDups(t, db, []byte("frank"))
	require.Len(t, got, IDBlockCap+5)
	for i, id := range got {
		require.Equal(t, ids.ID(i+1), id)
	}
}

// compositeOf mirrors boltkv's internal composite-key encoding so
// tests can seed the underlying bucket directly as if a prior load had
// already run. It intentionally duplicates that private encoding
// rather than exporting it: only tests reach around the kv.DB
// interface this way.
func compositeOf(t *testing.T, key, val []byte) []byte {
	t.Helper()
	out := make([]byte, 2+len(key)+len(val))
	out[0] = byte(len(key) >> 8)
	out[1] = byte(len(key))
	copy(out[2:2+len(key)], key)
	copy(out[2+len(key):], val)
	return out
}
