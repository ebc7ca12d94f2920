package loadpipeline

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/erigontech/dirstore/internal/dirname"
	"github.com/erigontech/dirstore/internal/direntry"
	"github.com/erigontech/dirstore/internal/idlcache"
	"github.com/erigontech/dirstore/internal/ids"
	"github.com/erigontech/dirstore/internal/kv"
	"github.com/erigontech/dirstore/internal/kv/boltkv"
	"github.com/erigontech/dirstore/internal/resolver"
	"github.com/erigontech/dirstore/internal/schema"
)

func openTestDB(t *testing.T) kv.DB {
	t.Helper()
	tables := append([]string{}, kv.ChaindataTables...)
	tables = append(tables, kv.IndexTable("cn"))
	db, err := boltkv.Open(filepath.Join(t.TempDir(), "load.db"), tables)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newPipeline(t *testing.T, db kv.DB, cfg Config) *Pipeline {
	t.Helper()
	seq, err := ids.NewSequence(db)
	require.NoError(t, err)
	res := resolver.New(dirname.Name("o=x"), seq)
	cache := idlcache.New(1000, 64)
	idx := schema.NewExactMatch([]string{"cn"}, 1)

	p, err := Open(db, res, cache, idx, direntry.SnappyGob{}, cfg)
	require.NoError(t, err)
	return p
}

func entryFor(name dirname.Name, cn string) *direntry.Entry {
	return &direntry.Entry{
		CanonicalName: name,
		Attrs:         []direntry.Attribute{{Type: "cn", Values: [][]byte{[]byte(cn)}}},
	}
}

// A plain transactional load of one entry writes the primary store
// and the secondary index for its one attribute.
func TestPipelinePutTransactional(t *testing.T) {
	db := openTestDB(t)
	p := newPipeline(t, db, Config{Workers: 2})

	id, err := p.Put(entryFor("o=x", "root"))
	require.NoError(t, err)
	require.Equal(t, ids.ID(1), id)
	require.NoError(t, p.Close())

	require.NoError(t, db.View(func(tx kv.Tx) error {
		v, err := tx.GetOne(kv.Id2Entry, ids.Encode(id))
		require.NoError(t, err)
		require.NotEmpty(t, v)

		cur, err := tx.CursorDupSort(kv.IndexTable("cn"))
		require.NoError(t, err)
		defer cur.Close()
		v, err = cur.SeekExact([]byte("root"))
		require.NoError(t, err)
		require.Equal(t, id, ids.Decode(v))
		return nil
	}))
}

// A child loaded before its ancestor leaves a hole; Close must fail
// until the ancestor is loaded too.
func TestPipelineCloseFailsOnOpenHoles(t *testing.T) {
	db := openTestDB(t)
	p := newPipeline(t, db, Config{Workers: 2})

	_, err := p.Put(entryFor("cn=leaf,ou=people,o=x", "leaf"))
	require.NoError(t, err)

	require.Error(t, p.Close())
}

// Quick mode still writes a usable store.
func TestPipelineQuickMode(t *testing.T) {
	db := openTestDB(t)
	p := newPipeline(t, db, Config{Quick: true, Workers: 2})

	id, err := p.Put(entryFor("o=x", "root"))
	require.NoError(t, err)
	require.NoError(t, p.Close())

	require.NoError(t, db.View(func(tx kv.Tx) error {
		v, err := tx.GetOne(kv.Id2Entry, ids.Encode(id))
		require.NoError(t, err)
		require.NotEmpty(t, v)
		return nil
	}))
}

// Linear-index mode defers attribute indexing entirely: Put only
// assigns ids and writes the primary store.
func TestPipelineLinearIndexSkipsInlineIndexing(t *testing.T) {
	db := openTestDB(t)
	p := newPipeline(t, db, Config{LinearIndex: true})
	require.Nil(t, p.pool)

	id, err := p.Put(entryFor("o=x", "root"))
	require.NoError(t, err)
	require.NoError(t, p.Close())

	require.NoError(t, db.View(func(tx kv.Tx) error {
		cur, err := tx.CursorDupSort(kv.IndexTable("cn"))
		require.NoError(t, err)
		defer cur.Close()
		_, err = cur.SeekExact([]byte("root"))
		require.ErrorIs(t, err, kv.ErrNotFound)
		return nil
	}))
	_ = id
}

// Get reads back exactly what Put wrote, by id, without disturbing a
// subsequent Put.
func TestPipelineGetReturnsStoredEntry(t *testing.T) {
	db := openTestDB(t)
	p := newPipeline(t, db, Config{Workers: 2})

	id, err := p.Put(entryFor("o=x", "root"))
	require.NoError(t, err)

	got, err := p.Get(id)
	require.NoError(t, err)
	require.Equal(t, id, got.ID)
	require.Equal(t, dirname.Name("o=x"), got.CanonicalName)

	_, err = p.Put(entryFor("cn=child,o=x", "child"))
	require.NoError(t, err)
	require.NoError(t, p.Close())
}

// Replace overwrites a previously loaded entry's stored record without
// touching the resolver or any secondary database.
func TestPipelineReplaceOverwritesPrimaryStoreOnly(t *testing.T) {
	db := openTestDB(t)
	p := newPipeline(t, db, Config{Workers: 2})

	e := entryFor("o=x", "root")
	id, err := p.Put(e)
	require.NoError(t, err)

	e.ID = id
	e.Attrs = []direntry.Attribute{{Type: "cn", Values: [][]byte{[]byte("renamed")}}}
	require.NoError(t, p.Replace(e))

	got, err := p.Get(id)
	require.NoError(t, err)
	require.Equal(t, "renamed", string(got.Attrs[0].Values[0]))

	require.NoError(t, db.View(func(tx kv.Tx) error {
		cur, err := tx.CursorDupSort(kv.IndexTable("cn"))
		require.NoError(t, err)
		defer cur.Close()
		v, err := cur.SeekExact([]byte("root"))
		require.NoError(t, err)
		require.Equal(t, id, ids.Decode(v))
		return nil
	}))
	require.NoError(t, p.Close())
}

func TestPipelineReplaceRejectsUnassignedEntry(t *testing.T) {
	db := openTestDB(t)
	p := newPipeline(t, db, Config{Workers: 2})
	require.Error(t, p.Replace(entryFor("o=x", "root")))
	require.NoError(t, p.Close())
}
