package ids

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/erigontech/dirstore/internal/kv"
	"github.com/erigontech/dirstore/internal/kv/boltkv"
)

func openTestDB(t *testing.T) kv.DB {
	t.Helper()
	db, err := boltkv.Open(filepath.Join(t.TempDir(), "seq.db"), []string{kv.Meta})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSequenceStartsAtOne(t *testing.T) {
	db := openTestDB(t)
	seq, err := NewSequence(db)
	require.NoError(t, err)

	id, err := seq.Next()
	require.NoError(t, err)
	require.Equal(t, ID(1), id)
}

func TestSequenceMonotonicAcrossBatchBoundary(t *testing.T) {
	db := openTestDB(t)
	seq, err := NewSequence(db)
	require.NoError(t, err)

	var last ID
	for i := 0; i < reserveBatch*2+3; i++ {
		id, err := seq.Next()
		require.NoError(t, err)
		require.Greater(t, id, last)
		last = id
	}
}

// Reopening against the same store resumes beyond every id already
// reserved, even ids that were never actually handed out before the
// (simulated) restart.
func TestSequenceSurvivesReopen(t *testing.T) {
	db := openTestDB(t)
	seq, err := NewSequence(db)
	require.NoError(t, err)
	id, err := seq.Next()
	require.NoError(t, err)
	require.Equal(t, ID(1), id)

	seq2, err := NewSequence(db)
	require.NoError(t, err)
	id2, err := seq2.Next()
	require.NoError(t, err)
	require.GreaterOrEqual(t, id2, ID(reserveBatch+1))
}
