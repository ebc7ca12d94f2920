package schema

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/erigontech/dirstore/internal/direntry"
	"github.com/erigontech/dirstore/internal/ids"
)

type recordingInserter struct {
	keys [][]byte
}

func (r *recordingInserter) Insert(table string, key []byte, id ids.ID) error {
	r.keys = append(r.keys, key)
	return nil
}

func TestNewExactMatchHonorsIndexNAttrs(t *testing.T) {
	x := NewExactMatch([]string{"cn", "mail", "uid"}, 2)
	descs := x.Attributes()
	require.Len(t, descs, 2)
	require.Equal(t, "cn", descs[0].Attribute)
	require.Equal(t, "Index_cn", descs[0].Table)
	require.Equal(t, "mail", descs[1].Attribute)
}

func TestNewExactMatchClampsOutOfRangeNAttrs(t *testing.T) {
	x := NewExactMatch([]string{"cn"}, 5)
	require.Len(t, x.Attributes(), 1)
}

func TestRecSetOnlyMatchesConfiguredAttribute(t *testing.T) {
	x := NewExactMatch([]string{"cn", "mail"}, 2)
	e := &direntry.Entry{Attrs: []direntry.Attribute{
		{Type: "cn", Values: [][]byte{[]byte("alice")}},
		{Type: "mail", Values: [][]byte{[]byte("a@example.com"), []byte("a2@example.com")}},
	}}

	cnRecs := x.RecSet(x.Attributes()[0], e)
	require.Len(t, cnRecs, 1)
	require.Equal(t, []byte("alice"), cnRecs[0].Key)

	mailRecs := x.RecSet(x.Attributes()[1], e)
	require.Len(t, mailRecs, 2)
}

func TestRecRunPartitionsByStride(t *testing.T) {
	x := NewExactMatch([]string{"cn"}, 1)
	recs := []Record{
		{Table: "Index_cn", Key: []byte("a")},
		{Table: "Index_cn", Key: []byte("b")},
		{Table: "Index_cn", Key: []byte("c")},
		{Table: "Index_cn", Key: []byte("d")},
	}

	ins := &recordingInserter{}
	require.NoError(t, x.RecRun(recs, 1, 0, 2, ins))
	require.Equal(t, [][]byte{[]byte("a"), []byte("c")}, ins.keys)

	ins2 := &recordingInserter{}
	require.NoError(t, x.RecRun(recs, 1, 1, 2, ins2))
	require.Equal(t, [][]byte{[]byte("b"), []byte("d")}, ins2.keys)
}

func TestRecRunRejectsNonPositiveStride(t *testing.T) {
	x := NewExactMatch([]string{"cn"}, 1)
	require.Error(t, x.RecRun(nil, 1, 0, 0, &recordingInserter{}))
}
