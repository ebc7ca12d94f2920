package main

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/erigontech/dirstore/internal/direntry"
	"github.com/erigontech/dirstore/internal/dirname"
)

func TestReadEntriesParsesEachLine(t *testing.T) {
	input := strings.Join([]string{
		`{"name":"root","canonical_name":"o=x","attrs":[{"type":"cn","values":["root"]}]}`,
		`{"name":"child","canonical_name":"cn=child,o=x","attrs":[{"type":"cn","values":["child"]},{"type":"mail","values":["a@example.com","b@example.com"]}]}`,
	}, "\n")

	var got []*direntry.Entry
	err := readEntries(strings.NewReader(input), func(e *direntry.Entry) error {
		got = append(got, e)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 2)

	require.Equal(t, dirname.Name("o=x"), got[0].CanonicalName)
	require.Equal(t, "cn", got[0].Attrs[0].Type)
	require.Equal(t, [][]byte{[]byte("root")}, got[0].Attrs[0].Values)

	require.Equal(t, dirname.Name("cn=child,o=x"), got[1].CanonicalName)
	require.Len(t, got[1].Attrs, 2)
	require.Equal(t, [][]byte{[]byte("a@example.com"), []byte("b@example.com")}, got[1].Attrs[1].Values)
}

func TestReadEntriesSkipsBlankLines(t *testing.T) {
	input := "\n" + `{"name":"root","canonical_name":"o=x"}` + "\n\n"

	var got []*direntry.Entry
	err := readEntries(strings.NewReader(input), func(e *direntry.Entry) error {
		got = append(got, e)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestReadEntriesStopsOnMalformedLine(t *testing.T) {
	input := `{"name":"root","canonical_name":"o=x"}` + "\n" + `not json` + "\n"

	var got []*direntry.Entry
	err := readEntries(strings.NewReader(input), func(e *direntry.Entry) error {
		got = append(got, e)
		return nil
	})
	require.Error(t, err)
	require.Len(t, got, 1)
}

func TestReadEntriesStopsOnYieldError(t *testing.T) {
	input := strings.Join([]string{
		`{"name":"a","canonical_name":"o=x"}`,
		`{"name":"b","canonical_name":"o=x"}`,
	}, "\n")

	errStop := errors.New("stop")
	calls := 0
	err := readEntries(strings.NewReader(input), func(e *direntry.Entry) error {
		calls++
		return errStop
	})
	require.ErrorIs(t, err, errStop)
	require.Equal(t, 1, calls)
}
