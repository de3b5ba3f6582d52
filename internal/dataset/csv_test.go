package dataset_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transform-backend/internal/dataset"
)

func TestReadCSV(t *testing.T) {
	tbl, err := dataset.ReadCSV(strings.NewReader("name,city\nalice,berlin\nbob,lisbon\n"))
	require.NoError(t, err)

	assert.Equal(t, []string{"name", "city"}, tbl.Columns)
	require.Equal(t, 2, tbl.NumRows())
	assert.Equal(t, "lisbon", tbl.Cell(1, "city"))
}

func TestReadCSVPadsShortRecords(t *testing.T) {
	tbl, err := dataset.ReadCSV(strings.NewReader("a,b,c\n1,2\n"))
	require.NoError(t, err)

	require.Equal(t, 1, tbl.NumRows())
	assert.Equal(t, []string{"1", "2", ""}, tbl.Rows[0])
}

func TestReadCSVEmptyInput(t *testing.T) {
	_, err := dataset.ReadCSV(strings.NewReader(""))
	assert.ErrorContains(t, err, "empty")
}

func TestReadCSVHeaderOnly(t *testing.T) {
	tbl, err := dataset.ReadCSV(strings.NewReader("a,b\n"))
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b"}, tbl.Columns)
	assert.Equal(t, 0, tbl.NumRows())
}

func TestWriteCSVRoundTrip(t *testing.T) {
	tbl := dataset.Table{
		Columns: []string{"name", "note"},
		Rows: [][]string{
			{"alice", "likes, commas"},
			{"bob", "line\nbreak"},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, tbl.WriteCSV(&buf))

	decoded, err := dataset.ReadCSV(&buf)
	require.NoError(t, err)
	assert.Equal(t, tbl, decoded)
}
