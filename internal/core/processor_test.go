package core_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transform-backend/internal/core"
	"transform-backend/internal/dataset"
	"transform-backend/pkg/api"
)

// fakeModel is a deterministic collaborator: transforms annotate the input
// with the instruction, generation joins the record fields.
type fakeModel struct{}

func (fakeModel) TransformText(_ context.Context, text, instruction string) string {
	return instruction + "(" + text + ")"
}

func (fakeModel) GenerateBatch(_ context.Context, records []map[string]string, prompt string) []string {
	values := make([]string, len(records))
	for i, record := range records {
		parts := make([]string, 0, len(record))
		for _, k := range []string{"name", "city"} {
			if v, ok := record[k]; ok {
				parts = append(parts, v)
			}
		}
		values[i] = prompt + ":" + strings.Join(parts, "/")
	}
	return values
}

func (fakeModel) FilterMatches(_ context.Context, texts []string, description string) []bool {
	matches := make([]bool, len(texts))
	for i, text := range texts {
		matches[i] = strings.Contains(text, description)
	}
	return matches
}

func sampleTable() dataset.Table {
	return dataset.Table{
		Columns: []string{"name", "city"},
		Rows: [][]string{
			{"alice", "berlin"},
			{"bob", "lisbon"},
			{"carol", "oslo"},
		},
	}
}

func TestProcessTransformChunkReplaceMode(t *testing.T) {
	tbl := sampleTable()
	commands := api.ColumnCommands{
		"name": {Command: "upper"},
	}

	result := core.ProcessTransformChunk(context.Background(), tbl, commands, fakeModel{})

	assert.Equal(t, []string{"name", "city"}, result.Columns)
	assert.Equal(t, "upper(alice)", result.Cell(0, "name"))
	assert.Equal(t, "upper(carol)", result.Cell(2, "name"))
	// Untouched column and the input table stay as they were.
	assert.Equal(t, "berlin", result.Cell(0, "city"))
	assert.Equal(t, "alice", tbl.Cell(0, "name"))
}

func TestProcessTransformChunkNewColumn(t *testing.T) {
	tbl := sampleTable()
	commands := api.ColumnCommands{
		"city": {Command: "translate", OutputMode: api.OutputModeNewColumn, OutputName: "city_en"},
	}

	result := core.ProcessTransformChunk(context.Background(), tbl, commands, fakeModel{})

	require.True(t, result.HasColumn("city_en"))
	assert.Equal(t, "lisbon", result.Cell(1, "city"))
	assert.Equal(t, "translate(lisbon)", result.Cell(1, "city_en"))
}

func TestProcessTransformChunkMultipleColumns(t *testing.T) {
	tbl := sampleTable()
	commands := api.ColumnCommands{
		"name": {Command: "upper"},
		"city": {Command: "lower"},
	}

	result := core.ProcessTransformChunk(context.Background(), tbl, commands, fakeModel{})

	for row := 0; row < tbl.NumRows(); row++ {
		assert.Equal(t, "upper("+tbl.Cell(row, "name")+")", result.Cell(row, "name"))
		assert.Equal(t, "lower("+tbl.Cell(row, "city")+")", result.Cell(row, "city"))
	}
}

func TestProcessGenerateChunk(t *testing.T) {
	tbl := sampleTable()

	result := core.ProcessGenerateChunk(context.Background(), tbl, []string{"name", "city"}, "greeting", "say hi", fakeModel{})

	require.True(t, result.HasColumn("greeting"))
	assert.Equal(t, "say hi:alice/berlin", result.Cell(0, "greeting"))
	assert.Equal(t, "say hi:bob/lisbon", result.Cell(1, "greeting"))
	assert.Equal(t, "say hi:carol/oslo", result.Cell(2, "greeting"))
	assert.False(t, tbl.HasColumn("greeting"))
}

func TestProcessGenerateChunkEmpty(t *testing.T) {
	empty := dataset.New([]string{"name"})

	result := core.ProcessGenerateChunk(context.Background(), empty, []string{"name"}, "out", "p", fakeModel{})

	assert.True(t, result.HasColumn("out"))
	assert.Equal(t, 0, result.NumRows())
}
