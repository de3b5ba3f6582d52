package core

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"transform-backend/internal/core/utils"
	"transform-backend/internal/dataset"
	"transform-backend/internal/llm"
	"transform-backend/pkg/api"
)

// maxParallelCompletions bounds concurrent collaborator calls per chunk.
const maxParallelCompletions = 4

// ProcessTransformChunk applies every column command to every row of the
// chunk. Each cell is transformed independently; the collaborator absorbs its
// own failures, so a bad completion leaves that cell's fallback value in place
// and the rest of the chunk proceeds.
func ProcessTransformChunk(ctx context.Context, chunk dataset.Table, commands api.ColumnCommands, model llm.LLM) dataset.Table {
	result := chunk.Clone()
	start := time.Now()
	operations := 0

	columns := make([]string, 0, len(commands))
	for col := range commands {
		columns = append(columns, col)
	}
	sort.Strings(columns)

	for _, col := range columns {
		cmd := commands[col]
		outputCol := cmd.OutputColumn(col)
		result.EnsureColumn(outputCol, col)

		texts := make([]string, result.NumRows())
		for row := range texts {
			texts[row] = result.Cell(row, col)
		}

		values := utils.MapInPool(texts, maxParallelCompletions, func(text string) string {
			return model.TransformText(ctx, text, cmd.Command)
		})

		for row, value := range values {
			if err := result.SetCell(row, outputCol, value); err != nil {
				slog.Error("error writing transformed cell", "column", outputCol, "row", row, "error", err)
				continue
			}
			operations++
		}
	}

	slog.Info("transform chunk processed", "rows", chunk.NumRows(), "columns", len(columns), "operations", operations, "duration", time.Since(start))
	return result
}

// ProcessGenerateChunk builds one record per row from the reference columns,
// asks the collaborator for the whole chunk in a single batch call, and writes
// the returned values positionally into the new column.
func ProcessGenerateChunk(ctx context.Context, chunk dataset.Table, referenceColumns []string, newColumn, prompt string, model llm.LLM) dataset.Table {
	result := chunk.Clone()
	result.EnsureColumn(newColumn, "")

	records := make([]map[string]string, chunk.NumRows())
	for row := 0; row < chunk.NumRows(); row++ {
		records[row] = chunk.Record(row, referenceColumns)
	}

	values := model.GenerateBatch(ctx, records, prompt)
	for row := 0; row < result.NumRows() && row < len(values); row++ {
		if err := result.SetCell(row, newColumn, values[row]); err != nil {
			slog.Error("error writing generated cell", "column", newColumn, "row", row, "error", err)
		}
	}

	slog.Info("generate chunk processed", "rows", chunk.NumRows(), "column", newColumn)
	return result
}
