package orchestrator

import (
	"context"
	"fmt"
	"log/slog"

	"transform-backend/internal/core"
	"transform-backend/internal/dataset"
	"transform-backend/internal/llm"
	"transform-backend/pkg/api"
)

// localStrategy runs jobs synchronously in-process: same filtering, same
// chunking, same per-chunk processing routines the workers use, no queueing.
// It is selected when the coordination store is unreachable and keeps the
// public contract intact.
type localStrategy struct {
	model llm.LLM
	opts  Options
}

func (s *localStrategy) ProcessTable(ctx context.Context, tbl dataset.Table, commands api.ColumnCommands, searchDescription string, progress ProgressFunc) (dataset.Table, error) {
	filtered, matched := filterRows(ctx, s.model, tbl, commands, searchDescription)
	if !matched {
		return tbl, ErrNoMatchingRows
	}

	ranges := core.SplitRows(filtered.NumRows(), s.opts.ChunkSize)
	if len(ranges) == 0 {
		return tbl, fmt.Errorf("no chunks created for processing")
	}

	slog.Info("processing table in-process", "rows", filtered.NumRows(), "chunks", len(ranges))

	chunks := make([]dataset.Table, 0, len(ranges))
	for i, r := range ranges {
		if err := ctx.Err(); err != nil {
			return tbl, err
		}
		chunks = append(chunks, core.ProcessTransformChunk(ctx, filtered.Slice(r.Start, r.End), commands, s.model))
		reportProgress(progress, float64(i+1)/float64(len(ranges)))
	}

	reportProgress(progress, 1.0)
	return dataset.Concat(chunks...), nil
}

func (s *localStrategy) GenerateColumn(ctx context.Context, tbl dataset.Table, referenceColumns []string, newColumnName, generationPrompt string, progress ProgressFunc) (dataset.Table, error) {
	ranges := core.SplitRows(tbl.NumRows(), s.opts.ChunkSize)
	if len(ranges) == 0 {
		return tbl, fmt.Errorf("no chunks created for processing")
	}

	slog.Info("generating column in-process", "rows", tbl.NumRows(), "chunks", len(ranges), "new_column", newColumnName)

	chunks := make([]dataset.Table, 0, len(ranges))
	for i, r := range ranges {
		if err := ctx.Err(); err != nil {
			return tbl, err
		}
		chunks = append(chunks, core.ProcessGenerateChunk(ctx, tbl.Slice(r.Start, r.End), referenceColumns, newColumnName, generationPrompt, s.model))
		reportProgress(progress, float64(i+1)/float64(len(ranges)))
	}

	reportProgress(progress, 1.0)
	return dataset.Concat(chunks...), nil
}
