package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"transform-backend/internal/coordination"
	"transform-backend/internal/core"
	"transform-backend/internal/dataset"
	"transform-backend/internal/llm"
	"transform-backend/pkg/api"
)

// distributedStrategy publishes one task per chunk to the shared work queue
// and polls the coordination store until independent worker processes have
// completed them all. The job never outlives the call: its metadata and
// result blobs are purged on success, timeout, and error alike.
type distributedStrategy struct {
	store coordination.Store
	model llm.LLM
	opts  Options
}

func (s *distributedStrategy) ProcessTable(ctx context.Context, tbl dataset.Table, commands api.ColumnCommands, searchDescription string, progress ProgressFunc) (dataset.Table, error) {
	jobId := uuid.New()
	slog.Info("starting transform job", "job_id", jobId, "rows", tbl.NumRows(), "columns", tbl.NumColumns())

	filtered, matched := filterRows(ctx, s.model, tbl, commands, searchDescription)
	if !matched {
		return tbl, ErrNoMatchingRows
	}

	ranges := core.SplitRows(filtered.NumRows(), s.opts.ChunkSize)
	if len(ranges) == 0 {
		return tbl, fmt.Errorf("no chunks created for processing")
	}

	commandsJSON, err := json.Marshal(commands)
	if err != nil {
		return tbl, fmt.Errorf("error encoding column commands: %w", err)
	}

	fields := map[string]string{
		coordination.FieldTotalChunks:     strconv.Itoa(len(ranges)),
		coordination.FieldCompletedChunks: "0",
		coordination.FieldStatus:          coordination.StatusProcessing,
		coordination.FieldCommands:        string(commandsJSON),
		coordination.FieldTaskType:        string(coordination.TaskTypeTransform),
	}
	if err := s.store.SetJobFields(ctx, jobId, fields); err != nil {
		return tbl, fmt.Errorf("error recording job metadata: %w", err)
	}

	if err := s.publishChunks(ctx, jobId, filtered, ranges, coordination.TaskTypeTransform); err != nil {
		s.cleanup(jobId)
		return tbl, err
	}

	result, err := s.collect(ctx, jobId, tbl, len(ranges), progress)
	if err != nil {
		return tbl, err
	}
	return result, nil
}

func (s *distributedStrategy) GenerateColumn(ctx context.Context, tbl dataset.Table, referenceColumns []string, newColumnName, generationPrompt string, progress ProgressFunc) (dataset.Table, error) {
	jobId := uuid.New()
	slog.Info("starting column generation job", "job_id", jobId, "rows", tbl.NumRows(), "new_column", newColumnName)

	ranges := core.SplitRows(tbl.NumRows(), s.opts.ChunkSize)
	if len(ranges) == 0 {
		return tbl, fmt.Errorf("no chunks created for processing")
	}

	referenceJSON, err := json.Marshal(referenceColumns)
	if err != nil {
		return tbl, fmt.Errorf("error encoding reference columns: %w", err)
	}

	fields := map[string]string{
		coordination.FieldTotalChunks:      strconv.Itoa(len(ranges)),
		coordination.FieldCompletedChunks:  "0",
		coordination.FieldStatus:           coordination.StatusProcessing,
		coordination.FieldReferenceColumns: string(referenceJSON),
		coordination.FieldNewColumnName:    newColumnName,
		coordination.FieldGenerationPrompt: generationPrompt,
		coordination.FieldTaskType:         string(coordination.TaskTypeGenerate),
	}
	if err := s.store.SetJobFields(ctx, jobId, fields); err != nil {
		return tbl, fmt.Errorf("error recording job metadata: %w", err)
	}

	if err := s.publishChunks(ctx, jobId, tbl, ranges, coordination.TaskTypeGenerate); err != nil {
		s.cleanup(jobId)
		return tbl, err
	}

	// The fallback base carries the empty new column so a degraded result
	// still has the shape the caller asked for.
	base := tbl.Clone()
	base.EnsureColumn(newColumnName, "")

	result, err := s.collect(ctx, jobId, base, len(ranges), progress)
	if err != nil {
		return tbl, err
	}
	return result, nil
}

// publishChunks enqueues one task per range, in chunk-ID order. Chunk IDs are
// the contiguous range [0, len(ranges)) and define reassembly order.
func (s *distributedStrategy) publishChunks(ctx context.Context, jobId uuid.UUID, tbl dataset.Table, ranges []core.RowRange, taskType coordination.TaskType) error {
	for chunkId, r := range ranges {
		chunk := tbl.Slice(r.Start, r.End)
		data, err := chunk.Marshal()
		if err != nil {
			return fmt.Errorf("error serializing chunk %d: %w", chunkId, err)
		}

		task := coordination.ChunkTask{
			JobId:       jobId,
			ChunkId:     chunkId,
			Data:        data,
			TotalChunks: len(ranges),
			TaskType:    taskType,
		}
		if err := s.store.EnqueueTask(ctx, task); err != nil {
			return fmt.Errorf("error publishing chunk %d: %w", chunkId, err)
		}
		slog.Debug("queued chunk", "job_id", jobId, "chunk_id", chunkId, "rows", chunk.NumRows())
	}

	slog.Info("published job chunks", "job_id", jobId, "total_chunks", len(ranges))
	return nil
}

// collect waits for completion, reassembles the result, and purges the job's
// store state on every path out.
func (s *distributedStrategy) collect(ctx context.Context, jobId uuid.UUID, base dataset.Table, totalChunks int, progress ProgressFunc) (dataset.Table, error) {
	if err := s.waitForCompletion(ctx, jobId, totalChunks, progress); err != nil {
		s.cleanup(jobId)
		return base, err
	}

	result := s.reassemble(ctx, jobId, base, totalChunks)
	s.cleanup(jobId)

	slog.Info("job completed", "job_id", jobId, "rows", result.NumRows())
	return result, nil
}

// waitForCompletion busy-polls the job's completed-chunk counter until it
// reaches totalChunks, the timeout elapses, or ctx is cancelled. Progress is
// reported only when the counter moves, plus a terminal 1.0 so observers
// always see completion.
func (s *distributedStrategy) waitForCompletion(ctx context.Context, jobId uuid.UUID, totalChunks int, progress ProgressFunc) error {
	deadline := time.Now().Add(s.opts.JobTimeout)
	lastCompleted := 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		fields, err := s.store.GetJobFields(ctx, jobId)
		if err != nil {
			return fmt.Errorf("error polling job %s: %w", jobId, err)
		}

		completed, _ := strconv.Atoi(fields[coordination.FieldCompletedChunks])
		if completed != lastCompleted {
			reportProgress(progress, float64(completed)/float64(totalChunks))
			slog.Info("job progress", "job_id", jobId, "completed", completed, "total", totalChunks)
			lastCompleted = completed
		}

		if completed >= totalChunks {
			reportProgress(progress, 1.0)
			return nil
		}

		if time.Now().After(deadline) {
			return &TimeoutError{Completed: lastCompleted, Total: totalChunks}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.opts.PollInterval):
		}
	}
}

// reassemble concatenates chunk results in ascending chunk-ID order. A chunk
// with a missing or undecodable result is logged and skipped rather than
// failing the job; if nothing is present the base table is returned.
func (s *distributedStrategy) reassemble(ctx context.Context, jobId uuid.UUID, base dataset.Table, totalChunks int) dataset.Table {
	chunks := make([]dataset.Table, 0, totalChunks)
	for chunkId := 0; chunkId < totalChunks; chunkId++ {
		blob, ok, err := s.store.GetResult(ctx, jobId, chunkId)
		if err != nil {
			slog.Warn("error fetching chunk result, skipping", "job_id", jobId, "chunk_id", chunkId, "error", err)
			continue
		}
		if !ok {
			slog.Warn("chunk result missing at reassembly, skipping", "job_id", jobId, "chunk_id", chunkId)
			continue
		}

		chunk, err := dataset.Unmarshal(blob)
		if err != nil {
			slog.Warn("undecodable chunk result, skipping", "job_id", jobId, "chunk_id", chunkId, "error", err)
			continue
		}
		chunks = append(chunks, chunk)
	}

	if len(chunks) == 0 {
		slog.Warn("no chunk results present, returning base table", "job_id", jobId)
		return base
	}
	return dataset.Concat(chunks...)
}

// cleanup purges job state with a fresh context so it also runs when the
// caller's context is already cancelled.
func (s *distributedStrategy) cleanup(jobId uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.store.DeleteJob(ctx, jobId); err != nil {
		slog.Error("error cleaning up job", "job_id", jobId, "error", err)
	}
}
