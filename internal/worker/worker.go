package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"transform-backend/internal/coordination"
	"transform-backend/internal/core"
	"transform-backend/internal/dataset"
	"transform-backend/internal/llm"
	"transform-backend/pkg/api"
)

const (
	DefaultDequeueTimeout = time.Second
	errorBackoff          = time.Second
)

// Worker consumes chunk tasks from the shared work queue until its context is
// cancelled. Workers share no state with each other or with the orchestrator;
// everything goes through the coordination store.
type Worker struct {
	store          coordination.Store
	model          llm.LLM
	dequeueTimeout time.Duration
}

func New(store coordination.Store, model llm.LLM, dequeueTimeout time.Duration) *Worker {
	if dequeueTimeout <= 0 {
		dequeueTimeout = DefaultDequeueTimeout
	}
	return &Worker{store: store, model: model, dequeueTimeout: dequeueTimeout}
}

// Run loops until ctx is cancelled. Cancellation is checked between tasks, so
// a chunk already being processed always runs to completion before the worker
// exits.
func (w *Worker) Run(ctx context.Context) {
	slog.Info("worker started, waiting for tasks")

	for {
		select {
		case <-ctx.Done():
			slog.Info("worker shutting down")
			return
		default:
		}

		task, err := w.store.DequeueTask(ctx, w.dequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				slog.Info("worker shutting down")
				return
			}
			slog.Error("error dequeueing task", "error", err)
			time.Sleep(errorBackoff)
			continue
		}
		if task == nil {
			continue
		}

		if err := w.processTask(task); err != nil {
			slog.Error("error processing task", "job_id", task.JobId, "chunk_id", task.ChunkId, "error", err)
		}
	}
}

// processTask runs one chunk end to end: fetch metadata, process, store the
// result, bump the completion counter. It uses a background context so a
// worker shutdown never aborts a chunk mid-flight.
func (w *Worker) processTask(task *coordination.ChunkTask) error {
	ctx := context.Background()

	fields, err := w.store.GetJobFields(ctx, task.JobId)
	if err != nil {
		return fmt.Errorf("error fetching job metadata: %w", err)
	}
	if len(fields) == 0 {
		// Job already cleaned up (timeout or error on the orchestrator side);
		// the task is stale and dropping it is the correct outcome.
		slog.Warn("no metadata for job, skipping task", "job_id", task.JobId, "chunk_id", task.ChunkId)
		return nil
	}

	chunk, err := dataset.Unmarshal(task.Data)
	if err != nil {
		return fmt.Errorf("error decoding chunk payload: %w", err)
	}

	slog.Info("processing chunk", "job_id", task.JobId, "chunk_id", task.ChunkId, "task_type", task.TaskType, "rows", chunk.NumRows())

	var processed dataset.Table
	switch task.TaskType {
	case coordination.TaskTypeTransform:
		var commands api.ColumnCommands
		if err := json.Unmarshal([]byte(fields[coordination.FieldCommands]), &commands); err != nil {
			return fmt.Errorf("error decoding column commands: %w", err)
		}
		processed = core.ProcessTransformChunk(ctx, chunk, commands, w.model)

	case coordination.TaskTypeGenerate:
		var referenceColumns []string
		if err := json.Unmarshal([]byte(fields[coordination.FieldReferenceColumns]), &referenceColumns); err != nil {
			return fmt.Errorf("error decoding reference columns: %w", err)
		}
		newColumn := fields[coordination.FieldNewColumnName]
		prompt := fields[coordination.FieldGenerationPrompt]
		processed = core.ProcessGenerateChunk(ctx, chunk, referenceColumns, newColumn, prompt, w.model)

	default:
		return fmt.Errorf("unknown task type %q", task.TaskType)
	}

	blob, err := processed.Marshal()
	if err != nil {
		return fmt.Errorf("error serializing processed chunk: %w", err)
	}
	if err := w.store.PutResult(ctx, task.JobId, task.ChunkId, blob); err != nil {
		return fmt.Errorf("error storing chunk result: %w", err)
	}

	completed, err := w.store.IncrementField(ctx, task.JobId, coordination.FieldCompletedChunks)
	if err != nil {
		return fmt.Errorf("error incrementing completed chunks: %w", err)
	}

	slog.Info("completed chunk", "job_id", task.JobId, "chunk_id", task.ChunkId, "completed", completed, "total", task.TotalChunks)
	return nil
}
