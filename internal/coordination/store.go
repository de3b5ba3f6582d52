package coordination

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type TaskType string

const (
	TaskTypeTransform TaskType = "transform"
	TaskTypeGenerate  TaskType = "generate"
)

// Job metadata field names, shared by orchestrator and workers.
const (
	FieldTotalChunks      = "total_chunks"
	FieldCompletedChunks  = "completed_chunks"
	FieldStatus           = "status"
	FieldTaskType         = "task_type"
	FieldCommands         = "commands"
	FieldReferenceColumns = "reference_columns"
	FieldNewColumnName    = "new_column_name"
	FieldGenerationPrompt = "generation_prompt"
)

const StatusProcessing = "processing"

// ChunkTask is the queued unit of work: one chunk of one job. Tasks are
// immutable once published; everything a worker needs beyond the chunk rows
// lives in the job's metadata.
type ChunkTask struct {
	JobId       uuid.UUID       `json:"job_id"`
	ChunkId     int             `json:"chunk_id"`
	Data        json.RawMessage `json:"data"`
	TotalChunks int             `json:"total_chunks"`
	TaskType    TaskType        `json:"task_type"`
}

// Store is the shared coordination backend every process talks to: a FIFO
// work queue, a mutable field map per job with one atomically incremented
// counter, and result blobs keyed by (job, chunk). All cross-process
// synchronization is delegated to these primitives; callers take no locks.
type Store interface {
	// EnqueueTask appends a task to the shared work queue.
	EnqueueTask(ctx context.Context, task ChunkTask) error

	// DequeueTask blocks up to timeout for the next task. It returns
	// (nil, nil) when no task arrives in time. Each queued task is delivered
	// to exactly one caller.
	DequeueTask(ctx context.Context, timeout time.Duration) (*ChunkTask, error)

	// SetJobFields writes fields into the job's metadata map.
	SetJobFields(ctx context.Context, jobId uuid.UUID, fields map[string]string) error

	// GetJobFields returns the job's metadata map, empty if the job does not
	// exist.
	GetJobFields(ctx context.Context, jobId uuid.UUID) (map[string]string, error)

	// IncrementField atomically adds one to a numeric job field and returns
	// the new value. This must be a single store-level operation, never a
	// read-modify-write pair.
	IncrementField(ctx context.Context, jobId uuid.UUID, field string) (int64, error)

	// PutResult stores the processed blob for one chunk.
	PutResult(ctx context.Context, jobId uuid.UUID, chunkId int, blob []byte) error

	// GetResult fetches one chunk's result blob; ok is false if absent.
	GetResult(ctx context.Context, jobId uuid.UUID, chunkId int) ([]byte, bool, error)

	// DeleteJob removes the job's metadata and all of its result blobs.
	// Queued tasks for the job are not withdrawn; workers drop them when the
	// metadata lookup comes back empty.
	DeleteJob(ctx context.Context, jobId uuid.UUID) error

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	Close() error
}
