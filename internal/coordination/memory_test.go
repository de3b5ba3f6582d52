package coordination_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transform-backend/internal/coordination"
)

func TestMemoryStoreQueueOrder(t *testing.T) {
	store := coordination.NewMemoryStore()
	defer store.Close()

	ctx := context.Background()
	jobId := uuid.New()

	for i := 0; i < 3; i++ {
		task := coordination.ChunkTask{
			JobId:       jobId,
			ChunkId:     i,
			Data:        json.RawMessage(fmt.Sprintf(`{"chunk":%d}`, i)),
			TotalChunks: 3,
			TaskType:    coordination.TaskTypeTransform,
		}
		require.NoError(t, store.EnqueueTask(ctx, task))
	}

	for i := 0; i < 3; i++ {
		task, err := store.DequeueTask(ctx, time.Second)
		require.NoError(t, err)
		require.NotNil(t, task)
		assert.Equal(t, i, task.ChunkId)
		assert.Equal(t, jobId, task.JobId)
	}
}

func TestMemoryStoreDequeueTimeout(t *testing.T) {
	store := coordination.NewMemoryStore()
	defer store.Close()

	task, err := store.DequeueTask(context.Background(), 20*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, task)
}

func TestMemoryStoreDequeueCancelled(t *testing.T) {
	store := coordination.NewMemoryStore()
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.DequeueTask(ctx, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemoryStoreJobFields(t *testing.T) {
	store := coordination.NewMemoryStore()
	defer store.Close()

	ctx := context.Background()
	jobId := uuid.New()

	require.NoError(t, store.SetJobFields(ctx, jobId, map[string]string{
		coordination.FieldStatus:      coordination.StatusProcessing,
		coordination.FieldTotalChunks: "4",
	}))
	require.NoError(t, store.SetJobFields(ctx, jobId, map[string]string{
		coordination.FieldTaskType: string(coordination.TaskTypeTransform),
	}))

	fields, err := store.GetJobFields(ctx, jobId)
	require.NoError(t, err)
	assert.Equal(t, coordination.StatusProcessing, fields[coordination.FieldStatus])
	assert.Equal(t, "4", fields[coordination.FieldTotalChunks])
	assert.Equal(t, string(coordination.TaskTypeTransform), fields[coordination.FieldTaskType])

	missing, err := store.GetJobFields(ctx, uuid.New())
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestMemoryStoreIncrementFieldConcurrent(t *testing.T) {
	store := coordination.NewMemoryStore()
	defer store.Close()

	ctx := context.Background()
	jobId := uuid.New()

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.IncrementField(ctx, jobId, coordination.FieldCompletedChunks)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	fields, err := store.GetJobFields(ctx, jobId)
	require.NoError(t, err)
	assert.Equal(t, "50", fields[coordination.FieldCompletedChunks])
}

func TestMemoryStoreIncrementFieldNonNumeric(t *testing.T) {
	store := coordination.NewMemoryStore()
	defer store.Close()

	ctx := context.Background()
	jobId := uuid.New()

	require.NoError(t, store.SetJobFields(ctx, jobId, map[string]string{"field": "abc"}))
	_, err := store.IncrementField(ctx, jobId, "field")
	assert.ErrorContains(t, err, "not numeric")
}

func TestMemoryStoreResults(t *testing.T) {
	store := coordination.NewMemoryStore()
	defer store.Close()

	ctx := context.Background()
	jobId := uuid.New()

	_, ok, err := store.GetResult(ctx, jobId, 0)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.PutResult(ctx, jobId, 0, []byte("blob")))
	blob, ok, err := store.GetResult(ctx, jobId, 0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("blob"), blob)
}

func TestMemoryStoreDeleteJob(t *testing.T) {
	store := coordination.NewMemoryStore()
	defer store.Close()

	ctx := context.Background()
	jobId, other := uuid.New(), uuid.New()

	require.NoError(t, store.SetJobFields(ctx, jobId, map[string]string{coordination.FieldStatus: coordination.StatusProcessing}))
	require.NoError(t, store.PutResult(ctx, jobId, 0, []byte("a")))
	require.NoError(t, store.PutResult(ctx, other, 0, []byte("b")))

	require.NoError(t, store.DeleteJob(ctx, jobId))

	fields, err := store.GetJobFields(ctx, jobId)
	require.NoError(t, err)
	assert.Empty(t, fields)

	_, ok, err := store.GetResult(ctx, jobId, 0)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = store.GetResult(ctx, other, 0)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryStoreCloseIdempotent(t *testing.T) {
	store := coordination.NewMemoryStore()

	require.NoError(t, store.Close())
	require.NoError(t, store.Close())
}
