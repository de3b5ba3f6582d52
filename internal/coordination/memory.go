package coordination

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

const memoryQueueCapacity = 1024

type resultId struct {
	jobId   uuid.UUID
	chunkId int
}

// MemoryStore is an in-process Store with the same semantics as RedisStore.
// It backs single-process mode and unit tests. The queue is a buffered
// channel, so "unbounded" is approximated by a capacity no single job in
// local mode comes close to.
type MemoryStore struct {
	mu      sync.Mutex
	jobs    map[uuid.UUID]map[string]string
	results map[resultId][]byte
	tasks   chan ChunkTask
	closed  bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:    make(map[uuid.UUID]map[string]string),
		results: make(map[resultId][]byte),
		tasks:   make(chan ChunkTask, memoryQueueCapacity),
	}
}

func (s *MemoryStore) EnqueueTask(ctx context.Context, task ChunkTask) error {
	select {
	case s.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fmt.Errorf("in-memory task queue is full")
	}
}

func (s *MemoryStore) DequeueTask(ctx context.Context, timeout time.Duration) (*ChunkTask, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case task, ok := <-s.tasks:
		if !ok {
			return nil, fmt.Errorf("store is closed")
		}
		return &task, nil
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *MemoryStore) SetJobFields(ctx context.Context, jobId uuid.UUID, fields map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobId]
	if !ok {
		job = make(map[string]string)
		s.jobs[jobId] = job
	}
	for k, v := range fields {
		job[k] = v
	}
	return nil
}

func (s *MemoryStore) GetJobFields(ctx context.Context, jobId uuid.UUID) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fields := make(map[string]string, len(s.jobs[jobId]))
	for k, v := range s.jobs[jobId] {
		fields[k] = v
	}
	return fields, nil
}

func (s *MemoryStore) IncrementField(ctx context.Context, jobId uuid.UUID, field string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobId]
	if !ok {
		job = make(map[string]string)
		s.jobs[jobId] = job
	}

	current, err := strconv.ParseInt(job[field], 10, 64)
	if job[field] != "" && err != nil {
		return 0, fmt.Errorf("field %s is not numeric: %w", field, err)
	}

	current++
	job[field] = strconv.FormatInt(current, 10)
	return current, nil
}

func (s *MemoryStore) PutResult(ctx context.Context, jobId uuid.UUID, chunkId int, blob []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.results[resultId{jobId: jobId, chunkId: chunkId}] = append([]byte(nil), blob...)
	return nil
}

func (s *MemoryStore) GetResult(ctx context.Context, jobId uuid.UUID, chunkId int) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	blob, ok := s.results[resultId{jobId: jobId, chunkId: chunkId}]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), blob...), true, nil
}

func (s *MemoryStore) DeleteJob(ctx context.Context, jobId uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.jobs, jobId)
	for id := range s.results {
		if id.jobId == jobId {
			delete(s.results, id)
		}
	}
	return nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		close(s.tasks)
		s.closed = true
	}
	return nil
}
