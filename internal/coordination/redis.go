package coordination

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const taskQueueKey = "task_queue"

func jobKey(jobId uuid.UUID) string {
	return fmt.Sprintf("job:%s", jobId)
}

func resultKey(jobId uuid.UUID, chunkId int) string {
	return fmt.Sprintf("result:%s:%d", jobId, chunkId)
}

// RedisStore implements Store on a single Redis instance: the work queue is a
// list (RPUSH/BLPOP), job metadata is a hash (HINCRBY gives the atomic
// counter), and result blobs are plain keys.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(addr, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("could not connect to redis at %s: %w", addr, err)
	}

	slog.Info("redis connection established", "addr", addr, "db", db)
	return &RedisStore{client: client}, nil
}

func (s *RedisStore) EnqueueTask(ctx context.Context, task ChunkTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("error marshalling task: %w", err)
	}
	if err := s.client.RPush(ctx, taskQueueKey, data).Err(); err != nil {
		return fmt.Errorf("error enqueueing task: %w", err)
	}
	return nil
}

func (s *RedisStore) DequeueTask(ctx context.Context, timeout time.Duration) (*ChunkTask, error) {
	res, err := s.client.BLPop(ctx, timeout, taskQueueKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error dequeueing task: %w", err)
	}
	if len(res) < 2 {
		return nil, fmt.Errorf("unexpected blpop reply of length %d", len(res))
	}

	var task ChunkTask
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		return nil, fmt.Errorf("error unmarshalling task: %w", err)
	}
	return &task, nil
}

func (s *RedisStore) SetJobFields(ctx context.Context, jobId uuid.UUID, fields map[string]string) error {
	if err := s.client.HSet(ctx, jobKey(jobId), fields).Err(); err != nil {
		return fmt.Errorf("error setting fields for job %s: %w", jobId, err)
	}
	return nil
}

func (s *RedisStore) GetJobFields(ctx context.Context, jobId uuid.UUID) (map[string]string, error) {
	fields, err := s.client.HGetAll(ctx, jobKey(jobId)).Result()
	if err != nil {
		return nil, fmt.Errorf("error getting fields for job %s: %w", jobId, err)
	}
	return fields, nil
}

func (s *RedisStore) IncrementField(ctx context.Context, jobId uuid.UUID, field string) (int64, error) {
	count, err := s.client.HIncrBy(ctx, jobKey(jobId), field, 1).Result()
	if err != nil {
		return 0, fmt.Errorf("error incrementing %s for job %s: %w", field, jobId, err)
	}
	return count, nil
}

func (s *RedisStore) PutResult(ctx context.Context, jobId uuid.UUID, chunkId int, blob []byte) error {
	if err := s.client.Set(ctx, resultKey(jobId, chunkId), blob, 0).Err(); err != nil {
		return fmt.Errorf("error storing result for chunk %d of job %s: %w", chunkId, jobId, err)
	}
	return nil
}

func (s *RedisStore) GetResult(ctx context.Context, jobId uuid.UUID, chunkId int) ([]byte, bool, error) {
	blob, err := s.client.Get(ctx, resultKey(jobId, chunkId)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("error getting result for chunk %d of job %s: %w", chunkId, jobId, err)
	}
	return blob, true, nil
}

func (s *RedisStore) DeleteJob(ctx context.Context, jobId uuid.UUID) error {
	if err := s.client.Del(ctx, jobKey(jobId)).Err(); err != nil {
		return fmt.Errorf("error deleting job %s: %w", jobId, err)
	}

	iter := s.client.Scan(ctx, 0, fmt.Sprintf("result:%s:*", jobId), 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("error scanning results for job %s: %w", jobId, err)
	}
	if len(keys) > 0 {
		if err := s.client.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("error deleting results for job %s: %w", jobId, err)
		}
	}

	slog.Info("cleaned up job state", "job_id", jobId, "results_deleted", len(keys))
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
