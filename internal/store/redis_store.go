package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/giftreel/api/internal/model"
)

const jobKeyPrefix = "composite:job:"

// RedisJobStore keeps job records as JSON values in Redis. Records carry no
// TTL; retention is an external concern.
type RedisJobStore struct {
	redis *redis.Client
}

// NewRedisJobStore creates a Redis-backed job store
func NewRedisJobStore(redisClient *redis.Client) *RedisJobStore {
	return &RedisJobStore{redis: redisClient}
}

// Create persists a new job record
func (s *RedisJobStore) Create(ctx context.Context, job *model.CompositingJob) error {
	return s.save(ctx, job)
}

// Get loads a job record
func (s *RedisJobStore) Get(ctx context.Context, id string) (*model.CompositingJob, error) {
	data, err := s.redis.Get(ctx, jobKeyPrefix+id).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to load job %s: %w", id, err)
	}

	var job model.CompositingJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to decode job %s: %w", id, err)
	}
	return &job, nil
}

// Transition applies a status change plus its associated fields as a single
// save. Concurrent writers per job are not expected; the pipeline enforces
// one worker per job id.
func (s *RedisJobStore) Transition(ctx context.Context, id string, to model.JobStatus, fields TransitionFields) (*model.CompositingJob, error) {
	job, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := applyTransition(job, to, fields); err != nil {
		return nil, fmt.Errorf("job %s: %s -> %s: %w", id, job.Status, to, err)
	}

	if err := s.save(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

func (s *RedisJobStore) save(ctx context.Context, job *model.CompositingJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job %s: %w", job.ID, err)
	}
	if err := s.redis.Set(ctx, jobKeyPrefix+job.ID, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save job %s: %w", job.ID, err)
	}
	return nil
}
