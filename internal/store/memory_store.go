package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/giftreel/api/internal/model"
)

// MemoryJobStore is an in-process JobStore. It backs tests and local
// development runs where Redis is not available.
type MemoryJobStore struct {
	mu   sync.RWMutex
	jobs map[string]model.CompositingJob
}

// NewMemoryJobStore creates an empty in-memory store
func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{jobs: make(map[string]model.CompositingJob)}
}

// Create persists a new job record
func (s *MemoryJobStore) Create(ctx context.Context, job *model.CompositingJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = *job
	return nil
}

// Get loads a copy of a job record
func (s *MemoryJobStore) Get(ctx context.Context, id string) (*model.CompositingJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return &job, nil
}

// Transition applies a guarded status change
func (s *MemoryJobStore) Transition(ctx context.Context, id string, to model.JobStatus, fields TransitionFields) (*model.CompositingJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}

	if err := applyTransition(&job, to, fields); err != nil {
		return nil, fmt.Errorf("job %s: %w", id, err)
	}

	s.jobs[id] = job
	return &job, nil
}
