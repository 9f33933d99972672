// Package store is the durable record of compositing jobs and the guard on
// their state machine. One worker owns each job; the status read path never
// writes.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/giftreel/api/internal/model"
)

var (
	// ErrJobNotFound is returned when no record exists for an id
	ErrJobNotFound = errors.New("job not found")

	// ErrIllegalTransition is returned when a status change would move the
	// state machine backward or skip a state.
	ErrIllegalTransition = errors.New("illegal job status transition")
)

// TransitionFields are the values applied together with a status change.
// OutputPath is honored only when moving to completed; ErrorMessage only
// when moving to failed.
type TransitionFields struct {
	OutputPath   string
	ErrorMessage string
}

// JobStore persists compositing job records
type JobStore interface {
	Create(ctx context.Context, job *model.CompositingJob) error
	Get(ctx context.Context, id string) (*model.CompositingJob, error)
	Transition(ctx context.Context, id string, to model.JobStatus, fields TransitionFields) (*model.CompositingJob, error)
}

// applyTransition mutates a loaded job for a legal status change. Shared by
// every JobStore implementation so the invariants live in one place.
func applyTransition(job *model.CompositingJob, to model.JobStatus, fields TransitionFields) error {
	if !model.CanTransition(job.Status, to) {
		return ErrIllegalTransition
	}

	now := time.Now()
	job.Status = to

	switch to {
	case model.JobStatusProcessing:
		if job.StartedAt == nil {
			job.StartedAt = &now
		}
	case model.JobStatusCompleted:
		job.OutputPath = fields.OutputPath
		job.CompletedAt = &now
	case model.JobStatusFailed:
		job.ErrorMessage = fields.ErrorMessage
		job.CompletedAt = &now
	case model.JobStatusSent:
		// outputPath stays from the completed transition
	}

	return nil
}
