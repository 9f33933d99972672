// Package poller watches a compositing job until it reaches a terminal
// state. Each watched job gets its own independent poller; there is no
// shared state between watches.
package poller

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/giftreel/api/internal/model"
)

// ErrWatchTimeout is returned when a job reaches no terminal state before
// the configured timeout. It is distinct from a processing failure: the job
// may still finish, and the caller can keep waiting or check back later.
var ErrWatchTimeout = errors.New("job watch timed out, still processing")

// JobGetter is the read-only view of the job store the poller needs
type JobGetter interface {
	Get(ctx context.Context, id string) (*model.CompositingJob, error)
}

// WatchOptions configures one watch
type WatchOptions struct {
	Timeout  time.Duration
	Interval time.Duration

	// OnProgress fires only when the job's status changes, never on every
	// poll, so consumers are not flooded with redundant updates.
	OnProgress func(model.JobEvent)
}

// WatchResult is the terminal outcome of a watch
type WatchResult struct {
	Success      bool
	Status       model.JobStatus
	OutputPath   string
	ErrorMessage string
}

const (
	defaultTimeout  = 2 * time.Minute
	defaultInterval = 2 * time.Second
)

// Poller polls a job record on a fixed interval
type Poller struct {
	getter JobGetter
}

// New creates a poller over a job store read path
func New(getter JobGetter) *Poller {
	return &Poller{getter: getter}
}

// Watch polls the job until completed/sent (success), failed (failure with
// the job's error message) or timeout. Transient read errors are swallowed
// and retried on the next interval.
func (p *Poller) Watch(ctx context.Context, id string, opts WatchOptions) (*WatchResult, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}

	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()
	deadline := time.NewTimer(opts.Timeout)
	defer deadline.Stop()

	var lastStatus model.JobStatus

	// Check immediately so an already-terminal job returns without waiting
	// for the first tick.
	if result, done := p.poll(ctx, id, &lastStatus, opts.OnProgress); done {
		return result, nil
	}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, ErrWatchTimeout
		case <-ticker.C:
			if result, done := p.poll(ctx, id, &lastStatus, opts.OnProgress); done {
				return result, nil
			}
		}
	}
}

func (p *Poller) poll(ctx context.Context, id string, lastStatus *model.JobStatus, onProgress func(model.JobEvent)) (*WatchResult, bool) {
	job, err := p.getter.Get(ctx, id)
	if err != nil {
		// Transient read failures do not abort the watch.
		log.Printf("Poll of job %s failed, retrying next interval: %v", id, err)
		return nil, false
	}

	if job.Status != *lastStatus {
		*lastStatus = job.Status
		if onProgress != nil {
			onProgress(model.JobEvent{
				JobID:        job.ID,
				Status:       job.Status,
				OutputPath:   job.OutputPath,
				ErrorMessage: job.ErrorMessage,
			})
		}
	}

	switch job.Status {
	case model.JobStatusCompleted, model.JobStatusSent:
		return &WatchResult{
			Success:    true,
			Status:     job.Status,
			OutputPath: job.OutputPath,
		}, true
	case model.JobStatusFailed:
		return &WatchResult{
			Success:      false,
			Status:       job.Status,
			ErrorMessage: job.ErrorMessage,
		}, true
	}

	return nil, false
}
