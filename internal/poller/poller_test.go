package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/giftreel/api/internal/model"
	"github.com/giftreel/api/internal/store"
)

func seedJob(t *testing.T, s *store.MemoryJobStore, id string, status model.JobStatus) {
	t.Helper()
	job := &model.CompositingJob{
		ID:        id,
		VideoPath: "a/b.mp4",
		Status:    model.JobStatusPending,
		CreatedAt: time.Now(),
	}
	if err := s.Create(context.Background(), job); err != nil {
		t.Fatalf("seed job: %v", err)
	}

	ctx := context.Background()
	switch status {
	case model.JobStatusProcessing:
		s.Transition(ctx, id, model.JobStatusProcessing, store.TransitionFields{})
	case model.JobStatusCompleted:
		s.Transition(ctx, id, model.JobStatusProcessing, store.TransitionFields{})
		s.Transition(ctx, id, model.JobStatusCompleted, store.TransitionFields{OutputPath: "outputs/" + id + ".mp4"})
	case model.JobStatusFailed:
		s.Transition(ctx, id, model.JobStatusProcessing, store.TransitionFields{})
		s.Transition(ctx, id, model.JobStatusFailed, store.TransitionFields{ErrorMessage: "boom"})
	}
}

func TestWatchCompletedJobReturnsImmediately(t *testing.T) {
	s := store.NewMemoryJobStore()
	seedJob(t, s, "j1", model.JobStatusCompleted)

	start := time.Now()
	result, err := New(s).Watch(context.Background(), "j1", WatchOptions{
		Timeout:  time.Second,
		Interval: 100 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	if !result.Success {
		t.Error("completed job should be a success")
	}
	if result.OutputPath != "outputs/j1.mp4" {
		t.Errorf("OutputPath = %q", result.OutputPath)
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("terminal job took %v to resolve, should not wait for a tick", elapsed)
	}
}

func TestWatchFailedJobDoesNotWaitForTimeout(t *testing.T) {
	s := store.NewMemoryJobStore()
	seedJob(t, s, "j1", model.JobStatusFailed)

	start := time.Now()
	result, err := New(s).Watch(context.Background(), "j1", WatchOptions{
		Timeout:  2 * time.Second,
		Interval: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	if result.Success {
		t.Error("failed job should not be a success")
	}
	if result.ErrorMessage != "boom" {
		t.Errorf("ErrorMessage = %q, want the job's error", result.ErrorMessage)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Error("failure must surface immediately, not after the timeout")
	}
}

func TestWatchTimeoutIsDistinctFromFailure(t *testing.T) {
	s := store.NewMemoryJobStore()
	seedJob(t, s, "j1", model.JobStatusProcessing)

	result, err := New(s).Watch(context.Background(), "j1", WatchOptions{
		Timeout:  80 * time.Millisecond,
		Interval: 10 * time.Millisecond,
	})
	if !errors.Is(err, ErrWatchTimeout) {
		t.Fatalf("err = %v, want ErrWatchTimeout", err)
	}
	if result != nil {
		t.Error("timeout must not produce a terminal result")
	}
}

func TestWatchEmitsProgressOnlyOnTransitions(t *testing.T) {
	s := store.NewMemoryJobStore()
	seedJob(t, s, "j1", model.JobStatusProcessing)

	var mu sync.Mutex
	var events []model.JobStatus

	done := make(chan struct{})
	go func() {
		defer close(done)
		New(s).Watch(context.Background(), "j1", WatchOptions{
			Timeout:  2 * time.Second,
			Interval: 10 * time.Millisecond,
			OnProgress: func(e model.JobEvent) {
				mu.Lock()
				events = append(events, e.Status)
				mu.Unlock()
			},
		})
	}()

	// Let several polls observe processing before completing the job.
	time.Sleep(100 * time.Millisecond)
	s.Transition(context.Background(), "j1", model.JobStatusCompleted, store.TransitionFields{OutputPath: "outputs/j1.mp4"})
	<-done

	mu.Lock()
	defer mu.Unlock()
	want := []model.JobStatus{model.JobStatusProcessing, model.JobStatusCompleted}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want one per transition %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, events[i], want[i])
		}
	}
}

type flakyGetter struct {
	store    *store.MemoryJobStore
	failLeft int
}

func (f *flakyGetter) Get(ctx context.Context, id string) (*model.CompositingJob, error) {
	if f.failLeft > 0 {
		f.failLeft--
		return nil, errors.New("transient read error")
	}
	return f.store.Get(ctx, id)
}

func TestWatchSwallowsTransientReadErrors(t *testing.T) {
	s := store.NewMemoryJobStore()
	seedJob(t, s, "j1", model.JobStatusCompleted)

	getter := &flakyGetter{store: s, failLeft: 3}
	result, err := New(getter).Watch(context.Background(), "j1", WatchOptions{
		Timeout:  2 * time.Second,
		Interval: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	if !result.Success {
		t.Error("watch should survive transient read errors and succeed")
	}
}

func TestIndependentWatchers(t *testing.T) {
	s := store.NewMemoryJobStore()
	seedJob(t, s, "ok", model.JobStatusCompleted)
	seedJob(t, s, "bad", model.JobStatusFailed)

	p := New(s)
	var wg sync.WaitGroup
	wg.Add(2)

	var okResult, badResult *WatchResult
	go func() {
		defer wg.Done()
		okResult, _ = p.Watch(context.Background(), "ok", WatchOptions{Timeout: time.Second, Interval: 10 * time.Millisecond})
	}()
	go func() {
		defer wg.Done()
		badResult, _ = p.Watch(context.Background(), "bad", WatchOptions{Timeout: time.Second, Interval: 10 * time.Millisecond})
	}()
	wg.Wait()

	if okResult == nil || !okResult.Success {
		t.Error("completed job watcher should succeed")
	}
	if badResult == nil || badResult.Success {
		t.Error("failed job watcher should report failure")
	}
}
