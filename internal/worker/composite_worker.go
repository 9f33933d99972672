package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/hibiken/asynq"

	"github.com/giftreel/api/internal/client"
	"github.com/giftreel/api/internal/config"
	"github.com/giftreel/api/internal/media"
	"github.com/giftreel/api/internal/model"
	"github.com/giftreel/api/internal/store"
	"github.com/giftreel/api/internal/websocket"
)

// CompositeWorker renders one compositing job per invocation: download
// inputs, build one filter graph, execute the engine once, upload the
// result, update the job and optionally trigger delivery. The execution
// environment schedules one invocation per job id at a time.
type CompositeWorker struct {
	store      store.JobStore
	storage    client.StorageClient
	mailer     client.DeliverySender
	capability media.CapabilityProvider
	runner     media.Runner
	hub        *websocket.Hub
	s3cfg      *config.S3Config
	urlcfg     *config.SignedURLConfig
	workDir    string
}

// NewCompositeWorker creates a new compositing worker
func NewCompositeWorker(
	jobStore store.JobStore,
	storage client.StorageClient,
	mailer client.DeliverySender,
	capability media.CapabilityProvider,
	runner media.Runner,
	hub *websocket.Hub,
	s3cfg *config.S3Config,
	urlcfg *config.SignedURLConfig,
	workDir string,
) *CompositeWorker {
	return &CompositeWorker{
		store:      jobStore,
		storage:    storage,
		mailer:     mailer,
		capability: capability,
		runner:     runner,
		hub:        hub,
		s3cfg:      s3cfg,
		urlcfg:     urlcfg,
		workDir:    workDir,
	}
}

// OutputKey is the deterministic storage key for a job's rendered output.
// The same id always maps to the same key, so re-running a job overwrites
// its own prior output.
func OutputKey(jobID string) string {
	return fmt.Sprintf("outputs/%s.mp4", jobID)
}

// ProcessTask handles one compositing task. The task payload carries the
// full job record.
func (w *CompositeWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var job model.CompositingJob
	if err := json.Unmarshal(t.Payload(), &job); err != nil {
		return fmt.Errorf("failed to unmarshal job payload: %w", err)
	}

	log.Printf("Starting composite job: %s", job.ID)

	if w.storage == nil {
		return w.processWithMock(ctx, &job)
	}

	// Everything downloaded or rendered for this job lives here and is
	// removed on every exit path, success or failure.
	workDir, err := os.MkdirTemp(w.workDir, "composite-"+job.ID+"-*")
	if err != nil {
		return fmt.Errorf("failed to create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	if _, err := w.store.Transition(ctx, job.ID, model.JobStatusProcessing, store.TransitionFields{}); err != nil {
		return fmt.Errorf("failed to mark job processing: %w", err)
	}
	w.hub.BroadcastStatus(model.JobEvent{JobID: job.ID, Status: model.JobStatusProcessing})

	// The source video is the one asset whose absence is fatal; there is
	// nothing to composite without it.
	sourcePath, err := w.downloadSource(ctx, &job, workDir)
	if err != nil {
		return w.fail(ctx, job.ID, fmt.Sprintf("Source video download failed: %v", err), err)
	}

	framePath := w.downloadFrame(ctx, &job, workDir)

	localOut, err := w.render(ctx, &job, sourcePath, framePath, workDir)
	if err != nil {
		return w.fail(ctx, job.ID, fmt.Sprintf("Render failed: %v", err), err)
	}

	outputKey := OutputKey(job.ID)
	if err := w.uploadOutput(ctx, outputKey, localOut); err != nil {
		return w.fail(ctx, job.ID, fmt.Sprintf("Output upload failed: %v", err), err)
	}

	updated, err := w.store.Transition(ctx, job.ID, model.JobStatusCompleted, store.TransitionFields{OutputPath: outputKey})
	if err != nil {
		return w.fail(ctx, job.ID, "Failed to save result", err)
	}
	w.hub.BroadcastComplete(job.ID, model.JobEvent{JobID: job.ID, Status: updated.Status, OutputPath: outputKey})
	log.Printf("Composite job %s completed", job.ID)

	w.deliver(ctx, &job, outputKey)
	return nil
}

// downloadSource resolves and fetches the primary video into the work dir
func (w *CompositeWorker) downloadSource(ctx context.Context, job *model.CompositingJob, workDir string) (string, error) {
	key := client.ResolveStorageKey(job.VideoPath)
	data, err := w.storage.Download(ctx, w.s3cfg.MediaBucket, key)
	if err != nil {
		return "", err
	}

	path := filepath.Join(workDir, "source.mp4")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write source video: %w", err)
	}
	return path, nil
}

// downloadFrame fetches the decorative frame image if the job references
// one. A missing frame is non-fatal: the primary bucket is tried first,
// then the fallback bucket, and on failure the job continues without a
// frame overlay.
func (w *CompositeWorker) downloadFrame(ctx context.Context, job *model.CompositingJob, workDir string) string {
	if job.FramePNGPath == "" {
		return ""
	}

	key := client.ResolveStorageKey(job.FramePNGPath)
	data, err := w.storage.Download(ctx, w.s3cfg.FramesBucket, key)
	if err != nil {
		log.Printf("Frame asset %s not in primary bucket, trying fallback: %v", key, err)
		data, err = w.storage.Download(ctx, w.s3cfg.FramesFallbackBucket, key)
	}
	if err != nil {
		log.Printf("Frame asset %s unavailable, compositing without frame: %v", key, err)
		return ""
	}

	path := filepath.Join(workDir, "frame.png")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		log.Printf("Failed to write frame asset, compositing without frame: %v", err)
		return ""
	}
	return path
}

// render builds the filter graph once and executes the engine once. When
// the engine is unavailable the source passes through unmodified; fallback
// is a normal outcome, not an error.
func (w *CompositeWorker) render(ctx context.Context, job *model.CompositingJob, sourcePath, framePath, workDir string) (string, error) {
	if !w.capability.Available() {
		log.Printf("Transcoding engine unavailable, job %s falls back to original video", job.ID)
		return sourcePath, nil
	}

	graph := media.BuildGraph(media.GraphSpec{
		FilterID:      job.FilterID,
		HasFrameImage: framePath != "",
		FrameColor:    job.FrameColor,
		Text:          job.CustomText,
		TextPosition:  job.CustomTextPosition,
		TextColor:     job.CustomTextColor,
		Stickers:      job.Stickers,
	})

	outPath := filepath.Join(workDir, "output.mp4")
	if err := w.runner.Run(ctx, graph.Args(sourcePath, framePath, outPath)); err != nil {
		return "", err
	}
	return outPath, nil
}

func (w *CompositeWorker) uploadOutput(ctx context.Context, outputKey, localPath string) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("failed to read rendered output: %w", err)
	}
	return w.storage.Upload(ctx, w.s3cfg.MediaBucket, outputKey, bytes.NewReader(data), "video/mp4")
}

// deliver hands the finished render to the email collaborator. A delivery
// failure leaves the job at completed: the render already succeeded, and
// the error surfaces through logs only.
func (w *CompositeWorker) deliver(ctx context.Context, job *model.CompositingJob, outputKey string) {
	if !job.WantsEmailDelivery() {
		return
	}
	if w.mailer == nil || !w.mailer.IsConfigured() {
		log.Printf("Mailer not configured, skipping delivery for job %s", job.ID)
		return
	}

	videoURL, err := w.storage.GetSignedURL(ctx, w.s3cfg.MediaBucket, outputKey, w.urlcfg.EmailTTL)
	if err != nil {
		log.Printf("Failed to sign delivery URL for job %s: %v", job.ID, err)
		return
	}

	req := &client.DeliveryRequest{
		JobID:          job.ID,
		VideoURL:       videoURL,
		RecipientEmail: job.RecipientEmail,
		RecipientName:  job.RecipientName,
		EmailSubject:   job.EmailSubject,
		EmailBody:      job.EmailBody,
		ChildName:      job.ChildName,
		GiftName:       job.GiftName,
		EventName:      job.EventName,
	}

	if err := w.mailer.Deliver(ctx, req); err != nil {
		log.Printf("Delivery failed for job %s (render kept): %v", job.ID, err)
		return
	}

	if _, err := w.store.Transition(ctx, job.ID, model.JobStatusSent, store.TransitionFields{}); err != nil {
		log.Printf("Failed to mark job %s sent: %v", job.ID, err)
		return
	}
	w.hub.BroadcastStatus(model.JobEvent{JobID: job.ID, Status: model.JobStatusSent, OutputPath: outputKey})
	log.Printf("Composite job %s delivered to %s", job.ID, job.RecipientEmail)
}

// fail marks the job failed with a human-readable message, but only on the
// final attempt: earlier attempts return the error so the queue retries
// without the state machine ever moving backward.
func (w *CompositeWorker) fail(ctx context.Context, jobID, message string, cause error) error {
	retried, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)
	if retried < maxRetry {
		log.Printf("Composite job %s attempt %d/%d failed, will retry: %v", jobID, retried+1, maxRetry+1, cause)
		return cause
	}

	if _, err := w.store.Transition(ctx, jobID, model.JobStatusFailed, store.TransitionFields{ErrorMessage: message}); err != nil {
		log.Printf("Failed to mark job %s failed: %v", jobID, err)
	}
	w.hub.BroadcastError(jobID, "COMPOSITE_FAILED", message)
	return cause
}

// processWithMock simulates the pipeline when object storage is not
// configured (development).
func (w *CompositeWorker) processWithMock(ctx context.Context, job *model.CompositingJob) error {
	if _, err := w.store.Transition(ctx, job.ID, model.JobStatusProcessing, store.TransitionFields{}); err != nil {
		return err
	}
	w.hub.BroadcastStatus(model.JobEvent{JobID: job.ID, Status: model.JobStatusProcessing})

	outputKey := OutputKey(job.ID)
	updated, err := w.store.Transition(ctx, job.ID, model.JobStatusCompleted, store.TransitionFields{OutputPath: outputKey})
	if err != nil {
		return err
	}
	w.hub.BroadcastComplete(job.ID, model.JobEvent{JobID: job.ID, Status: updated.Status, OutputPath: outputKey})

	log.Printf("Composite job %s completed (mock)", job.ID)
	return nil
}
