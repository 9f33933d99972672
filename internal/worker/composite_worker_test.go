package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/hibiken/asynq"

	"github.com/giftreel/api/internal/client"
	"github.com/giftreel/api/internal/config"
	"github.com/giftreel/api/internal/media"
	"github.com/giftreel/api/internal/model"
	"github.com/giftreel/api/internal/store"
	"github.com/giftreel/api/internal/websocket"
)

// fakeStorage backs buckets with in-memory maps keyed "bucket/key".
type fakeStorage struct {
	objects   map[string][]byte
	uploads   []string
	signedFor []string
	signErr   error
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: map[string][]byte{}}
}

func (f *fakeStorage) put(bucket, key string, data []byte) {
	f.objects[bucket+"/"+key] = data
}

func (f *fakeStorage) Download(ctx context.Context, bucket, key string) ([]byte, error) {
	data, ok := f.objects[bucket+"/"+key]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", client.ErrObjectNotFound, bucket, key)
	}
	return data, nil
}

func (f *fakeStorage) Upload(ctx context.Context, bucket, key string, body io.Reader, contentType string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.put(bucket, key, data)
	f.uploads = append(f.uploads, bucket+"/"+key)
	return nil
}

func (f *fakeStorage) Delete(ctx context.Context, bucket, key string) error {
	delete(f.objects, bucket+"/"+key)
	return nil
}

func (f *fakeStorage) GetSignedURL(ctx context.Context, bucket, key string, expiry time.Duration) (string, error) {
	if f.signErr != nil {
		return "", f.signErr
	}
	f.signedFor = append(f.signedFor, bucket+"/"+key)
	return "https://signed.example.com/" + bucket + "/" + key, nil
}

func (f *fakeStorage) GetPublicURL(bucket, key string) string {
	return "https://cdn.example.com/" + bucket + "/" + key
}

type fakeMailer struct {
	configured bool
	err        error
	requests   []*client.DeliveryRequest
}

func (f *fakeMailer) Deliver(ctx context.Context, req *client.DeliveryRequest) error {
	if f.err != nil {
		return f.err
	}
	f.requests = append(f.requests, req)
	return nil
}

func (f *fakeMailer) IsConfigured() bool { return f.configured }

// fakeRunner writes the final positional argument as the output file.
type fakeRunner struct {
	calls [][]string
	err   error
}

func (f *fakeRunner) Run(ctx context.Context, args []string) error {
	f.calls = append(f.calls, args)
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(args[len(args)-1], []byte("rendered"), 0o644)
}

type env struct {
	worker  *CompositeWorker
	store   *store.MemoryJobStore
	storage *fakeStorage
	mailer  *fakeMailer
	runner  *fakeRunner
	workDir string
}

func newEnv(t *testing.T, available bool) *env {
	t.Helper()
	e := &env{
		store:   store.NewMemoryJobStore(),
		storage: newFakeStorage(),
		mailer:  &fakeMailer{configured: true},
		runner:  &fakeRunner{},
		workDir: t.TempDir(),
	}
	s3cfg := &config.S3Config{
		MediaBucket:          "media",
		FramesBucket:         "frames",
		FramesFallbackBucket: "frames-legacy",
	}
	urlcfg := &config.SignedURLConfig{
		ProcessTTL: time.Hour,
		EmailTTL:   168 * time.Hour,
	}
	e.worker = NewCompositeWorker(
		e.store, e.storage, e.mailer,
		media.StaticCapability(available), e.runner,
		websocket.NewHub(), s3cfg, urlcfg, e.workDir,
	)
	return e
}

func (e *env) createJob(t *testing.T, job *model.CompositingJob) {
	t.Helper()
	if job.Status == "" {
		job.Status = model.JobStatusPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	if err := e.store.Create(context.Background(), job); err != nil {
		t.Fatalf("create job: %v", err)
	}
}

func taskFor(t *testing.T, job *model.CompositingJob) *asynq.Task {
	t.Helper()
	payload, err := json.Marshal(job)
	if err != nil {
		t.Fatalf("marshal job: %v", err)
	}
	return asynq.NewTask("composite:render", payload)
}

func baseJob(id string) *model.CompositingJob {
	return &model.CompositingJob{
		ID:        id,
		VideoPath: "sources/u1/" + id + ".mp4",
		FilterID:  model.FilterWarm,
	}
}

func TestProcessTaskSuccessWithoutDelivery(t *testing.T) {
	e := newEnv(t, true)
	job := baseJob("j1")
	e.createJob(t, job)
	e.storage.put("media", job.VideoPath, []byte("source"))

	if err := e.worker.ProcessTask(context.Background(), taskFor(t, job)); err != nil {
		t.Fatalf("ProcessTask: %v", err)
	}

	stored, _ := e.store.Get(context.Background(), "j1")
	if stored.Status != model.JobStatusCompleted {
		t.Errorf("status = %s, want completed", stored.Status)
	}
	if stored.OutputPath != "outputs/j1.mp4" {
		t.Errorf("OutputPath = %q, want deterministic output key", stored.OutputPath)
	}
	if _, ok := e.storage.objects["media/outputs/j1.mp4"]; !ok {
		t.Error("rendered output not uploaded to the media bucket")
	}
	if len(e.mailer.requests) != 0 {
		t.Error("job without delivery fields must not trigger the mailer")
	}
	if len(e.runner.calls) != 1 {
		t.Errorf("engine invoked %d times, want exactly one", len(e.runner.calls))
	}
}

func TestProcessTaskOutputKeyIsIdempotent(t *testing.T) {
	// Two full runs of the same job id (fresh job record each time, shared
	// object storage) must write the same key: a re-run overwrites its own
	// prior output instead of accumulating copies.
	first := newEnv(t, true)
	job := baseJob("j1")
	first.createJob(t, job)
	first.storage.put("media", job.VideoPath, []byte("source"))

	if err := first.worker.ProcessTask(context.Background(), taskFor(t, job)); err != nil {
		t.Fatalf("first run: %v", err)
	}

	second := newEnv(t, true)
	second.storage = first.storage
	second.worker = NewCompositeWorker(
		second.store, second.storage, second.mailer,
		media.StaticCapability(true), second.runner,
		websocket.NewHub(),
		&config.S3Config{MediaBucket: "media", FramesBucket: "frames", FramesFallbackBucket: "frames-legacy"},
		&config.SignedURLConfig{ProcessTTL: time.Hour, EmailTTL: 168 * time.Hour},
		second.workDir,
	)
	second.createJob(t, baseJob("j1"))

	if err := second.worker.ProcessTask(context.Background(), taskFor(t, job)); err != nil {
		t.Fatalf("second run: %v", err)
	}

	count := 0
	for _, u := range first.storage.uploads {
		if u == "media/outputs/j1.mp4" {
			count++
		}
	}
	if count != 2 {
		t.Errorf("uploads to the job's key = %d, want 2 (same key both runs)", count)
	}
}

func TestProcessTaskMissingSourceIsFatal(t *testing.T) {
	e := newEnv(t, true)
	job := baseJob("j1")
	e.createJob(t, job)
	// No source object in storage.

	err := e.worker.ProcessTask(context.Background(), taskFor(t, job))
	if err == nil {
		t.Fatal("missing source must fail the task")
	}

	stored, _ := e.store.Get(context.Background(), "j1")
	if stored.Status != model.JobStatusFailed {
		t.Errorf("status = %s, want failed", stored.Status)
	}
	if !strings.Contains(stored.ErrorMessage, "Source video download failed") {
		t.Errorf("ErrorMessage = %q, want the source download reason", stored.ErrorMessage)
	}
}

func TestProcessTaskMissingFrameIsNonFatal(t *testing.T) {
	e := newEnv(t, true)
	job := baseJob("j1")
	job.FramePNGPath = "birthday/frame.png"
	e.createJob(t, job)
	e.storage.put("media", job.VideoPath, []byte("source"))
	// Frame absent from both frame buckets.

	if err := e.worker.ProcessTask(context.Background(), taskFor(t, job)); err != nil {
		t.Fatalf("ProcessTask: %v", err)
	}

	stored, _ := e.store.Get(context.Background(), "j1")
	if stored.Status != model.JobStatusCompleted {
		t.Errorf("status = %s, want completed despite the missing frame", stored.Status)
	}
	// The engine must have been invoked without a second input.
	for _, a := range e.runner.calls[0] {
		if strings.HasSuffix(a, "frame.png") {
			t.Errorf("engine args reference a frame that was never downloaded: %v", e.runner.calls[0])
		}
	}
}

func TestProcessTaskFrameFallbackBucket(t *testing.T) {
	e := newEnv(t, true)
	job := baseJob("j1")
	job.FramePNGPath = "birthday/frame.png"
	e.createJob(t, job)
	e.storage.put("media", job.VideoPath, []byte("source"))
	e.storage.put("frames-legacy", "birthday/frame.png", []byte("png"))

	if err := e.worker.ProcessTask(context.Background(), taskFor(t, job)); err != nil {
		t.Fatalf("ProcessTask: %v", err)
	}

	found := false
	for _, a := range e.runner.calls[0] {
		if strings.HasSuffix(a, "frame.png") {
			found = true
		}
	}
	if !found {
		t.Errorf("fallback-bucket frame not passed to the engine: %v", e.runner.calls[0])
	}
}

func TestProcessTaskEngineUnavailablePassesSourceThrough(t *testing.T) {
	e := newEnv(t, false)
	job := baseJob("j1")
	e.createJob(t, job)
	e.storage.put("media", job.VideoPath, []byte("original-bytes"))

	if err := e.worker.ProcessTask(context.Background(), taskFor(t, job)); err != nil {
		t.Fatalf("ProcessTask: %v", err)
	}

	stored, _ := e.store.Get(context.Background(), "j1")
	if stored.Status != model.JobStatusCompleted {
		t.Errorf("status = %s, want completed (fallback is success)", stored.Status)
	}
	if got := e.storage.objects["media/outputs/j1.mp4"]; string(got) != "original-bytes" {
		t.Errorf("output = %q, want the unmodified source", got)
	}
	if len(e.runner.calls) != 0 {
		t.Error("engine must not run when unavailable")
	}
}

func TestProcessTaskRenderFailureMarksJobFailed(t *testing.T) {
	e := newEnv(t, true)
	e.runner.err = errors.New("ffmpeg failed: filter parse error")
	job := baseJob("j1")
	e.createJob(t, job)
	e.storage.put("media", job.VideoPath, []byte("source"))

	if err := e.worker.ProcessTask(context.Background(), taskFor(t, job)); err == nil {
		t.Fatal("render failure must fail the task")
	}

	stored, _ := e.store.Get(context.Background(), "j1")
	if stored.Status != model.JobStatusFailed {
		t.Errorf("status = %s, want failed", stored.Status)
	}
	if !strings.Contains(stored.ErrorMessage, "Render failed") {
		t.Errorf("ErrorMessage = %q", stored.ErrorMessage)
	}
}

func deliveryJob(id string) *model.CompositingJob {
	job := baseJob(id)
	job.RecipientEmail = "nana@example.com"
	job.RecipientName = "Nana"
	job.SendMethod = model.SendMethodEmail
	job.ChildName = "Mia"
	return job
}

func TestProcessTaskDeliverySuccessMarksSent(t *testing.T) {
	e := newEnv(t, true)
	job := deliveryJob("j1")
	e.createJob(t, job)
	e.storage.put("media", job.VideoPath, []byte("source"))

	if err := e.worker.ProcessTask(context.Background(), taskFor(t, job)); err != nil {
		t.Fatalf("ProcessTask: %v", err)
	}

	stored, _ := e.store.Get(context.Background(), "j1")
	if stored.Status != model.JobStatusSent {
		t.Errorf("status = %s, want sent", stored.Status)
	}
	if len(e.mailer.requests) != 1 {
		t.Fatalf("mailer calls = %d, want 1", len(e.mailer.requests))
	}
	req := e.mailer.requests[0]
	if req.RecipientEmail != "nana@example.com" || req.ChildName != "Mia" {
		t.Errorf("delivery request fields not carried over: %+v", req)
	}
	if !strings.Contains(req.VideoURL, "outputs/j1.mp4") {
		t.Errorf("VideoURL = %q, want a signed link to the output", req.VideoURL)
	}
}

func TestProcessTaskDeliveryFailureLeavesJobCompleted(t *testing.T) {
	e := newEnv(t, true)
	e.mailer.err = errors.New("mailer service error (status 503)")
	job := deliveryJob("j1")
	e.createJob(t, job)
	e.storage.put("media", job.VideoPath, []byte("source"))

	if err := e.worker.ProcessTask(context.Background(), taskFor(t, job)); err != nil {
		t.Fatalf("delivery failure must not fail the task: %v", err)
	}

	stored, _ := e.store.Get(context.Background(), "j1")
	if stored.Status != model.JobStatusCompleted {
		t.Errorf("status = %s, want completed (render is kept)", stored.Status)
	}
	if stored.OutputPath != "outputs/j1.mp4" {
		t.Errorf("OutputPath = %q, the render must survive the delivery failure", stored.OutputPath)
	}
}

func TestProcessTaskSigningFailureLeavesJobCompleted(t *testing.T) {
	e := newEnv(t, true)
	e.storage.signErr = errors.New("presign unavailable")
	job := deliveryJob("j1")
	e.createJob(t, job)
	e.storage.put("media", job.VideoPath, []byte("source"))

	if err := e.worker.ProcessTask(context.Background(), taskFor(t, job)); err != nil {
		t.Fatalf("ProcessTask: %v", err)
	}

	stored, _ := e.store.Get(context.Background(), "j1")
	if stored.Status != model.JobStatusCompleted {
		t.Errorf("status = %s, want completed", stored.Status)
	}
	if len(e.mailer.requests) != 0 {
		t.Error("mailer must not be called without a signed URL")
	}
}

func TestProcessTaskUnconfiguredMailerSkipsDelivery(t *testing.T) {
	e := newEnv(t, true)
	e.mailer.configured = false
	job := deliveryJob("j1")
	e.createJob(t, job)
	e.storage.put("media", job.VideoPath, []byte("source"))

	if err := e.worker.ProcessTask(context.Background(), taskFor(t, job)); err != nil {
		t.Fatalf("ProcessTask: %v", err)
	}

	stored, _ := e.store.Get(context.Background(), "j1")
	if stored.Status != model.JobStatusCompleted {
		t.Errorf("status = %s, want completed", stored.Status)
	}
}

func TestProcessTaskCleansUpWorkDir(t *testing.T) {
	e := newEnv(t, true)
	job := baseJob("j1")
	e.createJob(t, job)
	e.storage.put("media", job.VideoPath, []byte("source"))

	if err := e.worker.ProcessTask(context.Background(), taskFor(t, job)); err != nil {
		t.Fatalf("ProcessTask: %v", err)
	}

	entries, err := os.ReadDir(e.workDir)
	if err != nil {
		t.Fatalf("read work dir: %v", err)
	}
	if len(entries) != 0 {
		names := make([]string, len(entries))
		for i, en := range entries {
			names[i] = en.Name()
		}
		t.Errorf("work dir not cleaned up: %v", names)
	}
}

func TestProcessTaskCleansUpWorkDirOnFailure(t *testing.T) {
	e := newEnv(t, true)
	e.runner.err = errors.New("engine error")
	job := baseJob("j1")
	e.createJob(t, job)
	e.storage.put("media", job.VideoPath, []byte("source"))

	e.worker.ProcessTask(context.Background(), taskFor(t, job))

	entries, _ := os.ReadDir(e.workDir)
	if len(entries) != 0 {
		t.Error("work dir must be removed on failed runs too")
	}
}

func TestProcessTaskMalformedPayload(t *testing.T) {
	e := newEnv(t, true)
	task := asynq.NewTask("composite:render", []byte("{not json"))
	if err := e.worker.ProcessTask(context.Background(), task); err == nil {
		t.Fatal("malformed payload must error")
	}
}

func TestProcessTaskResolvesStorageURLs(t *testing.T) {
	e := newEnv(t, true)
	job := baseJob("j1")
	job.VideoPath = "https://proj.supabase.co/storage/v1/object/public/media/sources/u1/j1.mp4"
	e.createJob(t, job)
	e.storage.put("media", "sources/u1/j1.mp4", []byte("source"))

	if err := e.worker.ProcessTask(context.Background(), taskFor(t, job)); err != nil {
		t.Fatalf("ProcessTask: %v", err)
	}

	stored, _ := e.store.Get(context.Background(), "j1")
	if stored.Status != model.JobStatusCompleted {
		t.Errorf("status = %s, want completed for a full storage URL input", stored.Status)
	}
}

func TestOutputKeyDeterministic(t *testing.T) {
	if OutputKey("abc") != OutputKey("abc") {
		t.Error("OutputKey must be deterministic")
	}
	if OutputKey("abc") != "outputs/abc.mp4" {
		t.Errorf("OutputKey = %q", OutputKey("abc"))
	}
	if OutputKey("abc") == OutputKey("def") {
		t.Error("distinct jobs must map to distinct keys")
	}
}

var _ client.StorageClient = (*fakeStorage)(nil)
var _ client.DeliverySender = (*fakeMailer)(nil)
