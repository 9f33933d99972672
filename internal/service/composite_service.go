package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/giftreel/api/internal/client"
	"github.com/giftreel/api/internal/config"
	"github.com/giftreel/api/internal/model"
	"github.com/giftreel/api/internal/store"
)

const TaskTypeComposite = "composite:render"

// CompositeService creates compositing jobs and exposes their status. The
// worker receives the full job payload in the task body so it never needs
// an extra read before starting.
type CompositeService struct {
	store       store.JobStore
	asynqClient *asynq.Client
	storage     client.StorageClient
	s3cfg       *config.S3Config
	urlcfg      *config.SignedURLConfig
}

func NewCompositeService(jobStore store.JobStore, asynqClient *asynq.Client, storage client.StorageClient, s3cfg *config.S3Config, urlcfg *config.SignedURLConfig) *CompositeService {
	return &CompositeService{
		store:       jobStore,
		asynqClient: asynqClient,
		storage:     storage,
		s3cfg:       s3cfg,
		urlcfg:      urlcfg,
	}
}

// StartComposite validates the request into one job record, persists it as
// pending and enqueues the worker task.
func (s *CompositeService) StartComposite(ctx context.Context, req *model.CompositeStartRequest, ownerID string) (*model.CompositeStartResponse, error) {
	job := jobFromRequest(req, ownerID)

	if err := s.store.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to save job: %w", err)
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job payload: %w", err)
	}

	task := asynq.NewTask(TaskTypeComposite, payload)
	_, err = s.asynqClient.Enqueue(task,
		asynq.Queue("composite"),
		asynq.MaxRetry(3),
		asynq.Retention(24*time.Hour),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	return &model.CompositeStartResponse{
		JobID:     job.ID,
		Status:    job.Status,
		CreatedAt: job.CreatedAt,
	}, nil
}

// GetStatus returns the current status of a job
func (s *CompositeService) GetStatus(ctx context.Context, jobID string) (*model.CompositeStatusResponse, error) {
	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}

	return &model.CompositeStatusResponse{
		JobID:        job.ID,
		Status:       job.Status,
		OutputPath:   job.OutputPath,
		ErrorMessage: job.ErrorMessage,
		CreatedAt:    job.CreatedAt,
		StartedAt:    job.StartedAt,
		CompletedAt:  job.CompletedAt,
	}, nil
}

// GetResult returns the rendered output for a finished job, including a
// short-lived signed URL for playback.
func (s *CompositeService) GetResult(ctx context.Context, jobID string) (*model.CompositeResultResponse, error) {
	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if job.Status != model.JobStatusCompleted && job.Status != model.JobStatusSent {
		return nil, fmt.Errorf("job not completed")
	}

	resp := &model.CompositeResultResponse{
		JobID:       job.ID,
		Status:      job.Status,
		OutputPath:  job.OutputPath,
		CompletedAt: job.CompletedAt,
	}

	if s.storage != nil {
		url, err := s.storage.GetSignedURL(ctx, s.s3cfg.MediaBucket, job.OutputPath, s.urlcfg.ProcessTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to sign output URL: %w", err)
		}
		resp.VideoURL = url
	}

	return resp, nil
}

// jobFromRequest normalizes the client payload into a single job record.
// Optional enums default here, not downstream.
func jobFromRequest(req *model.CompositeStartRequest, ownerID string) *model.CompositingJob {
	filterID := req.FilterID
	if filterID == "" {
		filterID = model.FilterNone
	}
	sendMethod := req.SendMethod
	if sendMethod == "" {
		sendMethod = model.SendMethodNone
	}
	textPos := req.CustomTextPosition
	if textPos == "" {
		textPos = model.TextPositionBottom
	}

	return &model.CompositingJob{
		ID:                 uuid.New().String(),
		VideoPath:          req.VideoPath,
		FramePNGPath:       req.FramePNGPath,
		FrameColor:         req.FrameColor,
		CustomText:         req.CustomText,
		CustomTextPosition: textPos,
		CustomTextColor:    req.CustomTextColor,
		Stickers:           req.Stickers,
		FilterID:           filterID,
		OwnerID:            ownerID,
		VideoRecordID:      req.VideoRecordID,
		GiftID:             req.GiftID,
		RecipientEmail:     req.RecipientEmail,
		RecipientName:      req.RecipientName,
		SendMethod:         sendMethod,
		EmailSubject:       req.EmailSubject,
		EmailBody:          req.EmailBody,
		ChildName:          req.ChildName,
		GiftName:           req.GiftName,
		EventName:          req.EventName,
		Status:             model.JobStatusPending,
		CreatedAt:          time.Now(),
	}
}
