package service

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/giftreel/api/internal/client"
	"github.com/giftreel/api/internal/config"
	"github.com/giftreel/api/internal/model"
)

// UploadService stores recorded source clips in the media bucket before a
// compositing job references them.
type UploadService struct {
	storage client.StorageClient
	s3cfg   *config.S3Config
}

func NewUploadService(storage client.StorageClient, s3cfg *config.S3Config) *UploadService {
	return &UploadService{storage: storage, s3cfg: s3cfg}
}

// UploadVideo stores a recorded clip and returns its canonical storage key
func (s *UploadService) UploadVideo(ctx context.Context, ownerID string, file io.Reader, fileSize int64) (*model.UploadVideoResponse, error) {
	key := fmt.Sprintf("sources/%s/%s.mp4", ownerID, uuid.New().String())

	// Mock response when storage is not configured (development)
	if s.storage == nil {
		return &model.UploadVideoResponse{
			VideoPath: key,
			Size:      fileSize,
			CreatedAt: time.Now(),
		}, nil
	}

	if err := s.storage.Upload(ctx, s.s3cfg.MediaBucket, key, file, "video/mp4"); err != nil {
		return nil, fmt.Errorf("failed to upload video: %w", err)
	}

	return &model.UploadVideoResponse{
		VideoPath: key,
		Size:      fileSize,
		CreatedAt: time.Now(),
	}, nil
}

// DeleteVideo removes a source clip by its storage key
func (s *UploadService) DeleteVideo(ctx context.Context, key string) error {
	if s.storage == nil {
		return nil
	}
	return s.storage.Delete(ctx, s.s3cfg.MediaBucket, client.ResolveStorageKey(key))
}
