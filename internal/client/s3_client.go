package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/giftreel/api/internal/config"
)

// ErrObjectNotFound is returned when a key does not exist in the bucket.
// The worker uses it to fall back to the secondary frames bucket.
var ErrObjectNotFound = errors.New("object not found")

// StorageClient defines the interface for object storage operations. The
// pipeline addresses two logical buckets (media and frames), so every call
// takes the bucket explicitly.
type StorageClient interface {
	Download(ctx context.Context, bucket, key string) ([]byte, error)
	Upload(ctx context.Context, bucket, key string, body io.Reader, contentType string) error
	Delete(ctx context.Context, bucket, key string) error
	GetSignedURL(ctx context.Context, bucket, key string, expiry time.Duration) (string, error)
	GetPublicURL(bucket, key string) string
}

// S3Client implements StorageClient against any S3-compatible endpoint
type S3Client struct {
	s3Client  *s3.Client
	presigner *s3.PresignClient
	publicURL string
}

// NewS3Client creates a new storage client
func NewS3Client(cfg *config.S3Config) (*S3Client, error) {
	if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return nil, fmt.Errorf("S3 configuration incomplete")
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
		awsconfig.WithRegion(cfg.Region),
	}

	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			return aws.Endpoint{URL: endpoint}, nil
		})
		opts = append(opts, awsconfig.WithEndpointResolverWithOptions(resolver))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsCfg)

	return &S3Client{
		s3Client:  s3Client,
		presigner: s3.NewPresignClient(s3Client),
		publicURL: cfg.PublicURL,
	}, nil
}

// Download fetches an object's full contents
func (c *S3Client) Download(ctx context.Context, bucket, key string) ([]byte, error) {
	out, err := c.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, fmt.Errorf("%w: %s/%s", ErrObjectNotFound, bucket, key)
		}
		return nil, fmt.Errorf("failed to download %s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s/%s: %w", bucket, key, err)
	}
	return data, nil
}

// Upload writes an object, overwriting any existing one at the same key
func (c *S3Client) Upload(ctx context.Context, bucket, key string, body io.Reader, contentType string) error {
	_, err := c.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s/%s: %w", bucket, key, err)
	}
	return nil
}

// Delete removes an object
func (c *S3Client) Delete(ctx context.Context, bucket, key string) error {
	_, err := c.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", bucket, key, err)
	}
	return nil
}

// GetSignedURL generates a presigned URL for temporary access
func (c *S3Client) GetSignedURL(ctx context.Context, bucket, key string, expiry time.Duration) (string, error) {
	presignedReq, err := c.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}
	return presignedReq.URL, nil
}

// GetPublicURL returns the public CDN URL for a key
func (c *S3Client) GetPublicURL(bucket, key string) string {
	if c.publicURL != "" {
		return fmt.Sprintf("%s/%s/%s", c.publicURL, bucket, key)
	}
	return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", bucket, key)
}

// IsConfigured returns true if the client has valid configuration
func (c *S3Client) IsConfigured() bool {
	return c.s3Client != nil
}
