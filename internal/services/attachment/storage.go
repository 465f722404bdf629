package attachment

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/terminal-bench/incidenthub/internal/config"
)

// Storage stores attachment payloads in object storage. Metadata lives in
// the attachments table; this service only handles the bytes.
type Storage struct {
	client *minio.Client
	bucket string
}

// NewStorage creates a new attachment storage backed by minio
func NewStorage(cfg *config.Config) (*Storage, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &Storage{client: client, bucket: cfg.MinioBucket}, nil
}

// EnsureBucket creates the bucket if it does not exist
func (s *Storage) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// Upload stores an attachment payload and returns its storage key
func (s *Storage) Upload(ctx context.Context, entityID uuid.UUID, reader io.Reader, size int64, contentType string) (string, error) {
	key := fmt.Sprintf("%s/%s/%s", entityID.String(), time.Now().Format("2006/01/02"), uuid.New().String())

	_, err := s.client.PutObject(ctx, s.bucket, key, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload attachment: %w", err)
	}
	return key, nil
}

// Download retrieves an attachment payload by storage key
func (s *Storage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to download attachment: %w", err)
	}
	return obj, nil
}

// Delete removes an attachment payload
func (s *Storage) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete attachment: %w", err)
	}
	return nil
}
