package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	gcs "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/reportai-inc/reportai-engine/pkg/apperrors"
)

type gcsStore struct {
	client *gcs.Client
	bucket string
	logger *zap.Logger
}

var _ ObjectStore = (*gcsStore)(nil)

// NewGCSStore creates an object store backed by a Google Cloud Storage
// bucket. Credentials come from the ambient environment (ADC).
func NewGCSStore(ctx context.Context, bucket string, logger *zap.Logger) (ObjectStore, error) {
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &gcsStore{client: client, bucket: bucket, logger: logger}, nil
}

func (s *gcsStore) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("write object %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize object %s: %w", key, err)
	}
	s.logger.Debug("object uploaded",
		zap.String("key", key),
		zap.Int("size", len(data)))
	return fmt.Sprintf("gs://%s/%s", s.bucket, key), nil
}

func (s *gcsStore) Download(ctx context.Context, key string) ([]byte, error) {
	r, err := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("open object %s: %w", key, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", key, err)
	}
	return data, nil
}

func (s *gcsStore) Delete(ctx context.Context, key string) error {
	err := s.client.Bucket(s.bucket).Object(key).Delete(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return apperrors.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("delete object %s: %w", key, err)
	}
	return nil
}

func (s *gcsStore) KeyFromURL(url string) (string, error) {
	prefix := fmt.Sprintf("gs://%s/", s.bucket)
	if !strings.HasPrefix(url, prefix) {
		return "", fmt.Errorf("%w: url %q is not in bucket %s", apperrors.ErrValidation, url, s.bucket)
	}
	key := strings.TrimPrefix(url, prefix)
	if key == "" {
		return "", fmt.Errorf("%w: url %q has no object key", apperrors.ErrValidation, url)
	}
	return key, nil
}

func (s *gcsStore) Close() error {
	return s.client.Close()
}
