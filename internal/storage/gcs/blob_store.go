// Package gcs exports run output files to Google Cloud Storage.
package gcs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/jobpost-crawler/internal/logging"
)

// Config captures the parameters required to connect to GCS.
type Config struct {
	Bucket string
}

// BlobStore writes exported files to a configured GCS bucket.
type BlobStore struct {
	client *storage.Client
	bucket string
	logger *zap.Logger
}

// Open creates a client using Application Default Credentials and fails
// fast when the bucket is missing or not accessible.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (*BlobStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	if _, err := client.Bucket(cfg.Bucket).Attrs(ctx); err != nil {
		if closeErr := client.Close(); closeErr != nil {
			logging.OrNop(logger).Warn("close gcs client", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("gcs bucket %q: %w", cfg.Bucket, err)
	}
	return New(client, cfg, logger)
}

// New creates a GCS-backed blob store from an existing client.
func New(client *storage.Client, cfg Config, logger *zap.Logger) (*BlobStore, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &BlobStore{
		client: client,
		bucket: cfg.Bucket,
		logger: logging.OrNop(logger).Named("gcs"),
	}, nil
}

// PutObject uploads data to the configured bucket and returns a gs:// URI.
func (s *BlobStore) PutObject(ctx context.Context, key string, contentType string, data []byte) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("key is required")
	}
	writer := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	if contentType != "" {
		writer.ContentType = contentType
	}
	if _, err := io.Copy(writer, bytes.NewReader(data)); err != nil {
		if closeErr := writer.Close(); closeErr != nil {
			return "", fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return "", fmt.Errorf("copy object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", err)
	}
	uri := fmt.Sprintf("gs://%s/%s", s.bucket, key)
	s.logger.Debug("object uploaded", zap.String("uri", uri), zap.Int("bytes", len(data)))
	return uri, nil
}

// Close releases the client.
func (s *BlobStore) Close() error {
	return s.client.Close()
}
