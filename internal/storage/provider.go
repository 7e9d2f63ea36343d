// Package storage defines where crawl output goes once a run has finished.
// Implementations live in backend subpackages: local files, Postgres, Redis,
// and object stores (GCS, S3).
package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/JakeFAU/jobpost-crawler/internal/crawler"
)

// JSONContentType is attached to every exported output file.
const JSONContentType = "application/json"

// BlobStore uploads one object and returns its URI.
type BlobStore interface {
	PutObject(ctx context.Context, key string, contentType string, data []byte) (string, error)
}

// RunSink persists the records of a finished run.
type RunSink interface {
	PersistRun(ctx context.Context, res *crawler.Result) error
}

// ObjectKey joins prefix, runID and the base name of file into an object key.
func ObjectKey(prefix, runID, file string) string {
	parts := make([]string, 0, 3)
	if p := strings.Trim(prefix, "/"); p != "" {
		parts = append(parts, p)
	}
	if runID != "" {
		parts = append(parts, runID)
	}
	parts = append(parts, filepath.Base(file))
	return path.Join(parts...)
}

// Upload copies local files into store under prefix/runID and returns the
// resulting URIs in input order. It stops at the first failure.
func Upload(ctx context.Context, store BlobStore, prefix, runID string, files []string) ([]string, error) {
	uris := make([]string, 0, len(files))
	for _, file := range files {
		// #nosec G304 -- files are the paths this process just wrote.
		data, err := os.ReadFile(file)
		if err != nil {
			return uris, fmt.Errorf("read %s: %w", file, err)
		}
		uri, err := store.PutObject(ctx, ObjectKey(prefix, runID, file), JSONContentType, data)
		if err != nil {
			return uris, fmt.Errorf("upload %s: %w", file, err)
		}
		uris = append(uris, uri)
	}
	return uris, nil
}
