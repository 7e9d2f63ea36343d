package gcs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func newTestStore(t *testing.T, handler http.Handler) *BlobStore {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := storage.NewClient(context.Background(), option.WithEndpoint(server.URL), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	store, err := New(client, Config{Bucket: "test-bucket"}, nil)
	require.NoError(t, err)
	return store
}

func TestPutObjectUploads(t *testing.T) {
	t.Parallel()

	key := "runs/r1/jobs_raw_latest.json"
	payload := []byte(`[{"job_identity":{}}]`)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/upload/storage/v1/b/test-bucket/o")
		assert.Equal(t, key, r.URL.Query().Get("name"))
		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.Contains(t, string(body), string(payload))
		assert.Contains(t, string(body), "application/json")
		fmt.Fprintln(w, `{"name": "`+key+`", "bucket": "test-bucket"}`)
	})

	store := newTestStore(t, handler)
	uri, err := store.PutObject(context.Background(), key, "application/json", payload)
	require.NoError(t, err)
	assert.Equal(t, "gs://test-bucket/"+key, uri)
}

func TestPutObjectServerError(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error": {"code": 403, "message": "forbidden"}}`, http.StatusForbidden)
	})
	store := newTestStore(t, handler)
	_, err := store.PutObject(context.Background(), "k", "application/json", []byte("{}"))
	assert.Error(t, err)
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"}, nil)
	assert.Error(t, err)

	client, err := storage.NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)
	defer client.Close()
	_, err = New(client, Config{}, nil)
	assert.Error(t, err)

	store, err := New(client, Config{Bucket: "b"}, nil)
	require.NoError(t, err)
	_, err = store.PutObject(context.Background(), " ", "", nil)
	assert.Error(t, err)
}
