// Package objstore archives opened documents to object storage so the
// source of every ledger row stays retrievable.
package objstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"time"

	"cloud.google.com/go/storage"
)

const uploadTimeout = 2 * time.Minute

// Fetcher is implemented by stores that can read an archived document back
// by the object path Upload returned.
type Fetcher interface {
	Fetch(ctx context.Context, uri string) ([]byte, error)
}

// GCSStore uploads documents to a Google Cloud Storage bucket using
// Application Default Credentials.
type GCSStore struct {
	client *storage.Client
	bucket string
}

// NewGCSStore creates a store over the given bucket.
func NewGCSStore(ctx context.Context, bucket string) (*GCSStore, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket name is empty")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &GCSStore{client: client, bucket: bucket}, nil
}

// Upload writes data under the given object name and returns its gs:// URI.
func (s *GCSStore) Upload(ctx context.Context, name string, data []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	w := s.client.Bucket(s.bucket).Object(name).NewWriter(ctx)
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("copy to GCS writer: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize upload: %w", err)
	}

	return fmt.Sprintf("gs://%s/%s", s.bucket, name), nil
}

// Fetch downloads the object bytes back from a gs:// URI, for operator
// tooling that re-reads archived documents.
func (s *GCSStore) Fetch(ctx context.Context, uri string) ([]byte, error) {
	bucket, object, err := splitURI(uri)
	if err != nil {
		return nil, err
	}

	rc, err := s.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading object %s/%s: %w", bucket, object, err)
	}
	defer func() { _ = rc.Close() }()

	return io.ReadAll(rc)
}

// Close releases the underlying client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}

// splitURI parses gs://bucket/path/to/object into its parts.
func splitURI(uri string) (bucket, object string, err error) {
	const prefix = "gs://"
	if len(uri) <= len(prefix) || uri[:len(prefix)] != prefix {
		return "", "", fmt.Errorf("invalid GCS URI: %s", uri)
	}
	rest := uri[len(prefix):]
	for i := 0; i < len(rest); i++ {
		if rest[i] == '/' {
			if i == len(rest)-1 {
				break
			}
			return rest[:i], rest[i+1:], nil
		}
	}
	return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", uri)
}

// ObjectName joins path segments into a clean object name.
func ObjectName(segments ...string) string {
	return path.Join(segments...)
}
