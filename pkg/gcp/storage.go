package gcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"cloud.google.com/go/storage"

	"github.com/spawn-mcp/adshipper/pkg/objectstore"
)

// GCSStore implements objectstore.Store on a Cloud Storage bucket. Paths are
// gs://<bucket>/<key>.
type GCSStore struct {
	client *storage.Client
	bucket string
}

// NewGCSStore wraps a storage client bound to bucket.
func NewGCSStore(client *storage.Client, bucket string) *GCSStore {
	return &GCSStore{client: client, bucket: bucket}
}

func (s *GCSStore) Upload(ctx context.Context, r io.Reader, key string, opts objectstore.UploadOptions) (string, error) {
	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	w.ContentType = opts.ContentType
	w.Metadata = opts.Metadata

	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return "", fmt.Errorf("failed to write object %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize object %s: %w", key, err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, key), nil
}

func (s *GCSStore) SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error) {
	bucket, key, err := parseGSPath(path)
	if err != nil {
		return "", err
	}
	url, err := s.client.Bucket(bucket).SignedURL(key, &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  "GET",
		Expires: time.Now().Add(ttl),
	})
	if err != nil {
		return "", fmt.Errorf("failed to sign %s: %w", path, err)
	}
	return url, nil
}

func (s *GCSStore) Read(ctx context.Context, path string) (io.ReadCloser, error) {
	bucket, key, err := parseGSPath(path)
	if err != nil {
		return nil, err
	}
	r, err := s.client.Bucket(bucket).Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, objectstore.ErrNotFound
		}
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return r, nil
}

func parseGSPath(path string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(path, "gs://")
	if !ok {
		return "", "", fmt.Errorf("not a gs:// path: %q", path)
	}
	bucket, key, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("malformed gs:// path: %q", path)
	}
	return bucket, key, nil
}
