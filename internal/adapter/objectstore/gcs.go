package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"

	"github.com/heartmarshall/docflow-backend/internal/domain"
)

// GCS stores objects in a Cloud Storage bucket.
type GCS struct {
	log    *slog.Logger
	client *storage.Client
	bucket string
	prefix string
}

// NewGCS connects with application default credentials.
func NewGCS(ctx context.Context, log *slog.Logger, bucket, prefix string) (*GCS, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("objectstore: storage.NewClient: %w", err)
	}
	return &GCS{
		log:    log.With("adapter", "objectstore.gcs"),
		client: client,
		bucket: bucket,
		prefix: prefix,
	}, nil
}

// Put writes data only if the object does not exist yet. Keys embed the
// document ID, so an existing object is the same upload retried.
func (s *GCS) Put(ctx context.Context, key string, data []byte, contentType string) error {
	name, err := s.name(key)
	if err != nil {
		return err
	}

	w := s.client.Bucket(s.bucket).Object(name).
		If(storage.Conditions{DoesNotExist: true}).
		NewWriter(ctx)
	w.ContentType = contentType

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return s.writeError(ctx, name, err)
	}
	if err := w.Close(); err != nil {
		return s.writeError(ctx, name, err)
	}
	return nil
}

func (s *GCS) writeError(ctx context.Context, name string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed {
		s.log.InfoContext(ctx, "object already exists, skipping", slog.String("object", name))
		return nil
	}
	return fmt.Errorf("objectstore: write gs://%s/%s: %v: %w", s.bucket, name, err, domain.ErrExternalUnavailable)
}

// Get reads the object stored under key.
func (s *GCS) Get(ctx context.Context, key string) ([]byte, error) {
	name, err := s.name(key)
	if err != nil {
		return nil, err
	}

	r, err := s.client.Bucket(s.bucket).Object(name).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("object %s: %w", key, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("objectstore: open gs://%s/%s: %v: %w", s.bucket, name, err, domain.ErrExternalUnavailable)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("objectstore: read gs://%s/%s: %v: %w", s.bucket, name, err, domain.ErrExternalUnavailable)
	}
	return data, nil
}

// Delete removes the object under key. A missing object is not an error.
func (s *GCS) Delete(ctx context.Context, key string) error {
	name, err := s.name(key)
	if err != nil {
		return err
	}
	err = s.client.Bucket(s.bucket).Object(name).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("objectstore: delete gs://%s/%s: %v: %w", s.bucket, name, err, domain.ErrExternalUnavailable)
	}
	return nil
}

// URL returns the gs:// URI of key, which Vertex AI accepts as file data.
func (s *GCS) URL(key string) string {
	name, err := s.name(key)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, name)
}

// Close releases the client.
func (s *GCS) Close() error {
	return s.client.Close()
}

func (s *GCS) name(key string) (string, error) {
	clean, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	if s.prefix == "" {
		return clean, nil
	}
	return path.Join(s.prefix, clean), nil
}
