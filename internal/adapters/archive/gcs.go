package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"cloud.google.com/go/storage"

	"github.com/feedvault/core/internal/ports"
)

// GCSArchive mirrors artifacts into a Google Cloud Storage bucket under a
// configurable prefix. Credentials come from the ambient environment
// (service account or ADC).
type GCSArchive struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSArchive creates a GCS archive for the given bucket and prefix
func NewGCSArchive(ctx context.Context, bucket, prefix string) (*GCSArchive, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	return &GCSArchive{
		client: client,
		bucket: bucket,
		prefix: prefix,
	}, nil
}

func (a *GCSArchive) Pull(ctx context.Context, p string) ([]byte, error) {
	r, err := a.client.Bucket(a.bucket).Object(a.objectPath(p)).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, ports.ErrArchiveNotFound
		}
		return nil, fmt.Errorf("pull %s: %w", p, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("pull %s: %w", p, err)
	}
	return data, nil
}

func (a *GCSArchive) Push(ctx context.Context, p string, data []byte) error {
	w := a.client.Bucket(a.bucket).Object(a.objectPath(p)).NewWriter(ctx)
	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("push %s: %w", p, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("push %s: %w", p, err)
	}
	return nil
}

// Close releases the underlying client
func (a *GCSArchive) Close() error {
	return a.client.Close()
}

func (a *GCSArchive) objectPath(p string) string {
	if a.prefix == "" {
		return p
	}
	return path.Join(a.prefix, p)
}
