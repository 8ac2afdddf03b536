package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"

	"github.com/feedvault/core/internal/domain/series"
	"github.com/feedvault/core/internal/infrastructure/logger"
	"github.com/feedvault/core/internal/ports"
)

// metaSuffix is the sidecar naming convention: "<key>.meta.json" next to the
// dataset artifact.
const metaSuffix = ".meta.json"

// FileMetadataStore persists one JSON checkpoint sidecar per dataset key.
// OS modification time is deliberately not used as the poll clock: a check
// that found nothing new must still reset it, so the timestamp is an
// explicit field.
type FileMetadataStore struct {
	fs     afero.Fs
	dir    string
	clock  clockwork.Clock
	logger *logger.Logger
}

// NewFileMetadataStore creates a file metadata store rooted at dir
func NewFileMetadataStore(fs afero.Fs, dir string, clock clockwork.Clock, log *logger.Logger) (ports.MetadataStore, error) {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &FileMetadataStore{
		fs:     fs,
		dir:    dir,
		clock:  clock,
		logger: log.WithComponent("metadata_store"),
	}, nil
}

func (s *FileMetadataStore) LastChecked(ctx context.Context, key string) (time.Time, error) {
	if err := validateKey(key); err != nil {
		return time.Time{}, err
	}

	data, err := afero.ReadFile(s.fs, s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("read checkpoint %s: %w", key, err)
	}

	cp, err := series.DecodeCheckpoint(data)
	if err != nil {
		// Corrupt checkpoint reads as absent: the next check runs.
		s.logger.Warnw("Corrupt checkpoint, treating as absent", "dataset", key, "error", err.Error())
		return time.Time{}, nil
	}

	return cp.LastChecked, nil
}

func (s *FileMetadataStore) Touch(ctx context.Context, key string) error {
	return s.SetLastChecked(ctx, key, s.clock.Now())
}

func (s *FileMetadataStore) SetLastChecked(ctx context.Context, key string, t time.Time) error {
	if err := validateKey(key); err != nil {
		return err
	}

	data, err := series.EncodeCheckpoint(series.Checkpoint{LastChecked: t})
	if err != nil {
		return err
	}

	path := s.path(key)
	tmp := filepath.Join(filepath.Dir(path), fmt.Sprintf(".tmp-%s-%s", filepath.Base(path), uuid.NewString()))
	if err := afero.WriteFile(s.fs, tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp checkpoint: %w", err)
	}
	if err := s.fs.Rename(tmp, path); err != nil {
		s.fs.Remove(tmp)
		return fmt.Errorf("replace checkpoint: %w", err)
	}
	return nil
}

func (s *FileMetadataStore) Delete(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	if err := s.fs.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete checkpoint %s: %w", key, err)
	}
	return nil
}

func (s *FileMetadataStore) path(key string) string {
	return filepath.Join(s.dir, key+metaSuffix)
}
