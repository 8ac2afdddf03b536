package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/feedvault/core/internal/domain/series"
	"github.com/feedvault/core/internal/infrastructure/logger"
	"github.com/feedvault/core/internal/ports"
)

// FileDatasetStore persists one CSV artifact per dataset key under a data
// directory. Writes go through a temp file and a rename so a concurrent
// reader never observes a half-written artifact.
type FileDatasetStore struct {
	fs     afero.Fs
	dir    string
	logger *logger.Logger
}

// NewFileDatasetStore creates a file dataset store rooted at dir
func NewFileDatasetStore(fs afero.Fs, dir string, log *logger.Logger) (ports.DatasetStore, error) {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &FileDatasetStore{
		fs:     fs,
		dir:    dir,
		logger: log.WithComponent("dataset_store"),
	}, nil
}

func (s *FileDatasetStore) Load(ctx context.Context, key string) (*series.Table, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	data, err := afero.ReadFile(s.fs, s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return series.New(), nil
		}
		return nil, fmt.Errorf("read dataset %s: %w", key, err)
	}

	table, err := series.DecodeCSV(data)
	if err != nil {
		// A corrupt artifact degrades to absent so the caller re-fetches
		// instead of serving a torn table.
		s.logger.Warnw("Corrupt dataset artifact, treating as absent", "dataset", key, "error", err.Error())
		return series.New(), nil
	}

	return table, nil
}

func (s *FileDatasetStore) Save(ctx context.Context, key string, table *series.Table) error {
	if err := validateKey(key); err != nil {
		return err
	}

	data, err := series.EncodeCSV(table.Clone().Normalize())
	if err != nil {
		return fmt.Errorf("encode dataset %s: %w", key, err)
	}

	return s.writeAtomic(s.path(key), data)
}

func (s *FileDatasetStore) Delete(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	if err := s.fs.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete dataset %s: %w", key, err)
	}
	return nil
}

func (s *FileDatasetStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	ok, err := afero.Exists(s.fs, s.path(key))
	if err != nil {
		return false, fmt.Errorf("stat dataset %s: %w", key, err)
	}
	return ok, nil
}

func (s *FileDatasetStore) path(key string) string {
	return filepath.Join(s.dir, key)
}

// writeAtomic writes to a temp file in the same directory and renames it
// over the destination.
func (s *FileDatasetStore) writeAtomic(path string, data []byte) error {
	tmp := filepath.Join(filepath.Dir(path), fmt.Sprintf(".tmp-%s-%s", filepath.Base(path), uuid.NewString()))

	if err := afero.WriteFile(s.fs, tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp artifact: %w", err)
	}

	if err := s.fs.Rename(tmp, path); err != nil {
		s.fs.Remove(tmp)
		return fmt.Errorf("replace artifact: %w", err)
	}
	return nil
}

// validateKey rejects keys that would escape the data directory.
func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("dataset key is empty")
	}
	if strings.ContainsAny(key, `/\`) || strings.Contains(key, "..") {
		return fmt.Errorf("invalid dataset key %q", key)
	}
	return nil
}
