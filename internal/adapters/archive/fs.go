package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/feedvault/core/internal/ports"
)

// FSArchive is a directory-backed blob store. It is mainly useful for local
// development and tests, and as a cheap mirror on a mounted volume.
type FSArchive struct {
	fs  afero.Fs
	dir string
}

// NewFSArchive creates a filesystem archive rooted at dir
func NewFSArchive(fs afero.Fs, dir string) (*FSArchive, error) {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}
	return &FSArchive{fs: fs, dir: dir}, nil
}

func (a *FSArchive) Pull(ctx context.Context, path string) ([]byte, error) {
	data, err := afero.ReadFile(a.fs, filepath.Join(a.dir, path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ports.ErrArchiveNotFound
		}
		return nil, fmt.Errorf("pull %s: %w", path, err)
	}
	return data, nil
}

func (a *FSArchive) Push(ctx context.Context, path string, data []byte) error {
	full := filepath.Join(a.dir, path)
	if err := a.fs.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("push %s: %w", path, err)
	}
	if err := afero.WriteFile(a.fs, full, data, 0o644); err != nil {
		return fmt.Errorf("push %s: %w", path, err)
	}
	return nil
}
