package ports

import (
	"context"
	"errors"
)

// ErrArchiveNotFound is returned by Archive.Pull when the remote store has
// no blob at the requested path.
var ErrArchiveNotFound = errors.New("archive: blob not found")

// Archive is the opaque off-process mirror: a key-addressed blob store used
// for disaster recovery and best-effort durability. Logical paths are
// "{key}" for the dataset artifact and "{key}.meta" for its checkpoint.
type Archive interface {
	// Pull fetches a blob. Returns ErrArchiveNotFound when absent.
	Pull(ctx context.Context, path string) ([]byte, error)

	// Push uploads a blob, overwriting any previous version.
	Push(ctx context.Context, path string, data []byte) error
}
