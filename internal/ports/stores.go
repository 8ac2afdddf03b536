package ports

import (
	"context"
	"time"

	"github.com/feedvault/core/internal/domain/series"
)

// DatasetStore persists the locally materialized table for each dataset key.
// Implementations are passive adapters: no caching of their own beyond the
// in-flight read or write.
type DatasetStore interface {
	// Load returns the stored table for the key. A missing or corrupt
	// artifact degrades to an empty table with a nil error so callers never
	// observe a partial dataset; only unexpected I/O failures return an
	// error.
	Load(ctx context.Context, key string) (*series.Table, error)

	// Save atomically replaces the stored artifact. Dates are normalized to
	// day precision before anything reaches durable storage.
	Save(ctx context.Context, key string, table *series.Table) error

	// Delete removes the artifact. Deleting a missing artifact is not an
	// error.
	Delete(ctx context.Context, key string) error

	// Exists reports whether an artifact is present for the key, without
	// loading it.
	Exists(ctx context.Context, key string) (bool, error)
}

// MetadataStore tracks the refresh checkpoint for each dataset key,
// independently of the dataset artifact itself.
type MetadataStore interface {
	// LastChecked returns the time of the last refresh attempt for the key.
	// A missing or corrupt record yields the zero time, so the first-ever
	// check always sees the cooldown as expired.
	LastChecked(ctx context.Context, key string) (time.Time, error)

	// Touch records "a refresh was attempted now". It is idempotent and is
	// called regardless of whether the dataset changed in the same cycle.
	Touch(ctx context.Context, key string) error

	// SetLastChecked records an explicit checkpoint time. Used when
	// recovering a mirrored checkpoint from the archive.
	SetLastChecked(ctx context.Context, key string, t time.Time) error

	// Delete removes the checkpoint record. Deleting a missing record is
	// not an error.
	Delete(ctx context.Context, key string) error
}
