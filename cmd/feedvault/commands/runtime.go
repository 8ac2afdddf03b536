package commands

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"

	"github.com/feedvault/core/internal/adapters/archive"
	"github.com/feedvault/core/internal/adapters/store"
	"github.com/feedvault/core/internal/application/feeds"
	"github.com/feedvault/core/internal/application/sync"
	"github.com/feedvault/core/internal/infrastructure/config"
	"github.com/feedvault/core/internal/infrastructure/database"
	"github.com/feedvault/core/internal/infrastructure/logger"
	"github.com/feedvault/core/internal/ports"
)

// runtime wires the configured backends into a ready sync engine. It is the
// single composition point shared by serve, sync and invalidate.
type runtime struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       *database.DB
	Datasets ports.DatasetStore
	Meta     ports.MetadataStore
	Engine   *sync.Engine
	Registry *feeds.Registry
	Metrics  *prometheus.Registry

	closers []func() error
}

func newRuntime(cfg *config.Config) (*runtime, error) {
	appLogger, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}

	rt := &runtime{
		Config:  cfg,
		Logger:  appLogger,
		Metrics: prometheus.NewRegistry(),
	}
	clock := clockwork.NewRealClock()

	// Local stores
	switch cfg.Storage.Backend {
	case config.StorageBackendPostgres:
		db, err := database.New(cfg.Storage.Database)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		rt.DB = db
		rt.closers = append(rt.closers, db.Close)
		rt.Datasets = store.NewPostgresDatasetStore(db, appLogger)
		rt.Meta = store.NewPostgresMetadataStore(db, clock)
	default:
		fs := afero.NewOsFs()
		datasets, err := store.NewFileDatasetStore(fs, cfg.Storage.DataDir, appLogger)
		if err != nil {
			return nil, fmt.Errorf("initialize dataset store: %w", err)
		}
		meta, err := store.NewFileMetadataStore(fs, cfg.Storage.DataDir, clock, appLogger)
		if err != nil {
			return nil, fmt.Errorf("initialize metadata store: %w", err)
		}
		rt.Datasets = datasets
		rt.Meta = meta
	}

	// Remote mirror
	var blobStore ports.Archive
	switch cfg.Archive.Backend {
	case config.ArchiveBackendFS:
		fsArchive, err := archive.NewFSArchive(afero.NewOsFs(), cfg.Archive.Dir)
		if err != nil {
			return nil, fmt.Errorf("initialize fs archive: %w", err)
		}
		blobStore = fsArchive
	case config.ArchiveBackendGCS:
		gcsArchive, err := archive.NewGCSArchive(context.Background(), cfg.Archive.Bucket, cfg.Archive.Prefix)
		if err != nil {
			return nil, fmt.Errorf("initialize gcs archive: %w", err)
		}
		blobStore = gcsArchive
		rt.closers = append(rt.closers, gcsArchive.Close)
	}

	metrics := sync.NewMetrics(rt.Metrics)
	mirror := sync.NewMirror(blobStore, rt.Datasets, rt.Meta, appLogger, metrics)
	rt.Engine = sync.NewEngine(rt.Datasets, rt.Meta, mirror, cfg.Sync, clock, appLogger, metrics)

	registry, err := feeds.NewRegistry(cfg.Feeds, cfg.Sync.DefaultCooldown, nil)
	if err != nil {
		return nil, fmt.Errorf("build feed registry: %w", err)
	}
	rt.Registry = registry

	return rt, nil
}

// Close releases the runtime's resources in reverse acquisition order.
func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			rt.Logger.Warnw("Failed to close resource", "error", err.Error())
		}
	}
	rt.Logger.Close()
}
