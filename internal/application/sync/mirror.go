package sync

import (
	"context"
	"errors"

	"github.com/feedvault/core/internal/domain/series"
	"github.com/feedvault/core/internal/infrastructure/logger"
	"github.com/feedvault/core/internal/ports"
)

// metaPath is the archive naming convention for checkpoint blobs.
func metaPath(key string) string {
	return key + ".meta"
}

// Mirror moves artifacts between the local stores and the remote archive.
// Every operation is best-effort: a dead or misconfigured archive degrades
// FeedVault to a purely local cache, never to an error surface.
type Mirror struct {
	archive  ports.Archive
	datasets ports.DatasetStore
	meta     ports.MetadataStore
	logger   *logger.Logger
	metrics  *Metrics
}

// NewMirror creates a mirror client. A nil archive disables mirroring
func NewMirror(archive ports.Archive, datasets ports.DatasetStore, meta ports.MetadataStore, log *logger.Logger, metrics *Metrics) *Mirror {
	return &Mirror{
		archive:  archive,
		datasets: datasets,
		meta:     meta,
		logger:   log.WithComponent("mirror"),
		metrics:  metrics,
	}
}

// Enabled reports whether an archive is configured.
func (m *Mirror) Enabled() bool {
	return m != nil && m.archive != nil
}

// Recover pulls the dataset artifact and its checkpoint from the archive
// into local storage. It returns whether the dataset artifact was recovered;
// the checkpoint is recovered opportunistically alongside it.
func (m *Mirror) Recover(ctx context.Context, key string) bool {
	if !m.Enabled() {
		return false
	}

	data, err := m.archive.Pull(ctx, key)
	m.metrics.observeArchiveOp("pull", err)
	if err != nil {
		if !errors.Is(err, ports.ErrArchiveNotFound) {
			m.logger.LogArchiveOp("pull", key, err)
		}
		return false
	}

	table, err := series.DecodeCSV(data)
	if err != nil || table.IsEmpty() {
		m.logger.Warnw("Archived dataset is unusable, skipping recovery", "dataset", key)
		return false
	}

	if err := m.datasets.Save(ctx, key, table); err != nil {
		m.logger.Errorw("Failed to store recovered dataset", "dataset", key, "error", err.Error())
		return false
	}

	// Recover the checkpoint too so the cooldown survives the disaster.
	if metaData, err := m.archive.Pull(ctx, metaPath(key)); err == nil {
		if cp, err := series.DecodeCheckpoint(metaData); err == nil {
			if err := m.meta.SetLastChecked(ctx, key, cp.LastChecked); err != nil {
				m.logger.Warnw("Failed to store recovered checkpoint", "dataset", key, "error", err.Error())
			}
		}
	}

	m.logger.Infow("Recovered dataset from archive", "dataset", key, "rows", table.Len())
	return true
}

// Publish pushes the selected artifacts to the archive. A "checked, nothing
// new" cycle publishes only the checkpoint, which keeps the cheap case cheap.
func (m *Mirror) Publish(ctx context.Context, key string, table *series.Table, dataset, metadata bool) {
	if !m.Enabled() {
		return
	}

	if dataset && table != nil {
		data, err := series.EncodeCSV(table)
		if err == nil {
			err = m.archive.Push(ctx, key, data)
		}
		m.metrics.observeArchiveOp("push", err)
		m.logger.LogArchiveOp("push", key, err)
	}

	if metadata {
		last, err := m.meta.LastChecked(ctx, key)
		if err != nil {
			m.logger.Warnw("Skipping checkpoint publish", "dataset", key, "error", err.Error())
			return
		}
		data, err := series.EncodeCheckpoint(series.Checkpoint{LastChecked: last})
		if err == nil {
			err = m.archive.Push(ctx, metaPath(key), data)
		}
		m.metrics.observeArchiveOp("push", err)
		m.logger.LogArchiveOp("push", metaPath(key), err)
	}
}
