package sync

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedvault/core/internal/adapters/archive"
	"github.com/feedvault/core/internal/adapters/store"
	"github.com/feedvault/core/internal/domain/series"
	"github.com/feedvault/core/internal/infrastructure/logger"
	"github.com/feedvault/core/internal/ports"
)

func newTestMirror(t *testing.T, arch ports.Archive) (*Mirror, ports.DatasetStore, ports.MetadataStore) {
	t.Helper()

	fs := afero.NewMemMapFs()
	log := logger.NewNop()
	clock := clockwork.NewFakeClockAt(testNow)

	datasets, err := store.NewFileDatasetStore(fs, "data", log)
	require.NoError(t, err)
	meta, err := store.NewFileMetadataStore(fs, "data", clock, log)
	require.NoError(t, err)

	return NewMirror(arch, datasets, meta, log, NewMetrics(nil)), datasets, meta
}

func TestMirrorDisabledWithoutArchive(t *testing.T) {
	m, _, _ := newTestMirror(t, nil)

	assert.False(t, m.Enabled())
	assert.False(t, m.Recover(context.Background(), "fx.csv"))
	// Publish on a disabled mirror is a no-op, not a panic.
	m.Publish(context.Background(), "fx.csv", table(map[string]float64{"2020-07-14": 1}), true, true)
}

func TestMirrorPublishAndRecover(t *testing.T) {
	arch, err := archive.NewFSArchive(afero.NewMemMapFs(), "remote")
	require.NoError(t, err)
	ctx := context.Background()

	src, srcDatasets, srcMeta := newTestMirror(t, arch)
	published := table(map[string]float64{"2020-07-13": 1, "2020-07-14": 2})
	require.NoError(t, srcDatasets.Save(ctx, "fx.csv", published))
	require.NoError(t, srcMeta.SetLastChecked(ctx, "fx.csv", testNow.Add(-time.Hour)))
	src.Publish(ctx, "fx.csv", published, true, true)

	// A fresh deployment with empty local storage recovers both artifacts.
	dst, dstDatasets, dstMeta := newTestMirror(t, arch)
	require.True(t, dst.Recover(ctx, "fx.csv"))

	recovered, err := dstDatasets.Load(ctx, "fx.csv")
	require.NoError(t, err)
	assert.Equal(t, dates(published), dates(recovered))

	last, err := dstMeta.LastChecked(ctx, "fx.csv")
	require.NoError(t, err)
	assert.True(t, last.Equal(testNow.Add(-time.Hour)))
}

func TestMirrorRecoverMissingBlob(t *testing.T) {
	arch, err := archive.NewFSArchive(afero.NewMemMapFs(), "remote")
	require.NoError(t, err)

	m, _, _ := newTestMirror(t, arch)
	assert.False(t, m.Recover(context.Background(), "fx.csv"))
}

func TestMirrorRecoverRejectsUnusableBlob(t *testing.T) {
	arch, err := archive.NewFSArchive(afero.NewMemMapFs(), "remote")
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, arch.Push(ctx, "fx.csv", []byte("date,close\nnot-a-date,1\n")))

	m, datasets, _ := newTestMirror(t, arch)
	assert.False(t, m.Recover(ctx, "fx.csv"))

	ok, err := datasets.Exists(ctx, "fx.csv")
	require.NoError(t, err)
	assert.False(t, ok, "an unusable archive blob must not be installed locally")
}

func TestMirrorPublishMetadataOnly(t *testing.T) {
	arch, err := archive.NewFSArchive(afero.NewMemMapFs(), "remote")
	require.NoError(t, err)
	ctx := context.Background()

	m, _, meta := newTestMirror(t, arch)
	require.NoError(t, meta.SetLastChecked(ctx, "fx.csv", testNow))
	m.Publish(ctx, "fx.csv", nil, false, true)

	_, err = arch.Pull(ctx, "fx.csv")
	assert.ErrorIs(t, err, ports.ErrArchiveNotFound)

	data, err := arch.Pull(ctx, "fx.csv.meta")
	require.NoError(t, err)
	cp, err := series.DecodeCheckpoint(data)
	require.NoError(t, err)
	assert.True(t, cp.LastChecked.Equal(testNow))
}
