package store

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedvault/core/internal/domain/series"
	"github.com/feedvault/core/internal/infrastructure/logger"
	"github.com/feedvault/core/internal/ports"
)

func newTestDatasetStore(t *testing.T) (ports.DatasetStore, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	s, err := NewFileDatasetStore(fs, "data", logger.NewNop())
	require.NoError(t, err)
	return s, fs
}

func testTable(days ...string) *series.Table {
	table := series.New("close")
	for i, d := range days {
		date, err := time.Parse(series.DateLayout, d)
		if err != nil {
			panic(err)
		}
		table.Append(series.Record{
			Date:   series.Day(date),
			Values: map[string]float64{"close": float64(i + 1)},
		})
	}
	return table
}

func TestFileDatasetStoreMissingKeyIsEmpty(t *testing.T) {
	s, _ := newTestDatasetStore(t)

	table, err := s.Load(context.Background(), "nope.csv")
	require.NoError(t, err)
	assert.True(t, table.IsEmpty())

	ok, err := s.Exists(context.Background(), "nope.csv")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileDatasetStoreSaveLoad(t *testing.T) {
	s, _ := newTestDatasetStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "fx.csv", testTable("2020-01-02", "2020-01-01")))

	loaded, err := s.Load(ctx, "fx.csv")
	require.NoError(t, err)
	require.Equal(t, 2, loaded.Len())

	// Save normalizes, so the artifact is sorted ascending.
	min, _ := loaded.MinDate()
	assert.Equal(t, min, loaded.Records[0].Date)

	ok, err := s.Exists(ctx, "fx.csv")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFileDatasetStoreCorruptArtifactIsEmpty(t *testing.T) {
	s, fs := newTestDatasetStore(t)

	require.NoError(t, afero.WriteFile(fs, "data/fx.csv", []byte("date,close\ngarbage,1\n"), 0o644))

	table, err := s.Load(context.Background(), "fx.csv")
	require.NoError(t, err)
	assert.True(t, table.IsEmpty())
}

func TestFileDatasetStoreLeavesNoTempFiles(t *testing.T) {
	s, fs := newTestDatasetStore(t)
	require.NoError(t, s.Save(context.Background(), "fx.csv", testTable("2020-01-01")))

	entries, err := afero.ReadDir(fs, "data")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "fx.csv", entries[0].Name())
}

func TestFileDatasetStoreDelete(t *testing.T) {
	s, _ := newTestDatasetStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "fx.csv", testTable("2020-01-01")))
	require.NoError(t, s.Delete(ctx, "fx.csv"))

	ok, err := s.Exists(ctx, "fx.csv")
	require.NoError(t, err)
	assert.False(t, ok)

	// Deleting an absent key is not an error.
	assert.NoError(t, s.Delete(ctx, "fx.csv"))
}

func TestValidateKeyRejectsTraversal(t *testing.T) {
	s, _ := newTestDatasetStore(t)

	for _, key := range []string{"", "../etc", "a/b", `a\b`} {
		_, err := s.Load(context.Background(), key)
		assert.Error(t, err, "key %q", key)
	}
}

func TestFileMetadataStore(t *testing.T) {
	fs := afero.NewMemMapFs()
	clock := clockwork.NewFakeClockAt(time.Date(2020, 7, 1, 12, 0, 0, 0, time.UTC))
	s, err := NewFileMetadataStore(fs, "data", clock, logger.NewNop())
	require.NoError(t, err)
	ctx := context.Background()

	last, err := s.LastChecked(ctx, "fx.csv")
	require.NoError(t, err)
	assert.True(t, last.IsZero(), "absent checkpoint reads as zero time")

	require.NoError(t, s.Touch(ctx, "fx.csv"))
	last, err = s.LastChecked(ctx, "fx.csv")
	require.NoError(t, err)
	assert.True(t, last.Equal(clock.Now()))

	older := clock.Now().Add(-48 * time.Hour)
	require.NoError(t, s.SetLastChecked(ctx, "fx.csv", older))
	last, err = s.LastChecked(ctx, "fx.csv")
	require.NoError(t, err)
	assert.True(t, last.Equal(older))

	require.NoError(t, s.Delete(ctx, "fx.csv"))
	last, err = s.LastChecked(ctx, "fx.csv")
	require.NoError(t, err)
	assert.True(t, last.IsZero())
}

func TestFileMetadataStoreCorruptCheckpoint(t *testing.T) {
	fs := afero.NewMemMapFs()
	clock := clockwork.NewFakeClockAt(time.Date(2020, 7, 1, 12, 0, 0, 0, time.UTC))
	s, err := NewFileMetadataStore(fs, "data", clock, logger.NewNop())
	require.NoError(t, err)

	require.NoError(t, afero.WriteFile(fs, "data/fx.csv.meta.json", []byte("{broken"), 0o644))

	last, err := s.LastChecked(context.Background(), "fx.csv")
	require.NoError(t, err)
	assert.True(t, last.IsZero(), "corrupt checkpoint reads as absent")
}
