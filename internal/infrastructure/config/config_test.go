package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "FeedVault", cfg.App.Name)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, StorageBackendCSV, cfg.Storage.Backend)
	assert.Equal(t, "data", cfg.Storage.DataDir)
	assert.Equal(t, ArchiveBackendNone, cfg.Archive.Backend)
	assert.Equal(t, 24*time.Hour, cfg.Sync.DefaultCooldown)
	assert.Equal(t, 120*time.Hour, cfg.Sync.BackfillTolerance)
	assert.Equal(t, 60*time.Second, cfg.Sync.LoaderTimeout)
	assert.Empty(t, cfg.Feeds)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feedvault.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
storage:
  backend: csv
  data_dir: /var/lib/feedvault
sync:
  default_cooldown: 6h
feeds:
  - name: usdkrw.csv
    url: https://source.example/fx
    cooldown: 1h
    start: "2015-01-01"
    params:
      symbol: USDKRW
`), 0o644))
	t.Setenv("FEEDVAULT_CONFIG", path)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/feedvault", cfg.Storage.DataDir)
	assert.Equal(t, 6*time.Hour, cfg.Sync.DefaultCooldown)

	require.Len(t, cfg.Feeds, 1)
	assert.Equal(t, "usdkrw.csv", cfg.Feeds[0].Name)
	assert.Equal(t, time.Hour, cfg.Feeds[0].Cooldown)
	assert.Equal(t, "2015-01-01", cfg.Feeds[0].Start)
	assert.Equal(t, "USDKRW", cfg.Feeds[0].Params["symbol"])
}

func TestValidateConfig(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:  ServerConfig{Port: 8080},
			Storage: StorageConfig{Backend: StorageBackendCSV, DataDir: "data"},
			Archive: ArchiveConfig{Backend: ArchiveBackendNone},
			Sync:    SyncConfig{BackfillTolerance: 120 * time.Hour},
		}
	}

	assert.NoError(t, validateConfig(valid()))

	cfg := valid()
	cfg.Storage.Backend = "redis"
	assert.Error(t, validateConfig(cfg))

	cfg = valid()
	cfg.Storage.DataDir = ""
	assert.Error(t, validateConfig(cfg))

	cfg = valid()
	cfg.Archive.Backend = ArchiveBackendGCS
	assert.Error(t, validateConfig(cfg), "gcs backend requires a bucket")

	cfg = valid()
	cfg.Sync.BackfillTolerance = 0
	assert.Error(t, validateConfig(cfg))

	cfg = valid()
	cfg.Feeds = []FeedConfig{{Name: "fx.csv"}}
	assert.Error(t, validateConfig(cfg), "feed without url")

	cfg = valid()
	cfg.Feeds = []FeedConfig{{Name: "fx.csv", URL: "https://x", Start: "01/01/2015"}}
	assert.Error(t, validateConfig(cfg), "feed with bad start date")
}

func TestGetDSN(t *testing.T) {
	db := DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		Name:     "feedvault",
		User:     "postgres",
		Password: "secret",
		SSLMode:  "disable",
	}
	assert.Equal(t,
		"host=localhost port=5432 user=postgres password=secret dbname=feedvault sslmode=disable",
		db.GetDSN(),
	)
}
