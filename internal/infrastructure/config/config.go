package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Storage backends.
const (
	StorageBackendCSV      = "csv"
	StorageBackendPostgres = "postgres"
)

// Archive backends.
const (
	ArchiveBackendNone = "none"
	ArchiveBackendFS   = "fs"
	ArchiveBackendGCS  = "gcs"
)

// Config holds all configuration for the application
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Server   ServerConfig   `mapstructure:"server"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	Sync     SyncConfig     `mapstructure:"sync"`
	Logger   LoggerConfig   `mapstructure:"logger"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Security SecurityConfig `mapstructure:"security"`
	Feeds    []FeedConfig   `mapstructure:"feeds"`
}

// AppConfig holds application-specific configuration
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	Debug       bool   `mapstructure:"debug"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	Host         string        `mapstructure:"host"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// StorageConfig selects and configures the local dataset/metadata stores
type StorageConfig struct {
	Backend  string         `mapstructure:"backend"`
	DataDir  string         `mapstructure:"data_dir"`
	Database DatabaseConfig `mapstructure:"database"`
}

// DatabaseConfig holds Postgres configuration for the postgres backend
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Name            string        `mapstructure:"name"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// ArchiveConfig configures the remote mirror used for disaster recovery and
// best-effort durability
type ArchiveConfig struct {
	Backend string `mapstructure:"backend"`
	// Dir is the root directory of the filesystem backend.
	Dir string `mapstructure:"dir"`
	// Bucket and Prefix address blobs for the GCS backend.
	Bucket string `mapstructure:"bucket"`
	Prefix string `mapstructure:"prefix"`
}

// SyncConfig holds the engine tuning knobs. These are policy parameters, not
// architectural constants; the backfill tolerance defaults to 5 days.
type SyncConfig struct {
	DefaultCooldown   time.Duration `mapstructure:"default_cooldown"`
	BackfillTolerance time.Duration `mapstructure:"backfill_tolerance"`
	LoaderTimeout     time.Duration `mapstructure:"loader_timeout"`
	LoaderRateLimit   float64       `mapstructure:"loader_rate_limit"`
	LoaderBurst       int           `mapstructure:"loader_burst"`
}

// LoggerConfig holds logging configuration
type LoggerConfig struct {
	Level    string `mapstructure:"level"`
	Format   string `mapstructure:"format"`
	Output   string `mapstructure:"output"`
	Filename string `mapstructure:"filename"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// SecurityConfig holds HTTP hardening configuration
type SecurityConfig struct {
	CORSAllowedOrigins string        `mapstructure:"cors_allowed_origins"`
	RateLimitRequests  int           `mapstructure:"rate_limit_requests"`
	RateLimitWindow    time.Duration `mapstructure:"rate_limit_window"`
}

// FeedConfig declares one consumable feed: the dataset key, the loader URL
// that backs it and the refresh policy its consumer chose. Cooldown and
// Start are per-feed because cadence is policy, never engine behavior.
type FeedConfig struct {
	Name     string            `mapstructure:"name"`
	URL      string            `mapstructure:"url"`
	Cooldown time.Duration     `mapstructure:"cooldown"`
	Start    string            `mapstructure:"start"`
	Params   map[string]string `mapstructure:"params"`
}

// Load loads configuration from the optional config file, environment
// variables and defaults
func Load() (*Config, error) {
	// Load .env file if it exists (ignore errors)
	_ = godotenv.Load()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults()
	bindEnvVars()

	// Feeds can only come from a config file; the file itself is optional.
	viper.SetConfigName("feedvault")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/etc/feedvault")
	if path := viper.GetString("config"); path != "" {
		viper.SetConfigFile(path)
	}
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	// App defaults
	viper.SetDefault("app.name", "FeedVault")
	viper.SetDefault("app.version", "1.0.0")
	viper.SetDefault("app.environment", "development")
	viper.SetDefault("app.debug", false)

	// Server defaults
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.idle_timeout", "120s")

	// Storage defaults
	viper.SetDefault("storage.backend", StorageBackendCSV)
	viper.SetDefault("storage.data_dir", "data")
	viper.SetDefault("storage.database.host", "localhost")
	viper.SetDefault("storage.database.port", 5432)
	viper.SetDefault("storage.database.name", "feedvault")
	viper.SetDefault("storage.database.user", "postgres")
	viper.SetDefault("storage.database.password", "")
	viper.SetDefault("storage.database.ssl_mode", "disable")
	viper.SetDefault("storage.database.max_open_conns", 25)
	viper.SetDefault("storage.database.max_idle_conns", 10)
	viper.SetDefault("storage.database.conn_max_lifetime", "5m")
	viper.SetDefault("storage.database.conn_max_idle_time", "30s")

	// Archive defaults
	viper.SetDefault("archive.backend", ArchiveBackendNone)
	viper.SetDefault("archive.dir", "archive")
	viper.SetDefault("archive.bucket", "")
	viper.SetDefault("archive.prefix", "data")

	// Sync defaults
	viper.SetDefault("sync.default_cooldown", "24h")
	viper.SetDefault("sync.backfill_tolerance", "120h") // 5 days
	viper.SetDefault("sync.loader_timeout", "60s")
	viper.SetDefault("sync.loader_rate_limit", 0)
	viper.SetDefault("sync.loader_burst", 1)

	// Logger defaults
	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.format", "json")
	viper.SetDefault("logger.output", "stdout")

	// Metrics defaults
	viper.SetDefault("metrics.enabled", true)

	// Security defaults
	viper.SetDefault("security.cors_allowed_origins", "*")
	viper.SetDefault("security.rate_limit_requests", 100)
	viper.SetDefault("security.rate_limit_window", "1m")
}

func bindEnvVars() {
	// App
	viper.BindEnv("app.name", "APP_NAME")
	viper.BindEnv("app.version", "APP_VERSION")
	viper.BindEnv("app.environment", "APP_ENVIRONMENT")
	viper.BindEnv("app.debug", "APP_DEBUG")

	// Server
	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("server.host", "SERVER_HOST")
	viper.BindEnv("server.read_timeout", "SERVER_READ_TIMEOUT")
	viper.BindEnv("server.write_timeout", "SERVER_WRITE_TIMEOUT")
	viper.BindEnv("server.idle_timeout", "SERVER_IDLE_TIMEOUT")

	// Storage
	viper.BindEnv("storage.backend", "STORAGE_BACKEND")
	viper.BindEnv("storage.data_dir", "STORAGE_DATA_DIR")
	viper.BindEnv("storage.database.host", "DB_HOST")
	viper.BindEnv("storage.database.port", "DB_PORT")
	viper.BindEnv("storage.database.name", "DB_NAME")
	viper.BindEnv("storage.database.user", "DB_USER")
	viper.BindEnv("storage.database.password", "DB_PASSWORD")
	viper.BindEnv("storage.database.ssl_mode", "DB_SSL_MODE")
	viper.BindEnv("storage.database.max_open_conns", "DB_MAX_OPEN_CONNS")
	viper.BindEnv("storage.database.max_idle_conns", "DB_MAX_IDLE_CONNS")
	viper.BindEnv("storage.database.conn_max_lifetime", "DB_CONN_MAX_LIFETIME")
	viper.BindEnv("storage.database.conn_max_idle_time", "DB_CONN_MAX_IDLE_TIME")

	// Archive
	viper.BindEnv("archive.backend", "ARCHIVE_BACKEND")
	viper.BindEnv("archive.dir", "ARCHIVE_DIR")
	viper.BindEnv("archive.bucket", "ARCHIVE_BUCKET")
	viper.BindEnv("archive.prefix", "ARCHIVE_PREFIX")

	// Sync
	viper.BindEnv("sync.default_cooldown", "SYNC_DEFAULT_COOLDOWN")
	viper.BindEnv("sync.backfill_tolerance", "SYNC_BACKFILL_TOLERANCE")
	viper.BindEnv("sync.loader_timeout", "SYNC_LOADER_TIMEOUT")
	viper.BindEnv("sync.loader_rate_limit", "SYNC_LOADER_RATE_LIMIT")
	viper.BindEnv("sync.loader_burst", "SYNC_LOADER_BURST")

	// Logger
	viper.BindEnv("logger.level", "LOG_LEVEL")
	viper.BindEnv("logger.format", "LOG_FORMAT")
	viper.BindEnv("logger.output", "LOG_OUTPUT")

	// Metrics
	viper.BindEnv("metrics.enabled", "ENABLE_METRICS")

	// Security
	viper.BindEnv("security.cors_allowed_origins", "CORS_ALLOWED_ORIGINS")
	viper.BindEnv("security.rate_limit_requests", "RATE_LIMIT_REQUESTS")
	viper.BindEnv("security.rate_limit_window", "RATE_LIMIT_WINDOW")

	// Config file override
	viper.BindEnv("config", "FEEDVAULT_CONFIG")
}

func validateConfig(cfg *Config) error {
	switch cfg.Storage.Backend {
	case StorageBackendCSV:
		if cfg.Storage.DataDir == "" {
			return fmt.Errorf("storage data dir is required for the csv backend")
		}
	case StorageBackendPostgres:
		if cfg.Storage.Database.Host == "" {
			return fmt.Errorf("database host is required for the postgres backend")
		}
		if cfg.Storage.Database.Name == "" {
			return fmt.Errorf("database name is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}

	switch cfg.Archive.Backend {
	case ArchiveBackendNone, ArchiveBackendFS:
	case ArchiveBackendGCS:
		if cfg.Archive.Bucket == "" {
			return fmt.Errorf("archive bucket is required for the gcs backend")
		}
	default:
		return fmt.Errorf("unknown archive backend %q", cfg.Archive.Backend)
	}

	if cfg.Sync.BackfillTolerance <= 0 {
		return fmt.Errorf("sync backfill tolerance must be positive")
	}

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535")
	}

	for _, feed := range cfg.Feeds {
		if feed.Name == "" {
			return fmt.Errorf("feed name is required")
		}
		if feed.URL == "" {
			return fmt.Errorf("feed %q: url is required", feed.Name)
		}
		if feed.Start != "" {
			if _, err := time.Parse("2006-01-02", feed.Start); err != nil {
				return fmt.Errorf("feed %q: invalid start date: %w", feed.Name, err)
			}
		}
	}

	return nil
}

// GetDSN returns the database connection string
func (cfg *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host,
		cfg.Port,
		cfg.User,
		cfg.Password,
		cfg.Name,
		cfg.SSLMode,
	)
}

// IsDevelopment returns true if the environment is development
func (cfg *AppConfig) IsDevelopment() bool {
	return cfg.Environment == "development"
}

// IsProduction returns true if the environment is production
func (cfg *AppConfig) IsProduction() bool {
	return cfg.Environment == "production"
}
