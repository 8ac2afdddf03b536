package commands

import (
	"context"
	"fmt"
	"log"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/spf13/cobra"

	httpHandlers "github.com/feedvault/core/internal/adapters/http"
	"github.com/feedvault/core/internal/infrastructure/config"
	"github.com/feedvault/core/internal/infrastructure/database"
	"github.com/feedvault/core/internal/infrastructure/server"
)

// NewServeCommand creates the serve command
func NewServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the FeedVault HTTP server",
		Long:  "Start the FeedVault server exposing the configured feeds over HTTP",
		Run: func(cmd *cobra.Command, args []string) {
			runServer()
		},
	}
}

// NewSyncCommand creates the one-shot sync command
func NewSyncCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sync [feed...]",
		Short: "Refresh configured feeds once and exit",
		Long:  "Run the sync engine once for the named feeds, or for every configured feed when none are named",
		Run: func(cmd *cobra.Command, args []string) {
			runSync(args)
		},
	}
}

// NewInvalidateCommand creates the cache invalidation command
func NewInvalidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "invalidate <key>",
		Short: "Remove the local cache for a dataset",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			runInvalidate(args[0])
		},
	}
}

// NewMigrateCommand creates the migrate command with subcommands
func NewMigrateCommand() *cobra.Command {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration commands",
		Long:  "Manage database migrations for the postgres storage backend (up, down, version)",
	}

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Run all up migrations",
		Run: func(cmd *cobra.Command, args []string) {
			runMigration("up")
		},
	})

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Run all down migrations",
		Run: func(cmd *cobra.Command, args []string) {
			runMigration("down")
		},
	})

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print current migration version",
		Run: func(cmd *cobra.Command, args []string) {
			showMigrationVersion()
		},
	})

	return migrateCmd
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print FeedVault version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("FeedVault v1.0.0")
		},
	}
}

func runServer() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	rt, err := newRuntime(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize runtime: %v", err)
	}
	defer rt.Close()

	handler := httpHandlers.NewDatasetHandler(rt.Engine, rt.Registry, rt.Datasets, rt.Meta, rt.Logger)

	srv, err := server.New(cfg, handler, rt.DB, rt.Metrics, rt.Logger)
	if err != nil {
		rt.Logger.Fatalw("Failed to initialize server", "error", err)
	}

	rt.Logger.Infow("Starting FeedVault server",
		"port", cfg.Server.Port,
		"environment", cfg.App.Environment,
		"storage_backend", cfg.Storage.Backend,
		"archive_backend", cfg.Archive.Backend,
		"feeds", len(cfg.Feeds),
	)

	if err := srv.Start(fmt.Sprintf(":%d", cfg.Server.Port)); err != nil {
		rt.Logger.Fatalw("Server failed to start", "error", err)
	}
}

func runSync(names []string) {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	rt, err := newRuntime(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize runtime: %v", err)
	}
	defer rt.Close()

	targets := rt.Registry.List()
	if len(names) > 0 {
		targets = targets[:0]
		for _, name := range names {
			feed, ok := rt.Registry.Get(name)
			if !ok {
				rt.Logger.Fatalw("Unknown feed", "feed", name)
			}
			targets = append(targets, feed)
		}
	}

	ctx := context.Background()
	for _, feed := range targets {
		table := rt.Engine.Get(ctx, feed.Request())
		fmt.Printf("%s: %d rows\n", feed.Key, table.Len())
	}
}

func runInvalidate(key string) {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	rt, err := newRuntime(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize runtime: %v", err)
	}
	defer rt.Close()

	if err := rt.Engine.Invalidate(context.Background(), key); err != nil {
		rt.Logger.Fatalw("Failed to invalidate dataset", "dataset", key, "error", err)
	}

	fmt.Printf("Invalidated %s\n", key)
}

func runMigration(direction string) {
	m := newMigrator()

	var err error
	switch direction {
	case "up":
		err = m.Up()
	case "down":
		err = m.Down()
	}

	if err != nil && err != migrate.ErrNoChange {
		log.Fatalf("Migration failed: %v", err)
	}

	if err == migrate.ErrNoChange {
		fmt.Println("No migrations to run")
	} else {
		fmt.Printf("Migration %s completed successfully\n", direction)
	}
}

func showMigrationVersion() {
	m := newMigrator()

	version, dirty, err := m.Version()
	if err != nil {
		log.Fatalf("Failed to get migration version: %v", err)
	}

	fmt.Printf("Current migration version: %d\n", version)
	fmt.Printf("Dirty: %t\n", dirty)
}

func newMigrator() *migrate.Migrate {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if cfg.Storage.Backend != config.StorageBackendPostgres {
		log.Fatal("Migrations only apply to the postgres storage backend")
	}

	db, err := database.New(cfg.Storage.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	driver, err := postgres.WithInstance(db.DB.DB, &postgres.Config{})
	if err != nil {
		log.Fatalf("Failed to create migration driver: %v", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		"file://migrations",
		"postgres",
		driver,
	)
	if err != nil {
		log.Fatalf("Failed to create migration instance: %v", err)
	}

	return m
}
