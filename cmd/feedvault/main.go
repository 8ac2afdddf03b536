package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/feedvault/core/cmd/feedvault/commands"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "feedvault",
		Short: "FeedVault sync server",
		Long:  `FeedVault keeps locally-materialized copies of external time-series feeds in sync, with cooldown-bounded refreshes and a remote archive mirror for disaster recovery.`,
	}

	// Add commands
	rootCmd.AddCommand(commands.NewServeCommand())
	rootCmd.AddCommand(commands.NewSyncCommand())
	rootCmd.AddCommand(commands.NewInvalidateCommand())
	rootCmd.AddCommand(commands.NewMigrateCommand())
	rootCmd.AddCommand(commands.NewVersionCommand())

	// Execute root command
	if err := rootCmd.Execute(); err != nil {
		log.Printf("Command execution failed: %v", err)
		os.Exit(1)
	}
}
