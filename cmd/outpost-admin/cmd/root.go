package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/opencohort/outpost/internal/config"
	"github.com/opencohort/outpost/internal/db"
)

var rootCmd = &cobra.Command{
	Use:   "outpost-admin",
	Short: "Administer an Outpost instance",
	Long: `Administrative tasks against the Outpost database: creating users
and backends, assigning roles, and rotating backend tokens.

Runs against the same config file / OUTPOST_* environment variables as the
server, so it can be used on the server host or anywhere with database
access.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// openDB loads configuration and connects to the database.
func openDB() (*gorm.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	database, err := db.New(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	if err := db.Migrate(database); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return database, nil
}
