package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/parallaxhq/parallax/db"
	"github.com/parallaxhq/parallax/internal/config"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	Long: `Apply all pending database migrations.

The serve command also migrates on startup; this command exists for
deployments that run migrations as a separate step.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMigrate()
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate() error {
	// Structural validation only: migrations need the database but not
	// the LLM key or JWT secret.
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	return db.Migrate(cfg.PostgresURL(), newLogger())
}
