package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/jhjames1/peerchat/pkg/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations and exit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		dbConfig, err := database.LoadConfigFromEnv()
		if err != nil {
			return fmt.Errorf("failed to load database config: %w", err)
		}
		// NewClient applies migrations before returning.
		client, err := database.NewClient(cmd.Context(), dbConfig)
		if err != nil {
			return err
		}
		defer func() { _ = client.Close() }()

		status, err := database.Health(cmd.Context(), client.DB())
		if err != nil {
			return fmt.Errorf("database unhealthy after migration: %w", err)
		}
		slog.Info("Migrations applied", "database", dbConfig.Database, "schema_version", status.SchemaVersion)
		return nil
	},
}
