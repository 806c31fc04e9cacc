package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/pbi-manager/activity-sync/common/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Database schema migrations",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requirePostgres(); err != nil {
			return err
		}
		logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), nil))
		if err := database.Migrate(cfg.Database.MigrationsPath, cfg.Database.Postgres.ConnString(), logger); err != nil {
			return err
		}
		printer(cmd).Success("Migrations applied")
		return nil
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back every migration",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requirePostgres(); err != nil {
			return err
		}
		if err := database.Rollback(cfg.Database.MigrationsPath, cfg.Database.Postgres.ConnString()); err != nil {
			return err
		}
		printer(cmd).Success("Migrations rolled back")
		return nil
	},
}

func requirePostgres() error {
	if cfg.Database.Type != "postgres" {
		return fmt.Errorf("migrations need database.type postgres, got %q", cfg.Database.Type)
	}
	return nil
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd)
	rootCmd.AddCommand(migrateCmd)
}
