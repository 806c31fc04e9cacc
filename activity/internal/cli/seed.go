package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/pbi-manager/activity-sync/activity/internal/app"
	"github.com/pbi-manager/activity-sync/activity/internal/seeder"
	"github.com/pbi-manager/activity-sync/common/output"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Generate synthetic activity events for development",
	Long: `Generate synthetic activity events and merge them into storage.

Examples:
  actsync seed
  actsync seed --events 500 --users 5 --days 14 --seed 42`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := seeder.DefaultOptions()
		opts.Events, _ = cmd.Flags().GetInt("events")
		opts.Users, _ = cmd.Flags().GetInt("users")
		opts.Seed, _ = cmd.Flags().GetInt64("seed")
		days, _ := cmd.Flags().GetInt("days")
		if opts.Events < 1 || opts.Users < 1 || days < 1 {
			return fmt.Errorf("--events, --users and --days must be positive")
		}
		opts.Start = opts.End.Add(-time.Duration(days) * 24 * time.Hour)

		return withApp(cmd, func(ctx context.Context, a *app.App, p *output.Printer) error {
			res, err := a.Service.Seed(ctx, opts)
			if err != nil {
				return fmt.Errorf("seed failed: %w", err)
			}
			if p.Structured() {
				return p.Value(res)
			}
			p.Success("Seeded %d events (%d created, %d updated, %d failed)",
				opts.Events, res.Created, res.Updated, len(res.FailedRecords))
			return nil
		})
	},
}

func init() {
	defaults := seeder.DefaultOptions()
	seedCmd.Flags().Int("events", defaults.Events, "number of events to generate")
	seedCmd.Flags().Int("users", defaults.Users, "number of distinct users")
	seedCmd.Flags().Int("days", 90, "spread events over this many past days")
	seedCmd.Flags().Int64("seed", 0, "random seed for reproducible data (0 picks one)")
	rootCmd.AddCommand(seedCmd)
}
