package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pbi-manager/activity-sync/activity/internal/app"
	"github.com/pbi-manager/activity-sync/common/output"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Retention housekeeping",
}

var sweepEventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Delete events created before the retention cutoff",
	RunE: func(cmd *cobra.Command, args []string) error {
		days, _ := cmd.Flags().GetInt("days")
		return withApp(cmd, func(ctx context.Context, a *app.App, p *output.Printer) error {
			res, err := a.Service.SweepEvents(ctx, days)
			if err != nil {
				return fmt.Errorf("sweep failed: %w", err)
			}
			if p.Structured() {
				return p.Value(res)
			}
			p.Success("Deleted %d of %d events older than %s, %d remain",
				res.Deleted, res.Before, res.Cutoff.Format("2006-01-02 15:04"), res.Remaining)
			return nil
		})
	},
}

var sweepExportsCmd = &cobra.Command{
	Use:   "exports",
	Short: "Delete CSV exports older than the retention window",
	RunE: func(cmd *cobra.Command, args []string) error {
		hours, _ := cmd.Flags().GetInt("hours")
		return withApp(cmd, func(ctx context.Context, a *app.App, p *output.Printer) error {
			res, err := a.Service.SweepExports(ctx, hours)
			if err != nil {
				return fmt.Errorf("sweep failed: %w", err)
			}
			if p.Structured() {
				return p.Value(res)
			}
			p.Success("Deleted %d export files", res.Deleted)
			for _, name := range res.NameErrorFiles {
				p.Warn("Skipped %s: unrecognised file name", name)
			}
			for _, name := range res.RemoveErrorFiles {
				p.Warn("Could not remove %s", name)
			}
			return nil
		})
	},
}

func init() {
	sweepEventsCmd.Flags().Int("days", 0, "retention in days (default: retention.event_days)")
	sweepExportsCmd.Flags().Int("hours", 0, "retention in hours (default: retention.export_hours)")

	sweepCmd.AddCommand(sweepEventsCmd, sweepExportsCmd)
	rootCmd.AddCommand(sweepCmd)
}
