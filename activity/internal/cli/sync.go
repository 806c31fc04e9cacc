package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/pbi-manager/activity-sync/activity/internal/app"
	"github.com/pbi-manager/activity-sync/activity/internal/models"
	"github.com/pbi-manager/activity-sync/common/output"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Fetch activity events from upstream",
	Long: `Fetch activity events for the planned window and merge them into storage.

Without --days-before the window starts at the last successful run minus the
buffer, capped at sync.max_past_days. The run is recorded and becomes the next
resume point when it succeeds.

Examples:
  actsync sync
  actsync sync --days-before 3 -o json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var daysBefore *int
		if cmd.Flags().Changed("days-before") {
			n, _ := cmd.Flags().GetInt("days-before")
			if n < 1 {
				return fmt.Errorf("--days-before must be positive")
			}
			daysBefore = &n
		}

		return withApp(cmd, func(ctx context.Context, a *app.App, p *output.Printer) error {
			res, err := a.Service.RunSync(ctx, daysBefore)
			if err != nil {
				return fmt.Errorf("sync failed: %w", err)
			}
			if p.Structured() {
				return p.Value(res)
			}
			renderRun(p, res)
			if res.Status() != models.StatusSuccess {
				return fmt.Errorf("run %s finished with %d failed requests and %d failed records",
					res.RunID, res.FailedRequests, res.FailedRecords)
			}
			return nil
		})
	},
}

func renderRun(p *output.Printer, res *models.RunResult) {
	table := output.NewTable("WINDOW START", "WINDOW END", "FETCHED", "CREATED", "UPDATED", "FAILED REQ", "FAILED REC", "WARNINGS")
	for _, d := range res.Details {
		table.AddRow(
			d.Start.Format(time.RFC3339),
			d.End.Format(time.RFC3339),
			fmt.Sprint(d.Fetched),
			fmt.Sprint(d.Created),
			fmt.Sprint(d.Updated),
			fmt.Sprint(len(d.FailedRequests)),
			fmt.Sprint(len(d.FailedRecords)),
			fmt.Sprint(len(d.Warnings)),
		)
	}
	table.Render(p.Out)

	if res.Status() == models.StatusSuccess {
		p.Success("Run %s: %d created, %d updated", res.RunID, res.Created, res.Updated)
		return
	}
	p.Warn("Run %s: %d created, %d updated, %d failed requests, %d failed records",
		res.RunID, res.Created, res.Updated, res.FailedRequests, res.FailedRecords)
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Sync run history",
}

var runsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List recorded sync runs, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		return withApp(cmd, func(ctx context.Context, a *app.App, p *output.Printer) error {
			runs, err := a.Service.ListRuns(ctx, limit)
			if err != nil {
				return fmt.Errorf("failed to list runs: %w", err)
			}
			if p.Structured() {
				return p.Value(runs)
			}
			if len(runs) == 0 {
				p.Info("No sync runs recorded")
				return nil
			}
			table := output.NewTable("RUN ID", "STATUS", "STARTED", "WINDOW", "CREATED", "UPDATED")
			for _, r := range runs {
				window, created, updated := "", "", ""
				if r.Result != nil {
					window = r.Result.Start.Format(time.DateOnly) + " .. " + r.Result.End.Format(time.DateOnly)
					created = fmt.Sprint(r.Result.Created)
					updated = fmt.Sprint(r.Result.Updated)
				}
				table.AddRow(r.RunID, r.Status, r.StartedAt.Format(time.RFC3339), window, created, updated)
			}
			table.Render(p.Out)
			return nil
		})
	},
}

func init() {
	syncCmd.Flags().Int("days-before", 0, "sync this many days back instead of resuming")
	runsListCmd.Flags().Int("limit", 20, "maximum number of runs")

	runsCmd.AddCommand(runsListCmd)
	rootCmd.AddCommand(syncCmd, runsCmd)
}
