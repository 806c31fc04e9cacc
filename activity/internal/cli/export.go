package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pbi-manager/activity-sync/activity/internal/app"
	"github.com/pbi-manager/activity-sync/common/output"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export filtered events to CSV",
	Long: `Write the events matching the given filters to a semicolon separated
CSV file in export.dir and print its path.

Filters use the same keys as the HTTP API.

Examples:
  actsync export --filter activity=ViewReport
  actsync export --filter creationtime__gte=2024-01-01 --filter q=sales`,
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, _ := cmd.Flags().GetStringToString("filter")
		return withApp(cmd, func(ctx context.Context, a *app.App, p *output.Printer) error {
			if err := a.EnsureExportDir(); err != nil {
				return err
			}
			path, err := a.Service.ExportFilteredCSV(ctx, filter)
			if err != nil {
				return fmt.Errorf("export failed: %w", err)
			}
			if p.Structured() {
				return p.Value(map[string]string{"path": path})
			}
			p.Success("Exported to %s", path)
			return nil
		})
	},
}

func init() {
	exportCmd.Flags().StringToString("filter", nil, "filter as key=value, repeatable")
	rootCmd.AddCommand(exportCmd)
}
