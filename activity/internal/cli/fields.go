package cli

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/pbi-manager/activity-sync/activity/internal/app"
	"github.com/pbi-manager/activity-sync/activity/internal/fields"
	"github.com/pbi-manager/activity-sync/common/output"
)

var fieldsCmd = &cobra.Command{
	Use:   "fields",
	Short: "Field descriptor management",
}

var fieldsSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Create, update and prune descriptors to match the event schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App, p *output.Printer) error {
			status, err := a.Service.SyncFields(ctx)
			if err != nil {
				return fmt.Errorf("field sync failed: %w", err)
			}
			if p.Structured() {
				return p.Value(status)
			}
			names := make([]string, 0, len(status))
			for name := range status {
				names = append(names, name)
			}
			sort.Strings(names)
			table := output.NewTable("FIELD", "STATUS")
			for _, name := range names {
				table.AddRow(name, status[name])
			}
			table.Render(p.Out)
			return nil
		})
	},
}

var fieldsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List field descriptors",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App, p *output.Printer) error {
			ds, err := a.Service.ListFields(ctx)
			if err != nil {
				return fmt.Errorf("failed to list fields: %w", err)
			}
			if p.Structured() {
				return p.Value(ds)
			}
			table := output.NewTable("FIELD", "TYPE", "DISPLAY NAME", "ORDER", "DISPLAY", "FILTER", "ORDERBY", "SEARCH", "EXPORT", "CHART")
			for _, d := range ds {
				order := ""
				if d.DisplayOrder != nil {
					order = fmt.Sprint(*d.DisplayOrder)
				}
				table.AddRow(d.FieldName, string(d.FieldType), d.DisplayName, order,
					yesNo(d.Display), yesNo(d.Filter), yesNo(d.OrderBy), yesNo(d.Search), yesNo(d.Export), yesNo(d.Chart))
			}
			table.Render(p.Out)
			return nil
		})
	},
}

var fieldsSetCmd = &cobra.Command{
	Use:   "set [field]",
	Short: "Change the display settings of one field",
	Long: `Change the display settings of one field. Only the flags given are applied.

Examples:
  actsync fields set activity --filter --chart
  actsync fields set userid --display-name "User" --search=false`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		patch, err := patchFromFlags(cmd)
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app.App, p *output.Printer) error {
			if _, err := a.Service.SyncFields(ctx); err != nil {
				return fmt.Errorf("field sync failed: %w", err)
			}
			d, err := a.Service.UpdateField(ctx, args[0], patch)
			if err != nil {
				return err
			}
			if p.Structured() {
				return p.Value(d)
			}
			p.Success("Updated field %s", d.FieldName)
			return nil
		})
	},
}

func patchFromFlags(cmd *cobra.Command) (fields.Patch, error) {
	var patch fields.Patch
	flags := cmd.Flags()
	if flags.Changed("display-name") {
		v, _ := flags.GetString("display-name")
		patch.DisplayName = &v
	}
	if flags.Changed("display-order") {
		v, _ := flags.GetInt("display-order")
		patch.DisplayOrder = &v
	}
	bools := map[string]**bool{
		"display": &patch.Display,
		"filter":  &patch.Filter,
		"orderby": &patch.OrderBy,
		"search":  &patch.Search,
		"export":  &patch.Export,
		"chart":   &patch.Chart,
	}
	changed := patch.DisplayName != nil || patch.DisplayOrder != nil
	for name, dst := range bools {
		if !flags.Changed(name) {
			continue
		}
		v, _ := flags.GetBool(name)
		*dst = &v
		changed = true
	}
	if !changed {
		return patch, fmt.Errorf("nothing to change; pass at least one setting flag")
	}
	return patch, nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "-"
}

func init() {
	fieldsSetCmd.Flags().String("display-name", "", "label shown for the field")
	fieldsSetCmd.Flags().Int("display-order", 0, "column position")
	for _, name := range []string{"display", "filter", "orderby", "search", "export", "chart"} {
		fieldsSetCmd.Flags().Bool(name, false, "enable the field for "+name)
	}

	fieldsCmd.AddCommand(fieldsSyncCmd, fieldsListCmd, fieldsSetCmd)
	rootCmd.AddCommand(fieldsCmd)
}
