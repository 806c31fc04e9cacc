// Package cli implements actsync, the operator command line for the
// activity sync engine. Commands run in-process against the configured
// storage; they do not talk to a running daemon.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pbi-manager/activity-sync/activity/internal/app"
	"github.com/pbi-manager/activity-sync/common/config"
	"github.com/pbi-manager/activity-sync/common/logging"
	"github.com/pbi-manager/activity-sync/common/output"
)

var (
	cfgFile      string
	outputFormat string
	cfg          *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "actsync",
	Short: "Activity event sync CLI",
	Long: `actsync runs the activity event sync engine from the command line.

Fetch activity events incrementally, sweep old events and exports, export
filtered events to CSV, and manage field descriptors.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if !output.ValidFormat(outputFormat) {
			return fmt.Errorf("unsupported output format %q", outputFormat)
		}
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		return nil
	},
}

// Execute runs the root command and reports a failure on stderr.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		output.New(outputFormat).Error("%v", err)
		return err
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml or /etc/activity-sync/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", output.FormatTable, "output format: table, json, yaml")
}

func printer(cmd *cobra.Command) *output.Printer {
	return &output.Printer{Out: cmd.OutOrStdout(), Err: cmd.ErrOrStderr(), Format: outputFormat}
}

// withApp builds the application for one command and closes it afterwards.
// Logs go to stderr so structured output on stdout stays parseable.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App, p *output.Printer) error) error {
	logger := logging.NewWithWriter(cmd.ErrOrStderr(), logging.ParseLevel(cfg.Logging.Level), "text").
		With(logging.Service("actsync"))

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a, printer(cmd))
}
