// Package cmd implements the tastetrainer command line.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/thebtf/tastetrainer/internal/app"
	"github.com/thebtf/tastetrainer/internal/config"
	"github.com/thebtf/tastetrainer/internal/logging"
)

var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// options are the persistent flags shared by every command.
type options struct {
	configPath string
	logLevel   string
	pretty     bool
	jsonOut    bool

	cfg *config.Config
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "tastetrainer",
		Short: "Learn food taste preferences from dish swipes",
		Long: `tastetrainer shows dishes one at a time, learns a weighted taste profile
from like, neutral and dislike swipes, and periodically asks an analyzer for a
plain-language summary of what you enjoy and what to avoid when ordering.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("log-level") {
				cfg.Log.Level = opts.logLevel
			}
			if cmd.Flags().Changed("pretty") {
				cfg.Log.Pretty = opts.pretty
			}
			logging.SetupWriter(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Pretty)
			opts.cfg = cfg
			return nil
		},
	}
	root.CompletionOptions.HiddenDefaultCmd = false

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to a YAML config file (default: $TASTE_CONFIG or ~/.tastetrainer/config.yaml)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "Log level (trace, debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&opts.pretty, "pretty", false, "Human-readable console logs")
	root.PersistentFlags().BoolVar(&opts.jsonOut, "json", false, "Print results as JSON")

	root.AddCommand(
		newServeCmd(opts),
		newStatusCmd(opts),
		newSwipeCmd(opts),
		newUndoCmd(opts),
		newResetCmd(opts),
		newAnalyzeCmd(opts),
		newInsightsCmd(opts),
		newContextCmd(opts),
		newVersionCmd(),
	)
	return root
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// withApp builds the application, bootstraps the trainer and runs fn.
func withApp(ctx context.Context, opts *options, fn func(*app.App) error) error {
	a, err := app.New(ctx, opts.cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Bootstrap(ctx); err != nil {
		return err
	}
	return fn(a)
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
