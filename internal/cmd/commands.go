package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/thebtf/tastetrainer/internal/app"
	"github.com/thebtf/tastetrainer/internal/trainer"
	"github.com/thebtf/tastetrainer/pkg/models"
)

func newServeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP worker",
		Long: `Run the HTTP worker: a JSON API for swiping, undo, reset and analysis,
an SSE stream of trainer events at /api/events and Prometheus metrics at /metrics.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, opts.cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.Serve(ctx, Version)
		},
	}
}

func newStatusCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the current dish, deck and analysis",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, func(a *app.App) error {
				return printState(cmd.OutOrStdout(), opts, a.Trainer.State())
			})
		},
	}
}

func newSwipeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:       "swipe <like|neutral|dislike>",
		Short:     "Swipe the current dish",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(models.ActionLike), string(models.ActionNeutral), string(models.ActionDislike)},
		RunE: func(cmd *cobra.Command, args []string) error {
			action, err := models.ParseSwipeAction(strings.ToLower(args[0]))
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), opts, func(a *app.App) error {
				out, err := a.Trainer.SubmitSwipe(cmd.Context(), action)
				if err != nil {
					return err
				}
				// Let an auto-triggered analysis finish before the store closes.
				a.Trainer.Wait()
				if opts.jsonOut {
					return printJSON(cmd.OutOrStdout(), out)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", out.Event.Action, out.Event.Dish.Name)
				return printState(cmd.OutOrStdout(), opts, a.Trainer.State())
			})
		},
	}
}

func newUndoCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "undo",
		Short: "Undo the most recent swipe",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, func(a *app.App) error {
				event, err := a.Trainer.UndoLastSwipe(cmd.Context())
				if err != nil {
					return err
				}
				if opts.jsonOut {
					return printJSON(cmd.OutOrStdout(), event)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "undid %s: %s\n", event.Action, event.Dish.Name)
				return nil
			})
		},
	}
}

func newResetCmd(opts *options) *cobra.Command {
	var yes bool
	c := &cobra.Command{
		Use:   "reset",
		Short: "Discard the profile, history and analysis and start over",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("reset discards all training data; pass --yes to confirm")
			}
			return withApp(cmd.Context(), opts, func(a *app.App) error {
				if err := a.Trainer.ResetAll(cmd.Context()); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "training data reset")
				return nil
			})
		},
	}
	c.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm the reset")
	return c
}

func newAnalyzeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze",
		Short: "Run a taste analysis now and print the result",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, func(a *app.App) error {
				if err := a.Trainer.RefreshAnalysis(cmd.Context()); err != nil {
					return err
				}
				a.Trainer.Wait()

				st := a.Trainer.State()
				if st.AnalysisError != "" {
					return errors.New(st.AnalysisError)
				}
				if opts.jsonOut {
					return printJSON(cmd.OutOrStdout(), st.LatestAnalysis)
				}
				printAnalysis(cmd.OutOrStdout(), st.Analysis)
				return nil
			})
		},
	}
}

func newInsightsCmd(opts *options) *cobra.Command {
	var limit int
	c := &cobra.Command{
		Use:   "insights",
		Short: "List the strongest liked and disliked features",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, func(a *app.App) error {
				pos := a.Trainer.Insights(true, limit)
				neg := a.Trainer.Insights(false, limit)
				if opts.jsonOut {
					return printJSON(cmd.OutOrStdout(), map[string][]models.TasteInsight{
						"positive": pos,
						"negative": neg,
					})
				}
				w := cmd.OutOrStdout()
				printInsights(w, "Likes", pos)
				printInsights(w, "Dislikes", neg)
				return nil
			})
		},
	}
	c.Flags().IntVarP(&limit, "limit", "n", 6, "Insights per side")
	return c
}

func newContextCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "context",
		Short: "Print the taste context payload for menu recommendation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, func(a *app.App) error {
				return printJSON(cmd.OutOrStdout(), a.Trainer.TasteContext())
			})
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "tastetrainer version %s\n", Version)
			fmt.Fprintf(cmd.OutOrStdout(), "  Git commit: %s\n", GitCommit)
			fmt.Fprintf(cmd.OutOrStdout(), "  Build date: %s\n", BuildDate)
		},
	}
}

func printState(w io.Writer, opts *options, st trainer.State) error {
	if opts.jsonOut {
		return printJSON(w, st)
	}
	if st.CurrentDish != nil {
		fmt.Fprintf(w, "Current dish: %s\n", st.CurrentDish.Name)
		if st.CurrentDish.Subtitle != "" {
			fmt.Fprintf(w, "  %s\n", st.CurrentDish.Subtitle)
		}
	} else {
		fmt.Fprintln(w, "Current dish: none")
	}
	fmt.Fprintf(w, "Swipes: %d  Deck: %d", st.TotalSwipes, st.DeckSize)
	if st.DeckStatus != "" {
		fmt.Fprintf(w, "  (%s)", st.DeckStatus)
	}
	fmt.Fprintln(w)
	printAnalysis(w, st.Analysis)
	if st.AnalysisError != "" {
		fmt.Fprintf(w, "Last error: %s\n", st.AnalysisError)
	}
	return nil
}

func printAnalysis(w io.Writer, v trainer.AnalysisView) {
	fmt.Fprintf(w, "Summary:  %s\n", v.Headline)
	fmt.Fprintf(w, "Avoid:    %s\n", v.Avoid)
	fmt.Fprintf(w, "Strategy: %s\n", v.Strategy)
}

func printInsights(w io.Writer, title string, insights []models.TasteInsight) {
	fmt.Fprintf(w, "%s:\n", title)
	if len(insights) == 0 {
		fmt.Fprintln(w, "  (none yet)")
		return
	}
	for _, in := range insights {
		fmt.Fprintf(w, "  %-14s %+.2f  confidence %.2f\n", in.Feature.Name, in.Score, in.Confidence)
	}
}
