// File: cmd/history.go
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/dailyclaim/internal/config"
	"github.com/xkilldash9x/dailyclaim/internal/history"
)

func newHistoryCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Query the execution history",
	}
	cmd.AddCommand(
		newHistoryListCmd(a),
		newHistoryStatsCmd(a),
		newHistoryPruneCmd(a),
		newHistoryFollowCmd(a),
	)
	return cmd
}

// withSink opens the configured history sink for the duration of fn.
func (a *app) withSink(ctx context.Context, fn func(history.Sink) error) error {
	if err := a.cfg.History.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	sink, err := a.openSink(ctx, a.cfg.History, a.logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := sink.Close(); cerr != nil {
			a.logger.Warn("Failed to close execution history", zap.Error(cerr))
		}
	}()
	return fn(sink)
}

func newHistoryListCmd(a *app) *cobra.Command {
	var (
		limit  int
		format string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show the most recent runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "text" {
				if err := validateFormat(format); err != nil {
					return err
				}
			}
			return a.withSink(cmd.Context(), func(sink history.Sink) error {
				recs, err := sink.Query(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if format != "text" {
					return writeFormatted(cmd.OutOrStdout(), format, recs)
				}
				if len(recs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
					return nil
				}
				for _, rec := range recs {
					history.PrintRecord(cmd.OutOrStdout(), rec)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of records to show (0 for all)")
	cmd.Flags().StringVarP(&format, "output", "o", "text", "output format: text, json or yaml")
	return cmd
}

func newHistoryStatsCmd(a *app) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show the success rate over a trailing window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if days <= 0 {
				return fmt.Errorf("--days must be a positive integer")
			}
			return a.withSink(cmd.Context(), func(sink history.Sink) error {
				stats, err := sink.SuccessRate(cmd.Context(), days)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Last %d days: %d/%d successful (%.2f%%)\n",
					stats.Days, stats.Successful, stats.Total, stats.Rate)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 7, "size of the window in days")
	return cmd
}

func newHistoryPruneCmd(a *app) *cobra.Command {
	var keepDays int
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete records older than the retention window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("keep-days") {
				keepDays = a.cfg.History.KeepDays
			}
			if keepDays <= 0 {
				return fmt.Errorf("--keep-days must be a positive integer")
			}
			return a.withSink(cmd.Context(), func(sink history.Sink) error {
				removed, err := sink.Prune(cmd.Context(), keepDays)
				if err != nil {
					return err
				}
				a.logger.Info("Pruned execution history", zap.Int("removed", removed), zap.Int("keep_days", keepDays))
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d record(s) older than %d days.\n", removed, keepDays)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&keepDays, "keep-days", 0, "retention window in days (default history.keep_days)")
	return cmd
}

func newHistoryFollowCmd(a *app) *cobra.Command {
	var fromStart bool
	cmd := &cobra.Command{
		Use:   "follow",
		Short: "Print runs as they are appended to a JSONL history file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if d := a.cfg.History.Driver; d != config.HistoryJSONL && d != "" {
				return fmt.Errorf("history follow requires the %s driver, configured driver is %q", config.HistoryJSONL, d)
			}
			w := cmd.OutOrStdout()
			return history.Follow(cmd.Context(), a.cfg.History.Path,
				history.FollowOptions{FromStart: fromStart, Logger: a.logger},
				func(rec history.Record) error {
					history.PrintRecord(w, rec)
					return nil
				})
		},
	}
	cmd.Flags().BoolVar(&fromStart, "from-start", false, "replay existing records first")
	return cmd
}
