package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/psantana5/covrun/internal/history"
)

var (
	historyLimit     int
	historyOlderThan time.Duration
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded instrumentation runs",
	Long:  `Lists runs recorded in the history store (history.driver), newest first.`,
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

var historyPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete recorded runs older than a duration",
	Long:  `Deletes runs older than --older-than, or history.retention when the flag is not set.`,
	Args:  cobra.NoArgs,
	RunE:  runHistoryPrune,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyPruneCmd)
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum number of runs to show (0 = all)")
	historyPruneCmd.Flags().DurationVar(&historyOlderThan, "older-than", 0, "age of the oldest run to keep, e.g. 720h")
}

func runHistory(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if a.history == nil {
		return &ExitError{Code: 2, Err: errors.New("history is disabled; set history.driver to sqlite3 or postgres")}
	}

	runs, err := a.history.List(historyLimit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	if IsJSONOutput() {
		data, err := json.MarshalIndent(runs, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	if len(runs) == 0 {
		fmt.Println("No runs recorded")
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Run ID", "Started", "Result", "Stage", "Retries", "Runtime", "Module", "Reason")
	for _, r := range runs {
		status := "OK"
		if !r.Success {
			status = "FAILED"
		}
		table.Append([]string{
			r.RunID,
			r.StartTime.Local().Format("2006-01-02 15:04:05"),
			status,
			r.Stage,
			fmt.Sprintf("%d", r.Retries),
			fmt.Sprintf("%.2fs", r.Duration.Seconds()),
			r.Module,
			r.Reason(),
		})
	}
	table.Render()
	fmt.Printf("\nTotal runs: %d\n", len(runs))
	return nil
}

func runHistoryPrune(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if a.history == nil {
		return &ExitError{Code: 2, Err: errors.New("history is disabled; set history.driver to sqlite3 or postgres")}
	}

	rcfg := history.RetentionConfig{MaxAge: historyOlderThan}
	if historyOlderThan <= 0 {
		var ok bool
		if rcfg, ok, err = a.cfg.ToRetention(); err != nil || !ok {
			return &ExitError{Code: 2, Err: errors.New("set --older-than or history.retention")}
		}
	}

	n, err := history.NewRetention(rcfg, a.history, a.logger).PruneNow()
	if err != nil {
		return err
	}
	fmt.Printf("Pruned %d runs older than %s\n", n, rcfg.MaxAge)
	return nil
}
