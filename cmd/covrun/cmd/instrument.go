package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/psantana5/covrun/internal/coverage"
	"github.com/psantana5/covrun/internal/locks"
	"github.com/psantana5/covrun/pkg/retry"
)

var (
	instrumentSymbols     string
	instrumentNoBackup    bool
	instrumentMaxAttempts int
)

var instrumentCmd = &cobra.Command{
	Use:   "instrument <module>",
	Short: "Instrument a module for coverage",
	Long: `Validates the module, resolves its symbols and framework dependencies,
runs the configured instrumenter and writes the instrumented module back.
Exits 1 when the run fails.`,
	Args: cobra.ExactArgs(1),
	RunE: runInstrument,
}

func init() {
	rootCmd.AddCommand(instrumentCmd)

	instrumentCmd.Flags().StringVar(&instrumentSymbols, "symbols", "", "symbol file (default <module>.pdb)")
	instrumentCmd.Flags().BoolVar(&instrumentNoBackup, "no-backup", false, "do not back up the original module")
	instrumentCmd.Flags().IntVar(&instrumentMaxAttempts, "max-attempts", 0, "override retry.max_attempts")
}

type instrumentOutput struct {
	*coverage.Outcome
	Summary string         `json:"summary"`
	Holders []locks.Holder `json:"lock_holders,omitempty"`
}

func runInstrument(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if cmd.Flags().Changed("max-attempts") {
		a.cfg.Retry.MaxAttempts = instrumentMaxAttempts
		if err := a.cfg.Validate(); err != nil {
			return &ExitError{Code: 2, Err: err}
		}
	}

	deps, err := a.dependencies()
	if err != nil {
		return err
	}
	opts, err := a.runOptions(a.cfg.Backup.Enabled && !instrumentNoBackup)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := coverage.NewOrchestrator(deps, opts...).RunTarget(ctx, coverage.Target{
		ModulePath: args[0],
		SymbolPath: instrumentSymbols,
	})
	result := a.record(out)

	output := instrumentOutput{Outcome: out, Summary: result.Summary()}
	if !out.Success {
		output.Holders = lockHolders(ctx, out.Err)
	}

	if IsJSONOutput() {
		data, err := json.MarshalIndent(output, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Println(string(data))
	} else {
		printOutcome(output)
	}

	if !out.Success {
		return &ExitError{Code: 1, Err: fmt.Errorf("instrumentation of %s failed", args[0])}
	}
	return nil
}

// lockHolders lists the processes holding the file behind an exhausted
// retry on a lock error.
func lockHolders(ctx context.Context, err error) []locks.Holder {
	var agg *retry.AggregateError
	if !errors.As(err, &agg) || !retry.IsLockError(agg.Last()) {
		return nil
	}
	var pathErr *fs.PathError
	if !errors.As(agg.Last(), &pathErr) {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	// Partial results are still worth showing.
	holders, _ := locks.Find(ctx, pathErr.Path)
	return holders
}

func printOutcome(o instrumentOutput) {
	status := "SUCCESS"
	if !o.Success {
		status = "FAILED"
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Property", "Value")
	table.Append([]string{"Run ID", o.RunID})
	table.Append([]string{"Module", o.ModulePath})
	table.Append([]string{"Result", status})
	table.Append([]string{"Stage", string(o.Stage)})
	table.Append([]string{"Retries", fmt.Sprintf("%d", o.Retries)})
	table.Append([]string{"Unresolved", fmt.Sprintf("%d", o.Unresolved)})
	table.Append([]string{"Duration", o.Duration.Round(time.Millisecond).String()})
	if o.BackupDir != "" {
		table.Append([]string{"Backup", o.BackupDir})
	}
	table.Render()

	if len(o.Diagnostics) > 0 {
		fmt.Println()
		diag := tablewriter.NewWriter(os.Stdout)
		diag.Header("Severity", "Message")
		for _, d := range o.Diagnostics {
			diag.Append([]string{string(d.Severity), d.Message})
		}
		diag.Render()
	}

	if len(o.Holders) > 0 {
		fmt.Println("\nFile is held open by:")
		holders := tablewriter.NewWriter(os.Stdout)
		holders.Header("PID", "Process", "Path")
		for _, h := range o.Holders {
			holders.Append([]string{fmt.Sprintf("%d", h.PID), h.Name, h.Path})
		}
		holders.Render()
	}
}
