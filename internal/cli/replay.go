package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fawangZ/Nanhu-V3/internal/harness"
	"github.com/fawangZ/Nanhu-V3/internal/trace"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
	RunID    string
}

// ReplayResult holds the replay verification outcome.
type ReplayResult struct {
	RunID         string       `json:"run_id"`
	Scenario      string       `json:"scenario"`
	StoredEvents  int          `json:"stored_events"`
	FreshEvents   int          `json:"fresh_events"`
	Deterministic bool         `json:"deterministic"`
	Diffs         []trace.Diff `json:"diffs,omitempty"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay <scenario.yaml>",
		Short: "Re-run a scenario and verify the stored trace",
		Long: `Re-run a scenario from scratch and compare the fresh event stream
against a stored run, position by position.

The core is deterministic, so any divergence means either the scenario
file changed since the run was recorded or the model's behavior did.

Exit codes:
  0 - Fresh trace matches the stored run
  1 - Traces diverge
  2 - Command error (database not found, unknown run, etc.)

Examples:
  nanhu replay ./scenarios/smoke.yaml --db ./traces.db --run 01890a5d-...
  nanhu replay ./scenarios/smoke.yaml --db ./traces.db --run 01890a5d-... --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite trace store (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "stored run to verify against (required)")
	_ = cmd.MarkFlagRequired("run")

	return cmd
}

func runReplay(opts *ReplayOptions, path string, cmd *cobra.Command) error {
	ctx := context.Background()

	st, err := trace.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open trace store", err)
	}
	defer st.Close()

	info, err := st.GetRun(ctx, opts.RunID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to get run", err)
	}
	stored, err := st.ReadEvents(ctx, opts.RunID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read stored events", err)
	}

	sc, err := harness.LoadScenario(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load scenario", err)
	}
	if sc.Name != info.Scenario {
		return NewExitError(ExitCommandError,
			fmt.Sprintf("scenario %q does not match stored run's scenario %q", sc.Name, info.Scenario))
	}

	fresh, err := harness.Run(sc, nil)
	if err != nil {
		return WrapExitError(ExitCommandError, "replay execution failed", err)
	}

	diffs := trace.CompareEvents(stored, fresh.Trace)
	result := ReplayResult{
		RunID:         info.ID,
		Scenario:      info.Scenario,
		StoredEvents:  len(stored),
		FreshEvents:   len(fresh.Trace),
		Deterministic: len(diffs) == 0,
		Diffs:         diffs,
	}

	if opts.Format == "json" {
		return outputReplayJSON(cmd, result)
	}
	return outputReplayText(cmd, result, opts.Verbose)
}

// outputReplayJSON outputs the replay result as JSON.
func outputReplayJSON(cmd *cobra.Command, result ReplayResult) error {
	resp := CLIResponse{Status: "ok", Data: result}
	if !result.Deterministic {
		resp.Status = "error"
		resp.Error = &CLIError{
			Code:    "E_DETERMINISM",
			Message: "replay diverged from stored trace",
		}
	}
	if err := writeJSON(cmd.OutOrStdout(), resp); err != nil {
		return err
	}
	if !result.Deterministic {
		return NewExitError(ExitFailure, "replay diverged from stored trace")
	}
	return nil
}

// outputReplayText outputs the replay result as text.
func outputReplayText(cmd *cobra.Command, result ReplayResult, verbose bool) error {
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Replay: %s (run %s)\n", result.Scenario, result.RunID)
	fmt.Fprintf(w, "  Stored events: %d\n", result.StoredEvents)
	fmt.Fprintf(w, "  Fresh events:  %d\n", result.FreshEvents)

	if result.Deterministic {
		fmt.Fprintln(w, "✓ Replay matches stored trace")
		return nil
	}

	fmt.Fprintf(w, "✗ Replay diverged at %d position(s)\n", len(result.Diffs))
	if verbose {
		for _, d := range result.Diffs {
			fmt.Fprintf(w, "  [%d] stored: %s\n", d.Ord, d.Stored)
			fmt.Fprintf(w, "  [%d] fresh:  %s\n", d.Ord, d.Fresh)
		}
	}
	return NewExitError(ExitFailure, "replay diverged from stored trace")
}
