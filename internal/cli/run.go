package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/fawangZ/Nanhu-V3/internal/harness"
	"github.com/fawangZ/Nanhu-V3/internal/trace"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string

	// Generator allows overriding the run identifier generator (for
	// testing). If nil, defaults to UUIDv7Generator.
	Generator trace.RunIDGenerator
}

// RunSummary is the run command's result payload.
type RunSummary struct {
	Scenario        string   `json:"scenario"`
	Pass            bool     `json:"pass"`
	Ticks           uint64   `json:"ticks"`
	Events          int      `json:"events"`
	QueueLen        uint32   `json:"queue_len"`
	WindowOccupancy int      `json:"window_occupancy"`
	Errors          []string `json:"errors,omitempty"`
	RunID           string   `json:"run_id,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario.yaml>",
		Short: "Run a scenario against the core",
		Long: `Run a scenario file against a fresh core and evaluate its assertions.

With --db the event trace is persisted to a SQLite trace store, creating
the database if it does not exist. The stored run can later be inspected
with "trace" and verified with "replay".

Exit codes:
  0 - Scenario ran and all assertions held
  1 - One or more assertions failed
  2 - Command error (bad scenario file, database error, etc.)

Examples:
  nanhu run ./scenarios/smoke.yaml
  nanhu run ./scenarios/smoke.yaml --db ./traces.db
  nanhu run ./scenarios/smoke.yaml --format json --verbose`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenario(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite trace store (optional)")

	return cmd
}

func runScenario(opts *RunOptions, path string, cmd *cobra.Command) error {
	// Configure logging based on verbose flag
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))

	sc, err := harness.LoadScenario(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load scenario", err)
	}
	slog.Debug("scenario loaded", "name", sc.Name, "ticks", len(sc.Ticks))

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var (
		st    *trace.Store
		rec   *trace.Recorder
		runID string
	)
	if opts.Database != "" {
		st, err = trace.Open(opts.Database)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open trace store", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				slog.Error("error closing trace store", "error", closeErr)
			}
		}()

		gen := opts.Generator
		if gen == nil {
			gen = trace.UUIDv7Generator{}
		}
		runID, err = st.BeginRun(ctx, gen, sc.Name)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to begin run", err)
		}
		rec = trace.NewRecorder(st, runID)
		slog.Debug("trace store ready", "run_id", runID)
	}

	var result *harness.Result
	if rec != nil {
		result, err = harness.Run(sc, rec)
	} else {
		result, err = harness.Run(sc, nil)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "scenario execution failed", err)
	}

	if st != nil {
		if err := rec.Flush(ctx); err != nil {
			return WrapExitError(ExitCommandError, "failed to persist trace", err)
		}
		if err := st.FinishRun(ctx, runID, result.Ticks); err != nil {
			return WrapExitError(ExitCommandError, "failed to finish run", err)
		}
		slog.Info("trace persisted", "run_id", runID, "events", len(result.Trace))
	}

	summary := RunSummary{
		Scenario:        result.ScenarioName,
		Pass:            result.Pass,
		Ticks:           result.Ticks,
		Events:          len(result.Trace),
		QueueLen:        result.QueueLen,
		WindowOccupancy: result.WindowOccupancy,
		Errors:          result.Errors,
		RunID:           runID,
	}

	if opts.Format == "json" {
		return outputRunJSON(cmd, summary)
	}
	return outputRunText(cmd, summary)
}

// outputRunJSON outputs the run summary as JSON.
func outputRunJSON(cmd *cobra.Command, summary RunSummary) error {
	resp := CLIResponse{Status: "ok", Data: summary}
	if !summary.Pass {
		resp.Status = "error"
		resp.Error = &CLIError{
			Code:    "E_ASSERT",
			Message: "scenario assertions failed",
			Details: summary.Errors,
		}
	}
	if err := writeJSON(cmd.OutOrStdout(), resp); err != nil {
		return err
	}
	if !summary.Pass {
		return NewExitError(ExitFailure, "scenario assertions failed")
	}
	return nil
}

// outputRunText outputs the run summary as text.
func outputRunText(cmd *cobra.Command, summary RunSummary) error {
	w := cmd.OutOrStdout()

	status := "✓"
	if !summary.Pass {
		status = "✗"
	}
	fmt.Fprintf(w, "%s Scenario: %s\n", status, summary.Scenario)
	fmt.Fprintf(w, "  Ticks:  %d\n", summary.Ticks)
	fmt.Fprintf(w, "  Events: %d\n", summary.Events)
	fmt.Fprintf(w, "  Final queue occupancy:  %d\n", summary.QueueLen)
	fmt.Fprintf(w, "  Final window occupancy: %d\n", summary.WindowOccupancy)
	if summary.RunID != "" {
		fmt.Fprintf(w, "  Run ID: %s\n", summary.RunID)
	}

	if summary.Pass {
		return nil
	}
	fmt.Fprintln(w)
	for _, msg := range summary.Errors {
		fmt.Fprintf(w, "  FAIL %s\n", msg)
	}
	return NewExitError(ExitFailure, "scenario assertions failed")
}
