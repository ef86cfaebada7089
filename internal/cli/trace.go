package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fawangZ/Nanhu-V3/internal/sim"
	"github.com/fawangZ/Nanhu-V3/internal/trace"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	RunID    string // optional - dump a specific run
}

// TraceRunResult holds one run's timeline for JSON output.
type TraceRunResult struct {
	Run    trace.RunInfo `json:"run"`
	Events []sim.Event   `json:"events"`
}

// TraceListResult holds the run listing for JSON output.
type TraceListResult struct {
	Runs  []trace.RunInfo `json:"runs"`
	Total int             `json:"total"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Inspect stored runs",
		Long: `Inspect the trace store.

Without --run, lists all stored runs oldest first. With --run, prints
the complete event timeline of that run in emission order.

Examples:
  nanhu trace --db ./traces.db
  nanhu trace --db ./traces.db --run 01890a5d-ac96-774b-bcce-b302099a8057
  nanhu trace --db ./traces.db --run 01890a5d-... --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite trace store (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "dump a specific run's events")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := context.Background()

	st, err := trace.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open trace store", err)
	}
	defer st.Close()

	if opts.RunID == "" {
		return listRuns(ctx, st, opts, cmd)
	}
	return dumpRun(ctx, st, opts, cmd)
}

func listRuns(ctx context.Context, st *trace.Store, opts *TraceOptions, cmd *cobra.Command) error {
	runs, err := st.ListRuns(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list runs", err)
	}

	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), CLIResponse{
			Status: "ok",
			Data:   TraceListResult{Runs: runs, Total: len(runs)},
		})
	}

	w := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs found in trace store.")
		return nil
	}
	fmt.Fprintf(w, "Stored runs: %d\n\n", len(runs))
	for _, r := range runs {
		status := "finished"
		if !r.Finished {
			status = "incomplete"
		}
		fmt.Fprintf(w, "  %s  %-20s %5d ticks %6d events  %s\n",
			r.ID, r.Scenario, r.Ticks, r.Events, status)
	}
	return nil
}

func dumpRun(ctx context.Context, st *trace.Store, opts *TraceOptions, cmd *cobra.Command) error {
	info, err := st.GetRun(ctx, opts.RunID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to get run", err)
	}
	events, err := st.ReadEvents(ctx, opts.RunID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read events", err)
	}

	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), CLIResponse{
			Status: "ok",
			Data:   TraceRunResult{Run: info, Events: events},
		})
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Run: %s\n", info.ID)
	fmt.Fprintf(w, "Scenario: %s\n", info.Scenario)
	fmt.Fprintf(w, "Ticks: %d  Events: %d\n\n", info.Ticks, info.Events)
	for i, ev := range events {
		fmt.Fprintf(w, "  [%d] tick=%d %-6s", i, ev.Tick, ev.Kind)
		if ev.Tag != "" {
			fmt.Fprintf(w, " tag=%s", ev.Tag)
		}
		if ev.Payload != "" {
			fmt.Fprintf(w, " payload=%s", ev.Payload)
		}
		if ev.Via != "" {
			fmt.Fprintf(w, " via=%s", ev.Via)
		}
		if ev.Kind == sim.EventIssue || ev.Kind == sim.EventCancel || ev.Kind == sim.EventDrain {
			fmt.Fprintf(w, " port=%d", ev.Port)
		}
		if ev.Kind == sim.EventFlush {
			fmt.Fprintf(w, " flushed=%d", ev.Count)
		}
		fmt.Fprintln(w)
	}
	return nil
}
