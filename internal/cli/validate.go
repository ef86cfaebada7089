package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fawangZ/Nanhu-V3/internal/harness"
)

// ValidateResult holds the validation outcome for JSON output.
type ValidateResult struct {
	Scenario   string `json:"scenario"`
	TagSpace   uint32 `json:"tag_space"`
	Ticks      int    `json:"ticks"`
	Assertions int    `json:"assertions"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <scenario.yaml>",
		Short: "Validate a scenario file without running it",
		Long: `Validate a scenario file: geometry constraints, capability names,
tag ranges and assertion types. Nothing is executed.

Examples:
  nanhu validate ./scenarios/smoke.yaml
  nanhu validate ./scenarios/smoke.yaml --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	sc, err := harness.LoadScenario(path)
	if err != nil {
		if opts.Format == "json" {
			_ = writeJSON(cmd.OutOrStdout(), CLIResponse{
				Status: "error",
				Error:  &CLIError{Code: "E_SCENARIO", Message: err.Error()},
			})
		}
		return WrapExitError(ExitFailure, "scenario invalid", err)
	}

	result := ValidateResult{
		Scenario:   sc.Name,
		TagSpace:   sc.TagSpace,
		Ticks:      len(sc.Ticks),
		Assertions: len(sc.Assertions),
	}

	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), CLIResponse{Status: "ok", Data: result})
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "✓ Scenario valid: %s\n", result.Scenario)
	fmt.Fprintf(w, "  Tag space:  %d\n", result.TagSpace)
	fmt.Fprintf(w, "  Ticks:      %d\n", result.Ticks)
	fmt.Fprintf(w, "  Assertions: %d\n", result.Assertions)
	return nil
}
