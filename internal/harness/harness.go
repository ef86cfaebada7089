// Package harness runs scenario files against the composed core and
// checks their assertions.
//
// Each scenario runs in a fresh core with an in-memory recorder, so runs
// are isolated and fully deterministic: the only inputs are the scenario's
// tick script and geometry. The resulting trace doubles as the golden
// comparison artifact (see golden.go) and as the payload persisted by the
// CLI's trace store.
package harness

import (
	"fmt"

	"github.com/fawangZ/Nanhu-V3/internal/issue"
	"github.com/fawangZ/Nanhu-V3/internal/sim"
)

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates all assertions held.
	Pass bool `json:"pass"`

	// ScenarioName echoes the scenario.
	ScenarioName string `json:"scenario_name"`

	// Ticks is the number of ticks executed.
	Ticks uint64 `json:"ticks"`

	// Trace contains every event in emission order.
	Trace []sim.Event `json:"trace"`

	// Errors contains assertion failure messages; empty when Pass.
	Errors []string `json:"errors,omitempty"`

	// Final state, for final_* assertions and CLI output.
	QueueLen        uint32               `json:"queue_len"`
	CanAccept       bool                 `json:"can_accept"`
	WindowOccupancy int                  `json:"window_occupancy"`
	Counters        []issue.PortCounters `json:"counters"`
}

// AddError records an assertion failure and marks the result failed.
func (r *Result) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
	r.Pass = false
}

// Run executes a scenario and evaluates its assertions.
//
// Infrastructure problems (bad geometry) and invariant violations inside
// the model surface as a returned error; assertion failures land in the
// result. rec may be nil; when set it observes the same event stream the
// result captures (the CLI passes the trace-store recorder here).
func Run(scenario *Scenario, rec sim.Recorder) (*Result, error) {
	if err := scenario.Validate(); err != nil {
		return nil, err
	}
	cfg, err := scenario.CoreConfig()
	if err != nil {
		return nil, err
	}

	result := &Result{Pass: true, ScenarioName: scenario.Name}
	tee := sim.RecorderFunc(func(ev sim.Event) {
		result.Trace = append(result.Trace, ev)
		if rec != nil {
			rec.Record(ev)
		}
	})

	core, err := sim.NewCore(cfg, tee)
	if err != nil {
		return nil, err
	}

	for i, step := range scenario.Ticks {
		if _, err := core.Step(scenario.coreInput(step)); err != nil {
			return nil, fmt.Errorf("scenario %s: tick %d: %w", scenario.Name, i, err)
		}
	}

	result.Ticks = core.Tick()
	result.QueueLen = core.Queue().Len()
	result.CanAccept = core.Queue().CanAccept()
	result.WindowOccupancy = core.WindowOccupancy()
	result.Counters = core.Net().Counters()

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}
