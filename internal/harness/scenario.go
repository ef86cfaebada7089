package harness

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/fawangZ/Nanhu-V3/internal/dispatch"
	"github.com/fawangZ/Nanhu-V3/internal/issue"
	"github.com/fawangZ/Nanhu-V3/internal/ring"
	"github.com/fawangZ/Nanhu-V3/internal/sim"
	"github.com/fawangZ/Nanhu-V3/internal/uop"
)

// Scenario defines a conformance test scenario: a core geometry, a
// per-tick stimulus script, and assertions over the resulting trace and
// final state.
type Scenario struct {
	// Name uniquely identifies this scenario; golden files use it.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description,omitempty"`

	// TagSpace is the size of the wraparound sequence-tag space.
	TagSpace uint32 `yaml:"tag_space"`

	// Geometry fixes the queue and network dimensions.
	Geometry Geometry `yaml:"geometry"`

	// Ticks is the stimulus script, one entry per tick.
	Ticks []TickStep `yaml:"ticks"`

	// Assertions validate the trace and the final state.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Geometry mirrors sim.Config with YAML-friendly capability names.
type Geometry struct {
	Queue   dispatch.Config `yaml:"queue"`
	Network NetworkGeometry `yaml:"network"`
}

// NetworkGeometry is the select-network shape with capability sets given
// as name lists, one per port.
type NetworkGeometry struct {
	Banks         int        `yaml:"banks"`
	SlotsPerBank  int        `yaml:"slots_per_bank"`
	Ports         int        `yaml:"ports"`
	PortCaps      [][]string `yaml:"port_caps"`
	CancelSources int        `yaml:"cancel_sources,omitempty"`
	TreeArity     int        `yaml:"tree_arity,omitempty"`
}

// RecordStep describes one admitted record.
type RecordStep struct {
	// Tag is the sequence-tag index; Wrap sets the lap flag for records
	// allocated after a wrap of the tag space.
	Tag  uint32 `yaml:"tag"`
	Wrap bool   `yaml:"wrap,omitempty"`

	// Cap is the capability name; empty defaults to "alu".
	Cap string `yaml:"cap,omitempty"`

	// Hazard is the per-source countdown vector.
	Hazard []uint8 `yaml:"hazard,omitempty"`

	// Payload is carried verbatim into the trace.
	Payload string `yaml:"payload,omitempty"`
}

// RedirectStep describes a rollback request.
type RedirectStep struct {
	Target      uint32 `yaml:"target"`
	Wrap        bool   `yaml:"wrap,omitempty"`
	FlushItself bool   `yaml:"flush_itself,omitempty"`
}

// TickStep is one tick's worth of stimuli.
type TickStep struct {
	Enq        []RecordStep  `yaml:"enq,omitempty"`
	IssueReady []bool        `yaml:"issue_ready,omitempty"`
	Cancel     []bool        `yaml:"cancel,omitempty"`
	Redirect   *RedirectStep `yaml:"redirect,omitempty"`
}

// Assertion validates the trace or final state.
type Assertion struct {
	// Type selects the assertion:
	//   - "trace_contains": an event matching the set fields exists
	//   - "trace_order": payloads of Kind events appear in this order
	//   - "trace_count": exactly Count events of Kind exist
	//   - "final_queue": final queue occupancy / can-accept
	//   - "final_window": final issue-window occupancy
	//   - "counters": a port's counters equal the given values
	Type string `yaml:"type"`

	// Event matchers (trace_contains, trace_order, trace_count).
	Kind     string   `yaml:"kind,omitempty"`
	Tick     *uint64  `yaml:"tick,omitempty"`
	Port     *int     `yaml:"port,omitempty"`
	Tag      string   `yaml:"tag,omitempty"`
	Payload  string   `yaml:"payload,omitempty"`
	Via      string   `yaml:"via,omitempty"`
	Count    int      `yaml:"count,omitempty"`
	Payloads []string `yaml:"payloads,omitempty"`

	// Final-state expectations.
	Len       *uint32 `yaml:"len,omitempty"`
	CanAccept *bool   `yaml:"can_accept,omitempty"`
	Occupancy *int    `yaml:"occupancy,omitempty"`

	// Counter expectations (counters).
	IssuedOldest   *uint64 `yaml:"issued_oldest,omitempty"`
	IssuedPriority *uint64 `yaml:"issued_priority,omitempty"`
	Cancelled      *uint64 `yaml:"cancelled,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalQueue    = "final_queue"
	AssertFinalWindow   = "final_window"
	AssertCounters      = "counters"
)

// LoadScenario reads and validates a scenario from a YAML file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario: %w", err)
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("failed to parse scenario: %w", err)
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// Validate checks the scenario for structural problems before any tick
// runs: geometry constraints, capability names, tag ranges, assertion
// types.
func (sc *Scenario) Validate() error {
	if sc.Name == "" {
		return fmt.Errorf("scenario: name is required")
	}
	if sc.TagSpace == 0 {
		return fmt.Errorf("scenario %s: tag_space must be positive", sc.Name)
	}
	cfg, err := sc.CoreConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("scenario %s: %w", sc.Name, err)
	}
	for i, step := range sc.Ticks {
		for j, r := range step.Enq {
			if r.Tag >= sc.TagSpace {
				return fmt.Errorf("scenario %s: tick %d enq %d: tag %d outside tag space %d",
					sc.Name, i, j, r.Tag, sc.TagSpace)
			}
			if r.Cap != "" {
				if _, ok := uop.ParseCapability(r.Cap); !ok {
					return fmt.Errorf("scenario %s: tick %d enq %d: unknown capability %q",
						sc.Name, i, j, r.Cap)
				}
			}
		}
		if step.Redirect != nil && step.Redirect.Target >= sc.TagSpace {
			return fmt.Errorf("scenario %s: tick %d: redirect target %d outside tag space %d",
				sc.Name, i, step.Redirect.Target, sc.TagSpace)
		}
	}
	for _, a := range sc.Assertions {
		switch a.Type {
		case AssertTraceContains, AssertTraceOrder, AssertTraceCount,
			AssertFinalQueue, AssertFinalWindow, AssertCounters:
		default:
			return fmt.Errorf("scenario %s: unknown assertion type %q", sc.Name, a.Type)
		}
	}
	return nil
}

// CoreConfig translates the geometry into a sim.Config.
func (sc *Scenario) CoreConfig() (sim.Config, error) {
	g := sc.Geometry.Network
	caps := make([]uop.CapSet, len(g.PortCaps))
	for p, names := range g.PortCaps {
		for _, name := range names {
			c, ok := uop.ParseCapability(name)
			if !ok {
				return sim.Config{}, fmt.Errorf("scenario %s: port %d: unknown capability %q", sc.Name, p, name)
			}
			caps[p] |= uop.NewCapSet(c)
		}
	}
	return sim.Config{
		Queue: sc.Geometry.Queue,
		Net: issue.Config{
			Banks:         g.Banks,
			SlotsPerBank:  g.SlotsPerBank,
			Ports:         g.Ports,
			PortCaps:      caps,
			CancelSources: g.CancelSources,
			TreeArity:     g.TreeArity,
		},
	}, nil
}

// coreInput translates one tick step into a sim.Input.
func (sc *Scenario) coreInput(step TickStep) sim.Input {
	in := sim.Input{
		IssueReady: step.IssueReady,
		Cancel:     step.Cancel,
	}
	for _, r := range step.Enq {
		c := uop.CapALU
		if r.Cap != "" {
			c, _ = uop.ParseCapability(r.Cap)
		}
		in.Enq = append(in.Enq, dispatch.EnqRequest{
			Valid: true,
			Rec: uop.Record{
				Tag:     ring.At(sc.TagSpace, r.Tag, r.Wrap),
				Cap:     c,
				Hazard:  uop.HazardVec(r.Hazard).Clone(),
				Payload: r.Payload,
			},
		})
	}
	if step.Redirect != nil {
		in.Redirect = dispatch.Redirect{
			Valid:       true,
			Target:      ring.At(sc.TagSpace, step.Redirect.Target, step.Redirect.Wrap),
			FlushItself: step.Redirect.FlushItself,
		}
	}
	return in
}
