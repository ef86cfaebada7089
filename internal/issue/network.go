package issue

import (
	"fmt"

	"github.com/fawangZ/Nanhu-V3/internal/ring"
	"github.com/fawangZ/Nanhu-V3/internal/uop"
)

// DefaultTreeArity is the branching factor of the oldest-policy
// reduction tree.
const DefaultTreeArity = 8

// Candidate is the transient per-tick arbitration view of a live record.
type Candidate struct {
	Valid  bool           `json:"valid"`
	Tag    ring.Tag       `json:"tag"`
	Cap    uop.Capability `json:"cap"`
	Hazard uop.HazardVec  `json:"hazard,omitempty"`
}

// Config fixes the geometry of a select network.
type Config struct {
	// Banks is the number of candidate banks.
	Banks int `yaml:"banks" json:"banks"`

	// SlotsPerBank is the number of candidate slots per bank.
	SlotsPerBank int `yaml:"slots_per_bank" json:"slots_per_bank"`

	// Ports is the number of issue ports; Banks must divide evenly.
	Ports int `yaml:"ports" json:"ports"`

	// PortCaps holds the capability set each port serves.
	PortCaps []uop.CapSet `yaml:"-" json:"-"`

	// CancelSources is the number of external hazard sources.
	CancelSources int `yaml:"cancel_sources" json:"cancel_sources"`

	// TreeArity is the reduction-tree branching factor; 0 selects
	// DefaultTreeArity.
	TreeArity int `yaml:"tree_arity,omitempty" json:"tree_arity,omitempty"`
}

// Validate checks the geometry constraints.
func (c Config) Validate() error {
	if c.Banks <= 0 || c.SlotsPerBank <= 0 || c.Ports <= 0 {
		return fmt.Errorf("issue: banks, slots_per_bank and ports must be positive")
	}
	if c.Banks%c.Ports != 0 {
		return fmt.Errorf("issue: banks %d not divisible by ports %d", c.Banks, c.Ports)
	}
	if len(c.PortCaps) != c.Ports {
		return fmt.Errorf("issue: %d capability sets for %d ports", len(c.PortCaps), c.Ports)
	}
	if c.CancelSources < 0 {
		return fmt.Errorf("issue: cancel_sources must not be negative")
	}
	return nil
}

func (c Config) arity() int {
	if c.TreeArity == 0 {
		return DefaultTreeArity
	}
	return c.TreeArity
}

// oldestStage is the registered result of one port's reduction tree,
// holding a copy of the winning candidate to bridge the one-tick
// pipeline latency.
type oldestStage struct {
	valid      bool
	idx        int
	bank, slot int
	cand       Candidate
}

// PortCounters are the per-port observability counters. They influence
// no decision.
type PortCounters struct {
	IssuedOldest   uint64 `json:"issued_oldest"`
	IssuedPriority uint64 `json:"issued_priority"`
	Cancelled      uint64 `json:"cancelled"`
}

// Input carries one tick's worth of stimuli into the network.
type Input struct {
	// Cands is the candidate matrix, Banks rows of SlotsPerBank.
	Cands [][]Candidate

	// Ready is the per-port consumer readiness; missing lanes read as
	// not ready.
	Ready []bool

	// Cancel holds one boolean per hazard source, sampled this tick.
	Cancel []bool

	// Redirect suppresses every port and clears the registered
	// oldest-policy stage this tick.
	Redirect bool
}

// IssuePort is one port's arbitration outcome for a tick.
type IssuePort struct {
	// Valid means a winner survived eligibility, resolution and
	// cancellation this tick.
	Valid bool

	// Fired means the handshake completed (Valid and consumer ready).
	Fired bool

	// Bank and Slot locate the winning candidate's source.
	Bank, Slot int

	// Cand is the winning candidate. When Fired, its hazard countdowns
	// are already shifted for the next pipeline stage.
	Cand Candidate

	// ViaOldest distinguishes a registered oldest-policy win from the
	// priority fallback.
	ViaOldest bool

	// Suppressed means a winner existed but an asserted cancel source
	// retracted it this tick.
	Suppressed bool
}

// Output is the network's visible response for one tick.
type Output struct {
	Ports []IssuePort
}

// Network is the select network: issueNum ports arbitrating over equal
// slices of the candidate banks. Step is single-writer, one call per
// tick; all registered state commits at the end of Step.
type Network struct {
	cfg Config
	reg []oldestStage
	ctr []PortCounters

	tick uint64
}

// NewNetwork creates a network in its reset state: empty pipeline
// registers, zeroed counters.
func NewNetwork(cfg Config) (*Network, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Network{
		cfg: cfg,
		reg: make([]oldestStage, cfg.Ports),
		ctr: make([]PortCounters, cfg.Ports),
	}, nil
}

// Counters returns a copy of the per-port counters.
func (n *Network) Counters() []PortCounters {
	out := make([]PortCounters, len(n.ctr))
	copy(out, n.ctr)
	return out
}

// Tick returns the number of completed ticks.
func (n *Network) Tick() uint64 { return n.tick }

// Step advances the network by one tick.
func (n *Network) Step(in Input) (Output, error) {
	tick := n.tick
	if len(in.Cands) != n.cfg.Banks {
		return Output{}, newInvariantError(ErrCodeCandidateShape, tick,
			"%d candidate banks for configured %d", len(in.Cands), n.cfg.Banks)
	}
	for b, row := range in.Cands {
		if len(row) != n.cfg.SlotsPerBank {
			return Output{}, newInvariantError(ErrCodeCandidateShape, tick,
				"bank %d has %d slots, configured %d", b, len(row), n.cfg.SlotsPerBank)
		}
	}
	ready := make([]bool, n.cfg.Ports)
	copy(ready, in.Ready)
	for p := 1; p < len(ready); p++ {
		if ready[p] && !ready[p-1] {
			return Output{}, newInvariantError(ErrCodeReadinessHole, tick,
				"issue port %d ready while port %d is not", p, p-1)
		}
	}

	out := Output{Ports: make([]IssuePort, n.cfg.Ports)}
	regNext := make([]oldestStage, n.cfg.Ports)
	banksPerPort := n.cfg.Banks / n.cfg.Ports

	for p := 0; p < n.cfg.Ports; p++ {
		entrants := n.gather(in.Cands, p, banksPerPort)

		// Both policies evaluate every tick. The oldest result computed
		// here is registered and usable one tick later.
		prio, prioOK := priorityPick(entrants)
		old, oldOK := oldestPick(entrants, n.cfg.arity())
		if oldOK && !in.Redirect {
			regNext[p] = oldestStage{valid: true, idx: old.idx, bank: old.bank, slot: old.slot, cand: old.cand}
		}

		if in.Redirect {
			continue
		}

		// Resolution: the registered oldest winner is used only while
		// its source slot still asserts the same tag; otherwise the
		// zero-latency priority winner issues opportunistically.
		var chosen entrant
		var viaOldest, have bool
		if st := n.reg[p]; st.valid {
			if cur, ok := n.revalidate(in.Cands, p, banksPerPort, st); ok {
				chosen, viaOldest, have = cur, true, true
			}
		}
		if !have && prioOK {
			chosen, have = prio, true
		}
		if !have {
			continue
		}

		// Cancellation: same-tick, highest priority, no substitute.
		if cancelled(chosen.cand.Hazard, in.Cancel) {
			out.Ports[p].Suppressed = true
			n.ctr[p].Cancelled++
			continue
		}

		port := IssuePort{
			Valid:     true,
			Bank:      chosen.bank,
			Slot:      chosen.slot,
			Cand:      chosen.cand,
			ViaOldest: viaOldest,
		}
		if ready[p] {
			port.Fired = true
			port.Cand.Hazard = chosen.cand.Hazard.Shifted()
			if viaOldest {
				n.ctr[p].IssuedOldest++
			} else {
				n.ctr[p].IssuedPriority++
			}
		}
		out.Ports[p] = port
	}

	n.reg = regNext
	n.tick++
	return out, nil
}

// gather flattens port p's bank slice into entrants, applying the
// eligibility filter: a candidate whose capability the port does not
// serve arbitrates as invalid.
func (n *Network) gather(cands [][]Candidate, p, banksPerPort int) []entrant {
	caps := n.cfg.PortCaps[p]
	entrants := make([]entrant, 0, banksPerPort*n.cfg.SlotsPerBank)
	for rb := 0; rb < banksPerPort; rb++ {
		b := p*banksPerPort + rb
		for s := 0; s < n.cfg.SlotsPerBank; s++ {
			c := cands[b][s]
			if c.Valid && !caps.Has(c.Cap) {
				c.Valid = false
			}
			entrants = append(entrants, entrant{
				idx:  rb*n.cfg.SlotsPerBank + s,
				bank: b,
				slot: s,
				cand: c,
			})
		}
	}
	return entrants
}

// revalidate checks whether a registered winner's source slot still
// asserts the same tag this tick and, if so, returns the current view of
// that candidate (its hazard countdowns may have moved on).
func (n *Network) revalidate(cands [][]Candidate, p, banksPerPort int, st oldestStage) (entrant, bool) {
	cur := cands[st.bank][st.slot]
	if !cur.Valid || !cur.Tag.Equal(st.cand.Tag) {
		return entrant{}, false
	}
	if !n.cfg.PortCaps[p].Has(cur.Cap) {
		return entrant{}, false
	}
	return entrant{idx: st.idx, bank: st.bank, slot: st.slot, cand: cur}, true
}

// cancelled reports whether any asserted cancel source finds the hazard
// countdown still sensitive this tick.
func cancelled(hazard uop.HazardVec, cancel []bool) bool {
	for src, on := range cancel {
		if on && hazard.Sensitive(src) {
			return true
		}
	}
	return false
}
