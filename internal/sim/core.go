// Package sim composes the dispatch queue and the select network into one
// lock-step core and runs it tick by tick.
//
// The core is deterministic by construction: a single goroutine steps all
// components, every component reads only state committed at the previous
// tick boundary, and the only clock is a logical tick counter. Running
// the same stimuli twice produces byte-identical event streams, which is
// what the replay command checks.
package sim

import (
	"fmt"

	"github.com/fawangZ/Nanhu-V3/internal/dispatch"
	"github.com/fawangZ/Nanhu-V3/internal/issue"
	"github.com/fawangZ/Nanhu-V3/internal/uop"
)

// Config fixes the geometry of a composed core.
type Config struct {
	Queue dispatch.Config
	Net   issue.Config
}

// Validate checks both geometries.
func (c Config) Validate() error {
	if err := c.Queue.Validate(); err != nil {
		return err
	}
	return c.Net.Validate()
}

// Input carries one tick's worth of external stimuli into the core.
type Input struct {
	// Enq is the admission vector into the dispatch queue.
	Enq []dispatch.EnqRequest

	// Redirect is the global rollback; it flushes the queue, the issue
	// window and the select network's pipeline register in one tick.
	Redirect dispatch.Redirect

	// Cancel holds the per-hazard-source cancel booleans for this tick.
	Cancel []bool

	// IssueReady is the downstream readiness per issue port; missing
	// lanes read as not ready.
	IssueReady []bool
}

// Output bundles the per-tick responses of both halves.
type Output struct {
	Queue dispatch.Output
	Net   issue.Output
}

// windowSlot is one entry of the issue window sitting between the
// queue's drain ports and the select network's candidate matrix.
type windowSlot struct {
	valid bool
	rec   uop.Record
}

// Core wires a dispatch queue, an issue window shaped like the select
// network's candidate matrix, and the network itself.
//
// Drained records land in free window slots and stand as candidates from
// the following tick; issued records leave their slot. The drain
// handshake readiness is derived from free window slots, which makes it
// monotone by construction.
type Core struct {
	cfg    Config
	clock  *Clock
	queue  *dispatch.Queue
	net    *issue.Network
	window [][]windowSlot
	rec    Recorder
}

// NewCore creates a core in its reset state. rec may be nil, in which
// case events are discarded.
func NewCore(cfg Config, rec Recorder) (*Core, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if uint32(cfg.Net.Banks*cfg.Net.SlotsPerBank) < cfg.Queue.DeqWidth {
		return nil, fmt.Errorf("sim: issue window smaller than drain width %d", cfg.Queue.DeqWidth)
	}
	q, err := dispatch.NewQueue(cfg.Queue)
	if err != nil {
		return nil, err
	}
	n, err := issue.NewNetwork(cfg.Net)
	if err != nil {
		return nil, err
	}
	window := make([][]windowSlot, cfg.Net.Banks)
	for b := range window {
		window[b] = make([]windowSlot, cfg.Net.SlotsPerBank)
	}
	if rec == nil {
		rec = RecorderFunc(func(Event) {})
	}
	return &Core{
		cfg:    cfg,
		clock:  NewClock(),
		queue:  q,
		net:    n,
		window: window,
		rec:    rec,
	}, nil
}

// Queue exposes the dispatch queue for inspection.
func (c *Core) Queue() *dispatch.Queue { return c.queue }

// Net exposes the select network for inspection.
func (c *Core) Net() *issue.Network { return c.net }

// Tick returns the current tick.
func (c *Core) Tick() uint64 { return c.clock.Current() }

// WindowOccupancy returns the number of valid issue-window entries.
func (c *Core) WindowOccupancy() int {
	n := 0
	for _, bank := range c.window {
		for _, s := range bank {
			if s.valid {
				n++
			}
		}
	}
	return n
}

// Step advances the whole core by one tick.
func (c *Core) Step(in Input) (Output, error) {
	tick := c.clock.Current()

	// Candidates are the window as committed at the previous boundary.
	cands := c.candidates()

	// Drain readiness derives from free window slots; counting them up
	// from port 0 keeps the handshake monotone by construction.
	free := c.freeSlots()
	deqReady := make([]bool, c.cfg.Queue.DeqWidth)
	for k := range deqReady {
		deqReady[k] = free > k
	}

	qOut, err := c.queue.Step(dispatch.Input{
		Enq:      in.Enq,
		DeqReady: deqReady,
		Redirect: in.Redirect,
	})
	if err != nil {
		return Output{}, err
	}

	nOut, err := c.net.Step(issue.Input{
		Cands:    cands,
		Ready:    in.IssueReady,
		Cancel:   in.Cancel,
		Redirect: in.Redirect.Valid,
	})
	if err != nil {
		return Output{}, err
	}

	// Commit the window: issued records leave, the redirect flushes
	// speculative entries, drained records land in free slots.
	payloads := make([]string, len(nOut.Ports))
	for p, port := range nOut.Ports {
		if port.Fired {
			payloads[p] = c.window[port.Bank][port.Slot].rec.Payload
			c.window[port.Bank][port.Slot] = windowSlot{}
		}
	}
	if in.Redirect.Valid {
		for b := range c.window {
			for s := range c.window[b] {
				if c.window[b][s].valid && in.Redirect.NeedFlush(c.window[b][s].rec.Tag) {
					c.window[b][s] = windowSlot{}
				}
			}
		}
	}
	for k := uint32(0); k < qOut.Fired; k++ {
		c.insert(qOut.Deq[k].Rec)
	}

	c.emit(tick, in, qOut, nOut, payloads)
	c.clock.Advance()
	return Output{Queue: qOut, Net: nOut}, nil
}

// candidates builds the per-tick arbitration view of the window.
func (c *Core) candidates() [][]issue.Candidate {
	cands := make([][]issue.Candidate, len(c.window))
	for b, bank := range c.window {
		cands[b] = make([]issue.Candidate, len(bank))
		for s, slot := range bank {
			if !slot.valid {
				continue
			}
			cands[b][s] = issue.Candidate{
				Valid:  true,
				Tag:    slot.rec.Tag,
				Cap:    slot.rec.Cap,
				Hazard: slot.rec.Hazard,
			}
		}
	}
	return cands
}

func (c *Core) freeSlots() int {
	n := 0
	for _, bank := range c.window {
		for _, s := range bank {
			if !s.valid {
				n++
			}
		}
	}
	return n
}

// insert places a drained record into the first free window slot in
// bank-major order. The drain readiness computed from free slots
// guarantees one exists.
func (c *Core) insert(rec uop.Record) {
	for b := range c.window {
		for s := range c.window[b] {
			if !c.window[b][s].valid {
				c.window[b][s] = windowSlot{valid: true, rec: rec}
				return
			}
		}
	}
}

// emit records this tick's observable events in a fixed order: admits,
// drains, flush, then per-port issue outcomes.
func (c *Core) emit(tick uint64, in Input, qOut dispatch.Output, nOut issue.Output, payloads []string) {
	if qOut.Accepted > 0 {
		for _, r := range in.Enq {
			if !r.Valid {
				continue
			}
			c.rec.Record(Event{
				Tick:    tick,
				Kind:    EventAdmit,
				Tag:     r.Rec.Tag.String(),
				Payload: r.Rec.Payload,
			})
		}
	}
	for k := uint32(0); k < qOut.Fired; k++ {
		c.rec.Record(Event{
			Tick:    tick,
			Kind:    EventDrain,
			Port:    int(k),
			Tag:     qOut.Deq[k].Rec.Tag.String(),
			Payload: qOut.Deq[k].Rec.Payload,
		})
	}
	if in.Redirect.Valid {
		c.rec.Record(Event{
			Tick:  tick,
			Kind:  EventFlush,
			Tag:   in.Redirect.Target.String(),
			Count: qOut.Flushed,
		})
	}
	for p, port := range nOut.Ports {
		switch {
		case port.Fired:
			via := "priority"
			if port.ViaOldest {
				via = "oldest"
			}
			c.rec.Record(Event{
				Tick:    tick,
				Kind:    EventIssue,
				Port:    p,
				Tag:     port.Cand.Tag.String(),
				Payload: payloads[p],
				Via:     via,
			})
		case port.Suppressed:
			c.rec.Record(Event{
				Tick: tick,
				Kind: EventCancel,
				Port: p,
			})
		}
	}
}
