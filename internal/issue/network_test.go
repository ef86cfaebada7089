package issue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fawangZ/Nanhu-V3/internal/ring"
	"github.com/fawangZ/Nanhu-V3/internal/uop"
)

const tagSpace = 64

func cand(tag uint32) Candidate {
	return Candidate{Valid: true, Tag: ring.At(tagSpace, tag, false), Cap: uop.CapALU}
}

func allCaps() uop.CapSet {
	return uop.NewCapSet(uop.CapALU, uop.CapMul, uop.CapDiv, uop.CapLoad, uop.CapStore, uop.CapBranch)
}

// net14 builds a single-port network over one bank of four slots.
func net14(t *testing.T, cancelSources int) *Network {
	t.Helper()
	n, err := NewNetwork(Config{
		Banks:         1,
		SlotsPerBank:  4,
		Ports:         1,
		PortCaps:      []uop.CapSet{allCaps()},
		CancelSources: cancelSources,
	})
	require.NoError(t, err)
	return n
}

func step(t *testing.T, n *Network, in Input) Output {
	t.Helper()
	out, err := n.Step(in)
	require.NoError(t, err)
	return out
}

func TestConfig_Validate(t *testing.T) {
	assert.Error(t, Config{Banks: 3, SlotsPerBank: 2, Ports: 2,
		PortCaps: []uop.CapSet{allCaps(), allCaps()}}.Validate(),
		"banks must divide evenly across ports")
	assert.Error(t, Config{Banks: 2, SlotsPerBank: 2, Ports: 2,
		PortCaps: []uop.CapSet{allCaps()}}.Validate(),
		"one capability set per port")
	assert.NoError(t, Config{Banks: 2, SlotsPerBank: 2, Ports: 2,
		PortCaps: []uop.CapSet{allCaps(), allCaps()}}.Validate())
}

func TestOldestPick_MinimumTag(t *testing.T) {
	// For distinct tags the tournament must return the minimum under
	// wraparound-aware comparison, at every branching factor.
	entrants := []entrant{
		{idx: 0, cand: cand(9)},
		{idx: 1, cand: cand(4)},
		{idx: 2, cand: cand(30)},
		{idx: 3, cand: cand(7)},
		{idx: 4, cand: cand(12)},
	}
	for _, arity := range []int{2, 3, 8} {
		win, ok := oldestPick(entrants, arity)
		require.True(t, ok, "arity %d", arity)
		assert.Equal(t, 1, win.idx, "arity %d", arity)
	}
}

func TestOldestPick_WraparoundTags(t *testing.T) {
	// A tag allocated before a wrap of the tag space is older than one
	// allocated after, despite the smaller raw index of the latter.
	entrants := []entrant{
		{idx: 0, cand: Candidate{Valid: true, Tag: ring.At(tagSpace, 2, true), Cap: uop.CapALU}},
		{idx: 1, cand: Candidate{Valid: true, Tag: ring.At(tagSpace, 60, false), Cap: uop.CapALU}},
	}
	win, ok := oldestPick(entrants, 8)
	require.True(t, ok)
	assert.Equal(t, 1, win.idx)
}

func TestOldestPick_TieEarliestIndexWins(t *testing.T) {
	// Tags [5, 2, 7, 2]: the duplicate minimal tag resolves to index 1,
	// the first occurrence, never index 3.
	entrants := []entrant{
		{idx: 0, cand: cand(5)},
		{idx: 1, cand: cand(2)},
		{idx: 2, cand: cand(7)},
		{idx: 3, cand: cand(2)},
	}
	for _, arity := range []int{2, 8} {
		win, ok := oldestPick(entrants, arity)
		require.True(t, ok)
		assert.Equal(t, 1, win.idx, "arity %d", arity)
	}
}

func TestPriorityPick_LowestIndexValid(t *testing.T) {
	entrants := []entrant{
		{idx: 0, cand: Candidate{}},
		{idx: 1, cand: cand(9)},
		{idx: 2, cand: cand(1)},
	}
	win, ok := priorityPick(entrants)
	require.True(t, ok)
	assert.Equal(t, 1, win.idx, "priority ignores age entirely")

	_, ok = priorityPick([]entrant{{idx: 0}, {idx: 1}})
	assert.False(t, ok)
}

func TestNetwork_FirstTickFallsBackToPriority(t *testing.T) {
	// The oldest result is registered, so on the very first tick with
	// candidates only the priority policy can issue.
	n := net14(t, 0)
	cands := [][]Candidate{{cand(7), cand(3), {}, {}}}

	out := step(t, n, Input{Cands: cands, Ready: []bool{true}})
	require.True(t, out.Ports[0].Fired)
	assert.False(t, out.Ports[0].ViaOldest)
	assert.Equal(t, 0, out.Ports[0].Slot, "lowest index, not oldest tag")

	ctr := n.Counters()
	assert.Equal(t, uint64(1), ctr[0].IssuedPriority)
	assert.Equal(t, uint64(0), ctr[0].IssuedOldest)
}

func TestNetwork_RegisteredOldestWinsNextTick(t *testing.T) {
	n := net14(t, 0)
	cands := [][]Candidate{{cand(7), cand(3), cand(9), {}}}

	// Tick 0 registers the tree result; nothing is ready yet.
	step(t, n, Input{Cands: cands})

	// Tick 1: the registered winner (tag 3, slot 1) still asserts valid
	// and takes the port.
	out := step(t, n, Input{Cands: cands, Ready: []bool{true}})
	require.True(t, out.Ports[0].Fired)
	assert.True(t, out.Ports[0].ViaOldest)
	assert.Equal(t, 1, out.Ports[0].Slot)
	assert.Equal(t, uint64(1), n.Counters()[0].IssuedOldest)
}

func TestNetwork_StaleOldestPreferredOverNewerArrival(t *testing.T) {
	// A candidate that appeared only this tick can be older than the
	// registered winner; the registered winner still issues. This is the
	// documented throughput/strictness trade-off, not a defect.
	n := net14(t, 0)
	t0 := [][]Candidate{{cand(7), {}, {}, {}}}
	step(t, n, Input{Cands: t0})

	t1 := [][]Candidate{{cand(7), cand(2), {}, {}}}
	out := step(t, n, Input{Cands: t1, Ready: []bool{true}})
	require.True(t, out.Ports[0].Fired)
	assert.True(t, out.Ports[0].ViaOldest)
	assert.Equal(t, 0, out.Ports[0].Slot, "registered tag-7 winner, not the fresh tag-2")
}

func TestNetwork_FallbackWhenRegisteredWinnerGone(t *testing.T) {
	n := net14(t, 0)
	step(t, n, Input{Cands: [][]Candidate{{cand(7), cand(3), {}, {}}}})

	// The registered winner's slot dropped valid; a different record in
	// another slot issues through the priority fallback.
	out := step(t, n, Input{
		Cands: [][]Candidate{{cand(7), {}, cand(9), {}}},
		Ready: []bool{true},
	})
	require.True(t, out.Ports[0].Fired)
	assert.False(t, out.Ports[0].ViaOldest)
	assert.Equal(t, 0, out.Ports[0].Slot)
}

func TestNetwork_RegisteredWinnerSlotReusedByNewTag(t *testing.T) {
	// The winner's slot is valid but now holds a different tag: the
	// registered result must not be trusted.
	n := net14(t, 0)
	step(t, n, Input{Cands: [][]Candidate{{{}, cand(3), {}, {}}}})

	out := step(t, n, Input{
		Cands: [][]Candidate{{cand(8), cand(11), {}, {}}},
		Ready: []bool{true},
	})
	require.True(t, out.Ports[0].Fired)
	assert.False(t, out.Ports[0].ViaOldest)
	assert.Equal(t, 0, out.Ports[0].Slot)
}

func TestNetwork_EligibilityFilter(t *testing.T) {
	n, err := NewNetwork(Config{
		Banks:        2,
		SlotsPerBank: 2,
		Ports:        2,
		PortCaps: []uop.CapSet{
			uop.NewCapSet(uop.CapALU),
			uop.NewCapSet(uop.CapLoad),
		},
	})
	require.NoError(t, err)

	load := Candidate{Valid: true, Tag: ring.At(tagSpace, 1, false), Cap: uop.CapLoad}
	alu := Candidate{Valid: true, Tag: ring.At(tagSpace, 2, false), Cap: uop.CapALU}

	// Bank 0 (port 0) holds a load the port cannot serve; bank 1
	// (port 1) holds an ALU record it cannot serve either.
	out := step(t, n, Input{
		Cands: [][]Candidate{{load, alu}, {alu, load}},
		Ready: []bool{true, true},
	})
	require.True(t, out.Ports[0].Fired)
	assert.Equal(t, 1, out.Ports[0].Slot, "port 0 issues the ALU record")
	require.True(t, out.Ports[1].Fired)
	assert.Equal(t, 1, out.Ports[1].Slot, "port 1 issues the load")
}

func TestNetwork_CancellationSuppressesWholePort(t *testing.T) {
	// The selected winner is hazard-sensitive to an asserted cancel
	// source: the port issues nothing, not even the other valid
	// candidate.
	n := net14(t, 2)
	sensitive := cand(1)
	sensitive.Hazard = uop.HazardVec{0b1, 0}
	safe := cand(9)

	out := step(t, n, Input{
		Cands:  [][]Candidate{{sensitive, safe, {}, {}}},
		Ready:  []bool{true},
		Cancel: []bool{true, false},
	})
	assert.False(t, out.Ports[0].Valid)
	assert.False(t, out.Ports[0].Fired)
	assert.True(t, out.Ports[0].Suppressed)
	assert.Equal(t, uint64(1), n.Counters()[0].Cancelled)
	assert.Equal(t, uint64(0), n.Counters()[0].IssuedPriority)
}

func TestNetwork_CancelSourceNotAssertedDoesNotSuppress(t *testing.T) {
	n := net14(t, 2)
	winner := cand(1)
	winner.Hazard = uop.HazardVec{0b1, 0}

	out := step(t, n, Input{
		Cands:  [][]Candidate{{winner, {}, {}, {}}},
		Ready:  []bool{true},
		Cancel: []bool{false, true},
	})
	require.True(t, out.Ports[0].Fired, "sensitivity without an asserted source is harmless")
}

func TestNetwork_HazardShiftOnIssue(t *testing.T) {
	n := net14(t, 2)
	winner := cand(1)
	winner.Hazard = uop.HazardVec{0b100, 0b10}

	out := step(t, n, Input{
		Cands: [][]Candidate{{winner, {}, {}, {}}},
		Ready: []bool{true},
	})
	require.True(t, out.Ports[0].Fired)
	assert.Equal(t, uop.HazardVec{0b10, 0b1}, out.Ports[0].Cand.Hazard,
		"sensitivity horizon shrinks by one on issue")

	// Not ready: winner presented, hazard untouched.
	out = step(t, n, Input{Cands: [][]Candidate{{winner, {}, {}, {}}}})
	require.True(t, out.Ports[0].Valid)
	assert.False(t, out.Ports[0].Fired)
	assert.Equal(t, uop.HazardVec{0b100, 0b10}, out.Ports[0].Cand.Hazard)
}

func TestNetwork_RedirectSuppressesAndClearsPipeline(t *testing.T) {
	n := net14(t, 0)
	cands := [][]Candidate{{cand(7), cand(3), {}, {}}}
	step(t, n, Input{Cands: cands})

	// Redirect tick: no issue anywhere, registered stage cleared.
	out := step(t, n, Input{Cands: cands, Ready: []bool{true}, Redirect: true})
	assert.False(t, out.Ports[0].Valid)

	// Next tick falls back to priority because the pipeline was flushed.
	out = step(t, n, Input{Cands: cands, Ready: []bool{true}})
	require.True(t, out.Ports[0].Fired)
	assert.False(t, out.Ports[0].ViaOldest)
	assert.Equal(t, 0, out.Ports[0].Slot)
}

func TestNetwork_ReadinessHoleIsFatal(t *testing.T) {
	n, err := NewNetwork(Config{
		Banks: 2, SlotsPerBank: 1, Ports: 2,
		PortCaps: []uop.CapSet{allCaps(), allCaps()},
	})
	require.NoError(t, err)

	_, err = n.Step(Input{
		Cands: [][]Candidate{{cand(1)}, {cand(2)}},
		Ready: []bool{false, true},
	})
	require.Error(t, err)
	assert.Equal(t, ErrCodeReadinessHole, InvariantCodeOf(err))
}

func TestNetwork_CandidateShapeIsFatal(t *testing.T) {
	n := net14(t, 0)
	_, err := n.Step(Input{Cands: [][]Candidate{{cand(1)}}})
	require.Error(t, err)
	assert.Equal(t, ErrCodeCandidateShape, InvariantCodeOf(err))
}
