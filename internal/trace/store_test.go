package trace

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fawangZ/Nanhu-V3/internal/sim"
)

type fixedGen struct{ id string }

func (g fixedGen) Generate() string { return g.id }

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleEvents() []sim.Event {
	return []sim.Event{
		{Tick: 0, Kind: sim.EventAdmit, Tag: "0(0)", Payload: "r1"},
		{Tick: 1, Kind: sim.EventDrain, Port: 0, Tag: "0(0)", Payload: "r1"},
		{Tick: 2, Kind: sim.EventIssue, Port: 0, Tag: "0(0)", Payload: "r1", Via: "priority"},
	}
}

func TestStore_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.BeginRun(ctx, fixedGen{"run-1"}, "smoke")
	require.NoError(t, err)
	assert.Equal(t, "run-1", id)

	require.NoError(t, s.AppendEvents(ctx, id, sampleEvents()))
	require.NoError(t, s.FinishRun(ctx, id, 3))

	got, err := s.ReadEvents(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, sampleEvents(), got)

	info, err := s.GetRun(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "smoke", info.Scenario)
	assert.Equal(t, uint64(3), info.Ticks)
	assert.True(t, info.Finished)
	assert.Equal(t, 3, info.Events)
}

func TestStore_AppendPreservesOrderAcrossBatches(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.BeginRun(ctx, fixedGen{"run-2"}, "batches")
	require.NoError(t, err)

	evs := sampleEvents()
	require.NoError(t, s.AppendEvents(ctx, id, evs[:1]))
	require.NoError(t, s.AppendEvents(ctx, id, evs[1:]))

	got, err := s.ReadEvents(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, evs, got)
}

func TestStore_ListRuns(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.BeginRun(ctx, fixedGen{"a-run"}, "first")
	require.NoError(t, err)
	_, err = s.BeginRun(ctx, fixedGen{"b-run"}, "second")
	require.NoError(t, err)

	runs, err := s.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "a-run", runs[0].ID)
	assert.Equal(t, "b-run", runs[1].ID)
	assert.False(t, runs[0].Finished)
}

func TestStore_FinishUnknownRun(t *testing.T) {
	s := openTestStore(t)
	err := s.FinishRun(context.Background(), "nope", 1)
	assert.Error(t, err)
}

func TestRecorder_BuffersAndFlushes(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.BeginRun(ctx, fixedGen{"run-3"}, "recorder")
	require.NoError(t, err)

	rec := NewRecorder(s, id)
	for _, ev := range sampleEvents() {
		rec.Record(ev)
	}
	require.NoError(t, rec.Flush(ctx))
	// A second flush with an empty buffer is a no-op.
	require.NoError(t, rec.Flush(ctx))

	got, err := s.ReadEvents(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, sampleEvents(), got)
}

func TestCompareEvents(t *testing.T) {
	a := sampleEvents()
	assert.Empty(t, CompareEvents(a, sampleEvents()))

	b := sampleEvents()
	b[2].Via = "oldest"
	diffs := CompareEvents(a, b)
	require.Len(t, diffs, 1)
	assert.Equal(t, 2, diffs[0].Ord)

	diffs = CompareEvents(a, a[:2])
	require.Len(t, diffs, 1)
	assert.Equal(t, "<missing>", diffs[0].Fresh)
}

func TestUUIDv7Generator(t *testing.T) {
	g := UUIDv7Generator{}
	a, b := g.Generate(), g.Generate()
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
}
