package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fawangZ/Nanhu-V3/internal/sim"
	"github.com/fawangZ/Nanhu-V3/internal/testutil"
	"github.com/fawangZ/Nanhu-V3/internal/trace"
)

// seedRun stores a small run and returns its identifier.
func seedRun(t *testing.T, dbPath string) string {
	t.Helper()
	st, err := trace.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	gen := testutil.NewFixedRunIDGenerator("run-aaa")
	id, err := st.BeginRun(ctx, gen, "seeded")
	require.NoError(t, err)
	require.NoError(t, st.AppendEvents(ctx, id, []sim.Event{
		{Tick: 0, Kind: sim.EventAdmit, Tag: "0(0)", Payload: "x"},
		{Tick: 1, Kind: sim.EventDrain, Tag: "0(0)", Payload: "x"},
	}))
	require.NoError(t, st.FinishRun(ctx, id, 2))
	return id
}

func TestTraceListEmptyStore(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "traces.db")
	st, err := trace.Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewTraceCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--db", dbPath})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "No runs found")
}

func TestTraceListRuns(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "traces.db")
	seedRun(t, dbPath)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewTraceCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--db", dbPath})

	require.NoError(t, cmd.Execute())
	output := buf.String()
	assert.Contains(t, output, "Stored runs: 1")
	assert.Contains(t, output, "run-aaa")
	assert.Contains(t, output, "seeded")
	assert.Contains(t, output, "finished")
}

func TestTraceDumpRun(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "traces.db")
	id := seedRun(t, dbPath)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewTraceCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--db", dbPath, "--run", id})

	require.NoError(t, cmd.Execute())
	output := buf.String()
	assert.Contains(t, output, "Run: run-aaa")
	assert.Contains(t, output, "admit")
	assert.Contains(t, output, "drain")
	assert.Contains(t, output, "tag=0(0)")
}

func TestTraceDumpRunJSON(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "traces.db")
	id := seedRun(t, dbPath)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "json"}
	cmd := NewTraceCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--db", dbPath, "--run", id})

	require.NoError(t, cmd.Execute())

	var resp struct {
		Status string         `json:"status"`
		Data   TraceRunResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "seeded", resp.Data.Run.Scenario)
	require.Len(t, resp.Data.Events, 2)
	assert.Equal(t, sim.EventAdmit, resp.Data.Events[0].Kind)
}

func TestTraceUnknownRun(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "traces.db")
	seedRun(t, dbPath)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewTraceCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--db", dbPath, "--run", "no-such-run"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
