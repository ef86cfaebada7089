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

// recordRun executes the run command with --db and returns the stored
// run's identifier.
func recordRun(t *testing.T, dbPath string) string {
	t.Helper()

	cmd := NewRunCommand(&RootOptions{Format: "text"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"testdata/smoke.yaml", "--db", dbPath})
	require.NoError(t, cmd.Execute())

	st, err := trace.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()
	runs, err := st.ListRuns(context.Background())
	require.NoError(t, err)
	require.Len(t, runs, 1)
	return runs[0].ID
}

func TestReplayMatchesStoredRun(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "traces.db")
	id := recordRun(t, dbPath)

	buf := &bytes.Buffer{}
	cmd := NewReplayCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"testdata/smoke.yaml", "--db", dbPath, "--run", id})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "✓ Replay matches stored trace")
}

func TestReplayDetectsDivergence(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "traces.db")

	// Store a run claiming to be "smoke" with a trace the scenario
	// cannot reproduce.
	st, err := trace.Open(dbPath)
	require.NoError(t, err)
	ctx := context.Background()
	gen := testutil.NewFixedRunIDGenerator("run-tampered")
	id, err := st.BeginRun(ctx, gen, "smoke")
	require.NoError(t, err)
	require.NoError(t, st.AppendEvents(ctx, id, []sim.Event{
		{Tick: 0, Kind: sim.EventAdmit, Tag: "9(0)", Payload: "zz"},
	}))
	require.NoError(t, st.FinishRun(ctx, id, 4))
	require.NoError(t, st.Close())

	buf := &bytes.Buffer{}
	cmd := NewReplayCommand(&RootOptions{Format: "text", Verbose: true})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"testdata/smoke.yaml", "--db", dbPath, "--run", id})

	err = cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, buf.String(), "✗ Replay diverged")
	assert.Contains(t, buf.String(), "stored:")
}

func TestReplayDivergenceJSON(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "traces.db")

	st, err := trace.Open(dbPath)
	require.NoError(t, err)
	ctx := context.Background()
	id, err := st.BeginRun(ctx, testutil.NewFixedRunIDGenerator("run-json"), "smoke")
	require.NoError(t, err)
	require.NoError(t, st.FinishRun(ctx, id, 4))
	require.NoError(t, st.Close())

	buf := &bytes.Buffer{}
	cmd := NewReplayCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"testdata/smoke.yaml", "--db", dbPath, "--run", id})

	err = cmd.Execute()
	require.Error(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E_DETERMINISM", resp.Error.Code)
}

func TestReplayScenarioMismatch(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "traces.db")

	st, err := trace.Open(dbPath)
	require.NoError(t, err)
	ctx := context.Background()
	id, err := st.BeginRun(ctx, testutil.NewFixedRunIDGenerator("run-other"), "some-other-scenario")
	require.NoError(t, err)
	require.NoError(t, st.FinishRun(ctx, id, 1))
	require.NoError(t, st.Close())

	cmd := NewReplayCommand(&RootOptions{Format: "text"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"testdata/smoke.yaml", "--db", dbPath, "--run", id})

	err = cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "does not match")
}
