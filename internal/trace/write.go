package trace

import (
	"context"
	"fmt"

	"github.com/fawangZ/Nanhu-V3/internal/sim"
)

// BeginRun registers a new run and returns its identifier.
func (s *Store) BeginRun(ctx context.Context, gen RunIDGenerator, scenario string) (string, error) {
	id := gen.Generate()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, scenario) VALUES (?, ?)`, id, scenario)
	if err != nil {
		return "", fmt.Errorf("failed to insert run %s: %w", id, err)
	}
	return id, nil
}

// AppendEvents appends events to a run in emission order, atomically.
func (s *Store) AppendEvents(ctx context.Context, runID string, events []sim.Event) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var next int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(ord)+1, 0) FROM events WHERE run_id = ?`, runID,
	).Scan(&next); err != nil {
		return fmt.Errorf("failed to find next ord for run %s: %w", runID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO events (run_id, ord, tick, kind, port, tag, payload, via, count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, ev := range events {
		if _, err := stmt.ExecContext(ctx, runID, next+int64(i),
			ev.Tick, ev.Kind, ev.Port, ev.Tag, ev.Payload, ev.Via, ev.Count); err != nil {
			return fmt.Errorf("failed to insert event %d: %w", next+int64(i), err)
		}
	}
	return tx.Commit()
}

// FinishRun records the final tick count and marks the run complete.
func (s *Store) FinishRun(ctx context.Context, runID string, ticks uint64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET ticks = ?, finished = 1 WHERE id = ?`, ticks, runID)
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", runID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("run %s not found", runID)
	}
	return nil
}

// Recorder buffers events from a core and persists them in batches.
// sim.Recorder cannot return errors, so events accumulate in memory and
// land in the store on Flush.
type Recorder struct {
	store *Store
	runID string
	buf   []sim.Event
}

// NewRecorder creates a recorder appending to the given run.
func NewRecorder(store *Store, runID string) *Recorder {
	return &Recorder{store: store, runID: runID}
}

// Record implements sim.Recorder.
func (r *Recorder) Record(ev sim.Event) {
	r.buf = append(r.buf, ev)
}

// Flush persists buffered events and clears the buffer.
func (r *Recorder) Flush(ctx context.Context) error {
	if err := r.store.AppendEvents(ctx, r.runID, r.buf); err != nil {
		return err
	}
	r.buf = r.buf[:0]
	return nil
}
