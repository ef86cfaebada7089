package trace

import (
	"context"
	"fmt"

	"github.com/fawangZ/Nanhu-V3/internal/sim"
)

// RunInfo summarizes one stored run.
type RunInfo struct {
	ID       string `json:"id"`
	Scenario string `json:"scenario"`
	Ticks    uint64 `json:"ticks"`
	Finished bool   `json:"finished"`
	Events   int    `json:"events"`
}

// ListRuns returns all runs, oldest first. UUIDv7 run identifiers sort
// by creation time, so ordering by id is ordering by age.
func (s *Store) ListRuns(ctx context.Context) ([]RunInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.scenario, r.ticks, r.finished, COUNT(e.ord)
		FROM runs r LEFT JOIN events e ON e.run_id = r.id
		GROUP BY r.id ORDER BY r.id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var out []RunInfo
	for rows.Next() {
		var ri RunInfo
		var finished int
		if err := rows.Scan(&ri.ID, &ri.Scenario, &ri.Ticks, &finished, &ri.Events); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		ri.Finished = finished != 0
		out = append(out, ri)
	}
	return out, rows.Err()
}

// GetRun returns one run's summary.
func (s *Store) GetRun(ctx context.Context, runID string) (RunInfo, error) {
	var ri RunInfo
	var finished int
	err := s.db.QueryRowContext(ctx, `
		SELECT r.id, r.scenario, r.ticks, r.finished, COUNT(e.ord)
		FROM runs r LEFT JOIN events e ON e.run_id = r.id
		WHERE r.id = ? GROUP BY r.id`, runID,
	).Scan(&ri.ID, &ri.Scenario, &ri.Ticks, &finished, &ri.Events)
	if err != nil {
		return RunInfo{}, fmt.Errorf("run %s: %w", runID, err)
	}
	ri.Finished = finished != 0
	return ri, nil
}

// ReadEvents returns a run's events in emission order.
func (s *Store) ReadEvents(ctx context.Context, runID string) ([]sim.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tick, kind, port, tag, payload, via, count
		FROM events WHERE run_id = ? ORDER BY ord`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to read events for run %s: %w", runID, err)
	}
	defer rows.Close()

	var out []sim.Event
	for rows.Next() {
		var ev sim.Event
		if err := rows.Scan(&ev.Tick, &ev.Kind, &ev.Port, &ev.Tag, &ev.Payload, &ev.Via, &ev.Count); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
