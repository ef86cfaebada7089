package trace

import (
	"fmt"

	"github.com/fawangZ/Nanhu-V3/internal/sim"
)

// Diff describes one divergence between a stored trace and a fresh
// execution of the same scenario.
type Diff struct {
	Ord    int    `json:"ord"`
	Stored string `json:"stored"`
	Fresh  string `json:"fresh"`
}

// CompareEvents diffs two event streams position by position. An empty
// result means the streams are identical, which is the determinism
// property the replay command verifies.
func CompareEvents(stored, fresh []sim.Event) []Diff {
	var diffs []Diff
	n := len(stored)
	if len(fresh) > n {
		n = len(fresh)
	}
	for i := 0; i < n; i++ {
		var s, f string
		if i < len(stored) {
			s = formatEvent(stored[i])
		} else {
			s = "<missing>"
		}
		if i < len(fresh) {
			f = formatEvent(fresh[i])
		} else {
			f = "<missing>"
		}
		if s != f {
			diffs = append(diffs, Diff{Ord: i, Stored: s, Fresh: f})
		}
	}
	return diffs
}

func formatEvent(ev sim.Event) string {
	return fmt.Sprintf("tick=%d kind=%s port=%d tag=%s payload=%s via=%s count=%d",
		ev.Tick, ev.Kind, ev.Port, ev.Tag, ev.Payload, ev.Via, ev.Count)
}
