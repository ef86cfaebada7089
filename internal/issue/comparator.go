package issue

import "github.com/fawangZ/Nanhu-V3/internal/ring"

// entrant is one arbitration candidate flattened out of the bank matrix,
// carrying the index used by the priority policy and the tie rule.
type entrant struct {
	idx        int
	bank, slot int
	cand       Candidate
}

// priorityPick is the priority comparator leaf: the lowest-indexed valid
// entrant. Combinational, no latency.
func priorityPick(cands []entrant) (entrant, bool) {
	for _, e := range cands {
		if e.cand.Valid {
			return e, true
		}
	}
	return entrant{}, false
}

// olderOf is the oldest comparator leaf: the entrant with the older
// sequence tag under wraparound-aware comparison. Equal tags break
// toward the earlier index, which keeps the result deterministic when
// duplicate tags are structurally possible.
func olderOf(a, b entrant) entrant {
	if ring.Older(b.cand.Tag, a.cand.Tag) {
		return b
	}
	if !ring.Older(a.cand.Tag, b.cand.Tag) && b.idx < a.idx {
		return b
	}
	return a
}

// oldestPick folds the valid entrants through a balanced reduction tree
// of the given branching factor and returns the overall oldest. The fold
// is an explicit parameterized grouping rather than recursion per pair,
// mirroring the bounded-depth tournament it models.
func oldestPick(cands []entrant, arity int) (entrant, bool) {
	if arity < 2 {
		arity = 2
	}
	level := make([]entrant, 0, len(cands))
	for _, e := range cands {
		if e.cand.Valid {
			level = append(level, e)
		}
	}
	if len(level) == 0 {
		return entrant{}, false
	}
	for len(level) > 1 {
		next := make([]entrant, 0, (len(level)+arity-1)/arity)
		for lo := 0; lo < len(level); lo += arity {
			hi := lo + arity
			if hi > len(level) {
				hi = len(level)
			}
			win := level[lo]
			for _, e := range level[lo+1 : hi] {
				win = olderOf(win, e)
			}
			next = append(next, win)
		}
		level = next
	}
	return level[0], true
}
