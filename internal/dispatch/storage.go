package dispatch

import (
	"github.com/fawangZ/Nanhu-V3/internal/ring"
	"github.com/fawangZ/Nanhu-V3/internal/uop"
)

// slotWrite is one pending write into the storage array, produced by the
// queue's admission address assignment.
type slotWrite struct {
	addr uint32
	rec  uop.Record
}

// storageArray is the multi-port random-access store backing the queue.
// It holds records only; validity is owned entirely by the queue's
// pointers. Slots past the live window keep stale records, which is
// harmless because nothing reads them as valid.
type storageArray struct {
	slots []uop.Record
}

func newStorageArray(capacity uint32) *storageArray {
	return &storageArray{slots: make([]uop.Record, capacity)}
}

// read returns the record at addr. Any number of readers may call read in
// the same tick; they all observe the state committed at the previous
// tick boundary.
func (s *storageArray) read(addr uint32) uop.Record {
	return s.slots[addr]
}

// commit applies the tick's admission writes at the tick boundary.
// Address assignment guarantees distinct slots; a collision here means
// the assignment logic is broken, which is fatal.
func (s *storageArray) commit(tick uint64, writes []slotWrite) error {
	seen := make(map[uint32]bool, len(writes))
	for _, w := range writes {
		if seen[w.addr] {
			return newInvariantError(ErrCodeWriteCollision, tick,
				"two admissions target ring slot %d in one tick", w.addr)
		}
		seen[w.addr] = true
	}
	for _, w := range writes {
		s.slots[w.addr] = w.rec
	}
	return nil
}

// flushMatch evaluates the rollback predicate against every slot's tag,
// combinationally. The result covers all slots; the caller masks it with
// the occupied window before using it.
func (s *storageArray) flushMatch(pred func(ring.Tag) bool) []bool {
	match := make([]bool, len(s.slots))
	for i, rec := range s.slots {
		match[i] = pred(rec.Tag)
	}
	return match
}
