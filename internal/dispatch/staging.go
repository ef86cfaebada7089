package dispatch

import (
	"github.com/fawangZ/Nanhu-V3/internal/ring"
	"github.com/fawangZ/Nanhu-V3/internal/uop"
)

// stagedEntry is one registered copy of a resident record, held one tick
// ahead of the logical head to hide the storage array's read latency.
type stagedEntry struct {
	valid bool
	addr  uint32
	rec   uop.Record
}

// stagingDriver latches the next DeqWidth records each tick and exposes
// them as the queue's drain ports. The records it holds are copies; the
// backing slots stay resident until the handshake fires.
type stagingDriver struct {
	width   uint32
	entries []stagedEntry
}

func newStagingDriver(width uint32) *stagingDriver {
	return &stagingDriver{
		width:   width,
		entries: make([]stagedEntry, width),
	}
}

// ports returns the drain handshake view for the current tick. Validity
// is monotone by construction: entry k is valid only if at least k+1
// records were resident when the entries were latched.
func (d *stagingDriver) ports() []DeqPort {
	out := make([]DeqPort, d.width)
	for k, e := range d.entries {
		out[k] = DeqPort{Valid: e.valid, Rec: e.rec}
	}
	return out
}

// refill latches the entries that will be visible next tick.
//
// ptrs are the post-update dequeue pointers and occupancy the post-update
// resident count. A same-tick admission targeting a slot about to be
// staged is forwarded from the write port instead of the stale stored
// value. A flush invalidates every staged entry unconditionally; the
// surviving records are re-latched on the following tick.
func (d *stagingDriver) refill(flush bool, ptrs []ring.Ptr, occupancy uint32, store *storageArray, writes []slotWrite) {
	for k := range d.entries {
		if flush || occupancy <= uint32(k) {
			d.entries[k] = stagedEntry{}
			continue
		}
		addr := ptrs[k].Index
		rec := store.read(addr)
		for _, w := range writes {
			if w.addr == addr {
				rec = w.rec // same-tick bypass
				break
			}
		}
		d.entries[k] = stagedEntry{valid: true, addr: addr, rec: rec}
	}
}
