package dispatch

import (
	"fmt"

	"github.com/fawangZ/Nanhu-V3/internal/ring"
	"github.com/fawangZ/Nanhu-V3/internal/uop"
)

// Config fixes the geometry of a dispatch queue.
type Config struct {
	// Capacity is the number of ring slots.
	Capacity uint32 `yaml:"capacity" json:"capacity"`

	// EnqWidth is the admission width: up to this many records may be
	// admitted per tick, all-or-nothing.
	EnqWidth uint32 `yaml:"enq_width" json:"enq_width"`

	// DeqWidth is the drain width: this many handshake ports are exposed
	// through the staging driver.
	DeqWidth uint32 `yaml:"deq_width" json:"deq_width"`
}

// Validate checks the geometry constraints.
//
// Capacity must be at least twice the admission width because the
// can-accept gate is registered one tick ahead: up to one full admission
// batch can be in flight against a stale free-count.
func (c Config) Validate() error {
	if c.Capacity == 0 || c.EnqWidth == 0 || c.DeqWidth == 0 {
		return fmt.Errorf("dispatch: capacity, enq_width and deq_width must be positive")
	}
	if c.Capacity < 2*c.EnqWidth {
		return fmt.Errorf("dispatch: capacity %d must be at least twice enq_width %d", c.Capacity, c.EnqWidth)
	}
	if c.DeqWidth > c.Capacity {
		return fmt.Errorf("dispatch: deq_width %d exceeds capacity %d", c.DeqWidth, c.Capacity)
	}
	return nil
}

// EnqRequest is one lane of the admission vector.
type EnqRequest struct {
	Valid bool
	Rec   uop.Record
}

// Redirect is the global rollback request. Every resident record whose
// tag is after Target (or equal, when FlushItself is set) is discarded.
type Redirect struct {
	Valid       bool
	Target      ring.Tag
	FlushItself bool
}

// NeedFlush is the rollback predicate applied to each resident tag.
func (r Redirect) NeedFlush(tag ring.Tag) bool {
	if !r.Valid {
		return false
	}
	if r.Target.Equal(tag) {
		return r.FlushItself
	}
	return r.Target.Before(tag)
}

// Input carries one tick's worth of stimuli into the queue.
type Input struct {
	// Enq is the admission vector, at most EnqWidth lanes.
	Enq []EnqRequest

	// NeedAlloc is the one-tick-ahead allocation probe: the upstream
	// allocator uses the returned addresses before committing requests.
	NeedAlloc []bool

	// DeqReady is the per-port consumer readiness, at most DeqWidth
	// lanes; missing lanes read as not ready. Ready on port k without
	// ready on every lower port is an invariant violation.
	DeqReady []bool

	// Redirect is the rollback request, if any. A redirect suppresses
	// admission and drain firing on the same tick.
	Redirect Redirect
}

// DeqPort is one drain handshake output.
type DeqPort struct {
	Valid bool
	Rec   uop.Record
}

// Output is the queue's visible response for one tick.
type Output struct {
	// CanAccept is the registered admission gate that applied to this
	// tick (computed from the previous tick's free count).
	CanAccept bool

	// Accepted is the number of records admitted this tick.
	Accepted uint32

	// AllocAddr holds the precomputed slot pointer for each NeedAlloc
	// probe lane; meaningful only on lanes whose probe was set.
	AllocAddr []ring.Ptr

	// Deq is the drain handshake view for this tick.
	Deq []DeqPort

	// Fired is the number of drain ports that completed their handshake.
	Fired uint32

	// Flushed is the number of records discarded by a redirect this tick.
	Flushed uint32
}

// Queue is the circular dispatch queue: a bounded in-order staging buffer
// between allocation and issue, with speculative rollback.
//
// All state commits atomically at the end of Step; nothing observes a
// partial update. Step is single-writer: it must be called from one
// goroutine, once per tick.
type Queue struct {
	cfg   Config
	store *storageArray
	stage *stagingDriver

	enqPtr    ring.Ptr
	deqPtr    []ring.Ptr
	count     uint32
	canAccept bool
	tick      uint64
}

// NewQueue creates a queue in its reset state: empty, head at slot 0,
// admission gate open. Dequeue lane k points k slots past the head, so
// the lanes address consecutive records; they all advance by the same
// fired count and the stagger is permanent.
func NewQueue(cfg Config) (*Queue, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	q := &Queue{
		cfg:    cfg,
		store:  newStorageArray(cfg.Capacity),
		stage:  newStagingDriver(cfg.DeqWidth),
		enqPtr: ring.New(cfg.Capacity),
		deqPtr: make([]ring.Ptr, cfg.DeqWidth),
	}
	for k := range q.deqPtr {
		q.deqPtr[k] = ring.New(cfg.Capacity).Inc(uint32(k))
	}
	q.canAccept = cfg.Capacity >= cfg.EnqWidth
	return q, nil
}

// Cap returns the configured capacity.
func (q *Queue) Cap() uint32 { return q.cfg.Capacity }

// Len returns the committed resident count.
func (q *Queue) Len() uint32 { return q.count }

// CanAccept returns the registered admission gate that will apply on the
// next tick.
func (q *Queue) CanAccept() bool { return q.canAccept }

// Tick returns the number of completed ticks.
func (q *Queue) Tick() uint64 { return q.tick }

// Step advances the queue by one tick.
//
// Evaluation order within the tick: drain handshakes are presented from
// the staged copies, admission is gated by the registered can-accept,
// the redirect (if any) rewinds the enqueue pointer, and finally storage,
// staging and the registered gate commit for the next tick. All reads
// observe the state committed at the previous boundary.
func (q *Queue) Step(in Input) (Output, error) {
	tick := q.tick
	if uint32(len(in.Enq)) > q.cfg.EnqWidth {
		return Output{}, fmt.Errorf("dispatch: %d admission lanes exceed enq_width %d", len(in.Enq), q.cfg.EnqWidth)
	}
	if uint32(len(in.DeqReady)) > q.cfg.DeqWidth {
		return Output{}, fmt.Errorf("dispatch: %d ready lanes exceed deq_width %d", len(in.DeqReady), q.cfg.DeqWidth)
	}
	if uint32(len(in.NeedAlloc)) > q.cfg.EnqWidth {
		return Output{}, fmt.Errorf("dispatch: %d probe lanes exceed enq_width %d", len(in.NeedAlloc), q.cfg.EnqWidth)
	}

	out := Output{CanAccept: q.canAccept}
	redirecting := in.Redirect.Valid

	// Drain: present staged copies, then count completed handshakes.
	out.Deq = q.stage.ports()
	ready := make([]bool, q.cfg.DeqWidth)
	copy(ready, in.DeqReady)
	if err := checkMonotonicReady(tick, ready); err != nil {
		return Output{}, err
	}
	var fired uint32
	if !redirecting {
		for k := uint32(0); k < q.cfg.DeqWidth; k++ {
			if !out.Deq[k].Valid || !ready[k] {
				break
			}
			fired++
		}
	}
	out.Fired = fired
	if fired > q.count {
		return Output{}, newInvariantError(ErrCodePointerOrder, tick,
			"drained %d entries with only %d resident", fired, q.count)
	}

	// Admission: all-or-nothing, gated by the registered can-accept and
	// suppressed under redirect. Slot addresses are a prefix sum over the
	// valid lanes, which keeps same-tick writes collision-free.
	var writes []slotWrite
	var accepted uint32
	if q.canAccept && !redirecting {
		for _, r := range in.Enq {
			if !r.Valid {
				continue
			}
			addr := q.enqPtr.Inc(accepted)
			writes = append(writes, slotWrite{addr: addr.Index, rec: r.Rec})
			accepted++
		}
	}
	out.Accepted = accepted

	// Allocation probe: the same prefix-sum assignment, published one
	// tick ahead so the allocator can precompute addresses.
	out.AllocAddr = make([]ring.Ptr, len(in.NeedAlloc))
	var probe uint32
	for i, need := range in.NeedAlloc {
		out.AllocAddr[i] = q.enqPtr.Inc(probe)
		if need {
			probe++
		}
	}

	// Redirect: build the flush mask over the occupied window and rewind
	// the enqueue pointer by its population.
	enqNext := q.enqPtr
	var flushed uint32
	if redirecting {
		var err error
		enqNext, flushed, err = q.applyFlush(tick, in.Redirect)
		if err != nil {
			return Output{}, err
		}
	} else {
		enqNext = q.enqPtr.Inc(accepted)
	}
	out.Flushed = flushed

	// Commit pointers and occupancy.
	countNext := q.count + accepted - fired - flushed
	if countNext > q.cfg.Capacity {
		return Output{}, newInvariantError(ErrCodePointerOrder, tick,
			"occupancy %d exceeds capacity %d", countNext, q.cfg.Capacity)
	}
	deqNext := make([]ring.Ptr, q.cfg.DeqWidth)
	for k := range q.deqPtr {
		deqNext[k] = q.deqPtr[k].Inc(fired)
	}
	if got := deqNext[0].Distance(enqNext); got != countNext {
		return Output{}, newInvariantError(ErrCodePointerOrder, tick,
			"pointer distance %d disagrees with occupancy %d", got, countNext)
	}

	// Stage the records visible next tick before the storage write port
	// commits: a freshly admitted record about to be exposed is taken
	// from the write port, not the stale slot.
	q.stage.refill(redirecting, deqNext, countNext, q.store, writes)
	if err := q.store.commit(tick, writes); err != nil {
		return Output{}, err
	}

	q.enqPtr = enqNext
	q.deqPtr = deqNext
	q.count = countNext
	q.canAccept = q.cfg.Capacity-countNext >= q.cfg.EnqWidth
	q.tick++
	return out, nil
}

// applyFlush computes the flush mask for a redirect, validates it against
// an independently derived contiguous-suffix mask, and returns the
// rewound enqueue pointer with the flushed population.
func (q *Queue) applyFlush(tick uint64, r Redirect) (ring.Ptr, uint32, error) {
	occupied := windowMask(q.deqPtr[0], q.enqPtr)
	match := q.store.flushMatch(r.NeedFlush)

	flushMask := make([]bool, q.cfg.Capacity)
	var flushed uint32
	for i := range flushMask {
		flushMask[i] = occupied[i] && match[i]
		if flushMask[i] {
			flushed++
		}
	}
	if flushed > q.count {
		return ring.Ptr{}, 0, newInvariantError(ErrCodeFlushOverflow, tick,
			"flush mask population %d exceeds occupancy %d", flushed, q.count)
	}

	enqNext := q.enqPtr.Dec(flushed)

	// Cross-check: the mask must be exactly the arc between the rewound
	// enqueue pointer and the old one. Anything else means the rollback
	// predicate punched a hole in the middle of the window.
	expected := windowMask(enqNext, q.enqPtr)
	for i := range expected {
		if flushMask[i] != expected[i] {
			return ring.Ptr{}, 0, &InvariantError{
				Code:    ErrCodeFlushNotContiguous,
				Message: "flush mask is not a contiguous suffix of the occupied window",
				Tick:    tick,
				Details: map[string]string{
					"flush_mask":    maskString(flushMask),
					"expected_mask": maskString(expected),
				},
			}
		}
	}
	return enqNext, flushed, nil
}

// checkMonotonicReady rejects a ready vector with a hole: port k may be
// ready only if every lower port is ready.
func checkMonotonicReady(tick uint64, ready []bool) error {
	for k := 1; k < len(ready); k++ {
		if ready[k] && !ready[k-1] {
			return newInvariantError(ErrCodeReadinessHole, tick,
				"port %d ready while port %d is not", k, k-1)
		}
	}
	return nil
}

// windowMask returns the per-slot membership mask of the arc [from, to).
//
// It is built from the XOR of two below-index masks: with equal lap flags
// the XOR itself is the arc, with opposite flags the arc wraps and is the
// complement. This stays correct for empty, full and wrapped windows.
func windowMask(from, to ring.Ptr) []bool {
	size := from.Size
	mask := make([]bool, size)
	fromBelow := from.Index
	toBelow := to.Index
	same := from.Flag == to.Flag
	for i := uint32(0); i < size; i++ {
		x := (i < fromBelow) != (i < toBelow)
		if same {
			mask[i] = x
		} else {
			mask[i] = !x
		}
	}
	return mask
}

func maskString(mask []bool) string {
	buf := make([]byte, len(mask))
	for i, b := range mask {
		if b {
			buf[i] = '1'
		} else {
			buf[i] = '0'
		}
	}
	return string(buf)
}
