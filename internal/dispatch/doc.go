// Package dispatch implements the circular dispatch queue: the bounded,
// in-order staging buffer that holds decoded work records between
// allocation and issue.
//
// ARCHITECTURE:
//
// Three layers, leaves first:
//
//   - storageArray: multi-port random-access store for the ring slots.
//     No logic beyond collision-checked writes and the combinational
//     per-slot flush-match bits.
//   - stagingDriver: holds DeqWidth record copies one tick ahead of the
//     logical head, hiding the storage read latency. Forwards same-tick
//     admissions (bypass) and invalidates unconditionally on flush.
//   - Queue: orchestrates admission, prefix-sum address assignment,
//     rollback and the drain handshakes.
//
// Tick discipline:
//
// Step is the single unit of time. Everything it computes reads the state
// committed at the previous tick boundary; every update commits together
// at the end of Step. The can-accept admission gate is registered one
// tick ahead (free slots >= EnqWidth, pessimistic), which is why the
// geometry requires Capacity >= 2*EnqWidth.
//
// Rollback:
//
// A redirect carries a rollback target tag. Every resident record whose
// tag falls after the target is discarded in one tick; the flush mask is
// built from the occupied-window mask (XOR of two below-index masks,
// correct across ring wraparound) and cross-checked against the arc
// between the rewound and the old enqueue pointer. The mask failing to
// form one contiguous suffix is fatal: rollback always cuts program
// order at a single point.
//
// All pointer comparisons go through forward distance in the ring, never
// raw subtraction, so the bookkeeping holds across any number of wraps.
package dispatch
