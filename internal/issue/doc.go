// Package issue implements the select network: per-tick arbitration that
// picks which ready candidates advance to a small number of issue ports.
//
// ARCHITECTURE:
//
// Candidates arrive as a banks-by-slots matrix; each port owns an equal
// slice of banks and arbitrates only over that slice. Two policies run
// side by side on every tick:
//
//   - Priority: combinational, zero latency. Lowest-indexed valid
//     eligible candidate.
//   - Oldest: a balanced tournament reduction over sequence tags,
//     branching factor 8, ties broken toward the earlier index. The
//     winner is registered, so it lands one tick after its inputs.
//
// Resolution prefers the registered oldest winner when its source slot is
// still asserting the same tag this tick, and falls back to the priority
// winner otherwise. The fallback means strict global-oldest-first order
// is best-effort under back-to-back contention; that relaxation is part
// of the design and must not be tightened.
//
// Cancellation is a same-tick, highest-priority effect: if any asserted
// cancel source finds the winner's hazard countdown still sensitive, the
// port issues nothing this tick and no substitute is promoted. A global
// redirect suppresses every port and clears the registered stage.
//
// On a successful issue the winner's hazard countdowns shift down one
// position before the candidate is handed to the next pipeline stage.
package issue
