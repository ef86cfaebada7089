// Package uop defines the shared work-record types that flow between the
// dispatch queue and the issue-select network: the record itself, the
// execution capability taxonomy, and the per-hazard-source countdown
// vectors that gate speculative cancellation.
package uop

import "github.com/fawangZ/Nanhu-V3/internal/ring"

// Capability identifies the kind of execution resource a record needs.
type Capability uint8

const (
	CapALU Capability = iota
	CapMul
	CapDiv
	CapLoad
	CapStore
	CapBranch

	capCount
)

// capNames is indexed by Capability for diagnostics and YAML decoding.
var capNames = [...]string{"alu", "mul", "div", "load", "store", "branch"}

// String returns the lowercase capability name.
func (c Capability) String() string {
	if int(c) < len(capNames) {
		return capNames[c]
	}
	return "unknown"
}

// ParseCapability maps a lowercase name to a Capability.
// Returns false for unknown names.
func ParseCapability(name string) (Capability, bool) {
	for i, n := range capNames {
		if n == name {
			return Capability(i), true
		}
	}
	return 0, false
}

// CapSet is a bitmask over capabilities, used to describe which kinds of
// work an issue port can serve.
type CapSet uint32

// NewCapSet builds a set from the given capabilities.
func NewCapSet(caps ...Capability) CapSet {
	var s CapSet
	for _, c := range caps {
		s |= 1 << c
	}
	return s
}

// Has reports whether the set contains c.
func (s CapSet) Has(c Capability) bool {
	return s&(1<<c) != 0
}

// Names returns the member capability names in declaration order.
func (s CapSet) Names() []string {
	var out []string
	for c := Capability(0); c < capCount; c++ {
		if s.Has(c) {
			out = append(out, c.String())
		}
	}
	return out
}

// HazardVec holds one countdown per external speculative hazard source.
// Each entry is a small shift register: bit 0 set means the owning record
// is still sensitive to a cancel from that source on the current tick.
// Entries only ever shift toward zero; the sensitivity horizon shrinks by
// one tick each time the record advances past arbitration.
type HazardVec []uint8

// Sensitive reports whether the record can still be cancelled by source
// src this tick. Sources beyond the vector length are never sensitive.
func (v HazardVec) Sensitive(src int) bool {
	if src < 0 || src >= len(v) {
		return false
	}
	return v[src]&1 != 0
}

// Shifted returns a copy with every countdown shifted down by one tick.
// The receiver is not modified; records are immutable once admitted.
func (v HazardVec) Shifted() HazardVec {
	if len(v) == 0 {
		return nil
	}
	out := make(HazardVec, len(v))
	for i, e := range v {
		out[i] = e >> 1
	}
	return out
}

// Clone returns an independent copy of the vector.
func (v HazardVec) Clone() HazardVec {
	if len(v) == 0 {
		return nil
	}
	out := make(HazardVec, len(v))
	copy(out, v)
	return out
}

// Record is one unit of decoded work. It is immutable once admitted to a
// queue: every downstream transformation (hazard shifting included) works
// on copies.
type Record struct {
	// Tag is the wraparound-aware program-order identifier.
	Tag ring.Tag `json:"tag"`

	// Cap is the execution capability the record requires.
	Cap Capability `json:"cap"`

	// Hazard is the per-source cancellation countdown vector.
	Hazard HazardVec `json:"hazard,omitempty"`

	// Payload is the opaque decoded content, carried for tracing.
	Payload string `json:"payload,omitempty"`
}
