// Package ring provides circular pointer arithmetic for fixed-capacity
// buffers and wraparound program-order tags.
//
// A Ptr is an index into a ring of Size slots plus a lap flag that flips
// every time the index wraps. The flag is what makes the representation
// unambiguous across laps: two pointers with equal index and opposite flags
// are exactly Size apart. All ordering and occupancy questions are answered
// through forward distance, never through raw integer subtraction, so the
// arithmetic stays correct after any number of wraps.
package ring

import "fmt"

// Ptr is a circular pointer: an index into a ring of Size slots plus a lap
// flag disambiguating "slot N this lap" from "slot N last lap".
//
// The zero value is not usable; construct with New or At.
type Ptr struct {
	Size  uint32 `json:"size" yaml:"size"`
	Index uint32 `json:"index" yaml:"index"`
	Flag  bool   `json:"flag,omitempty" yaml:"flag,omitempty"`
}

// New returns a pointer at index 0 of a ring with the given size.
// Panics if size is 0.
func New(size uint32) Ptr {
	if size == 0 {
		panic("ring: size must be positive")
	}
	return Ptr{Size: size}
}

// At returns a pointer at a specific index and lap flag.
// Panics if index is out of range.
func At(size, index uint32, flag bool) Ptr {
	if size == 0 {
		panic("ring: size must be positive")
	}
	if index >= size {
		panic(fmt.Sprintf("ring: index %d out of range for size %d", index, size))
	}
	return Ptr{Size: size, Index: index, Flag: flag}
}

// Inc advances the pointer by k slots, flipping the lap flag on wrap.
// k must not exceed Size (a pointer never moves more than one full lap
// per tick).
func (p Ptr) Inc(k uint32) Ptr {
	if k > p.Size {
		panic(fmt.Sprintf("ring: advance by %d exceeds ring size %d", k, p.Size))
	}
	sum := p.Index + k
	if sum >= p.Size {
		return Ptr{Size: p.Size, Index: sum - p.Size, Flag: !p.Flag}
	}
	return Ptr{Size: p.Size, Index: sum, Flag: p.Flag}
}

// Dec rewinds the pointer by k slots, flipping the lap flag when the
// rewind crosses index 0. k must not exceed Size.
func (p Ptr) Dec(k uint32) Ptr {
	if k > p.Size {
		panic(fmt.Sprintf("ring: rewind by %d exceeds ring size %d", k, p.Size))
	}
	if k > p.Index {
		return Ptr{Size: p.Size, Index: p.Index + p.Size - k, Flag: !p.Flag}
	}
	return Ptr{Size: p.Size, Index: p.Index - k, Flag: p.Flag}
}

// Distance returns the forward distance from p to "to": the number of
// slots a pointer at p must advance to reach "to". With equal flags the
// pointers are on the same lap and the distance is the index difference;
// with opposite flags "to" is one lap ahead.
//
// The caller must ensure "to" is not behind p by more than one lap; the
// queue's pointer-order invariants guarantee this for all internal uses.
func (p Ptr) Distance(to Ptr) uint32 {
	if p.Flag == to.Flag {
		return to.Index - p.Index
	}
	return p.Size - p.Index + to.Index
}

// Before reports whether p is strictly older than o in ring order.
// Same lap: lower index is older. Opposite laps: the higher index is the
// one that has not wrapped yet, hence older.
func (p Ptr) Before(o Ptr) bool {
	if p.Flag == o.Flag {
		return p.Index < o.Index
	}
	return p.Index > o.Index
}

// Equal reports whether two pointers denote the same slot on the same lap.
func (p Ptr) Equal(o Ptr) bool {
	return p.Index == o.Index && p.Flag == o.Flag
}

// String renders the pointer as "index(flag)" for diagnostics.
func (p Ptr) String() string {
	lap := 0
	if p.Flag {
		lap = 1
	}
	return fmt.Sprintf("%d(%d)", p.Index, lap)
}

// Tag is a program-order sequence tag drawn from a fixed-size wraparound
// space. It reuses the circular pointer representation: the lap flag is
// what keeps age comparison correct across a wrap of the tag space.
type Tag = Ptr

// Older reports whether tag a denotes an older (earlier program order)
// item than tag b, accounting for wraparound. Equal tags are not older
// than each other; callers needing a tie rule apply it themselves.
func Older(a, b Tag) bool {
	return a.Before(b)
}
