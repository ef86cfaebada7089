// Package testutil provides deterministic substitutes for the few
// nondeterministic pieces of the toolchain, so tests and golden
// comparisons are repeatable.
package testutil

import (
	"fmt"
	"sync"
)

// FixedRunIDGenerator always returns the same run identifier.
//
// This enables deterministic trace-store tests: the same scenario with
// the same FixedRunIDGenerator produces byte-identical database rows.
//
// Thread-safety: FixedRunIDGenerator is stateless and safe for
// concurrent use.
type FixedRunIDGenerator struct {
	id string
}

// NewFixedRunIDGenerator creates a generator returning id.
// If id is empty, Generate() returns "test-run-default".
func NewFixedRunIDGenerator(id string) *FixedRunIDGenerator {
	if id == "" {
		id = "test-run-default"
	}
	return &FixedRunIDGenerator{id: id}
}

// Generate returns the fixed run identifier.
//
// Implements trace.RunIDGenerator.
func (g *FixedRunIDGenerator) Generate() string {
	return g.id
}

// SequenceRunIDGenerator returns run identifiers in a predictable
// sequence: run-000001, run-000002 and so on. Unlike the UUIDv7
// generator the sequence restarts with each generator, which keeps
// multi-run tests readable.
//
// Thread-safety: all methods are safe for concurrent use via internal
// mutex.
type SequenceRunIDGenerator struct {
	mu sync.Mutex
	n  int
}

// NewSequenceRunIDGenerator creates a sequence generator starting at
// run-000001.
func NewSequenceRunIDGenerator() *SequenceRunIDGenerator {
	return &SequenceRunIDGenerator{}
}

// Generate returns the next identifier in the sequence.
//
// Implements trace.RunIDGenerator.
func (g *SequenceRunIDGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("run-%06d", g.n)
}
