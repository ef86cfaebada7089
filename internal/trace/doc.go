// Package trace provides durable storage for tick traces.
//
// A run is one execution of a scenario: a run row plus a totally ordered
// stream of event rows. SQLite keeps the dependency surface small while
// supporting the two access patterns the CLI needs: dump a run in order,
// and re-read a stored run to diff against a fresh execution (replay).
//
// The store never participates in model decisions; it only observes.
// Writes happen from the single-writer step loop, so the connection pool
// is pinned to one connection, mirroring SQLite's one-writer rule.
package trace
