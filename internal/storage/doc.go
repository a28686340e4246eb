// Package storage keeps an optional, append-only history of check cycles.
//
// The history is write-only from the monitor's point of view: it is never
// read back to restore notification state after a restart.
//
// Drivers:
//   - "file": JSON Lines file (<path>.checks.jsonl)
//   - "sqlite": SQLite database (modernc.org/sqlite, pure Go)
package storage
