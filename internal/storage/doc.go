// Package storage persists owners, sources, watches, match records and the
// per-source message journal.
//
// Two SQL backends share one implementation:
//   - "sqlite": modernc.org/sqlite, a single-writer file database (default)
//   - "postgres": pgx through database/sql
//
// Every call is request-scoped; no transaction outlives a method call.
package storage
