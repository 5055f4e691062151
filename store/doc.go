// Package store defines checkpoint persistence for graph threads.
//
// A Checkpoint records the JSON-encoded state of a thread together with its
// execution cursor (the nodes to run next and whether the thread is running,
// suspended for human input, or completed). The engine writes one checkpoint
// per step and reads the highest Version back to resume.
//
// Backends live in subpackages:
//
//   - memory: process-local map, used by tests and single-node development
//   - file: one JSON file per checkpoint under a directory per thread
//   - redis: github.com/redis/go-redis/v9 with an index set per thread
//   - postgres: github.com/jackc/pgx/v5 with JSONB columns
//   - sqlite: github.com/mattn/go-sqlite3 through database/sql
//
// Every backend wraps ErrNotFound when Load is asked for an unknown id.
package store
