// Package store provides durable storage for bridge history using SQLite.
//
// The in-memory history ring only keeps the most recent entries. When a
// database path is configured, every appended entry is also written here by
// the history sink so the full traffic log survives eviction and restarts.
//
// # Schema
//
//	history(seq INTEGER PRIMARY KEY, origin TEXT, payload_json TEXT, created_at TEXT)
//
// Sequence numbers are assigned by the history log, never by the database.
// On startup the bridge reads LastSequence and resumes numbering after it, so
// sequence numbers stay unique across restarts.
//
// # Implementations
//
//   - SQLiteStore: modernc.org/sqlite (pure Go, no cgo), WAL journal mode
//   - MockStore: in-memory map for tests
package store
