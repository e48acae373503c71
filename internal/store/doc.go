// Package store provides a SQLite-backed journal of listening sessions.
//
// The journal is append-only and records what a session did to the room
// state it mirrors:
//   - Sessions: one row per `thebeat listen` run (room, device id, start time)
//   - Entries: membership changes, registry resets, threshold-crossing poll
//     failures and volume changes, each stamped with the session's logical
//     sequence number
//
// Heart-rate values are never written. Entries carry participant ids and
// cue ids only.
//
// # Ordering
//
// Entries are ordered by seq within a session, never by wall time. The
// recorded_at column is informational.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
