// Package store provides persistent storage for chatline using SQLite.
//
// # Architecture
//
// The Store interface covers three entity families:
//
//   - Session: conversation contexts keyed by a caller-supplied or generated ID
//   - Message: the append-only, session-partitioned transcript
//   - User: nickname-identified users
//
// SQLiteStore implements the interface on modernc.org/sqlite with WAL mode
// and automatic schema creation. MockStore is an in-memory double for tests.
//
// # Uniqueness backstops
//
// Get-or-create flows in higher layers rely on the store's uniqueness
// constraints rather than check-then-act:
//
//   - sessions.id PRIMARY KEY -> CreateSession returns ErrDuplicateSession
//   - users.nickname UNIQUE   -> CreateUser returns ErrDuplicateUser
//
// A caller that loses a creation race re-fetches the winning row.
//
// # Transcript semantics
//
// Messages are immutable once saved and ordered by created_at (stored as
// integer unix nanoseconds so ordering survives sub-second bursts). The
// durable log is unbounded; the bounded recent window lives in the
// conversation layer, not here.
package store
