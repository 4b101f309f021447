// Package store adapts the vendor's SQLite settings database for migration
// sessions.
//
// The store file belongs to the vendor application. This package never
// creates, migrates or re-configures it; it only opens a session against
// an existing file.
//
// # Sessions
//
//   - Read-only sessions (mode=ro) back listing and inspection commands.
//   - Write sessions use locking_mode=EXCLUSIVE and busy_timeout=0. Once
//     AcquireExclusive succeeds the engine lock is held until Close, and
//     contention is reported immediately as ErrLocked.
//   - Every statement runs on one pinned *sql.Conn, so transactions, lock
//     state and pragmas all belong to the same connection.
//
// # Snapshots
//
// The store file handle is opened before the engine opens the database and
// closed after it. Snapshot reads through that handle, which keeps the
// engine's POSIX locks intact while the backup copy is taken.
//
// AcquireExclusive never writes. WAL stores keep committed frames outside
// the main file until Checkpoint folds them in, so callers checkpoint only
// once they are about to back up and write.
//
// # Drivers
//
// The default build uses github.com/mattn/go-sqlite3 (cgo). Building with
// -tags modernc_sqlite switches to the pure Go modernc.org/sqlite driver.
package store
