package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// ErrLocked is wrapped by errors returned when another process holds the
// store and the exclusive lock cannot be taken immediately.
var ErrLocked = errors.New("store is locked by another process")

// readBusyTimeoutMS bounds how long read-only sessions wait for a writer.
// Write sessions never wait.
const readBusyTimeoutMS = 2000

// Querier is satisfied by *sql.Conn and *sql.Tx.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Execer is a Querier that can also execute statements.
type Execer interface {
	Querier
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Options configures Open.
type Options struct {
	// ReadOnly opens the store with mode=ro and never takes write locks.
	ReadOnly bool
}

// Store is one session against the vendor settings database.
// All statements run on a single pinned connection.
type Store struct {
	path     string
	readOnly bool
	file     *os.File
	db       *sql.DB
	conn     *sql.Conn
}

// Open opens an existing store file. It never creates one.
//
// Write sessions are opened with locking_mode=EXCLUSIVE and busy_timeout=0
// so that AcquireExclusive fails immediately instead of waiting for the
// vendor application.
func Open(ctx context.Context, path string, opts Options) (*Store, error) {
	// The handle is opened before the engine and closed after it: closing
	// any descriptor for the file drops the engine's POSIX locks.
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open store file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat store file: %w", err)
	}
	if info.IsDir() {
		f.Close()
		return nil, fmt.Errorf("open store file: %s is a directory", path)
	}

	mode := "rw"
	pragmas := [][2]string{{"busy_timeout", "0"}, {"locking_mode", "EXCLUSIVE"}}
	if opts.ReadOnly {
		mode = "ro"
		pragmas = [][2]string{{"busy_timeout", fmt.Sprint(readBusyTimeoutMS)}}
	}

	db, err := sql.Open(DriverName, dsn(path, mode, pragmas))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	conn, err := db.Conn(ctx)
	if err != nil {
		db.Close()
		f.Close()
		return nil, connectError(err)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		db.Close()
		f.Close()
		return nil, connectError(err)
	}

	return &Store{path: path, readOnly: opts.ReadOnly, file: f, db: db, conn: conn}, nil
}

// connectError reports contention on connect as ErrLocked. Connecting
// applies the DSN pragmas, which touch the file.
func connectError(err error) error {
	if isBusy(err) {
		return fmt.Errorf("%w: %v", ErrLocked, err)
	}
	return fmt.Errorf("connect to database: %w", err)
}

// Close releases the connection, then the held file handle.
// Safe to call more than once.
func (s *Store) Close() error {
	var errs []error
	if s.conn != nil {
		errs = append(errs, s.conn.Close())
		s.conn = nil
	}
	if s.db != nil {
		errs = append(errs, s.db.Close())
		s.db = nil
	}
	if s.file != nil {
		errs = append(errs, s.file.Close())
		s.file = nil
	}
	return errors.Join(errs...)
}

// Path returns the store file path.
func (s *Store) Path() string {
	return s.path
}

// Conn returns the session connection. It satisfies Execer.
func (s *Store) Conn() *sql.Conn {
	return s.conn
}

// BeginTx opens a transaction on the session connection.
func (s *Store) BeginTx(ctx context.Context) (*sql.Tx, error) {
	if s.readOnly {
		return nil, errors.New("begin transaction: store opened read-only")
	}
	return s.conn.BeginTx(ctx, nil)
}

// AcquireExclusive takes the engine's exclusive lock and keeps it for the
// rest of the session. It does not wait: contention returns ErrLocked.
// It does not write to the store file.
func (s *Store) AcquireExclusive(ctx context.Context) error {
	if s.readOnly {
		return errors.New("acquire exclusive lock: store opened read-only")
	}
	if _, err := s.conn.ExecContext(ctx, "BEGIN EXCLUSIVE"); err != nil {
		if isBusy(err) {
			return fmt.Errorf("%w: %v", ErrLocked, err)
		}
		return fmt.Errorf("acquire exclusive lock: %w", err)
	}
	// locking_mode=EXCLUSIVE keeps the lock after this empty commit.
	if _, err := s.conn.ExecContext(ctx, "COMMIT"); err != nil {
		return fmt.Errorf("acquire exclusive lock: %w", err)
	}
	return nil
}

// Checkpoint moves every committed WAL frame into the main file so that
// Snapshot sees the whole store. It is a no-op for rollback-journal
// stores. Call it only once a write is certain: it rewrites the main file.
func (s *Store) Checkpoint(ctx context.Context) error {
	var journal string
	if err := s.conn.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&journal); err != nil {
		return fmt.Errorf("read journal mode: %w", err)
	}
	if !strings.EqualFold(journal, "wal") {
		return nil
	}
	var busy, frames, checkpointed int
	if err := s.conn.QueryRowContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)").Scan(&busy, &frames, &checkpointed); err != nil {
		if isBusy(err) {
			return fmt.Errorf("%w: %v", ErrLocked, err)
		}
		return fmt.Errorf("checkpoint wal: %w", err)
	}
	if busy != 0 {
		return fmt.Errorf("%w: wal checkpoint blocked", ErrLocked)
	}
	return nil
}

// Snapshot copies the store file byte for byte to w. The caller must hold
// the exclusive lock so the file cannot change underneath the copy, and
// must Checkpoint a WAL store first.
func (s *Store) Snapshot(w io.Writer) (int64, error) {
	info, err := s.file.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat store file: %w", err)
	}
	n, err := io.Copy(w, io.NewSectionReader(s.file, 0, info.Size()))
	if err != nil {
		return n, fmt.Errorf("copy store file: %w", err)
	}
	if n != info.Size() {
		return n, fmt.Errorf("copy store file: copied %d of %d bytes", n, info.Size())
	}
	return n, nil
}

// IsLocked reports whether err is or wraps ErrLocked.
func IsLocked(err error) bool {
	return errors.Is(err, ErrLocked)
}

// QuoteIdent quotes a table or column name for use in SQL text.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// uriEscaper escapes the characters SQLite URI filenames treat specially.
var uriEscaper = strings.NewReplacer("%", "%25", "?", "%3f", "#", "%23")
