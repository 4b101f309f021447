//go:build modernc_sqlite

package store

import (
	"errors"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// DriverName is the database/sql driver registered for the store.
const DriverName = "sqlite"

// dsn builds a modernc.org/sqlite URI DSN. Each pragma pair is formatted
// as _pragma=key(value) in the query string.
func dsn(path, mode string, pragmas [][2]string) string {
	s := "file:" + uriEscaper.Replace(path) + "?mode=" + mode
	for _, p := range pragmas {
		s += "&_pragma=" + p[0] + "(" + p[1] + ")"
	}
	return s
}

func isBusy(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		code := se.Code() & 0xff
		return code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED
	}
	return false
}
