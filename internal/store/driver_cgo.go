//go:build !modernc_sqlite

package store

import (
	"errors"

	"github.com/mattn/go-sqlite3"
)

// DriverName is the database/sql driver registered for the store.
const DriverName = "sqlite3"

// dsn builds a mattn/go-sqlite3 URI DSN. Each pragma pair is formatted as
// _key=value in the query string.
func dsn(path, mode string, pragmas [][2]string) string {
	s := "file:" + uriEscaper.Replace(path) + "?mode=" + mode
	for _, p := range pragmas {
		s += "&_" + p[0] + "=" + p[1]
	}
	return s
}

func isBusy(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
	}
	return false
}
