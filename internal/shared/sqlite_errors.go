// Package shared holds helpers used by more than one package.
package shared

import (
	"errors"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// IsSQLiteConflictError reports whether err is a transient lock conflict
// (SQLITE_BUSY or SQLITE_LOCKED, including their extended codes) that a
// writer should retry. Errors that lost their driver type are matched by text.
func IsSQLiteConflictError(err error) bool {
	if err == nil {
		return false
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return true
		default:
			return false
		}
	}

	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}
