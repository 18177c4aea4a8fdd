package store

import "strings"

// isUniqueConstraint reports whether err is a SQLite UNIQUE/PRIMARY KEY
// constraint violation. modernc.org/sqlite surfaces these as plain
// errors whose message contains the SQLite constraint text, so this
// checks the message rather than a typed sentinel.
func isUniqueConstraint(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint")
}
