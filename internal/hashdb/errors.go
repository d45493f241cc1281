package hashdb

import (
	"errors"
	"fmt"
)

// ErrMissingDatabase is returned by LoadFile when the file does not exist.
var ErrMissingDatabase = errors.New("database file does not exist")

// ErrUnencodablePath is returned when a record path contains a tab or a
// newline, which the line format cannot represent.
var ErrUnencodablePath = errors.New("path contains tab or newline")

// ParseError reports a malformed line in a database file.
type ParseError struct {
	Line   int
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse database line %d: %s", e.Line, e.Reason)
}

// DirectoryMismatchError is returned when a loaded database is anchored at a
// different base directory than the one requested.
type DirectoryMismatchError struct {
	Stored    string
	Requested string
}

func (e *DirectoryMismatchError) Error() string {
	return fmt.Sprintf("database base directory %q does not match %q", e.Stored, e.Requested)
}

// CheckBaseDir returns a *DirectoryMismatchError unless db is anchored at dir.
func (db *Database) CheckBaseDir(dir string) error {
	if db.baseDir != dir {
		return &DirectoryMismatchError{Stored: db.baseDir, Requested: dir}
	}
	return nil
}
