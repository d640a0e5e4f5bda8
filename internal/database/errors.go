package database

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// ConsistencyError reports that a mutation affected a different number
// of rows than the catalog's invariants require. It indicates a bug or
// concurrent external mutation and always aborts the transaction.
type ConsistencyError struct {
	Op       string
	Expected int64
	Actual   int64
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("consistency violation in %s: expected %d rows, got %d", e.Op, e.Expected, e.Actual)
}

// VersionMismatchError is returned when the database schema version
// does not match the version this binary requires.
type VersionMismatchError struct {
	Current uint
	Target  uint
	Dirty   bool
}

func (e *VersionMismatchError) Error() string {
	if e.Dirty {
		return fmt.Sprintf("database schema is dirty at version %d (a previous migration failed)", e.Current)
	}
	return fmt.Sprintf("database schema version %d does not match required version %d", e.Current, e.Target)
}
