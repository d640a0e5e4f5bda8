package catalog

import (
	"fmt"
)

// AlreadyExistsError is returned by create when the exact file (same
// path) is already cataloged.
type AlreadyExistsError struct {
	Filepath    string
	Checksum    string
	ReferenceID int64
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("%s is already cataloged (reference %d)", e.Filepath, e.ReferenceID)
}

// DuplicateContentError is returned by create when a different path
// already holds identical content.
type DuplicateContentError struct {
	ExistingFilepath string
	Checksum         string
}

func (e *DuplicateContentError) Error() string {
	return fmt.Sprintf("content %s already cataloged at %s", e.Checksum, e.ExistingFilepath)
}

// InvalidInputError reports a validation failure: a malformed or
// reserved tag, an out-of-range field, or an invalid cross-field
// combination. Raised before any transaction opens.
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalidInput(field, format string, args ...interface{}) error {
	return &InvalidInputError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
