package model

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a record does not exist or does not belong
// to the calling owner. The two cases are deliberately indistinguishable so
// the API never leaks another owner's record IDs.
var ErrNotFound = errors.New("record not found")

// ValidationError reports bad input rejected before any storage write.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// StorageError wraps a local persistence failure. The operation that hit it
// was rolled back in full; nothing was partially applied.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
