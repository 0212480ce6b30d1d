package normalize

import (
	"errors"
	"fmt"
)

// Sentinel kinds of normalization failure. Use errors.Is against an *Error.
var (
	ErrMissingDate      = errors.New("missing date")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrEmptyDescription = errors.New("empty description")
)

// Error reports why a single candidate could not be normalized.
// It is local to that candidate and never aborts a batch.
type Error struct {
	Kind  error  // one of the Err* sentinels
	Field string // candidate field that failed
	Input string // offending text
	Err   error  // underlying parse error, if any
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("normalize: %v in %s %q: %v", e.Kind, e.Field, e.Input, e.Err)
	}
	return fmt.Sprintf("normalize: %v in %s %q", e.Kind, e.Field, e.Input)
}

func (e *Error) Unwrap() error {
	return e.Kind
}
