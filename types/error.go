package types

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced to direct callers. Transient backend failures are
// absorbed at component boundaries and never reach these.
var (
	// ErrEmptyQuery is returned when a search is attempted with a blank query.
	ErrEmptyQuery = errors.New("query must not be empty")

	// ErrUnknownWorker is returned when routing selects a worker that is not
	// registered.
	ErrUnknownWorker = errors.New("unknown worker")

	// ErrNoResponse is returned when a completed workflow produced no usable
	// answer message.
	ErrNoResponse = errors.New("no valid response in workflow result")
)

// ValidationError describes malformed caller input (bad filters, invalid
// collection names). It is surfaced immediately and never retried.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

// NewValidationError creates a ValidationError for the given field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
