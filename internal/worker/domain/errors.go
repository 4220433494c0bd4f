package domain

import "errors"

var (
	// ErrRecordNotFound is returned when a record cannot be found in the database.
	// Fatal per work event: retrying cannot make the record appear.
	ErrRecordNotFound = errors.New("audit record not found")

	// ErrInvalidMessage is returned when an event payload is malformed
	ErrInvalidMessage = errors.New("invalid audit message")
)

// RetryableError wraps transient errors that should trigger a requeue
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}
