package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidTaskID   = errors.New("invalid task id")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrValidation      = errors.New("validation failed")
	ErrIncompleteTask  = errors.New("task not completed")
	ErrNoResults       = errors.New("no results")
	ErrNoQueryResults  = errors.New("no query results")
	ErrMalformedResult = errors.New("malformed result payload")
	ErrTransport       = errors.New("transport error")
)

// OpError records which operation on which task failed and why.
// Err wraps one of the sentinels above so callers can use errors.Is.
type OpError struct {
	Op         string
	TaskID     string
	StatusCode int
	Err        error
}

func (e *OpError) Error() string {
	msg := e.Op
	if e.TaskID != "" {
		msg += " task " + e.TaskID
	}
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (http %d)", e.StatusCode)
	}
	return msg + ": " + e.Err.Error()
}

func (e *OpError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is a transport-level failure the caller
// may retry. Application errors (404, 409, 422, state checks) are not.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransport)
}

// StatusCode extracts the HTTP status recorded on err, or 0.
func StatusCode(err error) int {
	var opErr *OpError
	if errors.As(err, &opErr) {
		return opErr.StatusCode
	}
	return 0
}
