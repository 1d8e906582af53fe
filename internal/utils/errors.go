package utils

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals an absent record in any backing store.
	ErrNotFound = errors.New("not found")
	// ErrInvalidConfig signals a campaign configuration rejected at create time.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrInvalidTransition signals a lifecycle transition that is not allowed
	// from the current status.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// AppError wraps an operation, human-facing message, and underlying error.
type AppError struct {
	Op  string
	Msg string
	Err error
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(op, msg string, err error) error {
	return &AppError{Op: op, Msg: msg, Err: err}
}
