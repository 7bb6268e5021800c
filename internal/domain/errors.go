package domain

import (
	"errors"
	"fmt"
)

var (
	ErrSelfPairing  = errors.New("cannot pair a user with themselves")
	ErrPeerNotFound = errors.New("peer not found")
	ErrRoomNotFound = errors.New("room not found")
	ErrValidation   = errors.New("validation failed")
	ErrPersistence  = errors.New("persistence failure")
)

// ValidationError reports a malformed inbound event
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// PersistenceError wraps a store failure. Retryable is decided by the store
// that produced it.
type PersistenceError struct {
	Op        string
	Err       error
	Retryable bool
}

func NewPersistenceError(op string, err error, retryable bool) *PersistenceError {
	return &PersistenceError{Op: op, Err: err, Retryable: retryable}
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}

// IsRetryable reports whether err is a persistence failure worth retrying
func IsRetryable(err error) bool {
	var pErr *PersistenceError
	return errors.As(err, &pErr) && pErr.Retryable
}
