package application

import (
	"errors"
	"fmt"
)

// ErrReceiptNotFound is returned when the node has no receipt for a hash,
// either because it is unknown or still pending.
var ErrReceiptNotFound = errors.New("receipt not found")

// ValidationError reports malformed caller input. It is raised before any
// network call is made.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// RangeUnserviceableError is returned when a log window still fails at the
// minimum window width.
type RangeUnserviceableError struct {
	From uint64
	To   uint64
	Err  error
}

func (e *RangeUnserviceableError) Error() string {
	return fmt.Sprintf("log range %d-%d unserviceable at minimum window: %v", e.From, e.To, e.Err)
}

func (e *RangeUnserviceableError) Unwrap() error {
	return e.Err
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
