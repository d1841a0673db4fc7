package market

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a user or product lookup misses.
	ErrNotFound = errors.New("market: not found")
	// ErrNoActiveSession is returned when a session is advanced for a user without one.
	ErrNoActiveSession = errors.New("market: no active session")
	// ErrAlreadyDecided is returned when a product has already left the pending state.
	ErrAlreadyDecided = errors.New("market: product already decided")
	// ErrForbidden is returned when a non-admin attempts an admin action.
	ErrForbidden = errors.New("market: admin only")
)

// ValidationError reports bad user input. The flow that produced it stays in place.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Code returns the error code used in handler summaries.
func (e *ValidationError) Code() string { return "validation" }

// DeliveryError wraps a transport failure for a single recipient.
type DeliveryError struct {
	Recipient int64
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver to %d: %v", e.Recipient, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Code returns the error code used in handler summaries.
func (e *DeliveryError) Code() string { return "delivery" }

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
