package sessionfactory

import (
	"errors"
	"fmt"
)

// OpenErrorCode says which step of opening a session failed.
type OpenErrorCode string

const (
	// ErrCodeAcquire: the transaction factory could not produce a
	// transaction. Nothing was acquired, so nothing was closed.
	ErrCodeAcquire OpenErrorCode = "ACQUIRE_TRANSACTION"

	// ErrCodeAutoCommit: the adopted connection's auto-commit state could
	// not be read.
	ErrCodeAutoCommit OpenErrorCode = "READ_AUTOCOMMIT"

	// ErrCodeAssemble: building the executor chain or the session failed
	// after the transaction was acquired. The transaction was closed.
	ErrCodeAssemble OpenErrorCode = "ASSEMBLE_SESSION"
)

// OpenError is the single error kind returned when a session cannot be
// opened. Cause is the original failure; errors.Is and errors.As reach it
// through Unwrap.
type OpenError struct {
	Code  OpenErrorCode
	Cause error

	// DriverCode is the vendor error code found in Cause, if any.
	DriverCode string

	// Context is the diagnostic context rendered at the time of failure.
	Context string
}

func (e *OpenError) Error() string {
	msg := fmt.Sprintf("error opening session. Cause: %v", e.Cause)
	if e.DriverCode != "" {
		msg += fmt.Sprintf(" (driver code %s)", e.DriverCode)
	}
	return msg + e.Context
}

func (e *OpenError) Unwrap() error { return e.Cause }

// IsOpenError returns true if err is, or wraps, an OpenError.
// Uses errors.As to handle wrapped errors.
func IsOpenError(err error) bool {
	var oe *OpenError
	return errors.As(err, &oe)
}
