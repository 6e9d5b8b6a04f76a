package onboarding

import (
	"errors"
	"fmt"
)

var (
	ErrValidation    = errors.New("validation failed")
	ErrPrecondition  = errors.New("operation not allowed in current state")
	ErrPairingFailed = errors.New("pairing failed")

	// ErrInvalidSelection means the chosen spot is unknown or no longer
	// available. Refreshing the catalog and choosing again recovers.
	ErrInvalidSelection = errors.New("spot is not selectable")

	ErrEmptyIdentifier = errors.New("device identifier is empty")

	// ErrBusy rejects a pairing or scan while another one is outstanding.
	ErrBusy = errors.New("pairing attempt already in progress")

	// ErrCancelled is returned to an attempt whose session was cancelled
	// before the result arrived.
	ErrCancelled = errors.New("onboarding cancelled")

	// ErrAborted is returned when the caller gave up on an attempt. It does
	// not count against the attempt budget.
	ErrAborted = errors.New("pairing attempt aborted")
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// PreconditionError reports an operation invoked out of order. It points at
// a caller defect.
type PreconditionError struct {
	Op    string
	State State
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("cannot %s: not allowed in state %s", e.Op, e.State)
}

func (e *PreconditionError) Is(target error) bool {
	return target == ErrPrecondition
}

type PairingFailedError struct {
	DeviceID    string
	Reason      string
	Attempt     int
	MaxAttempts int
	Retryable   bool
	Err         error
}

func (e *PairingFailedError) Error() string {
	msg := fmt.Sprintf("pairing %s failed (attempt %d/%d): %s", e.DeviceID, e.Attempt, e.MaxAttempts, e.Reason)
	if !e.Retryable {
		msg += ", no attempts left"
	}
	return msg
}

func (e *PairingFailedError) Is(target error) bool {
	return target == ErrPairingFailed
}

func (e *PairingFailedError) Unwrap() error {
	return e.Err
}
