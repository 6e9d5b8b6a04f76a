package devices

import "errors"

var (
	// ErrNotFound indicates no device exists with the given id
	ErrNotFound = errors.New("device not found")

	// ErrInvalid indicates the device payload failed validation
	ErrInvalid = errors.New("invalid device")

	// ErrRequestFailed wraps any persistence failure
	ErrRequestFailed = errors.New("device request failed")
)
