package devices

import "errors"

// Common device errors that are platform-agnostic.
var (
	// ErrTimeout is returned when a transfer does not complete within a tick.
	ErrTimeout = errors.New("timeout")

	// ErrInvalidValue is returned when an invalid parameter value is provided.
	ErrInvalidValue = errors.New("invalid value")

	// ErrInvalidSize is returned when a buffer size or address is out of range.
	ErrInvalidSize = errors.New("invalid size")

	// ErrInvalidResponse is returned when a device returns an unexpected response.
	ErrInvalidResponse = errors.New("invalid response")

	// ErrInvalidState is returned when a device is in an invalid state for the operation.
	ErrInvalidState = errors.New("invalid state")
)
