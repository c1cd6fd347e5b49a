// Package btusb is the BusyTag USB driver engine: monitor state machine,
// transport sessions, callback dispatch and the opaque handle registry that
// backs the exported C surface.
package btusb

import "errors"

// Status codes reported across the C boundary. Successful sends report the
// accepted byte count instead.
const (
	StatusInvalidHandle  int32 = -1
	StatusNoSession      int32 = -2
	StatusInvalidLength  int32 = -3
	StatusTransferFailed int32 = -4
	StatusInternal       int32 = -5
)

// messageOrDefault returns msg if present, otherwise fallback.
func messageOrDefault(msg, fallback string) string {
	if msg != "" {
		return msg
	}
	return fallback
}

type DriverError struct {
	msg string
}

func NewDriverError(msg string) DriverError {
	return DriverError{msg: msg}
}

func (e DriverError) Error() string {
	return messageOrDefault(e.msg, "busytag driver error")
}

// InvalidHandleError reports an operation on an unknown or destroyed handle.
type InvalidHandleError struct {
	DriverError
}

func (e InvalidHandleError) Error() string {
	return messageOrDefault(e.msg, "invalid or destroyed handle")
}

// NoSessionError reports a send attempted with no connected device.
type NoSessionError struct {
	DriverError
}

func (e NoSessionError) Error() string {
	return messageOrDefault(e.msg, "no active device session")
}

// InvalidLengthError reports a send whose length is out of bounds.
type InvalidLengthError struct {
	DriverError
}

func (e InvalidLengthError) Error() string {
	return messageOrDefault(e.msg, "transfer length out of bounds")
}

// TransferError reports a failed bulk transfer.
type TransferError struct {
	DriverError
}

func (e TransferError) Error() string {
	return messageOrDefault(e.msg, "bulk transfer failed")
}

// AllocationError reports resource exhaustion while creating a monitor or
// opening a session.
type AllocationError struct {
	DriverError
}

func (e AllocationError) Error() string {
	return messageOrDefault(e.msg, "resource allocation failed")
}

// StatusOf maps an error to its C-boundary status code.
func StatusOf(err error) int32 {
	switch {
	case err == nil:
		return 0
	case errors.As(err, &InvalidHandleError{}):
		return StatusInvalidHandle
	case errors.As(err, &NoSessionError{}):
		return StatusNoSession
	case errors.As(err, &InvalidLengthError{}):
		return StatusInvalidLength
	case errors.As(err, &TransferError{}):
		return StatusTransferFailed
	default:
		return StatusInternal
	}
}
