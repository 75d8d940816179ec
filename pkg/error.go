package pkg

import (
	"errors"
	"fmt"
)

// Device and transport errors.
var (
	// ErrDeviceNotFound indicates no device matches the configured identifiers,
	// or the device disappeared while in use.
	ErrDeviceNotFound = errors.New("device not found")

	// ErrPermissionDenied indicates the device node or interface could not be
	// opened or claimed with the current privileges.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrDeviceBusy indicates the interface is claimed by another owner, or the
	// session is already executing a command.
	ErrDeviceBusy = errors.New("device busy")

	// ErrTransportTimeout indicates a bulk transfer did not complete in time.
	ErrTransportTimeout = errors.New("transport timeout")

	// ErrTransportIO indicates a bulk transfer failed at the USB layer.
	ErrTransportIO = errors.New("transport I/O error")

	// ErrStall indicates an endpoint stall condition. Stalls are the only
	// failure class the transport retries on its own.
	ErrStall = errors.New("endpoint stalled")

	// ErrNotSupported indicates an unsupported platform or operation.
	ErrNotSupported = errors.New("not supported")
)

// Frame errors.
var (
	// ErrMalformedFrame indicates a frame or reply whose structure does not
	// match the protocol layout.
	ErrMalformedFrame = errors.New("malformed frame")

	// ErrIntegrityMismatch indicates the integrity field of a decoded frame
	// does not match its contents.
	ErrIntegrityMismatch = errors.New("integrity mismatch")

	// ErrPayloadTooLarge indicates a payload or argument block exceeds the
	// protocol cap for its opcode.
	ErrPayloadTooLarge = errors.New("payload too large")
)

// Transfer and session errors.
var (
	// ErrEmptyPayload indicates a transfer was requested with no bytes.
	ErrEmptyPayload = errors.New("empty payload")

	// ErrInvalidParameter indicates an invalid parameter was provided.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrTransferFailed indicates a chunked transfer was aborted. The error
	// chain carries a [*TransferError] naming the chunk.
	ErrTransferFailed = errors.New("transfer failed")

	// ErrUnexpectedState indicates a command is invalid for the current
	// device state.
	ErrUnexpectedState = errors.New("unexpected device state")

	// ErrCancelled indicates an operation stopped at a frame boundary because
	// its context was cancelled.
	ErrCancelled = errors.New("cancelled")

	// ErrSessionClosed indicates the session no longer owns a transport,
	// either after Close or after a device restart.
	ErrSessionClosed = errors.New("session closed")
)

// TransferError reports the chunk at which a transfer was aborted.
//
// AtChunk is 1-based; zero means the header frame failed before any chunk
// was sent.
type TransferError struct {
	Kind    string
	AtChunk int
	Err     error
}

// Error implements the error interface.
func (e *TransferError) Error() string {
	return fmt.Sprintf("%s transfer failed at chunk %d: %v", e.Kind, e.AtChunk, e.Err)
}

// Unwrap returns the transport error that aborted the transfer.
func (e *TransferError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrTransferFailed.
func (e *TransferError) Is(target error) bool {
	return target == ErrTransferFailed
}

// CommandError reports the session command that failed.
type CommandError struct {
	Command string
	Err     error
}

// Error implements the error interface.
func (e *CommandError) Error() string {
	return e.Command + ": " + e.Err.Error()
}

// Unwrap returns the underlying failure.
func (e *CommandError) Unwrap() error {
	return e.Err
}

// Kind returns the sentinel describing the failure class of err, or nil if
// err does not belong to the taxonomy.
func Kind(err error) error {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// kinds lists the taxonomy in matching priority order. ErrTransferFailed
// comes first so an aborted transfer is reported as such rather than by its
// transport cause.
var kinds = []error{
	ErrTransferFailed,
	ErrDeviceNotFound,
	ErrPermissionDenied,
	ErrDeviceBusy,
	ErrTransportTimeout,
	ErrStall,
	ErrTransportIO,
	ErrMalformedFrame,
	ErrIntegrityMismatch,
	ErrPayloadTooLarge,
	ErrEmptyPayload,
	ErrInvalidParameter,
	ErrUnexpectedState,
	ErrCancelled,
	ErrSessionClosed,
	ErrNotSupported,
}
