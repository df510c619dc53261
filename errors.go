package mqttsvc

import (
	"errors"
	"fmt"
)

// Errors returned by the client. Use errors.Is to check for them.
var (
	// ErrValidation is returned when an argument is blank, malformed or unset.
	ErrValidation = errors.New("mqttsvc: invalid argument")

	// ErrRole is returned when an operation is not permitted for the
	// client's connection role.
	ErrRole = errors.New("mqttsvc: operation not permitted for connection role")

	// ErrTimeout is returned when the transport did not acknowledge in time.
	ErrTimeout = errors.New("mqttsvc: operation timed out")

	// ErrNotConnected is returned when publishing while disconnected.
	ErrNotConnected = errors.New("mqttsvc: client not connected")

	// ErrClosed is returned when the client has been closed.
	ErrClosed = errors.New("mqttsvc: client closed")
)

// PublishError is returned by Publish when the message could not be handed
// to the transport. It carries the original request for inspection.
type PublishError struct {
	ClientID string
	Request  PublishRequest
	Err      error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("mqttsvc: client %s could not publish to %q: %v", e.ClientID, e.Request.Topic, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

func validationErrorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func roleErrorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrRole, fmt.Sprintf(format, args...))
}
