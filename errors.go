package trellis

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by this package's API. Applications compare
// against these with errors.Is rather than parsing strings. Disconnect
// events never carry them: their Err is nil or the OS error.
var (
	// ErrProtocolViolation marks a peer sending a message that is
	// impossible in the connection's current state.
	ErrProtocolViolation = errors.New("trellis: protocol violation")

	// ErrClosed is returned by Write and Seek on a Stream that has
	// already been closed.
	ErrClosed = errors.New("trellis: closed")

	// ErrMessageTooLarge is returned by Stream.Write when a write would
	// extend the message past MaxMessageSize bytes.
	ErrMessageTooLarge = errors.New("trellis: message exceeds maximum size")
)

// HeaderError reports a malformed packet header: too short to contain
// the fields its type requires, or naming fields outside their valid
// range (e.g. a channel index out of bounds). It always wraps
// ErrProtocolViolation so callers can test for it with errors.Is.
type HeaderError struct {
	Msg string
}

func (e *HeaderError) Error() string { return "trellis: " + e.Msg }

func (e *HeaderError) Unwrap() error { return ErrProtocolViolation }

func errHeaderf(format string, args ...any) error {
	return &HeaderError{Msg: fmt.Sprintf(format, args...)}
}
