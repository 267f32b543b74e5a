package protocol

import (
	"errors"
	"fmt"
)

// Sentinel errors for the protocol package.
var (
	// ErrMalformed indicates the message is not valid JSON.
	ErrMalformed = errors.New("protocol: malformed message")

	// ErrMissingType indicates the message has no type discriminator.
	ErrMissingType = errors.New("protocol: missing type")

	// ErrMissingField indicates a known message type lacks a required field.
	ErrMissingField = errors.New("protocol: missing required field")
)

// ProtocolError describes an inbound message that could not be classified.
// It is logged and skipped; it never tears down the session.
type ProtocolError struct {
	// Type is the message type, if it could be decoded.
	Type MessageType

	// Cause is the underlying error.
	Cause error
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("protocol: %s: %v", e.Type, e.Cause)
	}
	return fmt.Sprintf("protocol: %v", e.Cause)
}

// Unwrap returns the underlying cause.
func (e *ProtocolError) Unwrap() error {
	return e.Cause
}

func missing(t MessageType, field string) error {
	return &ProtocolError{Type: t, Cause: fmt.Errorf("%w: %s", ErrMissingField, field)}
}
