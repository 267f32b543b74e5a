package rtc

import (
	"errors"
	"fmt"
)

// Sentinel errors for the rtc package.
var (
	// ErrAlreadyConnected is returned by Connect while a connection is in
	// flight or established.
	ErrAlreadyConnected = errors.New("rtc: already connected")

	// ErrMissingCredential indicates Connect was called without a credential.
	ErrMissingCredential = errors.New("rtc: credential is required")

	// ErrMissingMedia indicates a sending flavor was connected without media.
	ErrMissingMedia = errors.New("rtc: local media is required for this flavor")

	// ErrMissingSignalingURL indicates no SDP endpoint was configured.
	ErrMissingSignalingURL = errors.New("rtc: signaling URL is required")

	// ErrInvalidReconnect indicates a negative reconnect bound.
	ErrInvalidReconnect = errors.New("rtc: reconnect attempts must not be negative")

	// ErrClosed indicates the transport was disconnected during an operation.
	ErrClosed = errors.New("rtc: transport closed")
)

// SignalingError is a failed SDP offer/answer exchange.
type SignalingError struct {
	// StatusCode is the HTTP status, 0 if the request never completed.
	StatusCode int

	// Body is the response body, truncated.
	Body string

	// Cause is the underlying error for transport-level failures.
	Cause error
}

// Error implements the error interface.
func (e *SignalingError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("rtc: signaling failed (HTTP %d): %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("rtc: signaling failed: %v", e.Cause)
}

// Unwrap returns the underlying cause.
func (e *SignalingError) Unwrap() error {
	return e.Cause
}

// TransportError is an ICE-level failure that exhausted the reconnect policy.
type TransportError struct {
	// Reason describes the failure.
	Reason string

	// Attempts is the number of reconnects made before giving up.
	Attempts int

	// Cause is the last underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("rtc: %s after %d reconnect attempts: %v", e.Reason, e.Attempts, e.Cause)
	}
	return fmt.Sprintf("rtc: %s after %d reconnect attempts", e.Reason, e.Attempts)
}

// Unwrap returns the underlying cause.
func (e *TransportError) Unwrap() error {
	return e.Cause
}
