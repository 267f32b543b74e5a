package audio

import (
	"errors"
	"fmt"
)

// Media failure kinds.
var (
	// ErrPermissionDenied indicates the microphone could not be opened for
	// lack of permission.
	ErrPermissionDenied = errors.New("audio: permission denied")

	// ErrDeviceUnavailable indicates the capture device is missing or busy.
	ErrDeviceUnavailable = errors.New("audio: device unavailable")
)

// MediaError is a failure to acquire local media.
type MediaError struct {
	// Kind is ErrPermissionDenied or ErrDeviceUnavailable.
	Kind error

	// Device names the device, if known.
	Device string

	// Cause is the underlying error.
	Cause error
}

// Error implements the error interface.
func (e *MediaError) Error() string {
	msg := e.Kind.Error()
	if e.Device != "" {
		msg += " (" + e.Device + ")"
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is.
func (e *MediaError) Unwrap() []error {
	return []error{e.Kind, e.Cause}
}

// UserMessage returns the text shown to the user.
func (e *MediaError) UserMessage() string {
	if errors.Is(e.Kind, ErrPermissionDenied) {
		return "Microphone access was denied. Allow microphone access and start the interview again."
	}
	return "No microphone is available. Connect a microphone and try again."
}
