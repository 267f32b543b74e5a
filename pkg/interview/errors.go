package interview

import (
	"errors"
	"fmt"

	"github.com/teslashibe/go-interviewer/pkg/audio"
	"github.com/teslashibe/go-interviewer/pkg/rtc"
)

// Sentinel errors for the interview package.
var (
	// ErrAlreadyActive indicates Start was called while a session is running.
	ErrAlreadyActive = errors.New("interview: session already active")

	// ErrNoSkills indicates Start was called without skills.
	ErrNoSkills = errors.New("interview: at least one skill is required")

	// ErrCannotEnd indicates Stop was called before the interview may end.
	ErrCannotEnd = errors.New("interview: interview cannot end yet")

	// ErrAborted indicates a Start was interrupted by Abort, Stop or Close.
	ErrAborted = errors.New("interview: start aborted")

	// ErrClosed indicates the session was closed.
	ErrClosed = errors.New("interview: session closed")

	// ErrMissingDependency indicates New was called without a collaborator.
	ErrMissingDependency = errors.New("interview: missing dependency")
)

// RemoteError is an error event reported by the remote agent.
type RemoteError struct {
	Code    string
	Message string
}

// Error implements the error interface.
func (e *RemoteError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("interview: remote error %s: %s", e.Code, e.Message)
	}
	return "interview: remote error: " + e.Message
}

// connectionLost is shown when a live session loses its transport.
const connectionLost = "connection lost"

// userMessage turns an error into the message shown to the user. Media
// errors carry their own wording; a terminal transport failure reads as a
// lost connection; everything else is shown as is.
func userMessage(err error) string {
	var mediaErr *audio.MediaError
	if errors.As(err, &mediaErr) {
		return mediaErr.UserMessage()
	}
	var transportErr *rtc.TransportError
	if errors.As(err, &transportErr) {
		return connectionLost
	}
	var remoteErr *RemoteError
	if errors.As(err, &remoteErr) {
		return remoteErr.Message
	}
	return err.Error()
}
