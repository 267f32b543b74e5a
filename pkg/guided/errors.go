package guided

import "errors"

var (
	ErrMissingDependency = errors.New("guided: backend, speaker, transports and media are required")
	ErrNoInterview       = errors.New("guided: interview id required")
	ErrCaptureClosed     = errors.New("guided: capture transport closed")
	ErrSpeechLost        = errors.New("guided: speech connection lost")
	ErrSpeakerClosed     = errors.New("guided: speaker closed")
)
