package guided

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/teslashibe/go-interviewer/pkg/audio"
	"github.com/teslashibe/go-interviewer/pkg/protocol"
	"github.com/teslashibe/go-interviewer/pkg/rtc"
)

// PlaybackTransport is the receive-only side of the signaling adapter. The
// owner routes its remote audio track to a player.
type PlaybackTransport interface {
	Connect(ctx context.Context, credential string, media rtc.Media) error
	Send(msg any)
	Disconnect()
	OnMessage(fn func(data []byte))
	OnDataChannelOpen(fn func())
	OnDisconnected(fn func(reason string))
}

var _ PlaybackTransport = (*rtc.Transport)(nil)

// CredentialFunc issues a credential for one realtime connection.
type CredentialFunc func(ctx context.Context) (string, error)

type speakEvent int

const (
	speakOpened speakEvent = iota
	speakResponseDone
	speakAudioStarted
	speakAudioStopped
	speakDisconnected
)

// RealtimeSpeaker reads text aloud with the realtime agent's voice. It keeps
// one receive-only connection and asks the agent to repeat each text
// verbatim; Speak returns when the agent's audio has finished.
type RealtimeSpeaker struct {
	audio.Callbacks

	transport  PlaybackTransport
	credential CredentialFunc
	logger     *slog.Logger

	events chan speakEvent
	errs   chan error

	// One utterance at a time.
	mu        sync.Mutex
	connected bool
	closed    bool
}

// NewRealtimeSpeaker creates a speaker on transport. The connection is
// opened on first use and reopened after it drops.
func NewRealtimeSpeaker(transport PlaybackTransport, credential CredentialFunc, logger *slog.Logger) *RealtimeSpeaker {
	if logger == nil {
		logger = slog.Default()
	}
	s := &RealtimeSpeaker{
		transport:  transport,
		credential: credential,
		logger:     logger.With("component", "guided.speaker"),
		events:     make(chan speakEvent, 16),
		errs:       make(chan error, 4),
	}
	transport.OnDataChannelOpen(func() { s.push(speakOpened) })
	transport.OnDisconnected(func(string) { s.push(speakDisconnected) })
	transport.OnMessage(s.handleMessage)
	return s
}

func (s *RealtimeSpeaker) push(ev speakEvent) {
	select {
	case s.events <- ev:
	default:
		s.logger.Warn("speaker event dropped", "event", ev)
	}
}

func (s *RealtimeSpeaker) handleMessage(data []byte) {
	ev, err := protocol.Parse(data)
	if err != nil {
		s.logger.Debug("dropping malformed message", "error", err)
		return
	}
	switch ev := ev.(type) {
	case protocol.TurnBoundary:
		switch {
		case ev.Kind == protocol.BoundaryResponse && ev.Phase == protocol.PhaseClose:
			s.push(speakResponseDone)
		case ev.Kind == protocol.BoundaryAudio && ev.Phase == protocol.PhaseOpen:
			s.push(speakAudioStarted)
		case ev.Kind == protocol.BoundaryAudio:
			s.push(speakAudioStopped)
		}
	case protocol.ErrorReported:
		select {
		case s.errs <- fmt.Errorf("guided: speech failed: %s", ev.Message):
		default:
		}
	}
}

// Speak reads text aloud and blocks until playback ends.
func (s *RealtimeSpeaker) Speak(ctx context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSpeakerClosed
	}

	s.drain()
	if !s.connected {
		if err := s.connect(ctx); err != nil {
			return err
		}
	}

	s.transport.Send(protocol.NewSpokenResponse(text))
	s.Started()
	defer s.Ended()

	var responded, playing bool
	for {
		select {
		case ev := <-s.events:
			switch ev {
			case speakResponseDone:
				responded = true
			case speakAudioStarted:
				playing = true
			case speakAudioStopped:
				playing = false
			case speakDisconnected:
				s.connected = false
				return ErrSpeechLost
			}
			if responded && !playing {
				return nil
			}
		case err := <-s.errs:
			return err
		case <-ctx.Done():
			// The agent keeps talking otherwise.
			s.connected = false
			s.transport.Disconnect()
			return ctx.Err()
		}
	}
}

func (s *RealtimeSpeaker) connect(ctx context.Context) error {
	credential, err := s.credential(ctx)
	if err != nil {
		return fmt.Errorf("guided: speech credential: %w", err)
	}
	if err := s.transport.Connect(ctx, credential, nil); err != nil {
		return fmt.Errorf("guided: speech connect: %w", err)
	}
	for {
		select {
		case ev := <-s.events:
			switch ev {
			case speakOpened:
				s.connected = true
				s.logger.Debug("speech connection open")
				return nil
			case speakDisconnected:
				return fmt.Errorf("guided: speech connect: %w", ErrSpeechLost)
			}
		case err := <-s.errs:
			s.transport.Disconnect()
			return err
		case <-ctx.Done():
			s.transport.Disconnect()
			return ctx.Err()
		}
	}
}

// drain discards events left over from an earlier utterance.
func (s *RealtimeSpeaker) drain() {
	for {
		select {
		case ev := <-s.events:
			if ev == speakDisconnected {
				s.connected = false
			}
		case <-s.errs:
		default:
			return
		}
	}
}

// Close drops the connection.
func (s *RealtimeSpeaker) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.connected = false
	s.transport.Disconnect()
	return nil
}

var _ audio.Speaker = (*RealtimeSpeaker)(nil)
