package tts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/teslashibe/go-interviewer/pkg/audio"
)

// Speaker plays synthesized speech into an audio sink.
type Speaker struct {
	audio.Callbacks

	provider Provider
	sink     audio.Sink
	logger   *slog.Logger

	// One utterance at a time.
	mu      sync.Mutex
	started bool
}

// NewSpeaker creates a Speaker. The sink is started on first use.
func NewSpeaker(provider Provider, sink audio.Sink, logger *slog.Logger) *Speaker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Speaker{
		provider: provider,
		sink:     sink,
		logger:   logger.With("component", "tts.speaker"),
	}
}

// Speak synthesizes text and blocks until it has been played. Cancelling
// ctx discards buffered audio.
func (s *Speaker) Speak(ctx context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		if err := s.sink.Start(ctx); err != nil {
			return fmt.Errorf("tts: start sink: %w", err)
		}
		s.started = true
	}

	stream, err := s.provider.Stream(ctx, text)
	if err != nil {
		return err
	}
	defer stream.Close()

	s.Started()
	defer s.Ended()

	format := stream.Format()
	var written int
	for {
		data, err := stream.Read()
		if len(data) > 0 {
			var chunk audio.AudioChunk
			chunk.FromBytes(data, format.SampleRate, format.Channels)
			if werr := s.sink.Write(ctx, chunk); werr != nil {
				return s.interrupted(ctx, werr)
			}
			written += len(data)
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return s.interrupted(ctx, WrapError(s.provider.Name(), err))
		}
	}

	if err := s.sink.Flush(ctx); err != nil {
		return s.interrupted(ctx, err)
	}
	s.logger.Debug("spoke", "chars", len(text), "bytes", written, "duration", pcmDuration(written, format))
	return nil
}

func (s *Speaker) interrupted(ctx context.Context, err error) error {
	_ = s.sink.Clear()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// Close stops the sink and closes the provider.
func (s *Speaker) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.sink.Close()
	return s.provider.Close()
}

var _ audio.Speaker = (*Speaker)(nil)
