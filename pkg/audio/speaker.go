package audio

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Speaker says text aloud. Speak blocks until playback finishes or ctx is
// done.
type Speaker interface {
	Speak(ctx context.Context, text string) error
	OnStart(fn func())
	OnEnd(fn func())
}

// Callbacks holds the OnStart/OnEnd hooks shared by Speaker implementations.
type Callbacks struct {
	mu      sync.RWMutex
	onStart func()
	onEnd   func()
}

// OnStart sets the function called when speech begins.
func (c *Callbacks) OnStart(fn func()) {
	c.mu.Lock()
	c.onStart = fn
	c.mu.Unlock()
}

// OnEnd sets the function called when speech ends.
func (c *Callbacks) OnEnd(fn func()) {
	c.mu.Lock()
	c.onEnd = fn
	c.mu.Unlock()
}

// Started runs the OnStart hook.
func (c *Callbacks) Started() {
	c.mu.RLock()
	fn := c.onStart
	c.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

// Ended runs the OnEnd hook.
func (c *Callbacks) Ended() {
	c.mu.RLock()
	fn := c.onEnd
	c.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

// LogSpeaker logs text instead of speaking it, optionally pausing for the
// time it would take to say.
type LogSpeaker struct {
	Callbacks

	logger  *slog.Logger
	perWord time.Duration
}

// NewLogSpeaker creates a LogSpeaker. perWord may be zero.
func NewLogSpeaker(logger *slog.Logger, perWord time.Duration) *LogSpeaker {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSpeaker{logger: logger.With("component", "audio.log_speaker"), perWord: perWord}
}

// Speak logs text.
func (s *LogSpeaker) Speak(ctx context.Context, text string) error {
	s.Started()
	defer s.Ended()

	s.logger.Info("speak", "text", text)
	if s.perWord <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(time.Duration(len(strings.Fields(text))) * s.perWord):
		return nil
	}
}

var _ Speaker = (*LogSpeaker)(nil)
