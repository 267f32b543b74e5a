package guided

import (
	"errors"
	"log/slog"
	"time"
)

// Default values for Config.
const (
	DefaultAnswerPause        = 3 * time.Second
	DefaultMaxAnswer          = 2 * time.Minute
	DefaultTranscriptionModel = "gpt-4o-mini-transcribe"
)

// Config holds guided flow settings.
type Config struct {
	// AnswerPause is how long the candidate may stay silent after a
	// transcribed utterance before the answer is submitted.
	AnswerPause time.Duration

	// MaxAnswer bounds one answer; whatever was transcribed is submitted.
	MaxAnswer time.Duration

	TranscriptionModel string

	// OnQuestion runs before each question is spoken.
	OnQuestion func(q Question)

	// OnAnswer runs after each answer is submitted.
	OnAnswer func(q Question, answer string)

	Metrics Recorder
	Logger  *slog.Logger
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		AnswerPause:        DefaultAnswerPause,
		MaxAnswer:          DefaultMaxAnswer,
		TranscriptionModel: DefaultTranscriptionModel,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.AnswerPause <= 0 || c.MaxAnswer <= 0 {
		return errors.New("guided: answer timeouts must be positive")
	}
	if c.AnswerPause > c.MaxAnswer {
		return errors.New("guided: answer pause exceeds max answer")
	}
	return nil
}

// Option is a functional option for Config.
type Option func(*Config)

// Apply applies options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// WithAnswerTiming sets the silence that ends an answer and the answer cap.
func WithAnswerTiming(pause, limit time.Duration) Option {
	return func(c *Config) {
		c.AnswerPause = pause
		c.MaxAnswer = limit
	}
}

// WithTranscriptionModel sets the capture transcription model.
func WithTranscriptionModel(model string) Option {
	return func(c *Config) { c.TranscriptionModel = model }
}

// WithHooks sets the progress callbacks.
func WithHooks(onQuestion func(Question), onAnswer func(Question, string)) Option {
	return func(c *Config) {
		c.OnQuestion = onQuestion
		c.OnAnswer = onAnswer
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m Recorder) Option {
	return func(c *Config) { c.Metrics = m }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) { c.Logger = logger }
}
