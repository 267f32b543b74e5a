package interview

import (
	"errors"
	"log/slog"
	"time"

	"github.com/teslashibe/go-interviewer/pkg/tools"
)

// Default values for Config.
const (
	DefaultQuestionsPerSkill  = 2
	DefaultAutoStopDelay      = 3 * time.Second
	DefaultNarrationGrace     = 4 * time.Second
	DefaultCompleteTimeout    = 10 * time.Second
	DefaultToolTimeout        = 30 * time.Second
	DefaultVoice              = "alloy"
	DefaultTranscriptionModel = "whisper-1"
)

// Config holds interview session settings.
type Config struct {
	// QuestionsPerSkill fixes the target question count together with the
	// number of skills.
	QuestionsPerSkill int

	// AutoStopDelay is how long the session keeps running after the target
	// is reached or completion is signaled, so the agent can finish speaking.
	AutoStopDelay time.Duration

	// NarrationGrace is how long after an evaluation resolves that assistant
	// turns are still checked for evaluation narration.
	NarrationGrace time.Duration

	// NarrationKeywords override the narration filter phrases.
	NarrationKeywords []string

	// CompleteTimeout bounds the background completion call on stop.
	CompleteTimeout time.Duration

	// ToolTimeout bounds one tool invocation.
	ToolTimeout time.Duration

	// Tools are offered to the agent next to the evaluation tools.
	Tools []tools.Tool

	// Metrics receives session measurements. Nil disables them.
	Metrics Recorder

	// Voice and TranscriptionModel are sent in the session update.
	Voice              string
	TranscriptionModel string

	Logger *slog.Logger

	// Clock is used by the narration filter and summaries. Defaults to time.Now.
	Clock func() time.Time
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		QuestionsPerSkill:  DefaultQuestionsPerSkill,
		AutoStopDelay:      DefaultAutoStopDelay,
		NarrationGrace:     DefaultNarrationGrace,
		CompleteTimeout:    DefaultCompleteTimeout,
		ToolTimeout:        DefaultToolTimeout,
		Voice:              DefaultVoice,
		TranscriptionModel: DefaultTranscriptionModel,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.QuestionsPerSkill < 1 {
		return errors.New("interview: questions per skill must be at least 1")
	}
	if c.AutoStopDelay < 0 || c.NarrationGrace < 0 {
		return errors.New("interview: delays must not be negative")
	}
	if c.CompleteTimeout <= 0 || c.ToolTimeout <= 0 {
		return errors.New("interview: timeouts must be positive")
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

// WithQuestionsPerSkill sets the questions asked per skill.
func WithQuestionsPerSkill(n int) Option {
	return func(c *Config) { c.QuestionsPerSkill = n }
}

// WithAutoStopDelay sets the delay before a completed interview stops.
func WithAutoStopDelay(d time.Duration) Option {
	return func(c *Config) { c.AutoStopDelay = d }
}

// WithNarrationFilter sets the narration grace window and, optionally, the
// phrases that mark a turn as narration.
func WithNarrationFilter(grace time.Duration, keywords ...string) Option {
	return func(c *Config) {
		c.NarrationGrace = grace
		if len(keywords) > 0 {
			c.NarrationKeywords = keywords
		}
	}
}

// WithCompleteTimeout bounds the background completion call.
func WithCompleteTimeout(d time.Duration) Option {
	return func(c *Config) { c.CompleteTimeout = d }
}

// WithTools offers extra tools to the agent.
func WithTools(t ...tools.Tool) Option {
	return func(c *Config) { c.Tools = append(c.Tools, t...) }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m Recorder) Option {
	return func(c *Config) { c.Metrics = m }
}

// WithVoice sets the assistant voice.
func WithVoice(voice string) Option {
	return func(c *Config) { c.Voice = voice }
}

// WithTranscriptionModel sets the input transcription model.
func WithTranscriptionModel(model string) Option {
	return func(c *Config) { c.TranscriptionModel = model }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) { c.Logger = logger }
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Config) { c.Clock = now }
}
