// Package config loads settings for the interviewer binaries.
//
// Values are layered: defaults, then an optional YAML file, then
// INTERVIEWER_* environment variables (a .env file may seed them). Command
// line flags are applied by the binaries on top.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/teslashibe/go-interviewer/pkg/audio"
	"github.com/teslashibe/go-interviewer/pkg/guided"
	"github.com/teslashibe/go-interviewer/pkg/history"
	"github.com/teslashibe/go-interviewer/pkg/interview"
	"github.com/teslashibe/go-interviewer/pkg/rtc"
	"github.com/teslashibe/go-interviewer/pkg/tts"
)

// Defaults.
const (
	DefaultBackendURL    = "http://localhost:5000"
	DefaultRealtimeModel = "gpt-realtime"
	DefaultListen        = "127.0.0.1:8080"
)

// Config is the full interviewer configuration.
type Config struct {
	Backend   BackendConfig   `yaml:"backend"`
	Realtime  RealtimeConfig  `yaml:"realtime"`
	Interview InterviewConfig `yaml:"interview"`
	Guided    GuidedConfig    `yaml:"guided"`
	TTS       TTSConfig       `yaml:"tts"`
	Audio     audio.Config    `yaml:"audio"`
	Playback  audio.Config    `yaml:"playback"`
	History   HistoryConfig   `yaml:"history"`
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
}

// BackendConfig locates the interview backend. Token wins over
// Email/Password when both are set.
type BackendConfig struct {
	URL      string `yaml:"url"`
	Token    string `yaml:"token"`
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
}

// RealtimeConfig configures the realtime peer connection.
type RealtimeConfig struct {
	URL                string        `yaml:"url"`
	Model              string        `yaml:"model"`
	Voice              string        `yaml:"voice"`
	TranscriptionModel string        `yaml:"transcription_model"`
	STUNServers        []string      `yaml:"stun_servers"`
	ReconnectAttempts  int           `yaml:"reconnect_attempts"`
	ReconnectBackoff   time.Duration `yaml:"reconnect_backoff"`
}

// InterviewConfig configures the interview session.
type InterviewConfig struct {
	QuestionsPerSkill int           `yaml:"questions_per_skill"`
	AutoStopDelay     time.Duration `yaml:"auto_stop_delay"`
	NarrationGrace    time.Duration `yaml:"narration_grace"`
	NarrationKeywords []string      `yaml:"narration_keywords"`
	CompleteTimeout   time.Duration `yaml:"complete_timeout"`
}

// GuidedConfig configures the question-by-question flow.
type GuidedConfig struct {
	AnswerPause time.Duration `yaml:"answer_pause"`
	MaxAnswer   time.Duration `yaml:"max_answer"`
}

// TTSConfig configures speech synthesis for the guided flow. Realtime reads
// questions with the realtime agent's voice over a receive-only connection;
// otherwise an empty APIKey selects the log speaker. FallbackModel is tried
// when Model fails; leave it empty or equal to Model to disable fallback.
type TTSConfig struct {
	Realtime      bool    `yaml:"realtime"`
	APIKey        string  `yaml:"api_key"`
	Model         string  `yaml:"model"`
	FallbackModel string  `yaml:"fallback_model"`
	Voice         string  `yaml:"voice"`
	Speed         float64 `yaml:"speed"`
}

// HistoryConfig configures the local archive of finished interviews. An
// empty Path keeps the archive under the user's home directory.
type HistoryConfig struct {
	Path  string `yaml:"path"`
	Limit int    `yaml:"limit"`
}

// ServerConfig configures the control API.
type ServerConfig struct {
	Listen string `yaml:"listen"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ConfigError reports the first invalid field.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Backend: BackendConfig{URL: DefaultBackendURL},
		Realtime: RealtimeConfig{
			URL:                rtc.DefaultSignalingURL,
			Model:              DefaultRealtimeModel,
			Voice:              interview.DefaultVoice,
			TranscriptionModel: interview.DefaultTranscriptionModel,
			STUNServers:        []string{rtc.DefaultSTUNServer},
			ReconnectAttempts:  3,
			ReconnectBackoff:   time.Second,
		},
		Interview: InterviewConfig{
			QuestionsPerSkill: interview.DefaultQuestionsPerSkill,
			AutoStopDelay:     interview.DefaultAutoStopDelay,
			NarrationGrace:    interview.DefaultNarrationGrace,
			CompleteTimeout:   interview.DefaultCompleteTimeout,
		},
		Guided: GuidedConfig{
			AnswerPause: guided.DefaultAnswerPause,
			MaxAnswer:   guided.DefaultMaxAnswer,
		},
		TTS:      TTSConfig{Model: tts.ModelMiniTTS, FallbackModel: tts.ModelTTS1, Voice: tts.VoiceShimmer, Speed: 1.0},
		Audio:    audio.DefaultConfig(),
		Playback: audio.DefaultConfig(),
		History:  HistoryConfig{Limit: history.DefaultLimit},
		Server:   ServerConfig{Listen: DefaultListen},
		Log:      LogConfig{Level: "info", Format: "text"},
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty) and the process environment, then validates it.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("config: open %q: %w", path, err)
		}
		defer f.Close()
		if err := cfg.Decode(f); err != nil {
			return nil, fmt.Errorf("config: parse %q: %w", path, err)
		}
	}
	cfg.ApplyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Decode overlays YAML from r onto c. Unknown fields are rejected.
func (c *Config) Decode(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode yaml: %w", err)
	}
	return nil
}

// LoadDotEnv loads .env style files into the environment without
// overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config: load %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overlays INTERVIEWER_* variables read through lookup.
// OPENAI_API_KEY is honoured for TTS when INTERVIEWER_TTS_API_KEY is unset.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("INTERVIEWER_BACKEND_URL", &c.Backend.URL)
	str("INTERVIEWER_TOKEN", &c.Backend.Token)
	str("INTERVIEWER_EMAIL", &c.Backend.Email)
	str("INTERVIEWER_PASSWORD", &c.Backend.Password)
	str("INTERVIEWER_REALTIME_URL", &c.Realtime.URL)
	str("INTERVIEWER_REALTIME_MODEL", &c.Realtime.Model)
	str("INTERVIEWER_VOICE", &c.Realtime.Voice)
	str("INTERVIEWER_LISTEN", &c.Server.Listen)
	str("INTERVIEWER_LOG_LEVEL", &c.Log.Level)
	str("INTERVIEWER_LOG_FORMAT", &c.Log.Format)
	str("INTERVIEWER_AUDIO_DEVICE", &c.Audio.Device)
	str("INTERVIEWER_PLAYBACK_DEVICE", &c.Playback.Device)
	str("INTERVIEWER_HISTORY_PATH", &c.History.Path)
	str("OPENAI_API_KEY", &c.TTS.APIKey)
	str("INTERVIEWER_TTS_API_KEY", &c.TTS.APIKey)
	str("INTERVIEWER_TTS_FALLBACK_MODEL", &c.TTS.FallbackModel)

	if v, ok := lookup("INTERVIEWER_AUDIO_BACKEND"); ok && v != "" {
		c.Audio.Backend = audio.Backend(v)
	}
	if v, ok := lookup("INTERVIEWER_STUN_SERVERS"); ok && v != "" {
		c.Realtime.STUNServers = splitList(v)
	}
	if v, ok := lookup("INTERVIEWER_TTS_REALTIME"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			c.TTS.Realtime = b
		}
	}
	if v, ok := lookup("INTERVIEWER_QUESTIONS_PER_SKILL"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			c.Interview.QuestionsPerSkill = n
		}
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks the configuration and returns a *ConfigError naming the
// first invalid field.
func (c *Config) Validate() error {
	switch {
	case c.Backend.URL == "":
		return &ConfigError{Field: "backend.url", Message: "is required"}
	case (c.Backend.Email == "") != (c.Backend.Password == ""):
		return &ConfigError{Field: "backend.password", Message: "email and password must be set together"}
	case c.Realtime.URL == "":
		return &ConfigError{Field: "realtime.url", Message: "is required"}
	case c.Realtime.ReconnectAttempts < 0:
		return &ConfigError{Field: "realtime.reconnect_attempts", Message: "must not be negative"}
	case c.Realtime.ReconnectBackoff < 0:
		return &ConfigError{Field: "realtime.reconnect_backoff", Message: "must not be negative"}
	case c.Interview.QuestionsPerSkill < 1:
		return &ConfigError{Field: "interview.questions_per_skill", Message: "must be at least 1"}
	case c.Interview.AutoStopDelay < 0:
		return &ConfigError{Field: "interview.auto_stop_delay", Message: "must not be negative"}
	case c.Interview.NarrationGrace < 0:
		return &ConfigError{Field: "interview.narration_grace", Message: "must not be negative"}
	case c.Interview.CompleteTimeout <= 0:
		return &ConfigError{Field: "interview.complete_timeout", Message: "must be positive"}
	case c.Guided.AnswerPause <= 0:
		return &ConfigError{Field: "guided.answer_pause", Message: "must be positive"}
	case c.Guided.MaxAnswer < c.Guided.AnswerPause:
		return &ConfigError{Field: "guided.max_answer", Message: "must not be shorter than answer_pause"}
	case c.TTS.Speed != 0 && (c.TTS.Speed < 0.25 || c.TTS.Speed > 4.0):
		return &ConfigError{Field: "tts.speed", Message: "must be between 0.25 and 4.0"}
	case c.History.Limit < 0:
		return &ConfigError{Field: "history.limit", Message: "must not be negative"}
	case c.Server.Listen == "":
		return &ConfigError{Field: "server.listen", Message: "is required"}
	}
	if c.Log.Format != "" && c.Log.Format != "text" && c.Log.Format != "json" {
		return &ConfigError{Field: "log.format", Message: fmt.Sprintf("unknown format %q", c.Log.Format)}
	}
	if err := c.Audio.Validate(); err != nil {
		return &ConfigError{Field: "audio", Message: err.Error()}
	}
	if err := c.Playback.Validate(); err != nil {
		return &ConfigError{Field: "playback", Message: err.Error()}
	}
	return nil
}
