package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/teslashibe/go-interviewer/pkg/audio"
)

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Interview.QuestionsPerSkill != 2 || cfg.Realtime.ReconnectAttempts != 3 {
		t.Errorf("defaults = %+v", cfg)
	}
}

func TestDecodeYAML(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.Decode(strings.NewReader(`
backend:
  url: https://interviews.example.com
realtime:
  voice: verse
  stun_servers: [stun:a.example.com:3478]
  reconnect_backoff: 250ms
interview:
  questions_per_skill: 3
  narration_keywords: [score, rubric]
audio:
  backend: reader
  device: /tmp/mic.pcm
`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Backend.URL != "https://interviews.example.com" {
		t.Errorf("backend url = %q", cfg.Backend.URL)
	}
	if cfg.Realtime.Voice != "verse" || cfg.Realtime.ReconnectBackoff != 250*time.Millisecond {
		t.Errorf("realtime = %+v", cfg.Realtime)
	}
	if cfg.Realtime.Model != DefaultRealtimeModel {
		t.Errorf("unset field lost its default: %q", cfg.Realtime.Model)
	}
	if cfg.Interview.QuestionsPerSkill != 3 || len(cfg.Interview.NarrationKeywords) != 2 {
		t.Errorf("interview = %+v", cfg.Interview)
	}
	if cfg.Audio.Backend != audio.BackendReader || cfg.Audio.SampleRate != audio.OpusSampleRate {
		t.Errorf("audio = %+v", cfg.Audio)
	}
}

func TestDecodeRejectsUnknownFields(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Decode(strings.NewReader("backend:\n  uri: x\n")); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"INTERVIEWER_BACKEND_URL":         "https://env.example.com",
		"INTERVIEWER_TOKEN":               "tok",
		"INTERVIEWER_LISTEN":              ":9090",
		"INTERVIEWER_STUN_SERVERS":        "stun:a:1, ,stun:b:2",
		"INTERVIEWER_QUESTIONS_PER_SKILL": "4",
		"INTERVIEWER_AUDIO_BACKEND":       "mock",
		"OPENAI_API_KEY":                  "sk-openai",
		"INTERVIEWER_TTS_FALLBACK_MODEL":  "tts-1-hd",
		"INTERVIEWER_TTS_REALTIME":        "true",
		"INTERVIEWER_LOG_LEVEL":           "",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := DefaultConfig()
	cfg.ApplyEnv(lookup)

	if cfg.Backend.URL != "https://env.example.com" || cfg.Backend.Token != "tok" {
		t.Errorf("backend = %+v", cfg.Backend)
	}
	if cfg.Server.Listen != ":9090" {
		t.Errorf("listen = %q", cfg.Server.Listen)
	}
	if len(cfg.Realtime.STUNServers) != 2 || cfg.Realtime.STUNServers[1] != "stun:b:2" {
		t.Errorf("stun = %v", cfg.Realtime.STUNServers)
	}
	if cfg.Interview.QuestionsPerSkill != 4 {
		t.Errorf("questions = %d", cfg.Interview.QuestionsPerSkill)
	}
	if cfg.Audio.Backend != audio.BackendMock {
		t.Errorf("audio backend = %q", cfg.Audio.Backend)
	}
	if cfg.TTS.APIKey != "sk-openai" {
		t.Errorf("tts key = %q", cfg.TTS.APIKey)
	}
	if cfg.TTS.FallbackModel != "tts-1-hd" || !cfg.TTS.Realtime {
		t.Errorf("tts = %+v", cfg.TTS)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("empty variable overrode level: %q", cfg.Log.Level)
	}

	env["INTERVIEWER_TTS_API_KEY"] = "sk-tts"
	cfg.ApplyEnv(lookup)
	if cfg.TTS.APIKey != "sk-tts" {
		t.Errorf("dedicated key should win: %q", cfg.TTS.APIKey)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		mut   func(*Config)
		field string
	}{
		{"no backend", func(c *Config) { c.Backend.URL = "" }, "backend.url"},
		{"email only", func(c *Config) { c.Backend.Email = "a@b.c" }, "backend.password"},
		{"no realtime url", func(c *Config) { c.Realtime.URL = "" }, "realtime.url"},
		{"negative reconnect", func(c *Config) { c.Realtime.ReconnectAttempts = -1 }, "realtime.reconnect_attempts"},
		{"zero questions", func(c *Config) { c.Interview.QuestionsPerSkill = 0 }, "interview.questions_per_skill"},
		{"negative grace", func(c *Config) { c.Interview.NarrationGrace = -time.Second }, "interview.narration_grace"},
		{"pause over max", func(c *Config) { c.Guided.MaxAnswer = time.Second }, "guided.max_answer"},
		{"speed", func(c *Config) { c.TTS.Speed = 9 }, "tts.speed"},
		{"format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"audio", func(c *Config) { c.Audio.Channels = 6 }, "audio"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mut(cfg)
			err := cfg.Validate()
			var ce *ConfigError
			if !errors.As(err, &ce) {
				t.Fatalf("error = %v, want *ConfigError", err)
			}
			if ce.Field != tt.field {
				t.Errorf("field = %q, want %q", ce.Field, tt.field)
			}
		})
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "interviewer.yaml")
	if err := os.WriteFile(path, []byte("server:\n  listen: 127.0.0.1:7000\nlog:\n  level: debug\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("INTERVIEWER_LOG_LEVEL", "warn")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Listen != "127.0.0.1:7000" {
		t.Errorf("listen = %q", cfg.Server.Listen)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("env should override file: %q", cfg.Log.Level)
	}

	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("INTERVIEWER_EMAIL=dotenv@example.com\nINTERVIEWER_PASSWORD=secret\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("INTERVIEWER_EMAIL", "shell@example.com")
	t.Setenv("INTERVIEWER_PASSWORD", "")
	os.Unsetenv("INTERVIEWER_PASSWORD")

	if err := LoadDotEnv(path, filepath.Join(dir, "absent.env")); err != nil {
		t.Fatal(err)
	}
	if got := os.Getenv("INTERVIEWER_EMAIL"); got != "shell@example.com" {
		t.Errorf("existing variable overridden: %q", got)
	}
	if got := os.Getenv("INTERVIEWER_PASSWORD"); got != "secret" {
		t.Errorf("password = %q", got)
	}
}
