package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/teslashibe/go-interviewer/internal/config"
	"github.com/teslashibe/go-interviewer/pkg/audio"
	"github.com/teslashibe/go-interviewer/pkg/backend"
	"github.com/teslashibe/go-interviewer/pkg/guided"
	"github.com/teslashibe/go-interviewer/pkg/tts"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Backend.URL = ""
	if _, err := New(cfg, quietLogger()); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestAuthenticate(t *testing.T) {
	var logins atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/login" {
			http.NotFound(w, r)
			return
		}
		logins.Add(1)
		var creds backend.Credentials
		_ = json.NewDecoder(r.Body).Decode(&creds)
		if creds.Password != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"bad credentials"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(backend.AuthResponse{AccessToken: "tok-1"})
	}))
	defer srv.Close()

	tests := []struct {
		name     string
		token    string
		email    string
		password string
		wantErr  bool
		want     string
		logins   int32
	}{
		{"token configured", "preset", "a@b.c", "secret", false, "preset", 0},
		{"anonymous", "", "", "", false, "", 0},
		{"login", "", "a@b.c", "secret", false, "tok-1", 1},
		{"bad password", "", "a@b.c", "wrong", true, "", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logins.Store(0)
			cfg := config.DefaultConfig()
			cfg.Backend = config.BackendConfig{URL: srv.URL, Token: tt.token, Email: tt.email, Password: tt.password}

			a, err := New(cfg, quietLogger())
			if err != nil {
				t.Fatal(err)
			}
			err = a.Authenticate(context.Background())
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got := a.Backend().Token(); got != tt.want {
				t.Errorf("token = %q, want %q", got, tt.want)
			}
			if got := logins.Load(); got != tt.logins {
				t.Errorf("logins = %d, want %d", got, tt.logins)
			}
		})
	}
}

func TestNewSpeaker(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Playback.Backend = audio.BackendMock

	a, err := New(cfg, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	sp, err := a.newSpeaker()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := sp.(*audio.LogSpeaker); !ok {
		t.Errorf("speaker = %T, want *audio.LogSpeaker", sp)
	}

	cfg.TTS.APIKey = "sk-test"
	sp, err = a.newSpeaker()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := sp.(*tts.Speaker); !ok {
		t.Errorf("speaker = %T, want *tts.Speaker", sp)
	}

	cfg.TTS.Realtime = true
	sp, err = a.newSpeaker()
	if err != nil {
		t.Fatal(err)
	}
	rs, ok := sp.(*guided.RealtimeSpeaker)
	if !ok {
		t.Fatalf("speaker = %T, want *guided.RealtimeSpeaker", sp)
	}
	_ = rs.Close()
}

func TestTTSProviderFallback(t *testing.T) {
	tests := []struct {
		name     string
		fallback string
		want     string
	}{
		{"chained", tts.ModelTTS1, "chain(openai,openai)"},
		{"same model", tts.ModelMiniTTS, "chain(openai)"},
		{"disabled", "", "chain(openai)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			cfg.TTS.APIKey = "sk-test"
			cfg.TTS.Model = tts.ModelMiniTTS
			cfg.TTS.FallbackModel = tt.fallback

			a, err := New(cfg, quietLogger())
			if err != nil {
				t.Fatal(err)
			}
			p, err := a.ttsProvider()
			if err != nil {
				t.Fatal(err)
			}
			defer p.Close()
			if p.Name() != tt.want {
				t.Errorf("Name() = %q, want %q", p.Name(), tt.want)
			}
		})
	}
}

func TestOpenMicrophoneWithoutDevice(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Audio.Backend = audio.BackendReader

	a, err := New(cfg, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	_, err = a.openMicrophone(context.Background())
	var mediaErr *audio.MediaError
	if !errors.As(err, &mediaErr) || mediaErr.Kind != audio.ErrDeviceUnavailable {
		t.Errorf("err = %v, want device unavailable", err)
	}
}

func TestHistoryPath(t *testing.T) {
	cfg := config.DefaultConfig()
	a, err := New(cfg, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	if got := a.historyPath(); filepath.Base(got) != "history.json" || filepath.Base(filepath.Dir(got)) != ".interviewer" {
		t.Errorf("default path = %q", got)
	}
	cfg.History.Path = "/var/lib/interviewer/h.json"
	if got := a.historyPath(); got != cfg.History.Path {
		t.Errorf("path = %q", got)
	}
}
