package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseLevel(tt.in); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestInitWriter(t *testing.T) {
	t.Run("json format", func(t *testing.T) {
		var buf bytes.Buffer
		l := InitWriter(&buf, "info", "json")
		l.Info("hello", "k", "v")

		var rec map[string]any
		if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
			t.Fatalf("expected JSON line, got %q: %v", buf.String(), err)
		}
		if rec["msg"] != "hello" || rec["k"] != "v" {
			t.Errorf("unexpected record: %v", rec)
		}
	})

	t.Run("level filters debug", func(t *testing.T) {
		var buf bytes.Buffer
		l := InitWriter(&buf, "warn", "text")
		l.Info("dropped")
		l.Warn("kept")

		out := buf.String()
		if strings.Contains(out, "dropped") {
			t.Error("info line should be filtered at warn level")
		}
		if !strings.Contains(out, "kept") {
			t.Error("warn line missing")
		}
	})

	t.Run("For tags component", func(t *testing.T) {
		var buf bytes.Buffer
		InitWriter(&buf, "info", "text")
		For("rtc.transport").Info("connected")

		if !strings.Contains(buf.String(), "component=rtc.transport") {
			t.Errorf("component attribute missing: %q", buf.String())
		}
	})
}
