package audio

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.BufferDuration = 5 * time.Millisecond
	return cfg
}

func TestMockSourceStartStop(t *testing.T) {
	src := NewMockSource(testConfig(), nil)
	defer src.Close()

	ctx := context.Background()
	if err := src.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := src.Start(ctx); err != nil {
		t.Fatalf("second Start: %v", err)
	}

	chunk, err := src.Read(ctx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	cfg := testConfig()
	if len(chunk.Samples) != cfg.BufferSize() {
		t.Errorf("got %d samples, want %d", len(chunk.Samples), cfg.BufferSize())
	}

	if err := src.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := src.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
	for range src.Stream() {
	}
	if _, err := src.Read(ctx); !errors.Is(err, io.EOF) {
		t.Errorf("Read after Stop = %v, want EOF", err)
	}
}

func TestMockSourceSine(t *testing.T) {
	src := NewMockSource(testConfig(), nil, WithSineWave(440, 0.5))
	defer src.Close()
	if err := src.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	chunk, err := src.Read(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if Level(chunk.Samples) == 0 {
		t.Error("sine chunk is silent")
	}
}

func TestMockSourceClosed(t *testing.T) {
	src := NewMockSource(testConfig(), nil)
	_ = src.Close()
	if err := src.Start(context.Background()); !errors.Is(err, io.ErrClosedPipe) {
		t.Errorf("Start after Close = %v", err)
	}
}

func TestReaderSource(t *testing.T) {
	cfg := testConfig()
	frame := cfg.BufferBytes()
	data := bytes.Repeat([]byte{0x10, 0x00}, frame) // two frames
	src := NewReaderSource(cfg, bytes.NewReader(data), nil)
	defer src.Close()

	if err := src.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	var chunks int
	for chunk := range src.Stream() {
		chunks++
		if chunk.Samples[0] != 0x10 {
			t.Errorf("sample = %d", chunk.Samples[0])
		}
	}
	if chunks != 2 {
		t.Errorf("got %d chunks, want 2", chunks)
	}
	if src.Stats().Running {
		t.Error("source still running after EOF")
	}
}

func TestReaderSourceMediaErrors(t *testing.T) {
	t.Run("missing device", func(t *testing.T) {
		src := OpenReaderSource(testConfig(), filepath.Join(t.TempDir(), "nope.pcm"), nil)
		err := src.Start(context.Background())
		var mediaErr *MediaError
		if !errors.As(err, &mediaErr) || !errors.Is(err, ErrDeviceUnavailable) {
			t.Fatalf("Start = %v, want device unavailable", err)
		}
	})

	t.Run("permission denied", func(t *testing.T) {
		if runtime.GOOS == "windows" || os.Geteuid() == 0 {
			t.Skip("file permissions not enforced")
		}
		path := filepath.Join(t.TempDir(), "mic.pcm")
		if err := os.WriteFile(path, nil, 0o000); err != nil {
			t.Fatal(err)
		}
		err := OpenReaderSource(testConfig(), path, nil).Start(context.Background())
		if !errors.Is(err, ErrPermissionDenied) {
			t.Fatalf("Start = %v, want permission denied", err)
		}
	})
}

func TestWriterSink(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SampleRate = 24000
	var buf bytes.Buffer
	sink := NewWriterSink(cfg, &buf, nil)

	ctx := context.Background()
	if err := sink.Write(ctx, AudioChunk{Samples: []int16{1}, SampleRate: 24000, Channels: 1}); !errors.Is(err, io.ErrClosedPipe) {
		t.Errorf("Write before Start = %v", err)
	}
	if err := sink.Start(ctx); err != nil {
		t.Fatal(err)
	}

	chunk := AudioChunk{Samples: make([]int16, 960), SampleRate: 48000, Channels: 1}
	if err := sink.Write(ctx, chunk); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if buf.Len() != 480*2 {
		t.Errorf("wrote %d bytes, want %d", buf.Len(), 480*2)
	}
	if got := sink.Stats().SamplesWritten; got != 480 {
		t.Errorf("samples written = %d", got)
	}
}

func TestFactory(t *testing.T) {
	tests := []struct {
		name    string
		cfg     func(c *Config)
		wantSrc string
		wantErr bool
	}{
		{"auto without device", func(c *Config) {}, "mock", false},
		{"auto with device", func(c *Config) { c.Device = "/tmp/mic.pcm" }, "reader", false},
		{"explicit mock", func(c *Config) { c.Backend = BackendMock; c.Device = "x" }, "mock", false},
		{"reader without device", func(c *Config) { c.Backend = BackendReader }, "", true},
		{"bad channels", func(c *Config) { c.Channels = 3 }, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.cfg(&cfg)
			src, err := NewSource(cfg, nil)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewSource: %v", err)
			}
			if src.Name() != tt.wantSrc {
				t.Errorf("Name() = %s, want %s", src.Name(), tt.wantSrc)
			}
		})
	}
}

func TestMediaErrorUserMessage(t *testing.T) {
	denied := &MediaError{Kind: ErrPermissionDenied, Device: "mic", Cause: errors.New("EACCES")}
	missing := &MediaError{Kind: ErrDeviceUnavailable}

	if denied.UserMessage() == missing.UserMessage() {
		t.Error("permission denial must read differently from a missing device")
	}
	if !errors.Is(denied, ErrPermissionDenied) {
		t.Error("errors.Is(denied, ErrPermissionDenied) = false")
	}
	if denied.Error() != "audio: permission denied (mic): EACCES" {
		t.Errorf("Error() = %q", denied.Error())
	}
}
