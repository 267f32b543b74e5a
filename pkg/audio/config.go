// Package audio provides the local media used by an interview: a microphone
// source encoded to Opus for the realtime peer, playback of the remote
// agent's voice, and the Speaker capability used by the guided flow.
//
// Sources and sinks are selected by backend:
//   - reader/writer: raw PCM s16le from a file, a FIFO or stdin/stdout
//   - mock: silence or a sine wave, for CI and headless runs
package audio

import (
	"fmt"
	"time"
)

// Backend represents the audio backend type.
type Backend string

const (
	// BackendAuto selects reader/writer when a device is set, mock otherwise.
	BackendAuto Backend = "auto"
	// BackendReader reads PCM from Device ("-" for stdin).
	BackendReader Backend = "reader"
	// BackendWriter writes PCM to Device ("-" for stdout).
	BackendWriter Backend = "writer"
	// BackendMock uses a synthetic implementation for testing.
	BackendMock Backend = "mock"
)

// Opus runs at 48 kHz; the realtime peer negotiates mono 20 ms frames.
const (
	OpusSampleRate = 48000
	OpusFrame      = 20 * time.Millisecond
)

// Config holds audio configuration.
type Config struct {
	// Backend specifies which audio backend to use.
	// Default: "auto"
	Backend Backend `yaml:"backend" json:"backend"`

	// SampleRate is the PCM sample rate in Hz.
	// Default: 48000
	SampleRate int `yaml:"sample_rate" json:"sample_rate"`

	// Channels is the number of audio channels.
	// Default: 1 (mono)
	Channels int `yaml:"channels" json:"channels"`

	// BufferDuration is the size of audio buffers.
	// Default: 20ms
	BufferDuration time.Duration `yaml:"buffer_duration" json:"buffer_duration"`

	// Device is the file or FIFO path for the reader and writer backends.
	// "-" selects stdin or stdout.
	Device string `yaml:"device" json:"device"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Backend:        BackendAuto,
		SampleRate:     OpusSampleRate,
		Channels:       1,
		BufferDuration: OpusFrame,
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate)
	}
	if c.Channels != 1 && c.Channels != 2 {
		return fmt.Errorf("channels must be 1 or 2, got %d", c.Channels)
	}
	if c.BufferDuration <= 0 {
		return fmt.Errorf("buffer_duration must be positive, got %v", c.BufferDuration)
	}
	return nil
}

// BufferSize returns the number of samples per channel per buffer.
func (c *Config) BufferSize() int {
	return int(float64(c.SampleRate) * c.BufferDuration.Seconds())
}

// BufferBytes returns the size of a buffer in bytes (assuming int16 samples).
func (c *Config) BufferBytes() int {
	return c.BufferSize() * c.Channels * 2
}
