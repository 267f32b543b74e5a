package audio

import (
	"fmt"
	"log/slog"
)

// NewSource creates an audio source for cfg.
func NewSource(cfg Config, logger *slog.Logger) (Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	backend := resolve(cfg, BackendReader)
	logger.Info("creating audio source",
		"backend", backend,
		"device", cfg.Device,
		"sample_rate", cfg.SampleRate,
		"channels", cfg.Channels,
		"buffer_ms", cfg.BufferDuration.Milliseconds(),
	)

	switch backend {
	case BackendMock:
		return NewMockSource(cfg, logger), nil
	case BackendReader:
		if cfg.Device == "" {
			return nil, &MediaError{Kind: ErrDeviceUnavailable, Cause: fmt.Errorf("no capture device configured")}
		}
		return OpenReaderSource(cfg, cfg.Device, logger), nil
	default:
		return nil, fmt.Errorf("unsupported source backend: %s", backend)
	}
}

// NewSink creates an audio sink for cfg.
func NewSink(cfg Config, logger *slog.Logger) (Sink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	backend := resolve(cfg, BackendWriter)
	logger.Info("creating audio sink",
		"backend", backend,
		"device", cfg.Device,
		"sample_rate", cfg.SampleRate,
		"channels", cfg.Channels,
	)

	switch backend {
	case BackendMock:
		return NewMockSink(cfg, logger), nil
	case BackendWriter:
		if cfg.Device == "" {
			return nil, &MediaError{Kind: ErrDeviceUnavailable, Cause: fmt.Errorf("no playback device configured")}
		}
		return OpenWriterSink(cfg, cfg.Device, logger), nil
	default:
		return nil, fmt.Errorf("unsupported sink backend: %s", backend)
	}
}

// resolve maps BackendAuto to device when a device is configured.
func resolve(cfg Config, device Backend) Backend {
	if cfg.Backend != BackendAuto && cfg.Backend != "" {
		return cfg.Backend
	}
	if cfg.Device != "" {
		return device
	}
	return BackendMock
}

// AvailableBackends returns the supported backends.
func AvailableBackends() []Backend {
	return []Backend{BackendMock, BackendReader, BackendWriter}
}
