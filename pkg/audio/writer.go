package audio

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
)

// WriterSink writes PCM s16le to an io.Writer, e.g. a pipe into aplay.
type WriterSink struct {
	cfg    Config
	logger *slog.Logger
	path   string

	mu      sync.Mutex
	w       io.Writer
	owned   io.Closer
	running bool
	closed  bool

	chunksWritten  atomic.Int64
	samplesWritten atomic.Int64
}

// NewWriterSink creates a sink writing to w.
func NewWriterSink(cfg Config, w io.Writer, logger *slog.Logger) *WriterSink {
	s := newWriterSink(cfg, logger)
	s.w = w
	return s
}

// OpenWriterSink creates a sink that opens path on Start. "-" writes
// stdout.
func OpenWriterSink(cfg Config, path string, logger *slog.Logger) *WriterSink {
	s := newWriterSink(cfg, logger)
	s.path = path
	return s
}

func newWriterSink(cfg Config, logger *slog.Logger) *WriterSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &WriterSink{cfg: cfg, logger: logger.With("component", "audio.writer_sink")}
}

// Start opens the output.
func (s *WriterSink) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return io.ErrClosedPipe
	}
	if s.running {
		return nil
	}
	if s.w == nil {
		if s.path == "-" {
			s.w = os.Stdout
		} else {
			f, err := os.OpenFile(s.path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
			if err != nil {
				return mediaError(s.path, err)
			}
			s.w, s.owned = f, f
		}
	}
	s.running = true
	return nil
}

// Stop halts playback.
func (s *WriterSink) Stop() error {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	return nil
}

// Write converts chunk to the sink's rate and channel count and writes it.
func (s *WriterSink) Write(ctx context.Context, chunk AudioChunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return io.ErrClosedPipe
	}

	samples := Resample(chunk.Mono(), chunk.SampleRate, s.cfg.SampleRate)
	if s.cfg.Channels == 2 {
		samples = MonoToStereo(samples)
	}
	if _, err := s.w.Write(SamplesToBytes(samples)); err != nil {
		return err
	}
	s.chunksWritten.Add(1)
	s.samplesWritten.Add(int64(len(samples)))
	return nil
}

// Flush is a no-op; writes are unbuffered.
func (s *WriterSink) Flush(ctx context.Context) error { return nil }

// Clear is a no-op; written audio cannot be recalled.
func (s *WriterSink) Clear() error { return nil }

// Config returns the audio configuration.
func (s *WriterSink) Config() Config { return s.cfg }

// Name returns "writer".
func (s *WriterSink) Name() string { return string(BackendWriter) }

// Close stops the sink and closes an output opened by Start.
func (s *WriterSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.running = false
	if s.owned != nil {
		err := s.owned.Close()
		s.owned = nil
		return err
	}
	return nil
}

// Stats returns sink statistics.
func (s *WriterSink) Stats() SinkStats {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	return SinkStats{
		ChunksWritten:  s.chunksWritten.Load(),
		SamplesWritten: s.samplesWritten.Load(),
		Running:        running,
		Backend:        string(BackendWriter),
	}
}

var _ Sink = (*WriterSink)(nil)
