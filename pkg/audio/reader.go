package audio

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// ReaderSource captures PCM s16le from a file, a FIFO or stdin, paced to
// real time. The input must match the configured rate and channel count.
type ReaderSource struct {
	cfg    Config
	logger *slog.Logger
	path   string
	r      io.Reader

	mu      sync.Mutex
	running bool
	closed  bool
	stream  chan AudioChunk
	stopCh  chan struct{}
	owned   io.Closer

	chunksRead  atomic.Int64
	samplesRead atomic.Int64
	overruns    atomic.Int64
}

// NewReaderSource creates a source reading from r.
func NewReaderSource(cfg Config, r io.Reader, logger *slog.Logger) *ReaderSource {
	s := newReaderSource(cfg, logger)
	s.r = r
	return s
}

// OpenReaderSource creates a source that opens path on Start. "-" reads
// stdin.
func OpenReaderSource(cfg Config, path string, logger *slog.Logger) *ReaderSource {
	s := newReaderSource(cfg, logger)
	s.path = path
	return s
}

func newReaderSource(cfg Config, logger *slog.Logger) *ReaderSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReaderSource{
		cfg:    cfg,
		logger: logger.With("component", "audio.reader_source"),
		stream: make(chan AudioChunk, 10),
	}
}

// Start opens the input and begins capture.
func (s *ReaderSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return io.ErrClosedPipe
	}
	if s.running {
		return nil
	}

	r := s.r
	switch {
	case r != nil:
	case s.path == "-":
		r = os.Stdin
	default:
		f, err := os.Open(s.path)
		if err != nil {
			return mediaError(s.path, err)
		}
		r, s.owned = f, f
	}

	s.running = true
	s.stopCh = make(chan struct{})
	s.stream = make(chan AudioChunk, 10)
	go s.readLoop(ctx, r, s.stopCh, s.stream)

	s.logger.Info("capture started", "device", s.device(), "sample_rate", s.cfg.SampleRate)
	return nil
}

func (s *ReaderSource) readLoop(ctx context.Context, r io.Reader, stop <-chan struct{}, out chan<- AudioChunk) {
	defer close(out)

	ticker := time.NewTicker(s.cfg.BufferDuration)
	defer ticker.Stop()

	buf := make([]byte, s.cfg.BufferBytes())
	for {
		n, err := io.ReadFull(r, buf)
		if n > 1 {
			chunk := AudioChunk{}
			chunk.FromBytes(buf[:n], s.cfg.SampleRate, s.cfg.Channels)
			select {
			case out <- chunk:
				s.chunksRead.Add(1)
				s.samplesRead.Add(int64(len(chunk.Samples)))
			default:
				s.overruns.Add(1)
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				s.logger.Warn("capture read failed", "error", err)
			}
			_ = s.Stop()
			return
		}

		select {
		case <-ctx.Done():
			_ = s.Stop()
			return
		case <-stop:
			return
		case <-ticker.C:
		}
	}
}

func (s *ReaderSource) device() string {
	if s.path != "" {
		return s.path
	}
	return "reader"
}

// Stop halts capture and closes an input opened by Start.
func (s *ReaderSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false
	close(s.stopCh)
	if s.owned != nil {
		err := s.owned.Close()
		s.owned = nil
		return err
	}
	return nil
}

// Read reads the next audio chunk.
func (s *ReaderSource) Read(ctx context.Context) (AudioChunk, error) {
	return readStream(ctx, s.Stream())
}

// Stream returns the audio chunk channel.
func (s *ReaderSource) Stream() <-chan AudioChunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stream
}

// Config returns the audio configuration.
func (s *ReaderSource) Config() Config { return s.cfg }

// Name returns "reader".
func (s *ReaderSource) Name() string { return string(BackendReader) }

// Close stops the source; it cannot be restarted.
func (s *ReaderSource) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return s.Stop()
}

// Stats returns source statistics.
func (s *ReaderSource) Stats() SourceStats {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	return SourceStats{
		ChunksRead:  s.chunksRead.Load(),
		SamplesRead: s.samplesRead.Load(),
		Overruns:    s.overruns.Load(),
		Running:     running,
		Backend:     string(BackendReader),
	}
}

var _ Source = (*ReaderSource)(nil)

// mediaError classifies a failure to open device.
func mediaError(device string, err error) *MediaError {
	kind := ErrDeviceUnavailable
	if errors.Is(err, fs.ErrPermission) {
		kind = ErrPermissionDenied
	}
	return &MediaError{Kind: kind, Device: device, Cause: err}
}
