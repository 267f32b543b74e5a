package tts

import (
	"context"
	"io"
	"sync"
)

// Mock is a Provider for tests and headless runs. By default it returns
// silence, 20 ms of 24 kHz PCM per character of input.
type Mock struct {
	// StreamFunc overrides the default silent stream.
	StreamFunc func(ctx context.Context, text string) (AudioStream, error)

	mu    sync.Mutex
	texts []string
}

// NewMock creates a mock provider.
func NewMock() *Mock {
	return &Mock{}
}

// WithError returns a mock whose streams always fail with err.
func WithError(err error) *Mock {
	return &Mock{StreamFunc: func(context.Context, string) (AudioStream, error) {
		return nil, err
	}}
}

// Name returns "mock".
func (m *Mock) Name() string { return "mock" }

// Stream records text and returns StreamFunc's stream or silence.
func (m *Mock) Stream(ctx context.Context, text string) (AudioStream, error) {
	m.mu.Lock()
	m.texts = append(m.texts, text)
	m.mu.Unlock()

	if m.StreamFunc != nil {
		return m.StreamFunc(ctx, text)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return NewBufferStream(make([]byte, len(text)*960), PCMFormat(EncodingPCM24), 4800), nil
}

// Close is a no-op.
func (m *Mock) Close() error { return nil }

// Texts returns every text passed to Stream.
func (m *Mock) Texts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.texts...)
}

// BufferStream serves an in-memory buffer as an AudioStream.
type BufferStream struct {
	data   []byte
	chunk  int
	format AudioFormat
}

// NewBufferStream returns a stream yielding data in chunk-sized reads.
func NewBufferStream(data []byte, format AudioFormat, chunk int) *BufferStream {
	if chunk <= 0 {
		chunk = len(data)
	}
	return &BufferStream{data: data, chunk: chunk, format: format}
}

func (s *BufferStream) Read() ([]byte, error) {
	if len(s.data) == 0 {
		return nil, io.EOF
	}
	n := min(s.chunk, len(s.data))
	out := s.data[:n]
	s.data = s.data[n:]
	return out, nil
}

func (s *BufferStream) Close() error { return nil }

func (s *BufferStream) Format() AudioFormat { return s.format }

var _ Provider = (*Mock)(nil)
