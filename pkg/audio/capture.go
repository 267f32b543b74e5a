package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media"
	"gopkg.in/hraban/opus.v2"
)

const (
	// maxOpusPacket bounds one encoded 20 ms frame.
	maxOpusPacket = 1500

	// drainTimeout bounds Close for sources blocked in a read, such as stdin.
	drainTimeout = time.Second
)

// Encoder encodes one PCM frame. *opus.Encoder satisfies it.
type Encoder interface {
	Encode(pcm []int16, data []byte) (int, error)
}

// SampleWriter accepts encoded media samples.
// *webrtc.TrackLocalStaticSample satisfies it.
type SampleWriter interface {
	WriteSample(s media.Sample) error
}

// Capture pumps a Source through an Opus encoder into a local WebRTC track.
// It is the local media of a realtime peer connection; the transport closes
// it on disconnect.
type Capture struct {
	source Source
	track  *webrtc.TrackLocalStaticSample
	writer SampleWriter
	enc    Encoder
	logger *slog.Logger

	frameSize int
	pending   []int16

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	closed  bool
	frames  atomic.Int64
	dropped atomic.Int64
}

// NewCapture creates a capture of src. Call Start to acquire the device.
func NewCapture(src Source, logger *slog.Logger) (*Capture, error) {
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: OpusSampleRate, Channels: 2},
		"audio", "interviewer-mic",
	)
	if err != nil {
		return nil, fmt.Errorf("audio: create track: %w", err)
	}
	enc, err := opus.NewEncoder(OpusSampleRate, 1, opus.AppVoIP)
	if err != nil {
		return nil, fmt.Errorf("audio: create opus encoder: %w", err)
	}
	c := newCapture(src, track, enc, logger)
	c.track = track
	return c, nil
}

func newCapture(src Source, w SampleWriter, enc Encoder, logger *slog.Logger) *Capture {
	if logger == nil {
		logger = slog.Default()
	}
	return &Capture{
		source:    src,
		writer:    w,
		enc:       enc,
		logger:    logger.With("component", "audio.capture", "backend", src.Name()),
		frameSize: int(OpusSampleRate * OpusFrame.Seconds()),
	}
}

// Start acquires the source and begins encoding. Capture runs until Close;
// ctx only bounds acquisition.
func (c *Capture) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return io.ErrClosedPipe
	}
	if c.done != nil {
		return nil
	}

	runCtx, cancel := context.WithCancel(context.Background())
	if err := c.source.Start(runCtx); err != nil {
		cancel()
		var mediaErr *MediaError
		if errors.As(err, &mediaErr) {
			return err
		}
		return &MediaError{Kind: ErrDeviceUnavailable, Cause: err}
	}

	c.cancel = cancel
	c.done = make(chan struct{})
	go c.pump(c.source.Stream(), c.done)
	c.logger.Info("microphone capture started")
	return nil
}

func (c *Capture) pump(in <-chan AudioChunk, done chan<- struct{}) {
	defer close(done)

	packet := make([]byte, maxOpusPacket)
	for chunk := range in {
		pcm := Resample(chunk.Mono(), chunk.SampleRate, OpusSampleRate)
		c.pending = append(c.pending, pcm...)

		for len(c.pending) >= c.frameSize {
			frame := c.pending[:c.frameSize]
			n, err := c.enc.Encode(frame, packet)
			c.pending = c.pending[c.frameSize:]
			if err != nil {
				c.dropped.Add(1)
				c.logger.Debug("opus encode failed", "error", err)
				continue
			}

			data := make([]byte, n)
			copy(data, packet[:n])
			if err := c.writer.WriteSample(media.Sample{Data: data, Duration: OpusFrame}); err != nil {
				c.dropped.Add(1)
				continue
			}
			c.frames.Add(1)
		}
		// Detach the remainder from the grown buffer.
		c.pending = append([]int16(nil), c.pending...)
	}
}

// Track returns the local track to attach to the peer connection.
func (c *Capture) Track() webrtc.TrackLocal {
	if c.track == nil {
		return nil
	}
	return c.track
}

// Frames returns the number of encoded frames written.
func (c *Capture) Frames() int64 {
	return c.frames.Load()
}

// Close stops the source and waits for the encoder to drain.
func (c *Capture) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	err := c.source.Close()
	if cancel != nil {
		cancel()
	}
	if done != nil {
		select {
		case <-done:
		case <-time.After(drainTimeout):
			c.logger.Warn("capture source did not stop in time")
		}
	}
	c.logger.Info("microphone capture stopped", "frames", c.frames.Load(), "dropped", c.dropped.Load())
	return err
}
