package audio

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"gopkg.in/hraban/opus.v2"
)

// maxOpusFrame is 120 ms of mono PCM at 48 kHz, the longest Opus frame.
const maxOpusFrame = 5760

// RTPReader yields RTP packets. *webrtc.TrackRemote satisfies it.
type RTPReader interface {
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
}

// Decoder decodes one Opus packet. *opus.Decoder satisfies it.
type Decoder interface {
	Decode(data []byte, pcm []int16) (int, error)
}

// Playback decodes the remote agent's Opus audio into a Sink.
type Playback struct {
	sink   Sink
	dec    Decoder
	logger *slog.Logger

	packets      atomic.Int64
	decodeErrors atomic.Int64
}

// NewPlayback creates a Playback writing to sink.
func NewPlayback(sink Sink, logger *slog.Logger) (*Playback, error) {
	dec, err := opus.NewDecoder(OpusSampleRate, 1)
	if err != nil {
		return nil, err
	}
	return newPlayback(sink, dec, logger), nil
}

func newPlayback(sink Sink, dec Decoder, logger *slog.Logger) *Playback {
	if logger == nil {
		logger = slog.Default()
	}
	return &Playback{
		sink:   sink,
		dec:    dec,
		logger: logger.With("component", "audio.playback", "sink", sink.Name()),
	}
}

// Play reads track until it ends or ctx is done. A track that ends
// normally returns nil.
func (p *Playback) Play(ctx context.Context, track RTPReader) error {
	if err := p.sink.Start(ctx); err != nil {
		return err
	}
	p.logger.Info("remote audio playback started")

	pcm := make([]int16, maxOpusFrame)
	for {
		if err := ctx.Err(); err != nil {
			_ = p.sink.Clear()
			return err
		}

		pkt, _, err := track.ReadRTP()
		if err != nil {
			p.logger.Info("remote audio playback ended", "packets", p.packets.Load(), "decode_errors", p.decodeErrors.Load())
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		p.packets.Add(1)
		if len(pkt.Payload) == 0 {
			continue
		}

		n, err := p.dec.Decode(pkt.Payload, pcm)
		if err != nil {
			if p.decodeErrors.Add(1) <= 5 {
				p.logger.Warn("opus decode failed", "error", err, "payload_bytes", len(pkt.Payload))
			}
			continue
		}

		chunk := AudioChunk{Samples: append([]int16(nil), pcm[:n]...), SampleRate: OpusSampleRate, Channels: 1}
		if err := p.sink.Write(ctx, chunk); err != nil {
			return err
		}
	}
}

// Packets returns the number of RTP packets read.
func (p *Playback) Packets() int64 {
	return p.packets.Load()
}
