// Package tts turns text into speech for the guided interview flow.
//
// A Provider streams PCM audio for a piece of text. Speaker plays that
// stream into an audio.Sink and satisfies audio.Speaker, so callers that
// only need "say this question" never see the provider.
//
//	provider, _ := tts.NewOpenAI(tts.WithAPIKey(os.Getenv("OPENAI_API_KEY")))
//	speaker := tts.NewSpeaker(provider, sink, logger)
//	_ = speaker.Speak(ctx, "Tell me about goroutines.")
package tts

import (
	"context"
	"time"
)

// Provider synthesizes speech.
type Provider interface {
	// Name identifies the provider in logs and errors.
	Name() string

	// Stream starts synthesis and returns audio as it arrives.
	Stream(ctx context.Context, text string) (AudioStream, error)

	// Close releases any resources held by the provider.
	Close() error
}

// AudioStream is a synthesis response. Read returns io.EOF after the last
// chunk.
type AudioStream interface {
	Read() ([]byte, error)
	Close() error
	Format() AudioFormat
}

// AudioFormat describes the audio encoding parameters.
type AudioFormat struct {
	Encoding   Encoding
	SampleRate int
	Channels   int
	BitDepth   int
}

// Encoding names an audio encoding.
type Encoding string

const (
	EncodingPCM16 Encoding = "pcm_16000"
	EncodingPCM24 Encoding = "pcm_24000"
	EncodingPCM48 Encoding = "pcm_48000"
)

// PCMFormat returns the mono PCM16 format for enc.
func PCMFormat(enc Encoding) AudioFormat {
	return AudioFormat{Encoding: enc, SampleRate: SampleRateFromEncoding(enc), Channels: 1, BitDepth: 16}
}

// SampleRateFromEncoding extracts the sample rate from an encoding.
func SampleRateFromEncoding(enc Encoding) int {
	switch enc {
	case EncodingPCM16:
		return 16000
	case EncodingPCM48:
		return 48000
	default:
		return 24000
	}
}

func pcmDuration(n int, f AudioFormat) time.Duration {
	bytesPerSecond := f.SampleRate * f.Channels * 2
	if bytesPerSecond == 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(bytesPerSecond)
}
