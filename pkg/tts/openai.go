package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/teslashibe/go-interviewer/internal/httpc"
)

const (
	openAISpeechURL = "https://api.openai.com/v1/audio/speech"
	providerOpenAI  = "openai"

	// 100 ms of 24 kHz mono PCM16.
	readChunkBytes = 4800
)

// OpenAI voices.
const (
	VoiceAlloy   = "alloy"
	VoiceAsh     = "ash"
	VoiceCoral   = "coral"
	VoiceEcho    = "echo"
	VoiceSage    = "sage"
	VoiceShimmer = "shimmer"
	VoiceVerse   = "verse"
)

// OpenAI speech models.
const (
	ModelTTS1    = "tts-1"
	ModelTTS1HD  = "tts-1-hd"
	ModelMiniTTS = "gpt-4o-mini-tts"
)

// OpenAI streams raw PCM from the OpenAI speech endpoint.
type OpenAI struct {
	config *Config
	client *http.Client
	logger *slog.Logger
	url    string
}

// NewOpenAI creates an OpenAI speech provider.
func NewOpenAI(opts ...Option) (*OpenAI, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	url := cfg.BaseURL
	if url == "" {
		url = openAISpeechURL
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.APIKey})

	return &OpenAI{
		config: cfg,
		client: httpc.Bearer(httpc.NewClient(cfg.StreamTimeout), ts),
		logger: cfg.Logger.With("component", "tts.openai"),
		url:    url,
	}, nil
}

// Name returns "openai".
func (o *OpenAI) Name() string { return providerOpenAI }

// Stream requests speech for text. The body is read incrementally so
// playback can start before synthesis finishes.
func (o *OpenAI) Stream(ctx context.Context, text string) (AudioStream, error) {
	payload := map[string]any{
		"model":           o.config.ModelID,
		"voice":           o.config.VoiceID,
		"input":           text,
		"response_format": "pcm",
	}
	if o.config.Instructions != "" {
		payload["instructions"] = o.config.Instructions
	}
	if o.config.Speed > 0 && o.config.Speed != 1.0 {
		payload["speed"] = o.config.Speed
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, WrapError(providerOpenAI, fmt.Errorf("marshal payload: %w", err))
	}

	start := time.Now()
	resp, err := o.doWithRetry(ctx, body)
	if err != nil {
		return nil, err
	}

	o.logger.Debug("speech stream opened",
		"chars", len(text),
		"voice", o.config.VoiceID,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return &httpStream{body: resp.Body, format: PCMFormat(EncodingPCM24)}, nil
}

// Close releases idle connections.
func (o *OpenAI) Close() error {
	o.client.CloseIdleConnections()
	return nil
}

// VoiceID returns the configured voice.
func (o *OpenAI) VoiceID() string {
	return o.config.VoiceID
}

func (o *OpenAI) doWithRetry(ctx context.Context, body []byte) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= o.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(o.config.RetryDelay * time.Duration(attempt)):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.url, bytes.NewReader(body))
		if err != nil {
			return nil, WrapError(providerOpenAI, fmt.Errorf("create request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := o.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = WrapError(providerOpenAI, err)
			continue
		}
		if resp.StatusCode == http.StatusOK {
			return resp, nil
		}

		apiErr := parseError(resp)
		resp.Body.Close()
		if !apiErr.IsRetryable() {
			return nil, apiErr
		}
		lastErr = apiErr
		o.logger.Warn("retrying speech request",
			"attempt", attempt+1,
			"status", resp.StatusCode,
		)
	}

	return nil, lastErr
}

func parseError(resp *http.Response) *APIError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Code    string `json:"code"`
		} `json:"error"`
	}

	message := string(body)
	code := ""
	if json.Unmarshal(body, &errResp) == nil && errResp.Error.Message != "" {
		message = errResp.Error.Message
		code = errResp.Error.Code
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    message,
		Code:       code,
		Provider:   providerOpenAI,
	}
}

// httpStream reads PCM from a response body in sample-aligned chunks.
type httpStream struct {
	body   io.ReadCloser
	format AudioFormat
	carry  []byte
	closed bool
}

func (s *httpStream) Read() ([]byte, error) {
	if s.closed {
		return nil, ErrStreamClosed
	}
	buf := make([]byte, readChunkBytes)
	n := copy(buf, s.carry)
	s.carry = s.carry[:0]

	m, err := io.ReadAtLeast(s.body, buf[n:], 2)
	n += m
	if err == io.ErrUnexpectedEOF {
		err = io.EOF
	}
	if err != nil && err != io.EOF {
		return nil, err
	}

	if err == io.EOF {
		n -= n % 2
		if n == 0 {
			return nil, io.EOF
		}
		return buf[:n], nil
	}
	// Hold back a trailing odd byte until its pair arrives.
	if n%2 == 1 {
		s.carry = append(s.carry, buf[n-1])
		n--
	}
	return buf[:n], nil
}

func (s *httpStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.body.Close()
}

func (s *httpStream) Format() AudioFormat {
	return s.format
}

var _ Provider = (*OpenAI)(nil)
