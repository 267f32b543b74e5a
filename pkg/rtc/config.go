package rtc

import (
	"log/slog"
	"net/http"
	"time"
)

const (
	// DefaultSignalingURL is the realtime call endpoint that accepts SDP offers.
	DefaultSignalingURL = "https://api.openai.com/v1/realtime/calls"

	// DefaultSTUNServer is used when no ICE servers are configured.
	DefaultSTUNServer = "stun:stun.l.google.com:19302"

	// DefaultDataChannelLabel is the label the remote endpoint expects.
	DefaultDataChannelLabel = "oai-events"
)

// Flavor selects which audio directions a transport negotiates.
type Flavor int

const (
	// FlavorCapture sends local audio and never asks to receive.
	FlavorCapture Flavor = iota

	// FlavorPlayback receives remote audio and never sends.
	FlavorPlayback

	// FlavorDuplex sends local audio and receives remote audio.
	FlavorDuplex
)

func (f Flavor) String() string {
	switch f {
	case FlavorCapture:
		return "capture"
	case FlavorPlayback:
		return "playback"
	case FlavorDuplex:
		return "duplex"
	default:
		return "unknown"
	}
}

// Config holds transport configuration.
type Config struct {
	// Flavor selects the negotiated audio directions.
	Flavor Flavor

	// SignalingURL receives the raw SDP offer.
	SignalingURL string

	// Model is appended as ?model= when set.
	Model string

	// STUNServers are the ICE servers offered to the peer connection.
	STUNServers []string

	// DataChannelLabel names the ordered event channel.
	DataChannelLabel string

	// MaxReconnectAttempts bounds automatic reconnects after ICE failure.
	MaxReconnectAttempts int

	// ReconnectBackoff is multiplied by the attempt number between retries.
	ReconnectBackoff time.Duration

	// HTTPClient performs the SDP exchange.
	HTTPClient *http.Client

	// Logger is the structured logger to use.
	Logger *slog.Logger
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Flavor:               FlavorDuplex,
		SignalingURL:         DefaultSignalingURL,
		STUNServers:          []string{DefaultSTUNServer},
		DataChannelLabel:     DefaultDataChannelLabel,
		MaxReconnectAttempts: 3,
		ReconnectBackoff:     time.Second,
		Logger:               slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.SignalingURL == "" {
		return ErrMissingSignalingURL
	}
	if c.MaxReconnectAttempts < 0 {
		return ErrInvalidReconnect
	}
	return nil
}

// Option configures a Transport.
type Option func(*Config)

// WithFlavor sets the negotiated audio directions.
func WithFlavor(f Flavor) Option {
	return func(c *Config) { c.Flavor = f }
}

// WithSignalingURL overrides the SDP exchange endpoint.
func WithSignalingURL(url string) Option {
	return func(c *Config) { c.SignalingURL = url }
}

// WithModel sets the realtime model query parameter.
func WithModel(model string) Option {
	return func(c *Config) { c.Model = model }
}

// WithSTUNServers replaces the ICE server list.
func WithSTUNServers(urls ...string) Option {
	return func(c *Config) { c.STUNServers = urls }
}

// WithReconnect sets the reconnect bound and linear backoff step.
func WithReconnect(maxAttempts int, backoff time.Duration) Option {
	return func(c *Config) {
		c.MaxReconnectAttempts = maxAttempts
		c.ReconnectBackoff = backoff
	}
}

// WithHTTPClient sets the client used for signaling.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Config) { c.HTTPClient = client }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) { c.Logger = logger }
}
