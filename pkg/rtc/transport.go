// Package rtc negotiates a WebRTC peer connection with a remote realtime
// voice endpoint and carries its JSON event protocol over a data channel.
//
// A Transport owns exactly one peer connection at a time. Construct one per
// session; there is no package-level instance.
package rtc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v3"

	"github.com/teslashibe/go-interviewer/internal/httpc"
)

// State is the transport connection state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Stats are counters for one transport.
type Stats struct {
	MessagesSent     int64 `json:"messages_sent"`
	MessagesReceived int64 `json:"messages_received"`
	MessagesDropped  int64 `json:"messages_dropped"`
	Reconnects       int64 `json:"reconnects"`
}

// Transport is the signaling and data-channel adapter.
type Transport struct {
	config  *Config
	logger  *slog.Logger
	client  *http.Client
	newPeer peerFactory

	mu         sync.Mutex
	state      State
	gen        uint64
	credential string
	media      Media
	peer       peer
	channel    channel
	attempts   int
	chain      context.Context
	cancel     context.CancelFunc
	timer      *time.Timer

	cbMu           sync.RWMutex
	onConnected    func()
	onDisconnected func(reason string)
	onOpen         func()
	onMessage      func(data []byte)
	onError        func(err error)
	onWarning      func(msg string)
	onTrack        func(track *webrtc.TrackRemote)

	sent       atomic.Int64
	received   atomic.Int64
	dropped    atomic.Int64
	reconnects atomic.Int64
}

// New creates a Transport.
func New(opts ...Option) (*Transport, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if len(cfg.STUNServers) == 0 {
		cfg.STUNServers = []string{DefaultSTUNServer}
	}
	if cfg.DataChannelLabel == "" {
		cfg.DataChannelLabel = DefaultDataChannelLabel
	}

	client := cfg.HTTPClient
	if client == nil {
		client = httpc.NewClient(httpc.DefaultTimeout)
	}

	return &Transport{
		config:  cfg,
		logger:  cfg.Logger.With("component", "rtc.transport", "flavor", cfg.Flavor.String()),
		client:  client,
		newPeer: newPionPeer,
	}, nil
}

// Connect negotiates a peer connection using credential and, for sending
// flavors, the local media. It returns once the SDP answer is applied;
// OnConnected fires when ICE connects.
//
// Connect fails with ErrAlreadyConnected while a connection is in flight or
// established. Disconnect aborts an in-flight Connect.
func (t *Transport) Connect(ctx context.Context, credential string, media Media) error {
	if credential == "" {
		return ErrMissingCredential
	}
	if media == nil && t.config.Flavor != FlavorPlayback {
		return ErrMissingMedia
	}

	t.mu.Lock()
	if t.state != StateDisconnected {
		t.mu.Unlock()
		return ErrAlreadyConnected
	}
	t.state = StateConnecting
	t.credential = credential
	t.media = media
	t.attempts = 0
	t.chain, t.cancel = context.WithCancel(context.Background())
	t.gen++
	gen := t.gen
	chain := t.chain
	t.mu.Unlock()

	t.logger.Info("connecting", "url", t.config.SignalingURL, "model", t.config.Model)

	dialCtx, stop := context.WithCancel(ctx)
	defer stop()
	unhook := context.AfterFunc(chain, stop)
	defer unhook()

	err := t.dial(dialCtx, gen)
	if err == nil {
		return nil
	}

	t.mu.Lock()
	if t.gen != gen {
		// Disconnect ran while we were negotiating.
		t.mu.Unlock()
		return ErrClosed
	}
	res := t.shutdownLocked()
	t.mu.Unlock()
	res.release(t.logger)

	t.logger.Error("connect failed", "error", err)
	return err
}

// dial builds one peer connection for generation gen and runs the offer/answer
// exchange.
func (t *Transport) dial(ctx context.Context, gen uint64) error {
	t.mu.Lock()
	credential, media := t.credential, t.media
	t.mu.Unlock()

	var track webrtc.TrackLocal
	if media != nil {
		track = media.Track()
	}

	p, ch, err := t.newPeer(peerConfig{
		flavor: t.config.Flavor,
		stun:   t.config.STUNServers,
		label:  t.config.DataChannelLabel,
		track:  track,
	})
	if err != nil {
		return fmt.Errorf("rtc: create peer: %w", err)
	}

	ch.OnOpen(func() { t.handleOpen(gen) })
	ch.OnClose(func() { t.handleChannelClose(gen) })
	ch.OnMessage(func(data []byte) { t.handleMessage(gen, data) })
	p.OnICEStateChange(func(s webrtc.ICEConnectionState) { t.handleICE(gen, s) })
	p.OnTrack(func(tr *webrtc.TrackRemote) { t.handleTrack(gen, tr) })

	t.mu.Lock()
	if t.gen != gen {
		t.mu.Unlock()
		_ = ch.Close()
		_ = p.Close()
		return ErrClosed
	}
	t.peer, t.channel = p, ch
	t.mu.Unlock()

	offer, err := p.Offer(ctx)
	if err != nil {
		return fmt.Errorf("rtc: create offer: %w", err)
	}

	answer, err := t.exchange(ctx, credential, offer)
	if err != nil {
		return err
	}

	if !t.current(gen) {
		return ErrClosed
	}
	if err := p.SetAnswer(answer); err != nil {
		return fmt.Errorf("rtc: set answer: %w", err)
	}

	t.logger.Debug("answer applied", "gen", gen)
	return nil
}

// Send encodes msg as JSON and writes it to the data channel. If the channel
// is not open the message is dropped with a warning.
func (t *Transport) Send(msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		t.dropped.Add(1)
		t.warn(fmt.Sprintf("encode outbound message: %v", err))
		return
	}

	t.mu.Lock()
	ch := t.channel
	t.mu.Unlock()

	if ch == nil || !ch.IsOpen() {
		t.dropped.Add(1)
		t.warn("data channel not open, dropping message")
		return
	}
	if err := ch.Send(data); err != nil {
		t.dropped.Add(1)
		t.warn(fmt.Sprintf("data channel send failed: %v", err))
		return
	}
	t.sent.Add(1)
}

// Disconnect closes the data channel and peer connection, releases local
// media and resets reconnect counters. Safe to call repeatedly, mid-connect,
// or when never connected.
func (t *Transport) Disconnect() {
	t.mu.Lock()
	if t.state == StateDisconnected {
		t.mu.Unlock()
		return
	}
	res := t.shutdownLocked()
	t.mu.Unlock()

	res.release(t.logger)
	t.logger.Info("disconnected")
	t.emitDisconnected("closed by client")
}

// State returns the current connection state.
func (t *Transport) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Stats returns transport counters.
func (t *Transport) Stats() Stats {
	return Stats{
		MessagesSent:     t.sent.Load(),
		MessagesReceived: t.received.Load(),
		MessagesDropped:  t.dropped.Load(),
		Reconnects:       t.reconnects.Load(),
	}
}

// resources are released outside the lock.
type resources struct {
	channel channel
	peer    peer
	media   Media
}

func (r resources) release(logger *slog.Logger) {
	if r.channel != nil {
		if err := r.channel.Close(); err != nil {
			logger.Debug("close data channel", "error", err)
		}
	}
	if r.peer != nil {
		if err := r.peer.Close(); err != nil {
			logger.Debug("close peer connection", "error", err)
		}
	}
	if r.media != nil {
		if err := r.media.Close(); err != nil {
			logger.Debug("release local media", "error", err)
		}
	}
}

// shutdownLocked invalidates the current generation and detaches everything.
// t.mu must be held.
func (t *Transport) shutdownLocked() resources {
	res := resources{channel: t.channel, peer: t.peer, media: t.media}
	t.gen++
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.channel, t.peer, t.media = nil, nil, nil
	t.credential = ""
	t.attempts = 0
	t.state = StateDisconnected
	return res
}

func (t *Transport) current(gen uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.gen == gen
}

func (t *Transport) handleICE(gen uint64, s webrtc.ICEConnectionState) {
	if !t.current(gen) {
		return
	}
	t.logger.Info("ice state changed", "state", s.String())

	switch s {
	case webrtc.ICEConnectionStateConnected:
		t.mu.Lock()
		if t.gen != gen {
			t.mu.Unlock()
			return
		}
		already := t.state == StateConnected
		t.state = StateConnected
		t.attempts = 0
		t.mu.Unlock()
		if !already {
			t.emitConnected()
		}

	case webrtc.ICEConnectionStateDisconnected:
		t.emitDisconnected("ice disconnected")

	case webrtc.ICEConnectionStateFailed:
		t.retry(gen, errors.New("ice connection failed"))
	}
}

// retry tears down the failed peer and schedules a reconnect with linear
// backoff, or gives up once MaxReconnectAttempts is exhausted.
func (t *Transport) retry(gen uint64, cause error) {
	t.mu.Lock()
	if t.gen != gen || t.state == StateDisconnected {
		t.mu.Unlock()
		return
	}

	if t.attempts >= t.config.MaxReconnectAttempts {
		attempts := t.attempts
		res := t.shutdownLocked()
		t.mu.Unlock()

		res.release(t.logger)
		t.logger.Error("reconnect attempts exhausted", "attempts", attempts, "error", cause)
		t.emitDisconnected("reconnect attempts exhausted")
		t.emitError(&TransportError{Reason: "connection failed", Attempts: attempts, Cause: cause})
		return
	}

	t.attempts++
	attempt := t.attempts
	res := resources{channel: t.channel, peer: t.peer}
	t.channel, t.peer = nil, nil
	t.state = StateConnecting
	t.gen++
	next := t.gen
	delay := time.Duration(attempt) * t.config.ReconnectBackoff
	t.timer = time.AfterFunc(delay, func() { t.redial(next, attempt) })
	t.mu.Unlock()

	res.release(t.logger)
	t.reconnects.Add(1)
	t.logger.Warn("connection failed, reconnecting",
		"attempt", attempt,
		"max_attempts", t.config.MaxReconnectAttempts,
		"delay", delay,
		"error", cause,
	)
	t.emitDisconnected("ice failed")
}

func (t *Transport) redial(gen uint64, attempt int) {
	t.mu.Lock()
	if t.gen != gen {
		t.mu.Unlock()
		return
	}
	ctx := t.chain
	t.mu.Unlock()

	if err := t.dial(ctx, gen); err != nil {
		if errors.Is(err, ErrClosed) || ctx.Err() != nil {
			return
		}
		t.logger.Warn("reconnect attempt failed", "attempt", attempt, "error", err)
		t.retry(gen, err)
	}
}

func (t *Transport) handleOpen(gen uint64) {
	if !t.current(gen) {
		return
	}
	t.logger.Info("data channel open", "label", t.config.DataChannelLabel)
	t.cbMu.RLock()
	fn := t.onOpen
	t.cbMu.RUnlock()
	if fn != nil {
		fn()
	}
}

func (t *Transport) handleChannelClose(gen uint64) {
	if !t.current(gen) {
		return
	}
	t.logger.Debug("data channel closed", "label", t.config.DataChannelLabel)
}

func (t *Transport) handleMessage(gen uint64, data []byte) {
	if !t.current(gen) {
		return
	}
	t.received.Add(1)
	t.cbMu.RLock()
	fn := t.onMessage
	t.cbMu.RUnlock()
	if fn != nil {
		fn(data)
	}
}

func (t *Transport) handleTrack(gen uint64, track *webrtc.TrackRemote) {
	if !t.current(gen) {
		return
	}
	t.logger.Info("remote track", "codec", track.Codec().MimeType)
	t.cbMu.RLock()
	fn := t.onTrack
	t.cbMu.RUnlock()
	if fn != nil {
		fn(track)
	}
}

func (t *Transport) warn(msg string) {
	t.logger.Warn(msg)
	t.cbMu.RLock()
	fn := t.onWarning
	t.cbMu.RUnlock()
	if fn != nil {
		fn(msg)
	}
}

// OnConnected sets the callback fired when ICE connects.
func (t *Transport) OnConnected(fn func()) {
	t.cbMu.Lock()
	t.onConnected = fn
	t.cbMu.Unlock()
}

// OnDisconnected sets the callback fired when the connection drops.
func (t *Transport) OnDisconnected(fn func(reason string)) {
	t.cbMu.Lock()
	t.onDisconnected = fn
	t.cbMu.Unlock()
}

// OnDataChannelOpen sets the callback fired when the event channel opens.
func (t *Transport) OnDataChannelOpen(fn func()) {
	t.cbMu.Lock()
	t.onOpen = fn
	t.cbMu.Unlock()
}

// OnMessage sets the callback for inbound data-channel messages.
func (t *Transport) OnMessage(fn func(data []byte)) {
	t.cbMu.Lock()
	t.onMessage = fn
	t.cbMu.Unlock()
}

// OnError sets the callback for terminal transport errors.
func (t *Transport) OnError(fn func(err error)) {
	t.cbMu.Lock()
	t.onError = fn
	t.cbMu.Unlock()
}

// OnWarning sets the callback for non-fatal problems such as dropped sends.
func (t *Transport) OnWarning(fn func(msg string)) {
	t.cbMu.Lock()
	t.onWarning = fn
	t.cbMu.Unlock()
}

// OnRemoteTrack sets the callback for received audio tracks.
func (t *Transport) OnRemoteTrack(fn func(track *webrtc.TrackRemote)) {
	t.cbMu.Lock()
	t.onTrack = fn
	t.cbMu.Unlock()
}

func (t *Transport) emitConnected() {
	t.cbMu.RLock()
	fn := t.onConnected
	t.cbMu.RUnlock()
	if fn != nil {
		fn()
	}
}

func (t *Transport) emitDisconnected(reason string) {
	t.cbMu.RLock()
	fn := t.onDisconnected
	t.cbMu.RUnlock()
	if fn != nil {
		fn(reason)
	}
}

func (t *Transport) emitError(err error) {
	t.cbMu.RLock()
	fn := t.onError
	t.cbMu.RUnlock()
	if fn != nil {
		fn(err)
	}
}
