// Package interview runs a realtime voice interview.
//
// A Session owns one interview at a time. All mutable state lives in a
// single actor goroutine: public calls, transport callbacks and tool results
// are posted to its inbox, and readers see immutable Snapshots. Each Start
// builds a fresh transport, media capture and tool registry.
package interview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-interviewer/pkg/backend"
	"github.com/teslashibe/go-interviewer/pkg/evaluation"
	"github.com/teslashibe/go-interviewer/pkg/observe"
	"github.com/teslashibe/go-interviewer/pkg/rtc"
	"github.com/teslashibe/go-interviewer/pkg/tools"
)

// Backend is the subset of the backend client a session uses.
type Backend interface {
	evaluation.Backend
	CreateRealtimeSession(ctx context.Context) (*backend.RealtimeSession, error)
	RealtimeToken(ctx context.Context, sessionID string) (string, error)
}

var _ Backend = (*backend.Client)(nil)

// Transport is the signaling adapter a session drives.
type Transport interface {
	Connect(ctx context.Context, credential string, media rtc.Media) error
	Send(msg any)
	Disconnect()
	OnConnected(fn func())
	OnDisconnected(fn func(reason string))
	OnDataChannelOpen(fn func())
	OnMessage(fn func(data []byte))
	OnError(fn func(err error))
	OnWarning(fn func(msg string))
}

var _ Transport = (*rtc.Transport)(nil)

// TransportFactory builds one transport per interview.
type TransportFactory func() (Transport, error)

// MediaFactory acquires the local microphone for one interview.
type MediaFactory func(ctx context.Context) (rtc.Media, error)

// Recorder receives session measurements.
type Recorder interface {
	SessionStarted(ctx context.Context, outcome string)
	SessionEnded(ctx context.Context, reason string)
	ToolCalled(ctx context.Context, tool, status string, seconds float64)
	TransportFailed(ctx context.Context, kind string)
	TranscriptEntry(ctx context.Context, role string)
	EvaluationScored(ctx context.Context, score float64)
}

var _ Recorder = (*observe.Metrics)(nil)

type nopRecorder struct{}

func (nopRecorder) SessionStarted(context.Context, string)              {}
func (nopRecorder) SessionEnded(context.Context, string)                {}
func (nopRecorder) ToolCalled(context.Context, string, string, float64) {}
func (nopRecorder) TransportFailed(context.Context, string)             {}
func (nopRecorder) TranscriptEntry(context.Context, string)             {}
func (nopRecorder) EvaluationScored(context.Context, float64)           {}

// Dependencies are the collaborators of a Session.
type Dependencies struct {
	Backend    Backend
	Transports TransportFactory
	Media      MediaFactory
}

// Session is a realtime interview controller.
type Session struct {
	config  *Config
	logger  *slog.Logger
	deps    Dependencies
	metrics Recorder
	now     func() time.Time

	inbox   *mailbox
	st      *state
	snap    atomic.Pointer[Snapshot]
	done    chan struct{}
	closing sync.Once
	bg      sync.WaitGroup

	subMu   sync.Mutex
	subs    map[int]chan Snapshot
	nextSub int

	cbMu       sync.RWMutex
	onFinished func(Summary)
}

// New creates a Session and starts its actor.
func New(deps Dependencies, opts ...Option) (*Session, error) {
	if deps.Backend == nil || deps.Transports == nil || deps.Media == nil {
		return nil, ErrMissingDependency
	}

	cfg := DefaultConfig()
	cfg.Apply(opts...)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	s := &Session{
		config:  cfg,
		logger:  cfg.Logger.With("component", "interview.session"),
		deps:    deps,
		metrics: cfg.Metrics,
		now:     cfg.Clock,
		inbox:   newMailbox(),
		done:    make(chan struct{}),
		subs:    make(map[int]chan Snapshot),
	}
	if s.metrics == nil {
		s.metrics = nopRecorder{}
	}

	filter := NewNarrationFilter(cfg.NarrationGrace, cfg.Clock, cfg.NarrationKeywords...)
	s.st = newState(NewTranscript(filter), filter)
	s.publish()

	go s.loop()
	return s, nil
}

// Start begins an interview on skills. It returns once the transport has
// negotiated; the session turns active when the remote session is ready.
// Start fails with ErrAlreadyActive unless the session is idle.
func (s *Session) Start(ctx context.Context, skills []string) error {
	skills = normalizeSkills(skills)
	if len(skills) == 0 {
		return ErrNoSkills
	}

	reply := make(chan startReply, 1)
	if !s.inbox.post(startReq{skills: skills, reply: reply}) {
		return ErrClosed
	}
	var r startReply
	select {
	case r = <-reply:
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	if r.err != nil {
		return r.err
	}

	if err := s.connect(ctx, r.run); err != nil {
		s.inbox.post(connectFailed{run: r.run, err: err})
		return err
	}
	return nil
}

// connect performs the blocking part of Start outside the actor.
func (s *Session) connect(ctx context.Context, run uint64) error {
	sess, err := s.deps.Backend.CreateRealtimeSession(ctx)
	if err != nil {
		return fmt.Errorf("interview: create session: %w", err)
	}
	s.inbox.post(sessionCreated{run: run, id: sess.ID})

	credential, err := s.deps.Backend.RealtimeToken(ctx, sess.ID)
	if err != nil {
		return fmt.Errorf("interview: fetch credential: %w", err)
	}

	media, err := s.deps.Media(ctx)
	if err != nil {
		return fmt.Errorf("interview: acquire microphone: %w", err)
	}

	registry, err := s.buildRegistry(run, sess.ID)
	if err != nil {
		_ = media.Close()
		return err
	}

	tr, err := s.deps.Transports()
	if err != nil {
		_ = media.Close()
		return fmt.Errorf("interview: create transport: %w", err)
	}
	s.bind(run, tr)

	attached := make(chan bool, 1)
	s.inbox.post(attachReq{run: run, transport: tr, registry: registry, reply: attached})
	var ok bool
	select {
	case ok = <-attached:
	case <-s.done:
	case <-ctx.Done():
	}
	if !ok {
		_ = media.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrAborted
	}

	if err := tr.Connect(ctx, credential, media); err != nil {
		if errors.Is(err, rtc.ErrClosed) {
			return ErrAborted
		}
		return fmt.Errorf("interview: connect: %w", err)
	}

	// A stop that landed between attach and Connect found nothing to close.
	live := make(chan bool, 1)
	s.inbox.post(negotiated{run: run, reply: live})
	select {
	case ok = <-live:
	case <-s.done:
		ok = false
	}
	if !ok {
		tr.Disconnect()
		return ErrAborted
	}
	return nil
}

// buildRegistry creates the tool registry for one interview.
func (s *Session) buildRegistry(run uint64, sessionID string) (*tools.Registry, error) {
	bridge, err := evaluation.NewBridge(s.deps.Backend, runHandle{s: s, run: run, sessionID: sessionID}, s.config.Logger)
	if err != nil {
		return nil, err
	}
	registry := tools.NewRegistry(s.config.Logger)
	if err := registry.Register(bridge.Tools()...); err != nil {
		return nil, err
	}
	if err := registry.Register(s.config.Tools...); err != nil {
		return nil, err
	}
	return registry, nil
}

// bind routes transport callbacks for run into the inbox.
func (s *Session) bind(run uint64, tr Transport) {
	tr.OnConnected(func() {
		s.inbox.post(transportEvent{run: run, kind: transportConnected})
	})
	tr.OnDisconnected(func(reason string) {
		s.inbox.post(transportEvent{run: run, kind: transportDisconnected, reason: reason})
	})
	tr.OnDataChannelOpen(func() {
		s.inbox.post(transportEvent{run: run, kind: transportOpened})
	})
	tr.OnError(func(err error) {
		s.inbox.post(transportEvent{run: run, kind: transportFailed, err: err})
	})
	tr.OnWarning(func(msg string) {
		s.inbox.post(transportEvent{run: run, kind: transportWarning, reason: msg})
	})
	tr.OnMessage(func(data []byte) {
		s.inbox.post(inbound{run: run, data: data})
	})
}

// Stop ends the interview gracefully. It fails with ErrCannotEnd until the
// target question count is reached or completion was signaled. Stopping a
// failed session returns it to idle.
func (s *Session) Stop(ctx context.Context) error {
	return s.request(ctx, func(reply chan error) any { return stopReq{reply: reply} })
}

// Abort ends the interview regardless of progress, including mid-connect.
func (s *Session) Abort(ctx context.Context) error {
	return s.request(ctx, func(reply chan error) any { return stopReq{force: true, reply: reply} })
}

// Reset returns a failed session to idle.
func (s *Session) Reset(ctx context.Context) error {
	return s.request(ctx, func(reply chan error) any { return resetReq{reply: reply} })
}

// Close aborts any running interview, stops the actor and waits for
// background work.
func (s *Session) Close() error {
	s.closing.Do(func() {
		if s.inbox.post(closeReq{}) {
			<-s.done
		}
		s.bg.Wait()
	})
	return nil
}

// Snapshot returns the current state.
func (s *Session) Snapshot() Snapshot {
	return *s.snap.Load()
}

// Subscribe returns a channel receiving the latest snapshot after every
// change, starting with the current one. Slow readers only see the newest
// snapshot. Call cancel to unsubscribe.
func (s *Session) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)
	ch <- s.Snapshot()

	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			close(ch)
			s.subMu.Unlock()
		})
	}
}

// OnFinished sets the callback run when an interview ends. It runs on its
// own goroutine.
func (s *Session) OnFinished(fn func(Summary)) {
	s.cbMu.Lock()
	s.onFinished = fn
	s.cbMu.Unlock()
}

func (s *Session) emitFinished(sum Summary) {
	s.cbMu.RLock()
	fn := s.onFinished
	s.cbMu.RUnlock()
	if fn == nil {
		return
	}
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		fn(sum)
	}()
}

func (s *Session) request(ctx context.Context, build func(chan error) any) error {
	reply := make(chan error, 1)
	if !s.inbox.post(build(reply)) {
		return ErrClosed
	}
	select {
	case err := <-reply:
		return err
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runHandle reports evaluation progress for one interview run.
type runHandle struct {
	s         *Session
	run       uint64
	sessionID string
}

var _ evaluation.Session = runHandle{}

func (h runHandle) SessionID() string {
	return h.sessionID
}

func (h runHandle) EvaluationStarted() {
	h.s.inbox.post(evalStarted{run: h.run})
}

func (h runHandle) EvaluationFinished(score float64, err error) {
	h.s.inbox.post(evalFinished{run: h.run, score: score, err: err})
}

func (h runHandle) CompletionSignaled() {
	h.s.inbox.post(completionSignaled{run: h.run})
}
