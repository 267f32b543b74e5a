package interview

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/teslashibe/go-interviewer/pkg/observe"
	"github.com/teslashibe/go-interviewer/pkg/protocol"
	"github.com/teslashibe/go-interviewer/pkg/tools"
)

// mailbox is an unbounded FIFO. Posting never blocks, so transport
// callbacks fired from inside an actor call cannot deadlock it.
type mailbox struct {
	mu     sync.Mutex
	queue  []any
	closed bool
	signal chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{signal: make(chan struct{}, 1)}
}

// post enqueues ev. It returns false once the mailbox is closed.
func (m *mailbox) post(ev any) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	m.queue = append(m.queue, ev)
	m.mu.Unlock()

	select {
	case m.signal <- struct{}{}:
	default:
	}
	return true
}

func (m *mailbox) drain() []any {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.queue
	m.queue = nil
	return out
}

func (m *mailbox) close() {
	m.mu.Lock()
	m.closed = true
	m.queue = nil
	m.mu.Unlock()
}

// Inbox events.
type (
	startReq struct {
		skills []string
		reply  chan startReply
	}
	startReply struct {
		run uint64
		err error
	}
	sessionCreated struct {
		run uint64
		id  string
	}
	attachReq struct {
		run       uint64
		transport Transport
		registry  *tools.Registry
		reply     chan bool
	}
	negotiated struct {
		run   uint64
		reply chan bool
	}
	connectFailed struct {
		run uint64
		err error
	}
	transportEvent struct {
		run    uint64
		kind   transportKind
		reason string
		err    error
	}
	inbound struct {
		run  uint64
		data []byte
	}
	toolDone struct {
		run     uint64
		call    protocol.ToolCallRequested
		result  tools.Result
		err     error
		elapsed time.Duration
	}
	evalStarted struct {
		run uint64
	}
	evalFinished struct {
		run   uint64
		score float64
		err   error
	}
	completionSignaled struct {
		run uint64
	}
	autoStop struct {
		run uint64
	}
	stopReq struct {
		force bool
		reply chan error
	}
	resetReq struct {
		reply chan error
	}
	closeReq struct{}
)

type transportKind int

const (
	transportConnected transportKind = iota
	transportDisconnected
	transportOpened
	transportFailed
	transportWarning
)

// state is owned by the actor goroutine.
type state struct {
	status    Status
	run       uint64
	sessionID string
	skills    []string
	target    int
	answered  int
	canEnd    bool
	completed bool
	err       string
	startedAt time.Time

	// live is set once the session counted as started in metrics.
	live bool

	runCtx    context.Context
	cancelRun context.CancelFunc
	transport Transport
	registry  *tools.Registry
	stopTimer *time.Timer

	connections int
	connected   bool
	ready       bool
	configured  bool

	responseOpen bool
	audioActive  bool
	userSpeaking bool

	// replyDue is set when a tool output arrived while a response was open;
	// the follow-up response is requested once that response is done.
	replyDue bool

	// heard holds user items whose speech started while the assistant was
	// silent. Their text passes the speaking gate.
	heard map[string]bool

	transcript *Transcript
	filter     *NarrationFilter
	version    uint64
	replies    []func()
}

func newState(t *Transcript, f *NarrationFilter) *state {
	return &state{
		status:     StatusIdle,
		heard:      make(map[string]bool),
		transcript: t,
		filter:     f,
	}
}

func (st *state) speaking() bool {
	return st.responseOpen || st.audioActive
}

// derive computes the live status from the speaking flags.
func (st *state) derive() Status {
	switch {
	case st.speaking():
		return StatusSpeaking
	case st.userSpeaking:
		return StatusListening
	}
	return StatusActive
}

func (st *state) clearFlags() {
	st.responseOpen = false
	st.audioActive = false
	st.userSpeaking = false
	st.replyDue = false
}

// gated reports whether user text for itemID is held out of the transcript
// because the assistant is speaking.
func (st *state) gated(itemID string) bool {
	return st.speaking() && (itemID == "" || !st.heard[itemID])
}

func (s *Session) loop() {
	defer close(s.done)
	for range s.inbox.signal {
		for _, ev := range s.inbox.drain() {
			if s.step(ev) {
				s.inbox.close()
				return
			}
		}
	}
}

// step handles one event, publishes if it changed state and then releases
// queued replies, so callers observe the new snapshot on return.
func (s *Session) step(ev any) (quit bool) {
	changed, quit := s.handle(ev)
	if changed {
		s.publish()
	}
	for _, fn := range s.st.replies {
		fn()
	}
	s.st.replies = s.st.replies[:0]
	return quit
}

func (s *Session) reply(fn func()) {
	s.st.replies = append(s.st.replies, fn)
}

func (s *Session) current(run uint64) bool {
	return run == s.st.run && s.st.status != StatusIdle && s.st.status != StatusError
}

func (s *Session) handle(ev any) (changed, quit bool) {
	st := s.st
	switch ev := ev.(type) {
	case startReq:
		return s.handleStart(ev), false

	case sessionCreated:
		if !s.current(ev.run) {
			return false, false
		}
		st.sessionID = ev.id
		return true, false

	case attachReq:
		ok := s.current(ev.run) && st.status == StatusConnecting
		if ok {
			st.transport = ev.transport
			st.registry = ev.registry
		}
		s.reply(func() { ev.reply <- ok })
		return false, false

	case negotiated:
		ok := s.current(ev.run)
		s.reply(func() { ev.reply <- ok })
		return false, false

	case connectFailed:
		if !s.current(ev.run) {
			return false, false
		}
		s.fail(ev.err)
		return true, false

	case transportEvent:
		if !s.current(ev.run) {
			return false, false
		}
		return s.handleTransport(ev), false

	case inbound:
		if !s.current(ev.run) {
			return false, false
		}
		return s.handleMessage(ev.data), false

	case toolDone:
		if !s.current(ev.run) {
			return false, false
		}
		s.handleToolDone(ev)
		return false, false

	case evalStarted:
		if !s.current(ev.run) {
			return false, false
		}
		st.filter.Begin()
		return false, false

	case evalFinished:
		if !s.current(ev.run) {
			return false, false
		}
		return s.handleEvaluation(ev), false

	case completionSignaled:
		if !s.current(ev.run) {
			return false, false
		}
		st.canEnd = true
		st.completed = true
		s.scheduleStop()
		return true, false

	case autoStop:
		if !s.current(ev.run) || !st.status.Live() {
			return false, false
		}
		s.logger.Info("interview complete, stopping", "answered", st.answered, "target", st.target)
		s.finish(ReasonCompleted)
		return true, false

	case stopReq:
		err := s.handleStop(ev.force)
		s.reply(func() { ev.reply <- err })
		return true, false

	case resetReq:
		var err error
		switch st.status {
		case StatusError:
			s.resetState()
		case StatusIdle:
		default:
			err = ErrAlreadyActive
		}
		s.reply(func() { ev.reply <- err })
		return err == nil, false

	case closeReq:
		switch {
		case st.status == StatusError:
			s.resetState()
		case st.status != StatusIdle:
			s.finish(ReasonClosed)
		}
		return true, true
	}

	s.logger.Warn("unhandled inbox event", "type", fmt.Sprintf("%T", ev))
	return false, false
}

func (s *Session) handleStart(req startReq) bool {
	st := s.st
	if st.status != StatusIdle {
		s.reply(func() { req.reply <- startReply{err: ErrAlreadyActive} })
		return false
	}

	s.resetState()
	st.run++
	st.status = StatusConnecting
	st.skills = req.skills
	st.target = len(req.skills) * s.config.QuestionsPerSkill
	st.startedAt = s.now()
	st.runCtx, st.cancelRun = context.WithCancel(context.Background())

	s.logger.Info("interview starting", "skills", st.skills, "target", st.target, "run", st.run)
	run := st.run
	s.reply(func() { req.reply <- startReply{run: run} })
	return true
}

func (s *Session) handleTransport(ev transportEvent) bool {
	st := s.st
	switch ev.kind {
	case transportConnected:
		st.connected = true
		st.connections++
		if st.connections > 1 {
			s.logger.Info("transport reconnected, starting new transcript epoch", "connections", st.connections)
			st.transcript.NewEpoch()
			st.ready = false
			st.configured = false
			st.clearFlags()
			st.heard = make(map[string]bool)
			if st.status.Live() {
				st.status = StatusActive
			}
		}
		s.activateIfReady()
		return true

	case transportDisconnected:
		st.connected = false
		s.logger.Warn("transport disconnected", "reason", ev.reason)
		return false

	case transportOpened:
		s.logger.Debug("data channel open")
		return false

	case transportFailed:
		s.metrics.TransportFailed(context.Background(), "ice")
		s.fail(ev.err)
		return true

	case transportWarning:
		s.logger.Warn("transport warning", "message", ev.reason)
	}
	return false
}

// activateIfReady moves a connecting session to active once the transport
// is connected and the remote session is ready.
func (s *Session) activateIfReady() {
	st := s.st
	if st.status != StatusConnecting || !st.connected || !st.ready {
		return
	}
	st.status = st.derive()
	st.live = true
	s.metrics.SessionStarted(context.Background(), "connected")
	s.logger.Info("interview active", "session_id", st.sessionID)
}

func (s *Session) handleMessage(data []byte) bool {
	st := s.st
	ev, err := protocol.Parse(data)
	if err != nil {
		s.logger.Warn("dropping malformed message", "error", err)
		return false
	}

	switch ev := ev.(type) {
	case protocol.SessionReady:
		st.ready = true
		if !st.configured {
			s.configure()
		}
		s.activateIfReady()

	case protocol.AssistantTextDelta:
		if st.transcript.AppendAssistant(ev.Text, ev.TurnKey) {
			s.metrics.TranscriptEntry(context.Background(), string(protocol.RoleAssistant))
		}

	case protocol.UserTextDelta:
		if st.gated(ev.ItemID) {
			st.transcript.Hold(ev.Text)
			break
		}
		if st.transcript.AppendUser(ev.Text, ev.ItemID) {
			s.metrics.TranscriptEntry(context.Background(), string(protocol.RoleUser))
		}

	case protocol.UserTranscriptCompleted:
		if st.gated(ev.ItemID) {
			st.transcript.HoldComplete(ev.Text)
			break
		}
		if st.transcript.CompleteUser(ev.Text, ev.ItemID) {
			s.metrics.TranscriptEntry(context.Background(), string(protocol.RoleUser))
		}
		delete(st.heard, ev.ItemID)

	case protocol.TurnBoundary:
		s.handleBoundary(ev)

	case protocol.ToolCallRequested:
		s.dispatch(ev)
		return false

	case protocol.ErrorReported:
		s.fail(&RemoteError{Code: ev.Code, Message: ev.Message})
		return true

	case protocol.Unrecognized:
		s.logger.Debug("ignoring message", "type", ev.Type)
		return false
	}

	if st.status.Live() {
		st.status = st.derive()
	}
	return true
}

// configure sends the one-time session update for the current connection.
func (s *Session) configure() {
	st := s.st
	update := protocol.NewSessionUpdate(protocol.SessionConfig{
		Instructions:            Instructions(st.skills, s.config.QuestionsPerSkill),
		Voice:                   s.config.Voice,
		Modalities:              []string{"audio", "text"},
		InputAudioTranscription: &protocol.Transcription{Model: s.config.TranscriptionModel},
		TurnDetection:           protocol.DefaultTurnDetection(),
		Tools:                   st.registry.Definitions(),
		ToolChoice:              "auto",
	})
	st.transport.Send(update)
	st.configured = true
	s.logger.Debug("session configured", "tools", st.registry.Names())
}

func (s *Session) handleBoundary(b protocol.TurnBoundary) {
	st := s.st
	if b.Role == protocol.RoleUser {
		if b.Phase == protocol.PhaseOpen {
			st.userSpeaking = true
			if !st.speaking() && b.TurnKey != "" {
				st.heard[b.TurnKey] = true
			}
			return
		}
		st.userSpeaking = false
		st.transcript.Close(protocol.RoleUser)
		return
	}

	open := b.Phase == protocol.PhaseOpen
	switch b.Kind {
	case protocol.BoundaryResponse:
		st.responseOpen = open
		if !open {
			st.transcript.Close(protocol.RoleAssistant)
			if st.replyDue {
				st.replyDue = false
				st.transport.Send(protocol.NewResponseCreate())
			}
		}
	case protocol.BoundaryAudio:
		st.audioActive = open
	case protocol.BoundaryTranscript:
		st.transcript.Close(protocol.RoleAssistant)
	}
}

// dispatch runs a tool call off the actor and posts its result back.
func (s *Session) dispatch(call protocol.ToolCallRequested) {
	st := s.st
	registry, run := st.registry, st.run
	ctx, cancel := context.WithTimeout(st.runCtx, s.config.ToolTimeout)

	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		defer cancel()

		ctx, span := observe.StartSpan(ctx, "interview.tool",
			trace.WithAttributes(attribute.String("tool.name", call.Name), attribute.String("tool.call_id", call.CallID)))
		defer span.End()

		start := time.Now()
		res, err := registry.Dispatch(ctx, call)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		s.inbox.post(toolDone{run: run, call: call, result: res, err: err, elapsed: time.Since(start)})
	}()
}

func (s *Session) handleToolDone(ev toolDone) {
	st := s.st
	status := "ok"
	if !ev.result.Success {
		status = "error"
	}
	s.metrics.ToolCalled(context.Background(), ev.call.Name, status, ev.elapsed.Seconds())

	out, err := protocol.NewFunctionCallOutput(ev.call.CallID, ev.result)
	if err != nil {
		s.logger.Warn("tool output not encodable", "tool", ev.call.Name, "error", err)
		out, _ = protocol.NewFunctionCallOutput(ev.call.CallID, tools.Failure(err))
	}
	st.transport.Send(out)
	if st.responseOpen {
		st.replyDue = true
		return
	}
	st.transport.Send(protocol.NewResponseCreate())
}

func (s *Session) handleEvaluation(ev evalFinished) bool {
	st := s.st
	st.filter.End()
	if ev.err != nil {
		s.logger.Warn("evaluation not recorded", "error", ev.err)
		return false
	}

	st.answered = min(st.answered+1, st.target)
	s.metrics.EvaluationScored(context.Background(), ev.score)
	s.logger.Info("answer evaluated", "score", ev.score, "answered", st.answered, "target", st.target)

	if st.answered >= st.target {
		st.canEnd = true
		s.scheduleStop()
	}
	return true
}

// scheduleStop arms the auto-stop once per run.
func (s *Session) scheduleStop() {
	st := s.st
	if st.stopTimer != nil {
		return
	}
	run := st.run
	st.stopTimer = time.AfterFunc(s.config.AutoStopDelay, func() {
		s.inbox.post(autoStop{run: run})
	})
}

func (s *Session) handleStop(force bool) error {
	st := s.st
	switch {
	case st.status == StatusIdle:
		return nil
	case st.status == StatusError:
		s.resetState()
		return nil
	case force:
		s.finish(ReasonAborted)
		return nil
	case !st.canEnd:
		return ErrCannotEnd
	case st.completed:
		s.finish(ReasonCompleted)
	default:
		s.finish(ReasonStopped)
	}
	return nil
}

// finish ends the current run and returns the session to idle.
func (s *Session) finish(reason string) {
	st := s.st
	st.clearFlags()
	st.transcript.ClearLive()
	st.transcript.NewEpoch()

	sum := Summary{
		SessionID:         st.sessionID,
		Skills:            st.skills,
		Reason:            reason,
		QuestionsAnswered: st.answered,
		TargetQuestions:   st.target,
		Transcript:        st.transcript.Entries(),
		StartedAt:         st.startedAt,
		EndedAt:           s.now(),
	}

	st.run++
	s.teardown()

	if st.sessionID != "" && !st.completed {
		s.completeInBackground(st.sessionID)
	}
	if st.live {
		s.metrics.SessionEnded(context.Background(), reason)
	}
	s.logger.Info("interview finished", "reason", reason, "session_id", sum.SessionID, "answered", sum.QuestionsAnswered)

	s.emitFinished(sum)
	s.resetState()
}

// fail moves the session to error. The transcript is kept for display
// until the session is reset.
func (s *Session) fail(err error) {
	st := s.st
	msg := userMessage(err)
	s.logger.Error("interview failed", "error", err, "status", st.status)

	st.run++
	s.teardown()
	st.clearFlags()
	st.transcript.ClearLive()
	st.transcript.NewEpoch()

	if st.live {
		s.metrics.SessionEnded(context.Background(), "error")
	} else {
		s.metrics.SessionStarted(context.Background(), "failed")
	}
	st.live = false
	st.status = StatusError
	st.err = msg
}

// teardown releases the run's transport, timer and tool contexts.
func (s *Session) teardown() {
	st := s.st
	if st.cancelRun != nil {
		st.cancelRun()
		st.cancelRun = nil
	}
	if st.stopTimer != nil {
		st.stopTimer.Stop()
		st.stopTimer = nil
	}
	if tr := st.transport; tr != nil {
		st.transport = nil
		tr.Disconnect()
	}
}

func (s *Session) resetState() {
	st := s.st
	s.teardown()
	st.status = StatusIdle
	st.sessionID = ""
	st.skills = nil
	st.target = 0
	st.answered = 0
	st.canEnd = false
	st.completed = false
	st.err = ""
	st.startedAt = time.Time{}
	st.live = false
	st.runCtx = nil
	st.registry = nil
	st.connections = 0
	st.connected = false
	st.ready = false
	st.configured = false
	st.clearFlags()
	st.heard = make(map[string]bool)
	st.transcript.Reset()
}

// completeInBackground tells the backend the session ended. It never blocks
// the actor and failures are only logged.
func (s *Session) completeInBackground(sessionID string) {
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.config.CompleteTimeout)
		defer cancel()
		if err := s.deps.Backend.CompleteRealtimeSession(ctx, sessionID); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Warn("complete session failed", "session_id", sessionID, "error", err)
		}
	}()
}

// publish stores a new snapshot and offers it to subscribers.
func (s *Session) publish() {
	st := s.st
	st.version++
	snap := &Snapshot{
		Status:            st.status,
		SessionID:         st.sessionID,
		Skills:            append([]string(nil), st.skills...),
		Transcript:        st.transcript.Entries(),
		CurrentQuestion:   st.transcript.Question(),
		QuestionsAnswered: st.answered,
		TargetQuestions:   st.target,
		CanEnd:            st.canEnd,
		AssistantSpeaking: st.speaking(),
		LiveUserSpeech:    st.transcript.Live(),
		Error:             st.err,
		Version:           st.version,
		UpdatedAt:         s.now(),
	}
	s.snap.Store(snap)

	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- *snap:
		default:
		}
	}
}
