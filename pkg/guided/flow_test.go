package guided

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v3"

	"github.com/teslashibe/go-interviewer/pkg/audio"
	"github.com/teslashibe/go-interviewer/pkg/backend"
	"github.com/teslashibe/go-interviewer/pkg/protocol"
	"github.com/teslashibe/go-interviewer/pkg/rtc"
)

type fakeBackend struct {
	mu          sync.Mutex
	questions   []string
	next        int
	answers     []backend.AnswerRequest
	completed   bool
	credentials int
}

func (b *fakeBackend) question(i int) *backend.Question {
	q := &backend.Question{SessionID: "gs_1", QuestionIndex: i, TotalQuestions: len(b.questions)}
	if i < len(b.questions) {
		text := b.questions[i]
		q.QuestionText = &text
	}
	return q
}

func (b *fakeBackend) StartInterview(ctx context.Context, interviewID string) (*backend.Question, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.question(0), nil
}

func (b *fakeBackend) SubmitAnswer(ctx context.Context, sessionID string, req backend.AnswerRequest) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.answers = append(b.answers, req)
	return nil
}

func (b *fakeBackend) NextQuestion(ctx context.Context, sessionID string) (*backend.Question, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	if b.next >= len(b.questions) {
		return nil, backend.ErrNoMoreQuestions
	}
	return b.question(b.next), nil
}

func (b *fakeBackend) CompleteInterview(ctx context.Context, sessionID string) (*backend.Completion, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.completed = true
	var evals []backend.Evaluation
	for _, a := range b.answers {
		evals = append(evals, backend.Evaluation{QuestionID: a.QuestionID, Answer: a.Answer, Score: 7})
	}
	return &backend.Completion{Evaluations: evals}, nil
}

func (b *fakeBackend) TranscriptionSession(ctx context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.credentials++
	return "ek_transcribe", nil
}

type fakeSpeaker struct {
	audio.Callbacks
	mu    sync.Mutex
	texts []string
}

func (s *fakeSpeaker) Speak(ctx context.Context, text string) error {
	s.mu.Lock()
	s.texts = append(s.texts, text)
	s.mu.Unlock()
	return nil
}

// step is one scripted inbound message, sent after delay.
type step struct {
	delay time.Duration
	msg   string
}

type fakeTransport struct {
	script []step

	mu           sync.Mutex
	onMessage    func([]byte)
	onError      func(error)
	sent         []any
	disconnected bool
}

func (t *fakeTransport) Connect(ctx context.Context, credential string, media rtc.Media) error {
	go func() {
		for _, s := range t.script {
			time.Sleep(s.delay)
			t.mu.Lock()
			fn := t.onMessage
			t.mu.Unlock()
			fn([]byte(s.msg))
		}
	}()
	return nil
}

func (t *fakeTransport) Send(msg any) {
	t.mu.Lock()
	t.sent = append(t.sent, msg)
	t.mu.Unlock()
}

func (t *fakeTransport) Disconnect() {
	t.mu.Lock()
	t.disconnected = true
	t.mu.Unlock()
}

func (t *fakeTransport) OnMessage(fn func([]byte)) {
	t.mu.Lock()
	t.onMessage = fn
	t.mu.Unlock()
}

func (t *fakeTransport) OnError(fn func(error)) {
	t.mu.Lock()
	t.onError = fn
	t.mu.Unlock()
}

func (t *fakeTransport) updates() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	var n int
	for _, m := range t.sent {
		data, _ := json.Marshal(m)
		if strings.Contains(string(data), string(protocol.TypeTranscriptionSessionUpdate)) {
			n++
		}
	}
	return n
}

type fakeMedia struct{}

func (fakeMedia) Track() webrtc.TrackLocal { return nil }
func (fakeMedia) Close() error             { return nil }

func answerScript(text string) []step {
	words := strings.Fields(text)
	script := []step{
		{0, `{"type":"transcription_session.created","session":{"id":"ts_1"}}`},
		{0, `{"type":"transcription_session.created","session":{"id":"ts_1"}}`},
		{0, `{"type":"input_audio_buffer.speech_started","item_id":"i1"}`},
	}
	for _, w := range words {
		script = append(script, step{0, `{"type":"conversation.item.input_audio_transcription.delta","item_id":"i1","delta":"` + w + ` "}`})
	}
	return append(script,
		step{0, `{"type":"input_audio_buffer.speech_stopped","item_id":"i1"}`},
		step{0, `{"type":"conversation.item.input_audio_transcription.completed","item_id":"i1","transcript":"` + text + `"}`},
	)
}

type harness struct {
	backend    *fakeBackend
	speaker    *fakeSpeaker
	mu         sync.Mutex
	scripts    [][]step
	transports []*fakeTransport
	flow       *Flow
}

func newHarness(t *testing.T, questions []string, scripts [][]step, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		backend: &fakeBackend{questions: questions},
		speaker: &fakeSpeaker{},
		scripts: scripts,
	}
	deps := Dependencies{
		Backend: h.backend,
		Speaker: h.speaker,
		Transports: func() (Transport, error) {
			h.mu.Lock()
			defer h.mu.Unlock()
			tr := &fakeTransport{script: h.scripts[len(h.transports)]}
			h.transports = append(h.transports, tr)
			return tr, nil
		},
		Media: func(context.Context) (rtc.Media, error) { return fakeMedia{}, nil },
	}
	opts = append([]Option{
		WithAnswerTiming(30*time.Millisecond, 2*time.Second),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}, opts...)
	flow, err := New(deps, opts...)
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	h.flow = flow
	return h
}

func TestRunAsksEveryQuestion(t *testing.T) {
	questions := []string{"What is a goroutine?", "When would you use a mutex?"}
	answers := []string{"A lightweight thread.", "To guard shared state."}
	h := newHarness(t, questions, [][]step{answerScript(answers[0]), answerScript(answers[1])})

	var asked []Question
	h.flow.config.OnQuestion = func(q Question) { asked = append(asked, q) }

	res, err := h.flow.Run(context.Background(), "int_1")
	if err != nil {
		t.Fatalf("Run() = %v", err)
	}

	if got := h.speaker.texts; len(got) != 2 || got[0] != questions[0] || got[1] != questions[1] {
		t.Errorf("spoken = %v", got)
	}
	if len(asked) != 2 || asked[1].Index != 1 || asked[1].Total != 2 {
		t.Errorf("asked = %+v", asked)
	}
	if len(h.backend.answers) != 2 {
		t.Fatalf("submitted %d answers", len(h.backend.answers))
	}
	for i, a := range h.backend.answers {
		if a.Answer != answers[i] {
			t.Errorf("answer %d = %q, want %q", i, a.Answer, answers[i])
		}
		if a.QuestionIndex != i || a.QuestionID == "" {
			t.Errorf("answer %d = %+v", i, a)
		}
	}
	if !h.backend.completed || len(res.Evaluations) != 2 || res.SessionID != "gs_1" {
		t.Errorf("result = %+v", res)
	}
	if h.backend.credentials != 2 {
		t.Errorf("credentials = %d, want one per answer", h.backend.credentials)
	}
	for i, tr := range h.transports {
		if n := tr.updates(); n != 1 {
			t.Errorf("transport %d sent %d session updates, want 1", i, n)
		}
		tr.mu.Lock()
		if !tr.disconnected {
			t.Errorf("transport %d not disconnected", i)
		}
		tr.mu.Unlock()
	}
}

func TestRunWithoutQuestions(t *testing.T) {
	h := newHarness(t, nil, nil)
	res, err := h.flow.Run(context.Background(), "int_1")
	if err != nil {
		t.Fatalf("Run() = %v", err)
	}
	if len(h.speaker.texts) != 0 || len(res.Answers) != 0 {
		t.Error("nothing should be asked")
	}
	if !h.backend.completed {
		t.Error("session should still be completed")
	}
}

func TestAnswerTimeLimitSubmitsPartial(t *testing.T) {
	script := []step{
		{0, `{"type":"transcription_session.created"}`},
		{0, `{"type":"input_audio_buffer.speech_started","item_id":"i1"}`},
		{0, `{"type":"conversation.item.input_audio_transcription.delta","item_id":"i1","delta":"I would "}`},
		{0, `{"type":"conversation.item.input_audio_transcription.delta","item_id":"i1","delta":"start by"}`},
	}
	h := newHarness(t, []string{"Design a cache."}, [][]step{script},
		WithAnswerTiming(10*time.Millisecond, 100*time.Millisecond))

	if _, err := h.flow.Run(context.Background(), "int_1"); err != nil {
		t.Fatalf("Run() = %v", err)
	}
	if got := h.backend.answers[0].Answer; got != "I would start by" {
		t.Errorf("answer = %q", got)
	}
}

func TestSpeechKeepsAnswerOpen(t *testing.T) {
	script := []step{
		{0, `{"type":"transcription_session.created"}`},
		{0, `{"type":"conversation.item.input_audio_transcription.completed","item_id":"i1","transcript":"Part one."}`},
		{0, `{"type":"input_audio_buffer.speech_started","item_id":"i2"}`},
		{150 * time.Millisecond, `{"type":"conversation.item.input_audio_transcription.completed","item_id":"i2","transcript":"Part two."}`},
	}
	h := newHarness(t, []string{"Explain channels."}, [][]step{script},
		WithAnswerTiming(50*time.Millisecond, 2*time.Second))

	if _, err := h.flow.Run(context.Background(), "int_1"); err != nil {
		t.Fatalf("Run() = %v", err)
	}
	if got := h.backend.answers[0].Answer; got != "Part one. Part two." {
		t.Errorf("answer = %q", got)
	}
}

func TestTranscriptionErrorStopsFlow(t *testing.T) {
	script := []step{
		{0, `{"type":"transcription_session.created"}`},
		{0, `{"type":"error","error":{"message":"invalid audio"}}`},
	}
	h := newHarness(t, []string{"Q?"}, [][]step{script})

	_, err := h.flow.Run(context.Background(), "int_1")
	if err == nil || !strings.Contains(err.Error(), "invalid audio") {
		t.Fatalf("Run() = %v", err)
	}
	if len(h.backend.answers) != 0 || h.backend.completed {
		t.Error("failed answer should not be submitted")
	}
}

func TestTransportErrorStopsFlow(t *testing.T) {
	h := newHarness(t, []string{"Q?"}, [][]step{{{0, `{"type":"transcription_session.created"}`}}})
	boom := errors.New("ice failed")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	go func() {
		for {
			h.mu.Lock()
			var tr *fakeTransport
			if len(h.transports) > 0 {
				tr = h.transports[0]
			}
			h.mu.Unlock()
			if tr != nil {
				tr.mu.Lock()
				fn := tr.onError
				tr.mu.Unlock()
				if fn != nil {
					fn(boom)
					return
				}
			}
			time.Sleep(time.Millisecond)
		}
	}()

	if _, err := h.flow.Run(ctx, "int_1"); !errors.Is(err, boom) {
		t.Fatalf("Run() = %v, want %v", err, boom)
	}
}

func TestMediaFailure(t *testing.T) {
	h := newHarness(t, []string{"Q?"}, nil)
	h.flow.deps.Media = func(context.Context) (rtc.Media, error) {
		return nil, &audio.MediaError{Kind: audio.ErrPermissionDenied, Cause: errors.New("EACCES")}
	}

	_, err := h.flow.Run(context.Background(), "int_1")
	if !errors.Is(err, audio.ErrPermissionDenied) {
		t.Fatalf("Run() = %v", err)
	}
}

func TestNewValidates(t *testing.T) {
	if _, err := New(Dependencies{}); !errors.Is(err, ErrMissingDependency) {
		t.Errorf("New() = %v", err)
	}

	deps := Dependencies{
		Backend:    &fakeBackend{},
		Speaker:    &fakeSpeaker{},
		Transports: func() (Transport, error) { return &fakeTransport{}, nil },
		Media:      func(context.Context) (rtc.Media, error) { return fakeMedia{}, nil },
	}
	if _, err := New(deps, WithAnswerTiming(time.Minute, time.Second)); err == nil {
		t.Error("pause longer than the answer cap should be rejected")
	}
	f, err := New(deps)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.Run(context.Background(), ""); !errors.Is(err, ErrNoInterview) {
		t.Errorf("Run(\"\") = %v", err)
	}
}
