// Package guided runs the question-by-question practice interview.
//
// Unlike the realtime session there is no remote agent: the backend hands
// out one question at a time, a Speaker reads it aloud, and a
// transcription-only transport captures the spoken answer. When the backend
// runs out of questions the session is completed and its evaluations are
// returned.
package guided

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/teslashibe/go-interviewer/pkg/audio"
	"github.com/teslashibe/go-interviewer/pkg/backend"
	"github.com/teslashibe/go-interviewer/pkg/rtc"
)

// Backend is the subset of the backend client the flow uses.
type Backend interface {
	StartInterview(ctx context.Context, interviewID string) (*backend.Question, error)
	SubmitAnswer(ctx context.Context, sessionID string, req backend.AnswerRequest) error
	NextQuestion(ctx context.Context, sessionID string) (*backend.Question, error)
	CompleteInterview(ctx context.Context, sessionID string) (*backend.Completion, error)
	TranscriptionSession(ctx context.Context) (string, error)
}

var _ Backend = (*backend.Client)(nil)

// Transport is the capture side of the signaling adapter.
type Transport interface {
	Connect(ctx context.Context, credential string, media rtc.Media) error
	Send(msg any)
	Disconnect()
	OnMessage(fn func(data []byte))
	OnError(fn func(err error))
}

var _ Transport = (*rtc.Transport)(nil)

// TransportFactory builds one capture transport per answer.
type TransportFactory func() (Transport, error)

// MediaFactory acquires the microphone for one answer.
type MediaFactory func(ctx context.Context) (rtc.Media, error)

// Recorder receives flow measurements.
type Recorder interface {
	TranscriptEntry(ctx context.Context, role string)
}

// Dependencies are the collaborators of a Flow.
type Dependencies struct {
	Backend    Backend
	Speaker    audio.Speaker
	Transports TransportFactory
	Media      MediaFactory
}

// Question is one backend question.
type Question struct {
	ID    string
	Index int
	Total int
	Text  string
	Skill string
}

// Answer is a submitted answer.
type Answer struct {
	Question Question
	Text     string
}

// Result is the outcome of a completed guided interview.
type Result struct {
	SessionID   string
	Answers     []Answer
	Evaluations []backend.Evaluation
	Duration    time.Duration
}

// Flow runs guided interviews. A Flow may run several interviews in turn.
type Flow struct {
	config *Config
	deps   Dependencies
	logger *slog.Logger
}

// New creates a Flow.
func New(deps Dependencies, opts ...Option) (*Flow, error) {
	if deps.Backend == nil || deps.Speaker == nil || deps.Transports == nil || deps.Media == nil {
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
	return &Flow{
		config: cfg,
		deps:   deps,
		logger: cfg.Logger.With("component", "guided.flow"),
	}, nil
}

// Run asks every question of interviewID and completes the session.
func (f *Flow) Run(ctx context.Context, interviewID string) (*Result, error) {
	if interviewID == "" {
		return nil, ErrNoInterview
	}
	start := time.Now()

	q, err := f.deps.Backend.StartInterview(ctx, interviewID)
	if err != nil {
		return nil, fmt.Errorf("guided: start interview: %w", err)
	}
	res := &Result{SessionID: q.SessionID}
	f.logger.Info("guided interview started", "session_id", res.SessionID, "questions", q.TotalQuestions)

	for q.QuestionText != nil {
		question := Question{
			ID:    q.ID(),
			Index: q.QuestionIndex,
			Total: q.TotalQuestions,
			Text:  q.Text(),
			Skill: q.Skill,
		}
		if err := f.ask(ctx, res, question); err != nil {
			return nil, err
		}

		next, err := f.deps.Backend.NextQuestion(ctx, res.SessionID)
		if errors.Is(err, backend.ErrNoMoreQuestions) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("guided: next question: %w", err)
		}
		q = next
	}

	completion, err := f.deps.Backend.CompleteInterview(ctx, res.SessionID)
	if err != nil {
		return nil, fmt.Errorf("guided: complete interview: %w", err)
	}
	res.Evaluations = completion.Evaluations
	res.Duration = time.Since(start)

	f.logger.Info("guided interview completed",
		"session_id", res.SessionID,
		"answers", len(res.Answers),
		"evaluations", len(res.Evaluations),
	)
	return res, nil
}

// ask speaks one question, captures and submits the answer.
func (f *Flow) ask(ctx context.Context, res *Result, q Question) error {
	if f.config.OnQuestion != nil {
		f.config.OnQuestion(q)
	}
	if err := f.deps.Speaker.Speak(ctx, q.Text); err != nil {
		return fmt.Errorf("guided: speak question: %w", err)
	}
	if f.config.Metrics != nil {
		f.config.Metrics.TranscriptEntry(ctx, "assistant")
	}

	answer, err := f.listen(ctx)
	if err != nil {
		return err
	}
	if answer == "" {
		f.logger.Warn("no answer transcribed", "question_id", q.ID)
	}

	req := backend.AnswerRequest{QuestionID: q.ID, QuestionIndex: q.Index, Answer: answer}
	if err := f.deps.Backend.SubmitAnswer(ctx, res.SessionID, req); err != nil {
		return fmt.Errorf("guided: submit answer: %w", err)
	}
	res.Answers = append(res.Answers, Answer{Question: q, Text: answer})
	if f.config.Metrics != nil {
		f.config.Metrics.TranscriptEntry(ctx, "user")
	}
	if f.config.OnAnswer != nil {
		f.config.OnAnswer(q, answer)
	}
	return nil
}

// listen opens a transcription connection for one answer.
func (f *Flow) listen(ctx context.Context) (string, error) {
	credential, err := f.deps.Backend.TranscriptionSession(ctx)
	if err != nil {
		return "", fmt.Errorf("guided: transcription credential: %w", err)
	}

	media, err := f.deps.Media(ctx)
	if err != nil {
		var me *audio.MediaError
		if errors.As(err, &me) {
			f.logger.Error("microphone unavailable", "message", me.UserMessage())
		}
		return "", fmt.Errorf("guided: acquire microphone: %w", err)
	}

	tr, err := f.deps.Transports()
	if err != nil {
		_ = media.Close()
		return "", fmt.Errorf("guided: create transport: %w", err)
	}
	capture := newAnswerCapture(tr, f.config.TranscriptionModel, f.logger)

	if err := tr.Connect(ctx, credential, media); err != nil {
		return "", fmt.Errorf("guided: connect: %w", err)
	}
	defer tr.Disconnect()

	return capture.wait(ctx, f.config.AnswerPause, f.config.MaxAnswer)
}
