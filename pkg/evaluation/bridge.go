// Package evaluation connects the interviewer's tool calls to the backend.
//
// The Bridge exposes two tools to the remote agent: evaluate_answer, which
// stores a scored answer, and complete_interview, which closes the session.
// Progress is reported to the owning Session; the bridge holds no counters.
package evaluation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/teslashibe/go-interviewer/pkg/backend"
	"github.com/teslashibe/go-interviewer/pkg/tools"
)

// Tool names exposed to the remote agent.
const (
	ToolEvaluateAnswer    = "evaluate_answer"
	ToolCompleteInterview = "complete_interview"
)

// Score bounds, inclusive.
const (
	MinScore = 1
	MaxScore = 10
)

// Sentinel errors for the evaluation package.
var (
	// ErrScoreOutOfRange indicates a score outside MinScore..MaxScore.
	ErrScoreOutOfRange = errors.New("evaluation: score must be between 1 and 10")

	// ErrNoSession indicates no backend session is active.
	ErrNoSession = errors.New("evaluation: no active session")

	// ErrMissingBackend indicates the bridge was built without a backend.
	ErrMissingBackend = errors.New("evaluation: backend is required")
)

// Backend is the subset of the backend client the bridge calls.
type Backend interface {
	LogEvaluation(ctx context.Context, log backend.EvaluationLog) error
	CompleteRealtimeSession(ctx context.Context, sessionID string) error
}

var _ Backend = (*backend.Client)(nil)

// Session receives progress from the bridge.
type Session interface {
	// SessionID returns the backend id of the running session, or "".
	SessionID() string

	// EvaluationStarted is called before the backend write.
	EvaluationStarted()

	// EvaluationFinished is called once the backend acknowledged or failed.
	// err is nil when the evaluation was stored.
	EvaluationFinished(score float64, err error)

	// CompletionSignaled is called after the backend accepted completion.
	CompletionSignaled()
}

// Answer is one evaluation requested by the agent.
type Answer struct {
	Question string  `json:"question"`
	Answer   string  `json:"answer"`
	Score    float64 `json:"score"`
	Feedback string  `json:"feedback"`
}

// Validate checks the score range.
func (a Answer) Validate() error {
	if a.Score < MinScore || a.Score > MaxScore {
		return fmt.Errorf("%w: got %g", ErrScoreOutOfRange, a.Score)
	}
	return nil
}

// Bridge relays evaluation tool calls to the backend.
type Bridge struct {
	backend Backend
	session Session
	logger  *slog.Logger
}

// NewBridge creates a Bridge reporting to session.
func NewBridge(b Backend, session Session, logger *slog.Logger) (*Bridge, error) {
	if b == nil {
		return nil, ErrMissingBackend
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		backend: b,
		session: session,
		logger:  logger.With("component", "evaluation.bridge"),
	}, nil
}

// RecordEvaluation validates and stores one evaluation. Failures are returned
// as a failed Result and leave the session counters untouched.
func (b *Bridge) RecordEvaluation(ctx context.Context, a Answer) tools.Result {
	if err := a.Validate(); err != nil {
		b.logger.Warn("rejected evaluation", "score", a.Score)
		return tools.Failure(err)
	}

	sessionID := b.session.SessionID()
	if sessionID == "" {
		return tools.Failure(ErrNoSession)
	}

	b.session.EvaluationStarted()
	err := b.backend.LogEvaluation(ctx, backend.EvaluationLog{
		SessionID: sessionID,
		Question:  strings.TrimSpace(a.Question),
		Answer:    strings.TrimSpace(a.Answer),
		Score:     a.Score,
		Feedback:  strings.TrimSpace(a.Feedback),
	})
	b.session.EvaluationFinished(a.Score, err)

	if err != nil {
		b.logger.Error("failed to log evaluation", "session_id", sessionID, "error", err)
		return tools.Failure(fmt.Errorf("log evaluation: %w", err))
	}

	b.logger.Info("evaluation recorded", "session_id", sessionID, "score", a.Score)
	return tools.Result{Success: true}
}

// SignalCompletion marks the backend session complete. Repeated calls are
// forwarded to the backend; the session treats them as no-ops.
func (b *Bridge) SignalCompletion(ctx context.Context) tools.Result {
	sessionID := b.session.SessionID()
	if sessionID == "" {
		return tools.Failure(ErrNoSession)
	}

	if err := b.backend.CompleteRealtimeSession(ctx, sessionID); err != nil {
		b.logger.Error("failed to complete session", "session_id", sessionID, "error", err)
		return tools.Failure(fmt.Errorf("complete session: %w", err))
	}

	b.logger.Info("completion signaled", "session_id", sessionID)
	b.session.CompletionSignaled()
	return tools.Result{Success: true}
}

// Tools returns the tool definitions backed by this bridge.
func (b *Bridge) Tools() []tools.Tool {
	return []tools.Tool{
		{
			Name:        ToolEvaluateAnswer,
			Description: "Evaluate the candidate's answer to an interview question",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"question": map[string]any{"type": "string", "description": "The question that was asked"},
					"answer":   map[string]any{"type": "string", "description": "The candidate's answer"},
					"score": map[string]any{
						"type":        "number",
						"minimum":     MinScore,
						"maximum":     MaxScore,
						"description": "Score from 1-10",
					},
					"feedback": map[string]any{"type": "string", "description": "Detailed feedback on the answer"},
				},
				"required": []string{"question", "answer", "score", "feedback"},
			},
			Handler: func(ctx context.Context, args json.RawMessage) (any, error) {
				var a Answer
				if err := json.Unmarshal(args, &a); err != nil {
					return nil, fmt.Errorf("invalid arguments: %w", err)
				}
				return b.RecordEvaluation(ctx, a), nil
			},
		},
		{
			Name:        ToolCompleteInterview,
			Description: "Signal that every question has been asked and evaluated",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
			Handler: func(ctx context.Context, args json.RawMessage) (any, error) {
				return b.SignalCompletion(ctx), nil
			},
		},
	}
}
