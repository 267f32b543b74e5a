package evaluation

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/teslashibe/go-interviewer/pkg/backend"
	"github.com/teslashibe/go-interviewer/pkg/protocol"
	"github.com/teslashibe/go-interviewer/pkg/tools"
)

type fakeBackend struct {
	mu          sync.Mutex
	logs        []backend.EvaluationLog
	completions []string
	logErr      error
	completeErr error
}

func (f *fakeBackend) LogEvaluation(ctx context.Context, log backend.EvaluationLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.logErr != nil {
		return f.logErr
	}
	f.logs = append(f.logs, log)
	return nil
}

func (f *fakeBackend) CompleteRealtimeSession(ctx context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.completeErr != nil {
		return f.completeErr
	}
	f.completions = append(f.completions, sessionID)
	return nil
}

type fakeSession struct {
	id        string
	started   int
	recorded  []float64
	failed    int
	completed int
}

func (f *fakeSession) SessionID() string  { return f.id }
func (f *fakeSession) EvaluationStarted() { f.started++ }
func (f *fakeSession) CompletionSignaled() { f.completed++ }
func (f *fakeSession) EvaluationFinished(score float64, err error) {
	if err != nil {
		f.failed++
		return
	}
	f.recorded = append(f.recorded, score)
}

func newTestBridge(t *testing.T, b *fakeBackend, s *fakeSession) *Bridge {
	t.Helper()
	bridge, err := NewBridge(b, s, nil)
	if err != nil {
		t.Fatalf("NewBridge: %v", err)
	}
	return bridge
}

func TestNewBridgeRequiresBackend(t *testing.T) {
	if _, err := NewBridge(nil, &fakeSession{}, nil); !errors.Is(err, ErrMissingBackend) {
		t.Errorf("expected ErrMissingBackend, got %v", err)
	}
}

func TestRecordEvaluation(t *testing.T) {
	t.Run("stores and reports", func(t *testing.T) {
		b, s := &fakeBackend{}, &fakeSession{id: "rt-1"}
		res := newTestBridge(t, b, s).RecordEvaluation(context.Background(), Answer{
			Question: " What is JSX? ", Answer: "syntax sugar", Score: 7.5, Feedback: "solid",
		})
		if !res.Success {
			t.Fatalf("expected success: %+v", res)
		}
		if len(b.logs) != 1 || b.logs[0].SessionID != "rt-1" || b.logs[0].Question != "What is JSX?" {
			t.Errorf("logs = %+v", b.logs)
		}
		if s.started != 1 || len(s.recorded) != 1 || s.recorded[0] != 7.5 {
			t.Errorf("session = %+v", s)
		}
	})

	t.Run("score bounds", func(t *testing.T) {
		tests := []struct {
			score float64
			ok    bool
		}{
			{0, false}, {0.99, false}, {1, true}, {10, true}, {10.5, false}, {-3, false},
		}
		for _, tt := range tests {
			b, s := &fakeBackend{}, &fakeSession{id: "rt-1"}
			res := newTestBridge(t, b, s).RecordEvaluation(context.Background(), Answer{Score: tt.score})
			if res.Success != tt.ok {
				t.Errorf("score %g: success = %v, want %v", tt.score, res.Success, tt.ok)
			}
			if !tt.ok && (len(b.logs) != 0 || s.started != 0) {
				t.Errorf("score %g: invalid score reached the backend", tt.score)
			}
		}
	})

	t.Run("backend failure leaves counters", func(t *testing.T) {
		b, s := &fakeBackend{logErr: errors.New("503")}, &fakeSession{id: "rt-1"}
		res := newTestBridge(t, b, s).RecordEvaluation(context.Background(), Answer{Score: 5})
		if res.Success || res.Error == "" {
			t.Fatalf("expected failure with message: %+v", res)
		}
		if len(s.recorded) != 0 || s.failed != 1 {
			t.Errorf("session = %+v", s)
		}
	})

	t.Run("no session", func(t *testing.T) {
		b := &fakeBackend{}
		res := newTestBridge(t, b, &fakeSession{}).RecordEvaluation(context.Background(), Answer{Score: 5})
		if res.Success || len(b.logs) != 0 {
			t.Errorf("expected failure without backend call: %+v", res)
		}
	})
}

func TestSignalCompletion(t *testing.T) {
	t.Run("idempotent", func(t *testing.T) {
		b, s := &fakeBackend{}, &fakeSession{id: "rt-1"}
		bridge := newTestBridge(t, b, s)
		for i := 0; i < 2; i++ {
			if res := bridge.SignalCompletion(context.Background()); !res.Success {
				t.Fatalf("call %d: %+v", i, res)
			}
		}
		if len(b.completions) != 2 || s.completed != 2 {
			t.Errorf("completions = %v, signaled = %d", b.completions, s.completed)
		}
	})

	t.Run("failure keeps session", func(t *testing.T) {
		b, s := &fakeBackend{completeErr: errors.New("boom")}, &fakeSession{id: "rt-1"}
		res := newTestBridge(t, b, s).SignalCompletion(context.Background())
		if res.Success || s.completed != 0 {
			t.Errorf("res = %+v, signaled = %d", res, s.completed)
		}
	})
}

func TestToolsThroughRegistry(t *testing.T) {
	b, s := &fakeBackend{}, &fakeSession{id: "rt-1"}
	reg := tools.NewRegistry(nil)
	if err := reg.Register(newTestBridge(t, b, s).Tools()...); err != nil {
		t.Fatalf("Register: %v", err)
	}

	args, _ := json.Marshal(Answer{Question: "q", Answer: "a", Score: 9, Feedback: "f"})
	res, err := reg.Dispatch(context.Background(), protocol.ToolCallRequested{
		Name: ToolEvaluateAnswer, CallID: "c1", Arguments: args,
	})
	if err != nil || !res.Success {
		t.Fatalf("evaluate_answer: %+v, %v", res, err)
	}

	res, err = reg.Dispatch(context.Background(), protocol.ToolCallRequested{
		Name: ToolEvaluateAnswer, CallID: "c2", Arguments: json.RawMessage(`{"score":"high"}`),
	})
	if err == nil || res.Success {
		t.Errorf("malformed arguments should fail: %+v", res)
	}

	res, _ = reg.Dispatch(context.Background(), protocol.ToolCallRequested{
		Name: ToolCompleteInterview, CallID: "c3", Arguments: json.RawMessage(`{}`),
	})
	if !res.Success || s.completed != 1 {
		t.Errorf("complete_interview: %+v", res)
	}

	defs := reg.Definitions()
	if len(defs) != 2 || defs[0].Name != ToolCompleteInterview || defs[1].Name != ToolEvaluateAnswer {
		t.Errorf("definitions = %+v", defs)
	}
}
