package evaluation

import (
	"math"
	"testing"
	"time"

	"github.com/teslashibe/go-interviewer/pkg/backend"
)

func scored(scores ...float64) []backend.QA {
	qas := make([]backend.QA, 0, len(scores))
	for _, s := range scores {
		qas = append(qas, backend.QA{Question: "q", Answer: "a", Evaluation: &backend.QAEvaluation{Score: s}})
	}
	return qas
}

func TestSummarize(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	sessions := []backend.RealtimeSession{
		{ID: "old", CreatedAt: now.Add(-30 * 24 * time.Hour), QAs: scored(4, 6)},
		{ID: "empty", CreatedAt: now.Add(-time.Hour)},
		{ID: "new", CreatedAt: now.Add(-2 * 24 * time.Hour), QAs: append(scored(8, 9), backend.QA{Question: "unscored"})},
		{ID: "edge", CreatedAt: now.Add(-RecentWindow), QAs: scored(5)},
	}

	s := Summarize(sessions, now)

	if s.TotalSessions != 4 {
		t.Errorf("TotalSessions = %d", s.TotalSessions)
	}
	if s.TotalEvaluations != 5 {
		t.Errorf("TotalEvaluations = %d", s.TotalEvaluations)
	}
	if math.Abs(s.AverageScore-6.4) > 1e-9 {
		t.Errorf("AverageScore = %v", s.AverageScore)
	}
	if s.Excellent != 2 || s.Good != 2 || s.NeedsImprovement != 1 {
		t.Errorf("buckets = %d/%d/%d", s.Excellent, s.Good, s.NeedsImprovement)
	}
	if s.RecentEvaluations != 3 {
		t.Errorf("RecentEvaluations = %d", s.RecentEvaluations)
	}

	if len(s.Sessions) != 3 {
		t.Fatalf("Sessions = %+v", s.Sessions)
	}
	wantOrder := []string{"new", "edge", "old"}
	for i, id := range wantOrder {
		if s.Sessions[i].ID != id {
			t.Errorf("Sessions[%d] = %s, want %s", i, s.Sessions[i].ID, id)
		}
	}
	if s.Sessions[0].AverageScore != 8.5 || s.Sessions[0].EvaluationCount != 2 {
		t.Errorf("new stats = %+v", s.Sessions[0])
	}
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(nil, time.Now())
	if s.TotalSessions != 0 || s.AverageScore != 0 || s.Sessions == nil {
		t.Errorf("empty summary = %+v", s)
	}
}
