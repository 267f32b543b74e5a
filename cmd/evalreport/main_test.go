package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/teslashibe/go-interviewer/pkg/evaluation"
)

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	printSummary(&buf, evaluation.Summary{
		TotalSessions:    2,
		TotalEvaluations: 3,
		AverageScore:     7.5,
		Excellent:        1,
		Good:             1,
		NeedsImprovement: 1,
		Sessions: []evaluation.SessionStats{
			{ID: "sess-1", CreatedAt: time.Date(2026, 3, 9, 14, 30, 0, 0, time.UTC), EvaluationCount: 3, AverageScore: 7.5},
		},
	})

	out := buf.String()
	for _, want := range []string{"Sessions:           2", "Average score:      7.5", "sess-1", "2026-03-09 14:30"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
