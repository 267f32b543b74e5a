package evaluation

import (
	"sort"
	"time"

	"github.com/teslashibe/go-interviewer/pkg/backend"
)

// Score buckets.
const (
	ExcellentThreshold = 8
	GoodThreshold      = 5
)

// RecentWindow is how far back an evaluation counts as recent.
const RecentWindow = 7 * 24 * time.Hour

// SessionStats summarises one session's evaluations.
type SessionStats struct {
	ID              string    `json:"id"`
	CreatedAt       time.Time `json:"createdAt"`
	EvaluationCount int       `json:"evaluationCount"`
	AverageScore    float64   `json:"averageScore"`
}

// Summary aggregates evaluations across sessions.
type Summary struct {
	TotalSessions     int            `json:"totalSessions"`
	TotalEvaluations  int            `json:"totalEvaluations"`
	AverageScore      float64        `json:"averageScore"`
	Excellent         int            `json:"excellent"`
	Good              int            `json:"good"`
	NeedsImprovement  int            `json:"needsImprovement"`
	RecentEvaluations int            `json:"recentEvaluations"`
	Sessions          []SessionStats `json:"sessions"`
}

// Summarize computes dashboard statistics for realtime sessions. A session's
// evaluations count as recent when the session was created within
// RecentWindow of now. Sessions without evaluations are left out of
// Sessions, which is ordered newest first.
func Summarize(sessions []backend.RealtimeSession, now time.Time) Summary {
	s := Summary{
		TotalSessions: len(sessions),
		Sessions:      []SessionStats{},
	}

	var total float64
	for _, sess := range sessions {
		var count int
		var sum float64
		for _, qa := range sess.QAs {
			if qa.Evaluation == nil {
				continue
			}
			score := qa.Evaluation.Score
			count++
			sum += score

			switch {
			case score >= ExcellentThreshold:
				s.Excellent++
			case score >= GoodThreshold:
				s.Good++
			default:
				s.NeedsImprovement++
			}
		}
		if count == 0 {
			continue
		}

		s.TotalEvaluations += count
		total += sum
		if !sess.CreatedAt.IsZero() && now.Sub(sess.CreatedAt) <= RecentWindow {
			s.RecentEvaluations += count
		}
		s.Sessions = append(s.Sessions, SessionStats{
			ID:              sess.ID,
			CreatedAt:       sess.CreatedAt,
			EvaluationCount: count,
			AverageScore:    sum / float64(count),
		})
	}

	if s.TotalEvaluations > 0 {
		s.AverageScore = total / float64(s.TotalEvaluations)
	}

	sort.SliceStable(s.Sessions, func(i, j int) bool {
		return s.Sessions[i].CreatedAt.After(s.Sessions[j].CreatedAt)
	})
	return s
}
