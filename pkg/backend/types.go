package backend

import (
	"encoding/json"
	"fmt"
	"time"
)

// User is the authenticated account.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// Credentials are used for login.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterRequest creates an account.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
}

// AuthResponse is returned by login and register.
type AuthResponse struct {
	AccessToken string `json:"access_token"`
	User        *User  `json:"user,omitempty"`
}

// GenerateRequest asks the backend to build an interview.
type GenerateRequest struct {
	Skills            []string `json:"skills"`
	QuestionsPerSkill int      `json:"questionsPerSkill"`
	Difficulty        string   `json:"difficulty"`
	Context           string   `json:"context"`
}

// Interview is a generated question set.
type Interview struct {
	ID         string              `json:"id"`
	Skills     []string            `json:"skills,omitempty"`
	Difficulty string              `json:"difficulty,omitempty"`
	Questions  []InterviewQuestion `json:"questions,omitempty"`
	CreatedAt  time.Time           `json:"createdAt,omitempty"`
}

// InterviewQuestion is one generated question.
type InterviewQuestion struct {
	ID         string `json:"id,omitempty"`
	Text       string `json:"text,omitempty"`
	Skill      string `json:"skill,omitempty"`
	Difficulty string `json:"difficulty,omitempty"`
}

// Question is the current question of a guided session. QuestionText is nil
// when the session has no more questions.
type Question struct {
	SessionID      string  `json:"sessionId,omitempty"`
	QuestionID     string  `json:"questionId,omitempty"`
	QuestionText   *string `json:"questionText"`
	QuestionIndex  int     `json:"questionIndex"`
	TotalQuestions int     `json:"totalQuestions"`
	IsLastQuestion bool    `json:"isLastQuestion,omitempty"`
	Difficulty     string  `json:"difficulty,omitempty"`
	Skill          string  `json:"skill,omitempty"`
}

// Text returns the question text, or "" for the exhausted sentinel.
func (q *Question) Text() string {
	if q == nil || q.QuestionText == nil {
		return ""
	}
	return *q.QuestionText
}

// ID returns the question id, falling back to an index-derived id.
func (q *Question) ID() string {
	if q.QuestionID != "" {
		return q.QuestionID
	}
	return fmt.Sprintf("question-%d", q.QuestionIndex)
}

// AnswerRequest submits an answer to a guided session.
type AnswerRequest struct {
	QuestionID    string `json:"questionId"`
	QuestionIndex int    `json:"questionIndex"`
	Answer        string `json:"answer"`
}

// Answer is a stored answer.
type Answer struct {
	ID            string    `json:"id,omitempty"`
	QuestionID    string    `json:"questionId"`
	QuestionIndex int       `json:"questionIndex"`
	Answer        string    `json:"answer"`
	CreatedAt     time.Time `json:"createdAt,omitempty"`
}

// Evaluation is a scored answer.
type Evaluation struct {
	ID         string    `json:"id,omitempty"`
	QuestionID string    `json:"questionId,omitempty"`
	Question   string    `json:"question,omitempty"`
	Answer     string    `json:"answer,omitempty"`
	Score      float64   `json:"score"`
	Feedback   string    `json:"feedback"`
	CreatedAt  time.Time `json:"createdAt,omitempty"`
}

// Completion is returned when a guided session completes.
type Completion struct {
	Evaluations []Evaluation `json:"evaluations"`
}

// Session is a guided interview session.
type Session struct {
	ID          string       `json:"id"`
	InterviewID string       `json:"interviewId,omitempty"`
	Status      string       `json:"status,omitempty"`
	Skills      []string     `json:"skills,omitempty"`
	Evaluations []Evaluation `json:"evaluations,omitempty"`
	CreatedAt   time.Time    `json:"createdAt,omitempty"`
	CompletedAt *time.Time   `json:"completedAt,omitempty"`
}

// SessionStatus reports guided session progress.
type SessionStatus struct {
	Status               string `json:"status"`
	CurrentQuestionIndex int    `json:"currentQuestionIndex"`
	TotalQuestions       int    `json:"totalQuestions"`
	AnsweredCount        int    `json:"answeredCount"`
}

// QA is one question and answer of a realtime session.
type QA struct {
	Question   string        `json:"question"`
	Answer     string        `json:"answer"`
	Evaluation *QAEvaluation `json:"evaluation,omitempty"`
	CreatedAt  time.Time     `json:"createdAt,omitempty"`
}

// QAEvaluation is the score attached to a QA.
type QAEvaluation struct {
	Score    float64 `json:"score"`
	Feedback string  `json:"feedback"`
}

// RealtimeSession is a voice interview session.
type RealtimeSession struct {
	ID          string     `json:"id"`
	Status      string     `json:"status,omitempty"`
	QAs         []QA       `json:"qas,omitempty"`
	CreatedAt   time.Time  `json:"createdAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// EvaluationLog records one evaluation of a realtime session.
type EvaluationLog struct {
	SessionID string  `json:"sessionId"`
	Question  string  `json:"question"`
	Answer    string  `json:"answer"`
	Score     float64 `json:"score"`
	Feedback  string  `json:"feedback"`
}

// ClientSecret is an ephemeral voice credential. The backend returns it
// either as a bare string or as {"value": ..., "expires_at": ...}.
type ClientSecret struct {
	Value     string `json:"value"`
	ExpiresAt int64  `json:"expires_at,omitempty"`
}

// UnmarshalJSON accepts both credential shapes.
func (c *ClientSecret) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		c.Value = s
		return nil
	}
	type plain ClientSecret
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*c = ClientSecret(p)
	return nil
}

// tokenResponse wraps a client secret.
type tokenResponse struct {
	ClientSecret ClientSecret `json:"client_secret"`
}
