package interview

import "time"

// Status is the interview lifecycle state.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusConnecting Status = "connecting"
	StatusActive     Status = "active"
	StatusListening  Status = "listening"
	StatusSpeaking   Status = "speaking"
	StatusError      Status = "error"
)

// Live reports whether the status is active or one of its overlays.
func (s Status) Live() bool {
	return s == StatusActive || s == StatusListening || s == StatusSpeaking
}

// Snapshot is an immutable view of session state.
type Snapshot struct {
	Status            Status    `json:"status"`
	SessionID         string    `json:"sessionId,omitempty"`
	Skills            []string  `json:"skills,omitempty"`
	Transcript        []Entry   `json:"transcript"`
	CurrentQuestion   string    `json:"currentQuestion,omitempty"`
	QuestionsAnswered int       `json:"questionsAnswered"`
	TargetQuestions   int       `json:"targetQuestions"`
	CanEnd            bool      `json:"canEnd"`
	AssistantSpeaking bool      `json:"isAssistantSpeaking"`
	LiveUserSpeech    string    `json:"liveUserSpeech,omitempty"`
	Error             string    `json:"error,omitempty"`
	Version           uint64    `json:"version"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// Summary describes a finished interview.
type Summary struct {
	SessionID         string    `json:"sessionId"`
	Skills            []string  `json:"skills"`
	Reason            string    `json:"reason"`
	QuestionsAnswered int       `json:"questionsAnswered"`
	TargetQuestions   int       `json:"targetQuestions"`
	Transcript        []Entry   `json:"transcript"`
	StartedAt         time.Time `json:"startedAt"`
	EndedAt           time.Time `json:"endedAt"`
}

// End reasons reported in Summary.Reason.
const (
	ReasonCompleted = "completed"
	ReasonStopped   = "stopped"
	ReasonAborted   = "aborted"
	ReasonClosed    = "closed"
)
