package backend

import (
	"context"
	"net/http"
)

// =============================================================================
// Auth
// =============================================================================

// Login authenticates and stores the issued token.
func (c *Client) Login(ctx context.Context, email, password string) (*AuthResponse, error) {
	var out AuthResponse
	if err := c.do(ctx, c.anon, http.MethodPost, "/auth/login", Credentials{Email: email, Password: password}, &out); err != nil {
		return nil, err
	}
	return c.storeToken(&out)
}

// Register creates an account and stores the issued token.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error) {
	var out AuthResponse
	if err := c.do(ctx, c.anon, http.MethodPost, "/auth/register", req, &out); err != nil {
		return nil, err
	}
	return c.storeToken(&out)
}

func (c *Client) storeToken(out *AuthResponse) (*AuthResponse, error) {
	if out.AccessToken == "" {
		return nil, ErrNoToken
	}
	c.tokens.set(out.AccessToken)
	c.logger.Info("authenticated")
	return out, nil
}

// Profile returns the authenticated user.
func (c *Client) Profile(ctx context.Context) (*User, error) {
	var out User
	if err := c.get(ctx, "/users/profile", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// =============================================================================
// Guided interviews
// =============================================================================

// GenerateInterview asks the backend to generate questions for skills.
func (c *Client) GenerateInterview(ctx context.Context, req GenerateRequest) (*Interview, error) {
	var out Interview
	if err := c.post(ctx, "/interviews/generate", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListInterviews returns generated interviews.
func (c *Client) ListInterviews(ctx context.Context) ([]Interview, error) {
	var out []Interview
	if err := c.get(ctx, "/interviews", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetInterview returns one generated interview.
func (c *Client) GetInterview(ctx context.Context, id string) (*Interview, error) {
	var out Interview
	if err := c.get(ctx, "/interviews/"+escape(id), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StartInterview opens a guided session and returns its first question.
func (c *Client) StartInterview(ctx context.Context, interviewID string) (*Question, error) {
	var out Question
	if err := c.post(ctx, "/interviews/"+escape(interviewID)+"/start", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SubmitAnswer stores an answer for the current question.
func (c *Client) SubmitAnswer(ctx context.Context, sessionID string, req AnswerRequest) error {
	return c.post(ctx, "/interviews/sessions/"+escape(sessionID)+"/answers", req, nil)
}

// NextQuestion advances the session. It returns ErrNoMoreQuestions when the
// backend answers with the {questionText: null} sentinel.
func (c *Client) NextQuestion(ctx context.Context, sessionID string) (*Question, error) {
	var out Question
	if err := c.post(ctx, "/interviews/sessions/"+escape(sessionID)+"/next", nil, &out); err != nil {
		return nil, err
	}
	if out.QuestionText == nil {
		return nil, ErrNoMoreQuestions
	}
	return &out, nil
}

// CompleteInterview closes a guided session and returns its evaluations.
func (c *Client) CompleteInterview(ctx context.Context, sessionID string) (*Completion, error) {
	var out Completion
	if err := c.post(ctx, "/interviews/sessions/"+escape(sessionID)+"/complete", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListSessions returns guided sessions.
func (c *Client) ListSessions(ctx context.Context) ([]Session, error) {
	var out []Session
	if err := c.get(ctx, "/interviews/sessions", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetSession returns one guided session.
func (c *Client) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	var out Session
	if err := c.get(ctx, "/interviews/sessions/"+escape(sessionID), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SessionAnswers returns the answers stored for a guided session.
func (c *Client) SessionAnswers(ctx context.Context, sessionID string) ([]Answer, error) {
	var out []Answer
	if err := c.get(ctx, "/interviews/sessions/"+escape(sessionID)+"/answers", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SessionStatus returns guided session progress.
func (c *Client) SessionStatus(ctx context.Context, sessionID string) (*SessionStatus, error) {
	var out SessionStatus
	if err := c.get(ctx, "/interviews/sessions/"+escape(sessionID)+"/status", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// =============================================================================
// Realtime interviews
// =============================================================================

// CreateRealtimeSession creates a voice interview session.
func (c *Client) CreateRealtimeSession(ctx context.Context) (*RealtimeSession, error) {
	var out RealtimeSession
	if err := c.post(ctx, "/interview/session", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RealtimeToken issues the ephemeral voice credential for a session.
func (c *Client) RealtimeToken(ctx context.Context, sessionID string) (string, error) {
	var out tokenResponse
	in := struct {
		SessionID string `json:"sessionId"`
	}{sessionID}
	if err := c.post(ctx, "/interview/token", in, &out); err != nil {
		return "", err
	}
	if out.ClientSecret.Value == "" {
		return "", ErrNoToken
	}
	return out.ClientSecret.Value, nil
}

// LogEvaluation stores one evaluation of a realtime session.
func (c *Client) LogEvaluation(ctx context.Context, log EvaluationLog) error {
	return c.post(ctx, "/interview/log-evaluation", log, nil)
}

// CompleteRealtimeSession marks a realtime session complete.
func (c *Client) CompleteRealtimeSession(ctx context.Context, sessionID string) error {
	return c.post(ctx, "/interview/session/"+escape(sessionID)+"/complete", nil, nil)
}

// GetRealtimeSession returns one realtime session with its QAs.
func (c *Client) GetRealtimeSession(ctx context.Context, sessionID string) (*RealtimeSession, error) {
	var out RealtimeSession
	if err := c.get(ctx, "/interview/session/"+escape(sessionID), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListRealtimeSessions returns the user's realtime sessions.
func (c *Client) ListRealtimeSessions(ctx context.Context) ([]RealtimeSession, error) {
	var out []RealtimeSession
	if err := c.get(ctx, "/interview/sessions", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// TranscriptionSession issues a credential for the input-capture flow.
func (c *Client) TranscriptionSession(ctx context.Context) (string, error) {
	var out tokenResponse
	if err := c.post(ctx, "/transcription/session", nil, &out); err != nil {
		return "", err
	}
	if out.ClientSecret.Value == "" {
		return "", ErrNoToken
	}
	return out.ClientSecret.Value, nil
}
