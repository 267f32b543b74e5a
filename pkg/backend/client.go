// Package backend is a client for the interview backend HTTP API.
//
// Every call except Login and Register carries the stored access token as a
// bearer header through an oauth2 transport.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/oauth2"

	"github.com/teslashibe/go-interviewer/internal/httpc"
)

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 4 << 20

// Sentinel errors for the backend package.
var (
	// ErrMissingBaseURL indicates the client was built without a base URL.
	ErrMissingBaseURL = errors.New("backend: base URL is required")

	// ErrUnauthenticated indicates no access token is stored.
	ErrUnauthenticated = errors.New("backend: not authenticated")

	// ErrUnauthorized indicates the backend rejected the token (HTTP 401).
	ErrUnauthorized = errors.New("backend: unauthorized")

	// ErrNotFound indicates the resource does not exist (HTTP 404).
	ErrNotFound = errors.New("backend: not found")

	// ErrNoMoreQuestions is returned by NextQuestion when the session is exhausted.
	ErrNoMoreQuestions = errors.New("backend: no more questions")

	// ErrNoToken indicates an auth response without an access token.
	ErrNoToken = errors.New("backend: no access_token in response")
)

// APIError is a non-2xx backend response.
type APIError struct {
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("backend: API error (HTTP %d): %s", e.StatusCode, e.Message)
}

// Is matches ErrUnauthorized and ErrNotFound by status code.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	}
	return false
}

// tokenStore is a mutable oauth2.TokenSource.
type tokenStore struct {
	mu    sync.RWMutex
	token string
}

func (s *tokenStore) Token() (*oauth2.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == "" {
		return nil, ErrUnauthenticated
	}
	return &oauth2.Token{AccessToken: s.token, TokenType: "Bearer"}, nil
}

func (s *tokenStore) set(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

func (s *tokenStore) get() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Client talks to the interview backend.
type Client struct {
	baseURL string
	anon    *http.Client
	authed  *http.Client
	tokens  *tokenStore
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.anon = hc }
}

// WithToken sets an initial access token.
func WithToken(token string) Option {
	return func(c *Client) { c.tokens.set(token) }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New creates a Client for baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(baseURL, "/")
	if baseURL == "" {
		return nil, ErrMissingBaseURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("backend: parse base URL: %w", err)
	}

	c := &Client{
		baseURL: baseURL,
		tokens:  &tokenStore{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.anon == nil {
		c.anon = httpc.NewClient(httpc.DefaultTimeout)
	}
	c.authed = httpc.Bearer(c.anon, c.tokens)
	c.logger = c.logger.With("component", "backend.client")
	return c, nil
}

// SetToken replaces the stored access token.
func (c *Client) SetToken(token string) {
	c.tokens.set(token)
}

// Token returns the stored access token.
func (c *Client) Token() string {
	return c.tokens.get()
}

// Logout clears the stored access token.
func (c *Client) Logout() {
	c.tokens.set("")
}

// do sends one JSON request and decodes a JSON response into out.
func (c *Client) do(ctx context.Context, hc *http.Client, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("backend: encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("backend: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("backend: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("backend: read %s %s: %w", method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: errorMessage(data, resp.Status)}
		if resp.StatusCode == http.StatusUnauthorized && hc == c.authed {
			c.logger.Warn("token rejected, clearing", "path", path)
			c.tokens.set("")
		}
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("backend: decode %s %s: %w", method, path, err)
	}
	return nil
}

// errorMessage extracts a message from a JSON error body. The message field
// may be a string or a list of strings.
func errorMessage(data []byte, fallback string) string {
	var body struct {
		Message json.RawMessage `json:"message"`
		Error   string          `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err == nil {
		var s string
		if json.Unmarshal(body.Message, &s) == nil && s != "" {
			return s
		}
		var list []string
		if json.Unmarshal(body.Message, &list) == nil && len(list) > 0 {
			return strings.Join(list, "; ")
		}
		if body.Error != "" {
			return body.Error
		}
	}
	if s := strings.TrimSpace(string(data)); s != "" {
		return s
	}
	return fallback
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, c.authed, http.MethodGet, path, nil, out)
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	return c.do(ctx, c.authed, http.MethodPost, path, in, out)
}

func escape(id string) string {
	return url.PathEscape(id)
}
