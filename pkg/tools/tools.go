// Package tools holds the local capabilities a remote voice agent may invoke.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/teslashibe/go-interviewer/pkg/protocol"
)

// Sentinel errors for the tools package.
var (
	// ErrUnknownTool indicates no tool is registered under the requested name.
	ErrUnknownTool = errors.New("tools: unknown tool")

	// ErrDuplicateTool indicates a tool name was registered twice.
	ErrDuplicateTool = errors.New("tools: duplicate tool")

	// ErrInvalidTool indicates a tool without a name or handler.
	ErrInvalidTool = errors.New("tools: tool requires a name and handler")
)

// Handler runs a tool with its raw JSON arguments.
// The returned value is sent back to the agent as Result.Data.
type Handler func(ctx context.Context, args json.RawMessage) (any, error)

// Tool is a named capability exposed to the remote agent.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
	Handler     Handler
}

// Result is the structured outcome returned to the agent.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// Failure builds a failed Result.
func Failure(err error) Result {
	msg := "tool failed"
	if err != nil && err.Error() != "" {
		msg = err.Error()
	}
	return Result{Success: false, Error: msg}
}

// ToolExecutionError wraps a failure raised while running a tool.
type ToolExecutionError struct {
	Tool   string
	CallID string
	Cause  error
}

// Error implements the error interface.
func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tools: %s (call %s): %v", e.Tool, e.CallID, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *ToolExecutionError) Unwrap() error {
	return e.Cause
}

// Registry maps tool names to tools.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]Tool
	logger *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		tools:  make(map[string]Tool),
		logger: logger.With("component", "tools.registry"),
	}
}

// Register adds tools to the registry.
func (r *Registry) Register(tools ...Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range tools {
		if t.Name == "" || t.Handler == nil {
			return ErrInvalidTool
		}
		if _, ok := r.tools[t.Name]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateTool, t.Name)
		}
		r.tools[t.Name] = t
	}
	return nil
}

// Names returns registered tool names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.namesLocked()
}

// Definitions renders the tool schemas for a session update.
func (r *Registry) Definitions() []protocol.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]protocol.ToolDefinition, 0, len(r.tools))
	for _, name := range r.namesLocked() {
		t := r.tools[name]
		params := t.Parameters
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		defs = append(defs, protocol.ToolDefinition{
			Type:        "function",
			Name:        t.Name,
			Description: t.Description,
			Parameters:  params,
		})
	}
	return defs
}

func (r *Registry) namesLocked() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dispatch runs the tool named by call. It always returns a well-formed
// Result; the error is non-nil when the Result is a failure, for logging.
// Handler panics are recovered and reported as failures.
func (r *Registry) Dispatch(ctx context.Context, call protocol.ToolCallRequested) (res Result, err error) {
	r.mu.RLock()
	tool, ok := r.tools[call.Name]
	r.mu.RUnlock()

	if !ok {
		err = fmt.Errorf("%w: %s", ErrUnknownTool, call.Name)
		r.logger.Warn("unknown tool requested", "tool", call.Name, "call_id", call.CallID)
		return Failure(err), err
	}

	defer func() {
		if p := recover(); p != nil {
			err = &ToolExecutionError{Tool: call.Name, CallID: call.CallID, Cause: fmt.Errorf("panic: %v", p)}
			r.logger.Error("tool panicked", "tool", call.Name, "call_id", call.CallID, "panic", p)
			res = Failure(err)
		}
	}()

	r.logger.Debug("dispatching tool", "tool", call.Name, "call_id", call.CallID)

	data, herr := tool.Handler(ctx, call.Arguments)
	if herr != nil {
		err = &ToolExecutionError{Tool: call.Name, CallID: call.CallID, Cause: herr}
		r.logger.Warn("tool failed", "tool", call.Name, "call_id", call.CallID, "error", herr)
		return Result{Success: false, Error: herr.Error()}, err
	}

	if res, ok := data.(Result); ok {
		if !res.Success && res.Error == "" {
			res.Error = "tool failed"
		}
		return res, nil
	}
	return Result{Success: true, Data: data}, nil
}
