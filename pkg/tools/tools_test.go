package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/teslashibe/go-interviewer/pkg/protocol"
)

func call(name, args string) protocol.ToolCallRequested {
	return protocol.ToolCallRequested{
		Type:      protocol.TypeFunctionCallArgumentsDone,
		Name:      name,
		CallID:    "call_" + name,
		Arguments: json.RawMessage(args),
	}
}

func TestRegister(t *testing.T) {
	r := NewRegistry(nil)
	echo := Tool{Name: "echo", Handler: func(ctx context.Context, args json.RawMessage) (any, error) { return nil, nil }}

	if err := r.Register(echo); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(echo); !errors.Is(err, ErrDuplicateTool) {
		t.Errorf("expected ErrDuplicateTool, got %v", err)
	}
	if err := r.Register(Tool{Name: "nohandler"}); !errors.Is(err, ErrInvalidTool) {
		t.Errorf("expected ErrInvalidTool, got %v", err)
	}
	if err := r.Register(Tool{Handler: echo.Handler}); !errors.Is(err, ErrInvalidTool) {
		t.Errorf("expected ErrInvalidTool for empty name, got %v", err)
	}
}

func TestDefinitions(t *testing.T) {
	r := NewRegistry(nil)
	noop := func(ctx context.Context, args json.RawMessage) (any, error) { return nil, nil }
	_ = r.Register(
		Tool{Name: "b_tool", Description: "second", Handler: noop},
		Tool{Name: "a_tool", Description: "first", Parameters: map[string]any{"type": "object"}, Handler: noop},
	)

	defs := r.Definitions()
	if len(defs) != 2 {
		t.Fatalf("got %d definitions", len(defs))
	}
	if defs[0].Name != "a_tool" || defs[1].Name != "b_tool" {
		t.Errorf("definitions not sorted: %v, %v", defs[0].Name, defs[1].Name)
	}
	for _, d := range defs {
		if d.Type != "function" {
			t.Errorf("%s type = %q", d.Name, d.Type)
		}
		if d.Parameters == nil {
			t.Errorf("%s has nil parameters", d.Name)
		}
	}
}

func TestDispatch(t *testing.T) {
	r := NewRegistry(nil)
	_ = r.Register(
		Tool{Name: "ok", Handler: func(ctx context.Context, args json.RawMessage) (any, error) {
			var in struct {
				N int `json:"n"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, err
			}
			return map[string]int{"double": in.N * 2}, nil
		}},
		Tool{Name: "fails", Handler: func(ctx context.Context, args json.RawMessage) (any, error) {
			return nil, errors.New("backend down")
		}},
		Tool{Name: "panics", Handler: func(ctx context.Context, args json.RawMessage) (any, error) {
			panic("boom")
		}},
		Tool{Name: "result", Handler: func(ctx context.Context, args json.RawMessage) (any, error) {
			return Result{Success: false}, nil
		}},
	)

	t.Run("success wraps data", func(t *testing.T) {
		res, err := r.Dispatch(context.Background(), call("ok", `{"n":21}`))
		if err != nil {
			t.Fatalf("Dispatch: %v", err)
		}
		if !res.Success {
			t.Fatalf("expected success: %+v", res)
		}
		if res.Data.(map[string]int)["double"] != 42 {
			t.Errorf("data = %v", res.Data)
		}
	})

	t.Run("unknown tool", func(t *testing.T) {
		res, err := r.Dispatch(context.Background(), call("missing", `{}`))
		if !errors.Is(err, ErrUnknownTool) {
			t.Errorf("expected ErrUnknownTool, got %v", err)
		}
		if res.Success || res.Error == "" {
			t.Errorf("expected failure with message, got %+v", res)
		}
	})

	t.Run("handler error", func(t *testing.T) {
		res, err := r.Dispatch(context.Background(), call("fails", `{}`))
		var terr *ToolExecutionError
		if !errors.As(err, &terr) {
			t.Fatalf("expected ToolExecutionError, got %v", err)
		}
		if terr.Tool != "fails" || terr.CallID != "call_fails" {
			t.Errorf("unexpected error fields: %+v", terr)
		}
		if res.Success || res.Error != "backend down" {
			t.Errorf("result = %+v", res)
		}
	})

	t.Run("bad arguments", func(t *testing.T) {
		res, err := r.Dispatch(context.Background(), call("ok", `not json`))
		if err == nil || res.Success {
			t.Errorf("expected failure, got %+v / %v", res, err)
		}
	})

	t.Run("panic is recovered", func(t *testing.T) {
		res, err := r.Dispatch(context.Background(), call("panics", `{}`))
		var terr *ToolExecutionError
		if !errors.As(err, &terr) {
			t.Fatalf("expected ToolExecutionError, got %v", err)
		}
		if res.Success || res.Error == "" {
			t.Errorf("result = %+v", res)
		}
	})

	t.Run("handler result passes through", func(t *testing.T) {
		res, err := r.Dispatch(context.Background(), call("result", `{}`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Success || res.Error == "" {
			t.Errorf("failed Result should carry a message: %+v", res)
		}
	})

	t.Run("result encodes to the wire shape", func(t *testing.T) {
		res, _ := r.Dispatch(context.Background(), call("missing", `{}`))
		data, _ := json.Marshal(res)
		var m map[string]any
		_ = json.Unmarshal(data, &m)
		if m["success"] != false {
			t.Errorf("success = %v", m["success"])
		}
		if s, _ := m["error"].(string); s == "" {
			t.Errorf("error = %v", m["error"])
		}
	})
}
