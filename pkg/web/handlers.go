package web

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-interviewer/pkg/backend"
	"github.com/teslashibe/go-interviewer/pkg/evaluation"
	"github.com/teslashibe/go-interviewer/pkg/hub"
	"github.com/teslashibe/go-interviewer/pkg/interview"
)

// StartRequest is the body of POST /api/interview/start.
type StartRequest struct {
	Skills []string `json:"skills"`
}

// ErrorResponse is returned by failed requests.
type ErrorResponse struct {
	Error string              `json:"error"`
	State *interview.Snapshot `json:"state,omitempty"`
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "ok",
		"clients": s.state.ClientCount(),
	})
}

func (s *Server) handleStart(c *fiber.Ctx) error {
	var req StartRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := s.ctrl.Start(c.UserContext(), req.Skills); err != nil {
		s.logger.Warn("start failed", "error", err)
		return s.fail(c, err)
	}
	return c.JSON(s.ctrl.Snapshot())
}

func (s *Server) handleStop(c *fiber.Ctx) error {
	return s.act(c, s.ctrl.Stop)
}

func (s *Server) handleAbort(c *fiber.Ctx) error {
	return s.act(c, s.ctrl.Abort)
}

func (s *Server) handleReset(c *fiber.Ctx) error {
	return s.act(c, s.ctrl.Reset)
}

func (s *Server) act(c *fiber.Ctx, fn func(context.Context) error) error {
	if err := fn(c.UserContext()); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(s.ctrl.Snapshot())
}

func (s *Server) handleState(c *fiber.Ctx) error {
	return c.JSON(s.ctrl.Snapshot())
}

func (s *Server) handleHistory(c *fiber.Ctx) error {
	if s.config.History == nil {
		return c.JSON([]interview.Summary{})
	}
	limit := c.QueryInt("limit", 20)
	if limit < 0 {
		return fiber.NewError(fiber.StatusBadRequest, "limit must not be negative")
	}
	return c.JSON(s.config.History.Recent(limit))
}

func (s *Server) handleSummary(c *fiber.Ctx) error {
	if s.sessions == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "backend not configured")
	}
	sessions, err := s.sessions.ListRealtimeSessions(c.UserContext())
	if err != nil {
		s.logger.Error("list sessions failed", "error", err)
		return c.Status(statusFor(err)).JSON(ErrorResponse{Error: err.Error()})
	}
	return c.JSON(evaluation.Summarize(sessions, s.config.Clock()))
}

func (s *Server) handleStateWS(conn *websocket.Conn) {
	hub.NewClient(s.state, conn).Run()
}

// fail reports err together with the session state it left behind.
func (s *Server) fail(c *fiber.Ctx, err error) error {
	snap := s.ctrl.Snapshot()
	return c.Status(statusFor(err)).JSON(ErrorResponse{Error: err.Error(), State: &snap})
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(ErrorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, interview.ErrNoSkills):
		return fiber.StatusBadRequest
	case errors.Is(err, interview.ErrCannotEnd),
		errors.Is(err, interview.ErrAlreadyActive),
		errors.Is(err, interview.ErrAborted):
		return fiber.StatusConflict
	case errors.Is(err, interview.ErrClosed):
		return fiber.StatusServiceUnavailable
	case errors.Is(err, backend.ErrUnauthorized):
		return fiber.StatusUnauthorized
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusGatewayTimeout
	default:
		return fiber.StatusBadGateway
	}
}
