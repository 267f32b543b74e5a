// Package web serves the local control API for the interviewer.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/teslashibe/go-interviewer/pkg/backend"
	"github.com/teslashibe/go-interviewer/pkg/history"
	"github.com/teslashibe/go-interviewer/pkg/hub"
	"github.com/teslashibe/go-interviewer/pkg/interview"
	"github.com/teslashibe/go-interviewer/pkg/observe"
)

// Controller is the interview session the API drives.
type Controller interface {
	Start(ctx context.Context, skills []string) error
	Stop(ctx context.Context) error
	Abort(ctx context.Context) error
	Reset(ctx context.Context) error
	Snapshot() interview.Snapshot
	Subscribe() (<-chan interview.Snapshot, func())
}

var _ Controller = (*interview.Session)(nil)

// SessionLister lists realtime sessions with their evaluations.
type SessionLister interface {
	ListRealtimeSessions(ctx context.Context) ([]backend.RealtimeSession, error)
}

var _ SessionLister = (*backend.Client)(nil)

// RequestRecorder receives request measurements.
type RequestRecorder interface {
	HTTPRequest(ctx context.Context, method, route string, status int, seconds float64)
}

var _ RequestRecorder = (*observe.Metrics)(nil)

// Archive lists finished interviews, newest first.
type Archive interface {
	Recent(n int) []interview.Summary
}

var _ Archive = (*history.History)(nil)

// Config configures the server.
type Config struct {
	Addr    string
	Metrics RequestRecorder
	History Archive
	Logger  *slog.Logger
	Clock   func() time.Time
}

// Server is the control API server.
type Server struct {
	app      *fiber.App
	ctrl     Controller
	sessions SessionLister
	state    *hub.Hub
	config   Config
	logger   *slog.Logger
}

// NewServer creates the server and registers its routes.
func NewServer(ctrl Controller, sessions SessionLister, cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:8080"
	}

	s := &Server{
		ctrl:     ctrl,
		sessions: sessions,
		state:    hub.New("state", cfg.Logger),
		config:   cfg,
		logger:   cfg.Logger.With("component", "web.server"),
	}

	app := fiber.New(fiber.Config{
		AppName:               "interviewer",
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})
	app.Use(recover.New())
	app.Use(cors.New())
	if cfg.Metrics != nil {
		app.Use(s.observeRequests)
	}

	api := app.Group("/api")
	api.Get("/health", s.handleHealth)
	api.Post("/interview/start", s.handleStart)
	api.Post("/interview/stop", s.handleStop)
	api.Post("/interview/abort", s.handleAbort)
	api.Post("/interview/reset", s.handleReset)
	api.Get("/interview/state", s.handleState)
	api.Get("/interview/history", s.handleHistory)
	api.Get("/evaluations/summary", s.handleSummary)

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/state", websocket.New(s.handleStateWS))

	s.app = app
	return s
}

// App exposes the fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run listens on the configured address until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done. Snapshots are pushed to websocket
// clients while it runs.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go s.state.Run(ctx)
	go s.relay(ctx)

	errc := make(chan error, 1)
	go func() {
		errc <- s.app.Listener(ln)
	}()
	s.logger.Info("control API listening", "addr", ln.Addr().String())

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	if err := s.app.ShutdownWithContext(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

// relay forwards session snapshots to the state hub.
func (s *Server) relay(ctx context.Context) {
	snaps, cancel := s.ctrl.Subscribe()
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-snaps:
			if !ok {
				return
			}
			if err := s.state.BroadcastJSON(snap); err != nil {
				s.logger.Error("encode snapshot", "error", err)
			}
		}
	}
}

func (s *Server) observeRequests(c *fiber.Ctx) error {
	start := s.config.Clock()
	err := c.Next()
	status := c.Response().StatusCode()
	var fe *fiber.Error
	if errors.As(err, &fe) {
		status = fe.Code
	}
	s.config.Metrics.HTTPRequest(c.UserContext(), c.Method(), c.Route().Path, status, s.config.Clock().Sub(start).Seconds())
	return err
}
