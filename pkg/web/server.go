// Package web serves the driving dashboard: loop status and control over
// REST, and live decisions and camera frames over websockets.
package web

import (
	"context"
	"log/slog"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"
	"golang.org/x/time/rate"

	"github.com/teslashibe/go-autocar/pkg/camera"
	"github.com/teslashibe/go-autocar/pkg/drive"
	"github.com/teslashibe/go-autocar/pkg/hub"
	"github.com/teslashibe/go-autocar/pkg/steering"
	"github.com/teslashibe/go-autocar/pkg/store"
)

// Controller starts and stops driving. drive.Loop implements it.
type Controller interface {
	Start() error
	Stop() error
	Status() drive.Status
}

// SessionLog lists recorded sessions. store.Store implements it.
type SessionLog interface {
	Sessions(ctx context.Context, limit int) ([]store.Session, error)
	Decisions(ctx context.Context, sessionID string, limit int) ([]store.Record, error)
}

// Options configures the dashboard
type Options struct {
	Addr      string
	StaticDir string // Served at / when set
	Logger    *slog.Logger

	Steering steering.Config
	Camera   *camera.Manager // Nil hides camera settings
	Sessions SessionLog      // Nil hides session history

	// CameraFPS caps frames pushed to /ws/camera. Zero disables the stream.
	CameraFPS float64
	// History is how many recent decisions GET /api/decisions can return
	History int
}

// DefaultOptions returns a dashboard on :8080 streaming 5 frames a second
func DefaultOptions() Options {
	return Options{
		Addr:      ":8080",
		Steering:  steering.DefaultConfig(),
		CameraFPS: 5,
		History:   500,
	}
}

// Server is the dashboard server. It implements drive.Publisher.
type Server struct {
	app    *fiber.App
	opts   Options
	logger *slog.Logger

	mu         sync.RWMutex
	controller Controller
	history    []steering.Decision

	decisionHub *hub.Hub
	cameraHub   *hub.Hub
	frames      *rate.Limiter
}

var _ drive.Publisher = (*Server)(nil)

// NewServer creates the dashboard. Call SetController once the loop exists.
func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.History <= 0 {
		opts.History = DefaultOptions().History
	}
	logger := opts.Logger.With("component", "web")

	s := &Server{
		opts:        opts,
		logger:      logger,
		history:     make([]steering.Decision, 0, opts.History),
		decisionHub: hub.New("decisions", hub.WithLogger(opts.Logger), hub.WithReplayLast()),
		cameraHub:   hub.New("camera", hub.WithLogger(opts.Logger)),
	}
	if opts.CameraFPS > 0 {
		s.frames = rate.NewLimiter(rate.Limit(opts.CameraFPS), 1)
	}

	app := fiber.New(fiber.Config{
		AppName:               "autocar dashboard",
		DisableStartupMessage: true,
	})
	app.Use(cors.New())

	if opts.StaticDir != "" {
		app.Static("/", opts.StaticDir)
	}

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/config", s.handleConfig)
	api.Put("/camera", s.handleUpdateCamera)
	api.Get("/decisions", s.handleDecisions)
	api.Get("/sessions", s.handleSessions)
	api.Get("/sessions/:id/decisions", s.handleSessionDecisions)
	api.Post("/start", s.handleStart)
	api.Post("/stop", s.handleStop)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/decisions", websocket.New(s.decisionHub.Serve))
	app.Get("/ws/camera", websocket.New(s.cameraHub.Serve))

	s.app = app
	return s
}

// App returns the underlying fiber app
func (s *Server) App() *fiber.App {
	return s.app
}

// SetController attaches the loop the dashboard controls
func (s *Server) SetController(c Controller) {
	s.mu.Lock()
	s.controller = c
	s.mu.Unlock()
}

func (s *Server) getController() Controller {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.controller
}

// Start runs the hubs and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	go s.decisionHub.Run(ctx)
	go s.cameraHub.Run(ctx)
	go func() {
		<-ctx.Done()
		if err := s.app.Shutdown(); err != nil {
			s.logger.Warn("shutdown", "error", err)
		}
	}()

	s.logger.Info("dashboard listening", "addr", s.opts.Addr)
	return s.app.Listen(s.opts.Addr)
}

// PublishDecision keeps d in the recent history and streams it
func (s *Server) PublishDecision(d steering.Decision) {
	s.mu.Lock()
	if len(s.history) == s.opts.History {
		copy(s.history, s.history[1:])
		s.history = s.history[:len(s.history)-1]
	}
	s.history = append(s.history, d)
	s.mu.Unlock()

	if err := s.decisionHub.BroadcastJSON(d); err != nil {
		s.logger.Warn("encode decision", "error", err)
	}
}

// PublishFrame streams a JPEG frame when someone is watching and the
// frame budget allows
func (s *Server) PublishFrame(jpeg []byte) {
	if s.frames == nil || s.cameraHub.ClientCount() == 0 {
		return
	}
	if !s.frames.Allow() {
		return
	}
	s.cameraHub.BroadcastBinary(jpeg)
}

// Recent returns up to n of the latest decisions, oldest first
func (s *Server) Recent(n int) []steering.Decision {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n <= 0 || n > len(s.history) {
		n = len(s.history)
	}
	out := make([]steering.Decision, n)
	copy(out, s.history[len(s.history)-n:])
	return out
}

// Shutdown stops the server without waiting for the context
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
