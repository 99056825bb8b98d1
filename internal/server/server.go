package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/claude/physiotrack/internal/live"
	"github.com/claude/physiotrack/internal/media"
	"github.com/claude/physiotrack/internal/models"
	"github.com/claude/physiotrack/internal/overlay"
	"github.com/claude/physiotrack/internal/persist"
	"github.com/go-chi/chi/v5"
)

// Session is the live session the control API drives.
type Session interface {
	Snapshot() live.Snapshot
	Start(ctx context.Context) error
	Stop(ctx context.Context, save bool) error
	StartNextSet(ctx context.Context) error
	SetSide(ctx context.Context, side models.Side) error
}

// History lists locally recorded set results.
type History interface {
	History(ctx context.Context, limit int) ([]persist.Entry, error)
}

// Options configures the optional parts of the server.
type Options struct {
	APIKey       string
	FrameWidth   int
	FrameHeight  int
	Visibility   float64
	FontPath     string
	FontSize     float64
	HistoryLimit int
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	session Session
	history History
	media   *media.Library
	opts    Options
	log     *slog.Logger
	router  chi.Router
}

// New creates a new Server with all routes configured. history and lib may be nil.
func New(session Session, history History, lib *media.Library, opts Options, log *slog.Logger) *Server {
	if opts.FrameWidth <= 0 || opts.FrameHeight <= 0 {
		opts.FrameWidth, opts.FrameHeight = 640, 480
	}
	if opts.Visibility <= 0 {
		opts.Visibility = overlay.DefaultVisibility
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 50
	}
	s := &Server{
		session: session,
		history: history,
		media:   lib,
		opts:    opts,
		log:     log,
		router:  chi.NewRouter(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.Use(RequestLogging(s.log))
	s.router.Use(CORS)

	s.router.Get("/api/v1/session", s.handleSession)
	s.router.Get("/api/v1/session/feedback", s.handleFeedback)
	s.router.Get("/api/v1/session/overlay.png", s.handleOverlay)
	s.router.Get("/api/v1/exercise/media", s.handleMedia)
	s.router.Get("/api/v1/history", s.handleHistory)

	// Session control (API key required when configured)
	s.router.Group(func(r chi.Router) {
		if s.opts.APIKey != "" {
			r.Use(APIKeyAuth(s.opts.APIKey))
		}
		r.Post("/api/v1/session/start", s.handleStart)
		r.Post("/api/v1/session/stop", s.handleStop)
		r.Post("/api/v1/session/next-set", s.handleNextSet)
		r.Post("/api/v1/session/side", s.handleSide)
	})
}

// SetMCP mounts an MCP transport handler at /mcp.
func (s *Server) SetMCP(h http.Handler) {
	s.router.Handle("/mcp", h)
	s.router.Handle("/mcp/*", h)
}
