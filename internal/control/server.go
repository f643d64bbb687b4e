// Package control provides the HTTP control API: the automation-facing
// control actor that inspects connections and resolves their events.
package control

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/roach88/mallet/internal/engine"
	"github.com/roach88/mallet/internal/journal"
)

// Journal lists recorded decisions. Implemented by *journal.Journal.
type Journal interface {
	List(ctx context.Context, connectionID string) ([]journal.Entry, error)
	Counts(ctx context.Context) (map[engine.Outcome]int, error)
}

// Server handles control API requests.
type Server struct {
	registry *engine.Registry
	journal  Journal
	logger   *slog.Logger
	upgrader websocket.Upgrader

	// MessageLimit caps replacement message bodies, in echo's size
	// notation ("16M").
	MessageLimit string

	// Watch settings
	WatchBuffer  int
	PingInterval time.Duration
	WriteTimeout time.Duration
}

// Option configures a Server.
type Option func(*Server)

// WithJournal enables the /journal endpoints.
func WithJournal(j Journal) Option {
	return func(s *Server) {
		s.journal = j
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithMessageLimit caps replacement message bodies, e.g. "4M".
func WithMessageLimit(limit string) Option {
	return func(s *Server) {
		s.MessageLimit = limit
	}
}

// NewServer creates a control server over reg.
func NewServer(reg *engine.Registry, opts ...Option) *Server {
	s := &Server{
		registry: reg,
		logger:   slog.Default().With("component", "control"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// local tooling only
				return true
			},
		},
		MessageLimit: "16M",
		WatchBuffer:  256,
		PingInterval: 30 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterRoutes registers routes with the echo server.
func (s *Server) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", s.Health)

	e.GET("/connections", s.ListConnections)
	e.GET("/connections/:id/events", s.ListEvents)
	e.POST("/connections/:id/drop", s.Drop)
	e.POST("/connections/:id/execute", s.Execute)
	e.PUT("/connections/:id/events/:index/message", s.SetMessage, middleware.BodyLimit(s.MessageLimit))
	e.GET("/connections/:id/watch", s.Watch)

	e.GET("/journal", s.ListJournal)
	e.GET("/journal/counts", s.JournalCounts)
}

// Echo returns a configured echo instance serving the control API.
func (s *Server) Echo() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	s.RegisterRoutes(e)
	return e
}

// Health returns health status.
func (s *Server) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "healthy",
	})
}
