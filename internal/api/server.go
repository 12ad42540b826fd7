// Package api exposes the sync engine over HTTP.
//
// Routes:
//
//	GET  /health                      liveness and version, no auth
//	GET  /sync/timestamp              current checkpoint
//	GET  /sync/tables                 registered tables and their roles
//	GET  /sync/{table}?lastSyncTime=  change feed since the checkpoint
//	POST /sync/{table}                apply a batch of envelopes
//	GET  /monitor/ws                  activity stream, Admin only
//
// Every route except /health needs a bearer token. Browsers cannot set
// headers on WebSocket upgrades, so /monitor/ws also accepts ?access_token=.
package api

import (
	"log"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/lexiflow/lexisync/internal/auth"
	lexisync "github.com/lexiflow/lexisync/internal/sync"
)

// Config holds server dependencies.
type Config struct {
	Engine   *lexisync.Engine
	Resolver auth.Resolver

	// Monitor serves /monitor/ws. Nil disables the route.
	Monitor http.Handler

	// Version is reported by /health.
	Version string

	// MaxBodyBytes limits push bodies (default: 10 MiB).
	MaxBodyBytes int64

	// Logger for request and error logs (default: stderr logger).
	Logger *log.Logger
}

// Server routes HTTP requests to the engine.
type Server struct {
	engine   *lexisync.Engine
	resolver auth.Resolver
	monitor  http.Handler
	version  string
	maxBody  int64
	logger   *log.Logger
}

// NewServer creates a Server.
func NewServer(cfg Config) *Server {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 10 << 20
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "[api] ", log.LstdFlags)
	}
	return &Server{
		engine:   cfg.Engine,
		resolver: cfg.Resolver,
		monitor:  cfg.Monitor,
		version:  cfg.Version,
		maxBody:  cfg.MaxBodyBytes,
		logger:   cfg.Logger,
	}
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)

		r.Route("/sync", func(r chi.Router) {
			r.Get("/timestamp", s.handleTimestamp)
			r.Get("/tables", s.handleTables)
			r.Get("/{table}", s.handlePull)
			r.Post("/{table}", s.handlePush)
		})

		if s.monitor != nil {
			r.With(requireRole(auth.RoleAdmin)).Handle("/monitor/ws", s.monitor)
		}
	})

	return r
}
