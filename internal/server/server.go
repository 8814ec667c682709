// Package server provides the HTTP surface: REST endpoints for session
// CRUD and chat, and an SSE endpoint for streaming chat turns
// (spec.md section 4.6).
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/agentbroker/broker/internal/config"
	"github.com/agentbroker/broker/internal/session"
)

// Version is the broker's reported release version.
const Version = "0.1.0"

// Config holds HTTP-layer configuration independent of the session
// manager's own configuration snapshot.
type Config struct {
	Port         int
	EnableCORS   bool
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns the HTTP layer's defaults.
func DefaultConfig() *Config {
	return &Config{
		Port:         8080,
		EnableCORS:   true,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // no write timeout: chat/stream holds the connection open
	}
}

// Server is the HTTP surface.
type Server struct {
	config      *Config
	router      *chi.Mux
	httpSrv     *http.Server
	mgr         *session.Manager
	storageKind config.StorageBackend
	startedAt   time.Time
	log         zerolog.Logger
}

// New builds a Server wired to mgr.
func New(cfg *Config, mgr *session.Manager, storageKind config.StorageBackend, log zerolog.Logger) *Server {
	r := chi.NewRouter()

	s := &Server{
		config:      cfg,
		router:      r,
		mgr:         mgr,
		storageKind: storageKind,
		startedAt:   time.Now(),
		log:         log.With().Str("component", "http").Logger(),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RealIP)

	if s.config.EnableCORS {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
}

// Start begins serving HTTP and blocks until the server stops.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}
	return s.httpSrv.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// Router exposes the chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}
