package server

import (
	"github.com/go-chi/chi/v5"
)

// setupRoutes configures the API surface described in spec.md section 4.6.
func (s *Server) setupRoutes() {
	r := s.router

	r.Route("/api/v1/sessions", func(r chi.Router) {
		r.Get("/", s.listSessions)
		r.Post("/", s.createSession)

		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", s.getSession)
			r.Delete("/", s.deleteSession)
			r.Post("/resume", s.resumeSession)
		})
	})

	r.Post("/api/v1/chat", s.chat)
	r.Post("/api/v1/chat/stream", s.chatStream)

	r.Get("/health", s.health)
}
