package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter exposes s over HTTP: /healthz reports status, /metrics serves
// Prometheus metrics, and every other path is a WebSocket endpoint.
func NewRouter(s *Server) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.healthHandler)
	r.Method(http.MethodGet, "/metrics", s.Metrics())
	r.Handle("/*", s)
	return r
}
