package server

import (
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ServeHTTP upgrades GET requests to WebSocket and registers the resulting
// connection. Other methods get 405, and requests arriving after Close
// has started get 503.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		http.Error(w, "Server is shutting down.", http.StatusServiceUnavailable)
		return
	}
	s.inflight.Add(1)
	s.mu.Unlock()
	defer s.inflight.Done()

	_, span := s.tracer.Start(r.Context(), "gosocket.accept",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attribute.String("net.peer.addr", r.RemoteAddr)))
	defer span.End()

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written the HTTP error response.
		s.log.Warn("WebSocket upgrade failed", zap.String("remote_addr", r.RemoteAddr), zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "upgrade failed")
		return
	}

	c, err := s.Accept(ws, r.RemoteAddr)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "accept refused")
		return
	}
	span.SetAttributes(attribute.String("gosocket.conn_id", c.ID()))
}

// healthHandler reports that the server is up and how many clients it holds.
func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "gosocket server is running with %d clients\n", s.Len())
}
