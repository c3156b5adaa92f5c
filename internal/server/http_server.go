package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// CreateServer creates and configures an HTTP server with the specified address and handler.
// It sets reasonable timeout values for production use.
func CreateServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// ShutdownServer gracefully shuts down the HTTP server without interrupting active requests.
// It waits for them to finish or until ctx is done.
func ShutdownServer(ctx context.Context, server *http.Server) error {
	zap.L().Info("Shutting down HTTP server...", zap.String("addr", server.Addr))

	if err := server.Shutdown(ctx); err != nil {
		zap.L().Warn("HTTP server shutdown error", zap.Error(err))
		return fmt.Errorf("shutdown http server: %w", err)
	}

	zap.L().Info("HTTP server shutdown completed")
	return nil
}

// Listen binds addr and serves NewRouter on it. An empty addr uses the
// configured Addr.
func Listen(addr string, opts ...Option) (*Server, error) {
	s := New(opts...)
	if addr == "" {
		addr = s.config().Addr
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	s.serve(ln)
	return s, nil
}

// Serve serves NewRouter on an already bound listener. The server takes
// ownership of ln and closes it in Close.
func Serve(ln net.Listener, opts ...Option) *Server {
	s := New(opts...)
	s.serve(ln)
	return s
}

func (s *Server) serve(ln net.Listener) {
	s.listener = ln
	s.httpServer = CreateServer(ln.Addr().String(), NewRouter(s))
	s.serveErr = make(chan error, 1)

	s.log.Info("Server listening", zap.String("addr", ln.Addr().String()))
	go func() {
		err := s.httpServer.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		if err != nil {
			s.log.Error("HTTP server stopped", zap.Error(err))
			err = fmt.Errorf("serve %s: %w", ln.Addr(), err)
		}
		s.serveErr <- err
	}()
}
