package server

import (
	"context"
	"net"
	"net/http"
	"sync"

	"github.com/Tyrowin/gosocket/internal/events"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const tracerName = "github.com/Tyrowin/gosocket/internal/server"

// Server tracks the live connections accepted over WebSocket and notifies
// listeners when connections join or leave.
//
// A Server built with New is an http.Handler and leaves the HTTP listener to
// the caller. Listen and Serve run the listener themselves.
type Server struct {
	log      *zap.Logger
	tracer   trace.Tracer
	registry *prometheus.Registry
	metrics  *metrics
	upgrader websocket.Upgrader

	cfgMu   sync.RWMutex
	cfg     Config
	origins originPolicy

	mu       sync.RWMutex
	clients  []*Conn
	closing  bool
	inflight sync.WaitGroup

	lifecycle *events.Source[Lifecycle, *Conn]

	listener   net.Listener
	httpServer *http.Server
	serveErr   chan error

	closeOnce sync.Once
	closeErr  error
}

// New creates a Server in handler mode.
func New(opts ...Option) *Server {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	registry := o.registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	tp := o.tracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	cfg := sanitizeConfig(o.cfg)
	s := &Server{
		log:       o.logger,
		tracer:    tp.Tracer(tracerName),
		registry:  registry,
		metrics:   newMetrics(registry),
		cfg:       cfg,
		origins:   newOriginPolicy(cfg.AllowedOrigins, o.logger),
	}
	s.lifecycle = events.New[Lifecycle, *Conn](events.WithRecover(s.recoverListener))
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

func (s *Server) recoverListener(event any, r any) {
	s.log.Error("Recovered from panic in lifecycle listener",
		zap.Any("event", event), zap.Any("panic", r))
}

func (s *Server) config() Config {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.cfg
}

// SetConfig replaces the configuration used for connections accepted from
// now on. Existing connections keep the settings they were created with.
func (s *Server) SetConfig(cfg *Config) {
	if cfg == nil {
		return
	}
	sanitized := sanitizeConfig(*cfg)
	origins := newOriginPolicy(sanitized.AllowedOrigins, s.log)

	s.cfgMu.Lock()
	s.cfg = sanitized
	s.origins = origins
	s.cfgMu.Unlock()

	s.log.Info("Configuration applied",
		zap.Strings("allowed_origins", sanitized.AllowedOrigins),
		zap.Int64("max_message_size", sanitized.MaxMessageSize),
		zap.Int("rate_limit_burst", sanitized.RateLimit.Burst))
}

func (s *Server) checkOrigin(r *http.Request) bool {
	s.cfgMu.RLock()
	policy := s.origins
	s.cfgMu.RUnlock()

	if policy.allows(r) {
		return true
	}
	s.log.Warn("Rejected WebSocket connection from disallowed origin",
		zap.String("origin", r.Header.Get("Origin")),
		zap.String("remote_addr", r.RemoteAddr))
	return false
}

// Metrics returns an HTTP handler exposing this server's Prometheus
// metrics.
func (s *Server) Metrics() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}

// Addr returns the bound listener address, or nil in handler mode.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Close stops accepting connections, closes every live connection and
// dispatches a disconnect event for each, then shuts down the listener if
// the server owns one. Only the first call does any work; later calls
// block until it finishes and return its result.
func (s *Server) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.closeErr = s.close(ctx)
	})
	return s.closeErr
}

func (s *Server) close(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "gosocket.close")
	defer span.End()

	s.mu.Lock()
	s.closing = true
	clients := s.clients
	s.clients = nil
	s.mu.Unlock()

	s.log.Info("Shutting down all client connections...", zap.Int("clients", len(clients)))
	span.SetAttributes(attribute.Int("gosocket.clients", len(clients)))

	var errs error
	if err := s.shutdownClients(ctx, clients); err != nil {
		errs = multierr.Append(errs, err)
	}

	for _, c := range clients {
		s.metrics.disconnected()
		s.lifecycle.Dispatch(EventDisconnect, c)
	}

	if s.httpServer != nil {
		errs = multierr.Append(errs, ShutdownServer(ctx, s.httpServer))
		errs = multierr.Append(errs, <-s.serveErr)
	}

	if err := s.waitInflight(ctx); err != nil {
		errs = multierr.Append(errs, err)
	}

	if errs != nil {
		span.RecordError(errs)
		span.SetStatus(codes.Error, "close failed")
		return errs
	}

	s.log.Info("Server shutdown completed", zap.Int("clients", len(clients)))
	return nil
}

func (s *Server) shutdownClients(ctx context.Context, clients []*Conn) error {
	var g errgroup.Group
	for _, c := range clients {
		g.Go(func() error {
			return c.Close(ctx)
		})
	}
	return g.Wait()
}

// waitInflight waits for upgrades that passed the closing check before Close
// began. Accept refuses them, so nothing new can register.
func (s *Server) waitInflight(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
