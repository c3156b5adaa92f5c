package server

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Option configures a Server.
type Option func(*options)

type options struct {
	cfg            Config
	logger         *zap.Logger
	registry       *prometheus.Registry
	tracerProvider trace.TracerProvider
}

func defaultOptions() options {
	return options{
		cfg:    defaultConfig(),
		logger: zap.L(),
	}
}

// WithConfig sets the server configuration. Zero fields take defaults.
func WithConfig(cfg *Config) Option {
	return func(o *options) {
		if cfg != nil {
			o.cfg = *cfg
		}
	}
}

// WithLogger sets the logger. The default is zap.L().
func WithLogger(lg *zap.Logger) Option {
	return func(o *options) {
		if lg != nil {
			o.logger = lg
		}
	}
}

// WithRegistry registers the server's metrics on reg instead of a
// registry private to the server.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(o *options) {
		o.registry = reg
	}
}

// WithTracerProvider sets the tracer provider. The default is the global
// OpenTelemetry provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		o.tracerProvider = tp
	}
}

// connSettings is the per-connection slice of Config.
type connSettings struct {
	maxMessageSize int64
	rateLimit      RateLimitConfig
	sendBufferSize int
	pingInterval   time.Duration
	pongWait       time.Duration
	writeWait      time.Duration
	closeGrace     time.Duration
}

func settingsFromConfig(cfg Config) connSettings {
	cfg = sanitizeConfig(cfg)
	return connSettings{
		maxMessageSize: cfg.MaxMessageSize,
		rateLimit:      cfg.RateLimit,
		sendBufferSize: cfg.SendBufferSize,
		pingInterval:   cfg.PingInterval,
		pongWait:       cfg.PongWait,
		writeWait:      cfg.WriteWait,
		closeGrace:     cfg.CloseGracePeriod,
	}
}

// ConnOption configures a Conn.
type ConnOption func(*Conn)

// WithConnConfig applies the per-connection settings of cfg.
func WithConnConfig(cfg *Config) ConnOption {
	return func(c *Conn) {
		if cfg != nil {
			c.settings = settingsFromConfig(*cfg)
		}
	}
}

// WithConnLogger sets the connection logger.
func WithConnLogger(lg *zap.Logger) ConnOption {
	return func(c *Conn) {
		if lg != nil {
			c.log = lg
		}
	}
}

// WithRemoteAddr records the peer address used in logs.
func WithRemoteAddr(addr string) ConnOption {
	return func(c *Conn) {
		c.addr = addr
	}
}

// WithoutRateLimit disables inbound rate limiting.
func WithoutRateLimit() ConnOption {
	return func(c *Conn) {
		c.unlimited = true
	}
}

func withMetrics(m *metrics) ConnOption {
	return func(c *Conn) {
		c.metrics = m
	}
}
