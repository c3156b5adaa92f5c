package server

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int           `yaml:"burst" json:"burst"`
	RefillInterval time.Duration `yaml:"refill_interval" json:"refill_interval"`
}

// Config holds the server configuration settings including security controls.
type Config struct {
	Addr           string          `yaml:"addr" json:"addr"`
	AllowedOrigins []string        `yaml:"allowed_origins" json:"allowed_origins"`
	MaxMessageSize int64           `yaml:"max_message_size" json:"max_message_size"`
	RateLimit      RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// SendBufferSize bounds the per-connection outbound queue.
	SendBufferSize int `yaml:"send_buffer_size" json:"send_buffer_size"`

	PingInterval time.Duration `yaml:"ping_interval" json:"ping_interval"`
	PongWait     time.Duration `yaml:"pong_wait" json:"pong_wait"`
	WriteWait    time.Duration `yaml:"write_wait" json:"write_wait"`
	// CloseGracePeriod is how long Close waits for the peer to answer a
	// close frame before tearing the socket down.
	CloseGracePeriod time.Duration `yaml:"close_grace_period" json:"close_grace_period"`

	LogLevel string `yaml:"log_level" json:"log_level"`
}

const (
	defaultAddr             = ":8080"
	defaultMaxMessageSize   = 64 << 10
	defaultBurst            = 100
	defaultRefillInterval   = time.Second
	defaultSendBufferSize   = 256
	defaultPongWait         = 60 * time.Second
	defaultPingInterval     = 54 * time.Second
	defaultWriteWait        = 10 * time.Second
	defaultCloseGracePeriod = 5 * time.Second
	defaultLogLevel         = "info"
)

func defaultConfig() Config {
	return Config{
		Addr:           defaultAddr,
		MaxMessageSize: defaultMaxMessageSize,
		RateLimit: RateLimitConfig{
			Burst:          defaultBurst,
			RefillInterval: defaultRefillInterval,
		},
		SendBufferSize:   defaultSendBufferSize,
		PingInterval:     defaultPingInterval,
		PongWait:         defaultPongWait,
		WriteWait:        defaultWriteWait,
		CloseGracePeriod: defaultCloseGracePeriod,
		LogLevel:         defaultLogLevel,
	}
}

// sanitizeConfig fills zero or invalid values with defaults and returns a
// copy that shares no slices with cfg.
func sanitizeConfig(cfg Config) Config {
	if cfg.Addr == "" {
		cfg.Addr = defaultAddr
	}

	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaultMaxMessageSize
	}

	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = defaultBurst
	}

	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = defaultRefillInterval
	}

	if cfg.SendBufferSize <= 0 {
		cfg.SendBufferSize = defaultSendBufferSize
	}

	if cfg.PongWait <= 0 {
		cfg.PongWait = defaultPongWait
	}

	// Pings must go out before the peer's read deadline lapses.
	if cfg.PingInterval <= 0 || cfg.PingInterval >= cfg.PongWait {
		cfg.PingInterval = cfg.PongWait * 9 / 10
	}

	if cfg.WriteWait <= 0 {
		cfg.WriteWait = defaultWriteWait
	}

	if cfg.CloseGracePeriod <= 0 {
		cfg.CloseGracePeriod = defaultCloseGracePeriod
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = defaultLogLevel
	}

	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return cfg
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// NewConfigFromEnv creates a Config instance from environment variables.
// Falls back to default values if environment variables are not set.
func NewConfigFromEnv() *Config {
	cfg := defaultConfig()
	applyEnv(&cfg)
	return &cfg
}

func applyEnv(cfg *Config) {
	if addr := os.Getenv("SERVER_ADDR"); addr != "" {
		cfg.Addr = addr
	}

	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = parseOrigins(origins)
	}

	if maxSize := os.Getenv("MAX_MESSAGE_SIZE"); maxSize != "" {
		cfg.MaxMessageSize = parseMaxMessageSize(maxSize, cfg.MaxMessageSize)
	}

	if burst := os.Getenv("RATE_LIMIT_BURST"); burst != "" {
		cfg.RateLimit.Burst = parseIntValue(burst, cfg.RateLimit.Burst)
	}

	if interval := os.Getenv("RATE_LIMIT_REFILL_INTERVAL"); interval != "" {
		cfg.RateLimit.RefillInterval = parseSeconds(interval, cfg.RateLimit.RefillInterval)
	}

	if size := os.Getenv("SEND_BUFFER_SIZE"); size != "" {
		cfg.SendBufferSize = parseIntValue(size, cfg.SendBufferSize)
	}

	if grace := os.Getenv("CLOSE_GRACE_PERIOD"); grace != "" {
		cfg.CloseGracePeriod = parseSeconds(grace, cfg.CloseGracePeriod)
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseMaxMessageSize(value string, defaultValue int64) int64 {
	if size, err := strconv.ParseInt(value, 10, 64); err == nil && size > 0 {
		return size
	}
	return defaultValue
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

// parseSeconds accepts either a whole number of seconds or a Go duration string.
func parseSeconds(value string, defaultValue time.Duration) time.Duration {
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	return defaultValue
}
