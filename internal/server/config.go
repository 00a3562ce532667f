// Package server provides configuration helpers that define runtime defaults,
// validation, and rate-limiting parameters for the gateway.
package server

import (
	"fmt"
	"strings"
	"time"

	"github.com/Netflix/go-env"

	"github.com/Tyrowin/nexus-chat-server/internal/protocol"
)

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int
	RefillInterval time.Duration
}

// Config holds the server configuration settings including security controls.
type Config struct {
	Port            string
	AllowedOrigins  []string
	MaxMessageSize  int64
	SendBufferSize  int
	RateLimit       RateLimitConfig
	HTTPRateLimit   int
	ShutdownTimeout time.Duration
	LogLevel        string
}

// envConfig mirrors Config with the environment variable bindings.
type envConfig struct {
	Port            string        `env:"SERVER_PORT,default=:8080"`
	AllowedOrigins  string        `env:"ALLOWED_ORIGINS,default=http://localhost:8080"`
	MaxMessageSize  int64         `env:"MAX_MESSAGE_SIZE"`
	SendBufferSize  int           `env:"SEND_BUFFER_SIZE,default=256"`
	RateLimitBurst  int           `env:"RATE_LIMIT_BURST,default=5"`
	RefillInterval  time.Duration `env:"RATE_LIMIT_REFILL_INTERVAL,default=1s"`
	HTTPRateLimit   int           `env:"HTTP_RATE_LIMIT,default=20"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`
	LogLevel        string        `env:"LOG_LEVEL,default=INFO"`
}

const (
	defaultPort            = ":8080"
	defaultMaxMessageSize  = protocol.MaxFrameSize
	defaultSendBufferSize  = 256
	defaultBurst           = 5
	defaultHTTPRateLimit   = 20
	defaultShutdownTimeout = 10 * time.Second
	defaultLogLevel        = "INFO"
)

func defaultConfig() Config {
	return Config{
		Port: defaultPort,
		AllowedOrigins: []string{
			"http://localhost:8080",
		},
		MaxMessageSize: defaultMaxMessageSize,
		SendBufferSize: defaultSendBufferSize,
		RateLimit: RateLimitConfig{
			Burst:          defaultBurst,
			RefillInterval: time.Second,
		},
		HTTPRateLimit:   defaultHTTPRateLimit,
		ShutdownTimeout: defaultShutdownTimeout,
		LogLevel:        defaultLogLevel,
	}
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() Config {
	return defaultConfig()
}

// NewConfigFromEnv reads the environment. Unset variables take their default
// and non-positive numbers are replaced by defaults.
func NewConfigFromEnv() (Config, error) {
	var raw envConfig
	if _, err := env.UnmarshalFromEnviron(&raw); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}

	return SanitizeConfig(Config{
		Port:           raw.Port,
		AllowedOrigins: parseOrigins(raw.AllowedOrigins),
		MaxMessageSize: raw.MaxMessageSize,
		SendBufferSize: raw.SendBufferSize,
		RateLimit: RateLimitConfig{
			Burst:          raw.RateLimitBurst,
			RefillInterval: raw.RefillInterval,
		},
		HTTPRateLimit:   raw.HTTPRateLimit,
		ShutdownTimeout: raw.ShutdownTimeout,
		LogLevel:        raw.LogLevel,
	}), nil
}

// SanitizeConfig replaces missing or invalid values with defaults.
func SanitizeConfig(cfg Config) Config {
	if cfg.Port == "" {
		cfg.Port = defaultPort
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaultMaxMessageSize
	}
	if cfg.SendBufferSize <= 0 {
		cfg.SendBufferSize = defaultSendBufferSize
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = defaultBurst
	}
	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = time.Second
	}
	if cfg.HTTPRateLimit <= 0 {
		cfg.HTTPRateLimit = defaultHTTPRateLimit
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = defaultLogLevel
	}
	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return cfg
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
