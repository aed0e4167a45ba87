// Package config loads the runtime configuration this core needs at
// startup: upstream streams, broker connection, reconnection policy,
// breaker parameters, queue sizing, and heartbeat cadence.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Config is the read-only snapshot the streaming core consumes. The
// admin API (out of scope) owns live updates; this type only ever gets
// populated once at startup and re-read verbatim on each reconnect
// cycle.
type Config struct {
	// Upstream WebSocket
	WSURL        string `env:"WS_URL" envDefault:"wss://stream.binance.com:9443/stream"`
	Streams      string `env:"WS_STREAMS" envDefault:"btcusdt@trade,btcusdt@ticker,btcusdt@depth20@100ms"`
	MaxMessageSize int  `env:"WS_MAX_MESSAGE_SIZE" envDefault:"1048576"`

	// Broker (NATS)
	BrokerURL            string        `env:"BROKER_URL" envDefault:"nats://localhost:4222"`
	BrokerSubject        string        `env:"BROKER_SUBJECT" envDefault:"binance.websocket.data"`
	BrokerClientName     string        `env:"BROKER_CLIENT_NAME" envDefault:"binance-nats-bridge"`
	BrokerReconnectWait  time.Duration `env:"BROKER_RECONNECT_WAIT" envDefault:"2s"`
	BrokerMaxReconnects  int           `env:"BROKER_MAX_RECONNECTS" envDefault:"-1"`

	// Reconnect policy
	ReconnectInitialDelay   time.Duration `env:"RECONNECT_INITIAL_DELAY" envDefault:"1s"`
	ReconnectMaxAttempts    int           `env:"RECONNECT_MAX_ATTEMPTS" envDefault:"10"`
	ReconnectBackoffFactor float64       `env:"RECONNECT_BACKOFF_MULTIPLIER" envDefault:"2.0"`

	// Ping policy
	PingInterval    time.Duration `env:"PING_INTERVAL" envDefault:"30s"`
	PingTimeout     time.Duration `env:"PING_TIMEOUT" envDefault:"10s"`
	CloseTimeout    time.Duration `env:"CLOSE_TIMEOUT" envDefault:"10s"`

	// Queue / processor pool
	QueueCapacity   int           `env:"QUEUE_CAPACITY" envDefault:"1000"`
	BatchTimeout    time.Duration `env:"MESSAGE_BATCH_TIMEOUT" envDefault:"1s"`
	ProcessorCount  int           `env:"PROCESSOR_COUNT" envDefault:"4"`
	StatsLogInterval time.Duration `env:"STATS_LOG_INTERVAL" envDefault:"60s"`

	// Breakers
	WSBreakerFailureThreshold     int           `env:"WS_BREAKER_FAILURE_THRESHOLD" envDefault:"5"`
	WSBreakerRecoveryTimeout      time.Duration `env:"WS_BREAKER_RECOVERY_TIMEOUT" envDefault:"60s"`
	BrokerBreakerFailureThreshold int           `env:"BROKER_BREAKER_FAILURE_THRESHOLD" envDefault:"3"`
	BrokerBreakerRecoveryTimeout  time.Duration `env:"BROKER_BREAKER_RECOVERY_TIMEOUT" envDefault:"30s"`

	// Heartbeat
	HeartbeatEnabled  bool          `env:"HEARTBEAT_ENABLED" envDefault:"true"`
	HeartbeatInterval time.Duration `env:"HEARTBEAT_INTERVAL" envDefault:"60s"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Environment
	Environment string `env:"ENVIRONMENT" envDefault:"production"`
}

// Load reads configuration from an optional .env file and then from
// environment variables. Priority: env vars > .env file > struct
// defaults, matching caarlos0/env's own precedence.
func Load(logger *zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		if logger != nil {
			logger.Info().Msg("no .env file found, using environment variables only")
		}
	} else if logger != nil {
		logger.Info().Msg("loaded configuration from .env file")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// StreamList splits the comma-separated WS_STREAMS value into the list
// of upstream subscription identifiers.
func (c *Config) StreamList() []string {
	parts := strings.Split(c.Streams, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate rejects configuration errors at startup, surfacing them as
// a fatal startup failure rather than a later runtime error.
func (c *Config) Validate() error {
	if c.WSURL == "" {
		return fmt.Errorf("WS_URL is required")
	}
	if c.BrokerURL == "" {
		return fmt.Errorf("BROKER_URL is required")
	}
	if c.BrokerSubject == "" {
		return fmt.Errorf("BROKER_SUBJECT is required")
	}
	if c.QueueCapacity < 1 {
		return fmt.Errorf("QUEUE_CAPACITY must be > 0, got %d", c.QueueCapacity)
	}
	if c.ProcessorCount < 1 {
		return fmt.Errorf("PROCESSOR_COUNT must be > 0, got %d", c.ProcessorCount)
	}
	if c.ReconnectBackoffFactor <= 0 {
		return fmt.Errorf("RECONNECT_BACKOFF_MULTIPLIER must be > 0, got %.2f", c.ReconnectBackoffFactor)
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("LOG_LEVEL must be one of: debug, info, warn, error (got: %s)", c.LogLevel)
	}

	validLogFormats := map[string]bool{"json": true, "console": true}
	if !validLogFormats[c.LogFormat] {
		return fmt.Errorf("LOG_FORMAT must be one of: json, console (got: %s)", c.LogFormat)
	}

	return nil
}

// LogConfig emits the loaded configuration as a single structured log
// record, the way ws/config.go's LogConfig does for its server config.
func (c *Config) LogConfig(logger zerolog.Logger) {
	logger.Info().
		Str("environment", c.Environment).
		Str("ws_url", c.WSURL).
		Strs("streams", c.StreamList()).
		Str("broker_url", c.BrokerURL).
		Str("broker_subject", c.BrokerSubject).
		Dur("broker_reconnect_wait", c.BrokerReconnectWait).
		Int("broker_max_reconnects", c.BrokerMaxReconnects).
		Dur("reconnect_initial_delay", c.ReconnectInitialDelay).
		Int("reconnect_max_attempts", c.ReconnectMaxAttempts).
		Float64("reconnect_backoff_multiplier", c.ReconnectBackoffFactor).
		Int("queue_capacity", c.QueueCapacity).
		Int("processor_count", c.ProcessorCount).
		Bool("heartbeat_enabled", c.HeartbeatEnabled).
		Dur("heartbeat_interval", c.HeartbeatInterval).
		Str("log_level", c.LogLevel).
		Msg("configuration loaded")
}
