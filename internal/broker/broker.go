// Package broker wraps the NATS client the core publishes envelopes
// through. Grounded on go-server/pkg/nats/client.go, trimmed to the
// publish-only surface this bridge needs: no Subscribe/Request, since
// the bridge never consumes from NATS. The connection is dialed once;
// staying connected across blips is the NATS client's own job, not the
// Reconnect Supervisor's (that only re-dials the upstream WebSocket).
package broker

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// Config holds the NATS connection parameters. Unlike the upstream
// WebSocket, which this core re-dials itself under the Reconnect
// Supervisor, the broker connection is only ever dialed once by
// Supervisor.Run; a transient drop is instead recovered by the NATS
// client's own background reconnect loop (ReconnectWait/MaxReconnects),
// so a blip never permanently strands publishes behind a dead handle.
type Config struct {
	URL           string
	ClientName    string
	ReconnectWait time.Duration
	MaxReconnects int
}

// Client publishes envelopes to a single configured subject.
type Client struct {
	conn   *nats.Conn
	logger zerolog.Logger
}

// Dial connects to the NATS server. The caller is expected to run this
// under the broker circuit breaker (internal/breaker), so Dial itself
// performs no retries.
func Dial(cfg Config, logger zerolog.Logger) (*Client, error) {
	opts := []nats.Option{
		nats.Name(cfg.ClientName),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DrainTimeout(drainTimeout),
		nats.ConnectHandler(func(c *nats.Conn) {
			logger.Info().Str("url", c.ConnectedUrl()).Msg("connected to broker")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info().Str("url", c.ConnectedUrl()).Msg("reconnected to broker")
		}),
		nats.DisconnectErrHandler(func(c *nats.Conn, err error) {
			if err != nil {
				logger.Warn().Err(err).Msg("disconnected from broker")
			}
		}),
		nats.ClosedHandler(func(c *nats.Conn) {
			logger.Error().Msg("broker connection permanently closed")
		}),
		nats.ErrorHandler(func(c *nats.Conn, s *nats.Subscription, err error) {
			logger.Error().Err(err).Msg("broker connection error")
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to broker: %w", err)
	}

	return &Client{conn: conn, logger: logger}, nil
}

// Publish sends data on subject. Errors are returned uninterpreted; the
// caller (the Processor Pool, via the broker breaker) decides whether
// this counts as a drop.
func (c *Client) Publish(subject string, data []byte) error {
	if err := c.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}

// Connected reports whether the underlying connection is open, used by
// the Processor Pool to short-circuit a publish attempt when the
// broker handle is absent or closed.
func (c *Client) Connected() bool {
	return c.conn != nil && c.conn.IsConnected()
}

// State returns a short connection-state string for metrics/heartbeat:
// "connected" or "disconnected".
func (c *Client) State() string {
	if c.Connected() {
		return "connected"
	}
	return "disconnected"
}

// Close drains and closes the connection, giving in-flight publishes up
// to drainTimeout to flush before forcing a close.
func (c *Client) Close() {
	if c.conn == nil {
		return
	}
	if err := c.conn.Drain(); err != nil {
		c.conn.Close()
	}
}

// drainTimeout bounds how long Close waits for in-flight publishes to
// flush before forcing the connection closed.
const drainTimeout = 2 * time.Second
