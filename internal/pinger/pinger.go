// Package pinger runs the single Ping Keeper task: it sends periodic
// WebSocket pings on the active connection to keep it alive.
//
// Grounded on go-server/pkg/websocket/client.go's ping-ticker branch.
package pinger

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/petrosa/binance-nats-bridge/internal/ingress"
)

// Pinger sends a protocol-level ping every interval on the current
// connection until ctx is cancelled or a ping fails.
type Pinger struct {
	interval time.Duration
	timeout  time.Duration
	logger   zerolog.Logger

	lastPingAt atomic.Int64 // unix nanos
}

// New builds a Pinger with the given ping interval and write deadline.
func New(interval, timeout time.Duration, logger zerolog.Logger) *Pinger {
	return &Pinger{interval: interval, timeout: timeout, logger: logger}
}

// LastPingAt returns the instant of the most recent successful ping, or
// the zero time if none has been sent yet.
func (p *Pinger) LastPingAt() time.Time {
	nanos := p.lastPingAt.Load()
	if nanos == 0 {
		return time.Time{}
	}
	return time.Unix(0, nanos)
}

// Run blocks, pinging conn every interval, until ctx is cancelled or a
// ping write fails. On error it returns so the Reconnect Supervisor can
// handle re-establishment.
func (p *Pinger) Run(ctx context.Context, conn ingress.Conn) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			deadline := time.Now().Add(p.timeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				p.logger.Error().Err(err).Msg("ping failed")
				return err
			}
			p.lastPingAt.Store(time.Now().UnixNano())
		}
	}
}
