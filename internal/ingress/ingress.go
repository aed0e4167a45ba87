// Package ingress runs the single WebSocket reader task: it owns the
// outbound connection, sends the SUBSCRIBE control frame once, and
// decodes/enqueues every inbound text frame.
//
// Grounded on go-server/pkg/websocket/client.go's readPump, adapted
// from a server-side Upgrader connection to a client-side Dialer
// connection.
package ingress

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/petrosa/binance-nats-bridge/internal/metrics"
	"github.com/petrosa/binance-nats-bridge/internal/queue"
)

// Conn is the subset of *websocket.Conn the core depends on, so tests
// can substitute a fake rather than dialing a real socket.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

// Dial opens an outbound WebSocket connection to url and sends the
// SUBSCRIBE control frame for streams immediately after connecting.
func Dial(ctx context.Context, url string, streams []string, maxMessageSize int64) (Conn, error) {
	dialer := websocket.DefaultDialer
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial websocket: %w", err)
	}
	conn.SetReadLimit(maxMessageSize)

	sub := struct {
		Method string   `json:"method"`
		Params []string `json:"params"`
		ID     int64    `json:"id"`
	}{
		Method: "SUBSCRIBE",
		Params: streams,
		ID:     time.Now().UnixMilli(),
	}
	payload, err := json.Marshal(sub)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to build subscribe message: %w", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to send subscribe message: %w", err)
	}

	return conn, nil
}

// Ingress reads frames from the active connection, decodes just enough
// to detect malformed JSON, and enqueues the raw frame bytes for the
// Processor Pool to classify and re-decode; the defensive re-check
// that the frame is a structured object is deliberately processor-side,
// not duplicated here.
type Ingress struct {
	queue    *queue.Queue
	counters *metrics.Counters
	logger   zerolog.Logger

	lastMessageAt atomic.Int64 // unix nanos
}

// New builds an Ingress bound to the hand-off queue and shared
// counters.
func New(q *queue.Queue, counters *metrics.Counters, logger zerolog.Logger) *Ingress {
	return &Ingress{queue: q, counters: counters, logger: logger}
}

// LastMessageAt returns the instant the most recent frame was read, or
// the zero time if none has arrived yet.
func (in *Ingress) LastMessageAt() time.Time {
	nanos := in.lastMessageAt.Load()
	if nanos == 0 {
		return time.Time{}
	}
	return time.Unix(0, nanos)
}

// Run reads frames from conn until it closes, ctx is cancelled, or an
// unrecoverable read error occurs. It never calls the broker and never
// retries a single frame.
func (in *Ingress) Run(ctx context.Context, conn Conn) error {
	// dropLog throttles the queue-full warning to at most one line per
	// second; every drop is still counted.
	dropLog := rate.NewLimiter(rate.Every(time.Second), 1)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		in.lastMessageAt.Store(time.Now().UnixNano())

		if !json.Valid(message) {
			in.logger.Warn().Msg("failed to decode websocket frame: invalid JSON")
			continue
		}

		if !in.queue.TryEnqueue(message) {
			in.counters.IncDropped()
			if dropLog.Allow() {
				in.logger.Warn().Int64("dropped_total", in.counters.Dropped()).Msg("hand-off queue full, dropping frame")
			}
		}
	}
}
