// Package supervisor owns the outer connect/reconnect/backoff
// lifecycle for the bridge: it dials the broker and the upstream
// WebSocket, launches the per-connection tasks, and re-dials the
// WebSocket with exponential backoff when the connection drops.
//
// Grounded on original_source/socket_client/core/client.py's
// _handle_disconnection backoff loop, ported from a single asyncio
// task to a goroutine driven by a state field and a disconnect
// channel.
package supervisor

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/petrosa/binance-nats-bridge/internal/breaker"
	"github.com/petrosa/binance-nats-bridge/internal/broker"
	"github.com/petrosa/binance-nats-bridge/internal/classify"
	"github.com/petrosa/binance-nats-bridge/internal/config"
	"github.com/petrosa/binance-nats-bridge/internal/heartbeat"
	"github.com/petrosa/binance-nats-bridge/internal/ingress"
	"github.com/petrosa/binance-nats-bridge/internal/metrics"
	"github.com/petrosa/binance-nats-bridge/internal/pinger"
	"github.com/petrosa/binance-nats-bridge/internal/processor"
	"github.com/petrosa/binance-nats-bridge/internal/queue"
)

// State is one of the overall client's lifecycle states.
type State int

const (
	Initial State = iota
	Connecting
	Running
	Reconnecting
	Terminated
)

func (s State) String() string {
	switch s {
	case Initial:
		return "initial"
	case Connecting:
		return "connecting"
	case Running:
		return "running"
	case Reconnecting:
		return "reconnecting"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Supervisor drives the connect/reconnect lifecycle. One Supervisor
// belongs to exactly one bridge instance; it is not meant to be
// shared.
type Supervisor struct {
	cfg        *config.Config
	logger     zerolog.Logger
	queue      *queue.Queue
	counters   *metrics.Counters
	pool       *processor.Pool
	collector  *metrics.Collector

	wsBreaker     *breaker.Breaker
	brokerBreaker *breaker.Breaker

	mu         sync.Mutex
	state      State
	conn       ingress.Conn
	brokerConn *broker.Client
	cancelConn context.CancelFunc
	wg         sync.WaitGroup

	ingress *ingress.Ingress
	pinger  *pinger.Pinger

	disconnected chan struct{}
}

// New wires a Supervisor from already-constructed collaborators. The
// caller (internal/bridge) owns their lifetimes.
func New(cfg *config.Config, q *queue.Queue, counters *metrics.Counters, classifier *classify.Classifier, collector *metrics.Collector, logger zerolog.Logger) *Supervisor {
	wsBreaker := breaker.New("websocket", cfg.WSBreakerFailureThreshold, cfg.WSBreakerRecoveryTimeout, nil)
	brokerBreaker := breaker.New("broker", cfg.BrokerBreakerFailureThreshold, cfg.BrokerBreakerRecoveryTimeout, nil)

	pool := processor.New(q, classifier, counters, brokerBreaker, cfg.BrokerSubject, cfg.BatchTimeout, cfg.StatsLogInterval, logger)

	return &Supervisor{
		cfg:           cfg,
		logger:        logger,
		queue:         q,
		counters:      counters,
		pool:          pool,
		collector:     collector,
		wsBreaker:     wsBreaker,
		brokerBreaker: brokerBreaker,
		ingress:       ingress.New(q, counters, logger),
		pinger:        pinger.New(cfg.PingInterval, cfg.PingTimeout, logger),
		state:         Initial,
		disconnected:  make(chan struct{}, 1),
	}
}

// WebSocketState, BrokerState, ReconnectAttempts, LastMessageAt, and
// LastPingAt satisfy heartbeat.ConnectionState and internal/bridge's
// facade snapshot.
func (s *Supervisor) WebSocketState() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil && s.state == Running {
		return "connected"
	}
	return "disconnected"
}

func (s *Supervisor) BrokerState() string {
	s.mu.Lock()
	bc := s.brokerConn
	s.mu.Unlock()
	if bc == nil {
		return "disconnected"
	}
	return bc.State()
}

func (s *Supervisor) ReconnectAttempts() int64 { return s.counters.ReconnectAttempts() }
func (s *Supervisor) LastMessageAt() time.Time { return s.ingress.LastMessageAt() }
func (s *Supervisor) LastPingAt() time.Time    { return s.pinger.LastPingAt() }

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Supervisor) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Connected reports whether the WebSocket is currently up, for the
// facade's is_connected field.
func (s *Supervisor) Connected() bool {
	return s.WebSocketState() == "connected"
}

// QueueDepth and QueueCapacity expose the shared queue for the facade.
func (s *Supervisor) QueueDepth() int    { return s.queue.Len() }
func (s *Supervisor) QueueCapacity() int { return s.queue.Cap() }

// Run performs the full startup sequence and then blocks, supervising
// reconnects, until ctx is cancelled or reconnect attempts are
// exhausted. The Processor Pool and Heartbeat Reporter run under
// runCtx, a child of ctx this Supervisor cancels itself on exhaustion,
// so they drain and exit even when the caller's ctx is still live.
func (s *Supervisor) Run(ctx context.Context) error {
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	s.setState(Connecting)

	bc, err := s.dialBroker()
	if err != nil {
		s.setState(Terminated)
		return fmt.Errorf("broker dial failed at startup: %w", err)
	}
	s.mu.Lock()
	s.brokerConn = bc
	s.mu.Unlock()
	s.pool.SetBroker(bc, bc)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.pool.Run(runCtx, s.cfg.ProcessorCount)
	}()

	if s.cfg.HeartbeatEnabled {
		reporter := heartbeat.New(s.cfg.HeartbeatInterval, s.queue, s.counters, s.wsBreaker, s.brokerBreaker, s, s.collector, time.Now(), s.logger)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			reporter.Run(runCtx)
		}()
	}

	conn, err := s.dialWebSocket(ctx)
	if err != nil {
		s.setState(Terminated)
		s.closeBroker()
		return fmt.Errorf("websocket dial failed at startup: %w", err)
	}
	s.launchConnection(ctx, conn)
	s.setState(Running)

	s.superviseReconnects(ctx, cancelRun)

	s.wg.Wait()
	s.closeBroker()
	return nil
}

// dialBroker connects to the broker under the broker breaker.
func (s *Supervisor) dialBroker() (*broker.Client, error) {
	var bc *broker.Client
	err := s.brokerBreaker.Call(func() error {
		var dialErr error
		bc, dialErr = broker.Dial(broker.Config{
			URL:           s.cfg.BrokerURL,
			ClientName:    s.cfg.BrokerClientName,
			ReconnectWait: s.cfg.BrokerReconnectWait,
			MaxReconnects: s.cfg.BrokerMaxReconnects,
		}, s.logger)
		return dialErr
	})
	if err != nil {
		return nil, err
	}
	return bc, nil
}

// dialWebSocket connects to the upstream WebSocket under the
// WebSocket breaker.
func (s *Supervisor) dialWebSocket(ctx context.Context) (ingress.Conn, error) {
	var conn ingress.Conn
	err := s.wsBreaker.Call(func() error {
		var dialErr error
		conn, dialErr = ingress.Dial(ctx, s.cfg.WSURL, s.cfg.StreamList(), int64(s.cfg.MaxMessageSize))
		return dialErr
	})
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// launchConnection starts Ingress and the Ping Keeper on conn, and
// arms a watcher that signals s.disconnected when either exits.
func (s *Supervisor) launchConnection(ctx context.Context, conn ingress.Conn) {
	connCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	s.conn = conn
	s.cancelConn = cancel
	s.mu.Unlock()

	var once sync.Once
	signalDisconnect := func() {
		once.Do(func() {
			select {
			case s.disconnected <- struct{}{}:
			default:
			}
		})
	}

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		defer signalDisconnect()
		if err := s.ingress.Run(connCtx, conn); err != nil {
			s.logger.Warn().Err(err).Msg("ingress disconnected")
		}
	}()
	go func() {
		defer s.wg.Done()
		defer signalDisconnect()
		if err := s.pinger.Run(connCtx, conn); err != nil {
			s.logger.Warn().Err(err).Msg("ping keeper disconnected")
		}
	}()
}

// superviseReconnects implements the backoff loop: it wakes
// on a disconnect signal, sleeps with exponential backoff, and re-dials
// until either a reconnect succeeds or attempts are exhausted. On
// exhaustion it calls cancelRun so the Processor Pool and Heartbeat
// Reporter observe the run flag going false and drain out.
func (s *Supervisor) superviseReconnects(ctx context.Context, cancelRun context.CancelFunc) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.disconnected:
		}

		s.mu.Lock()
		if s.cancelConn != nil {
			s.cancelConn()
		}
		s.conn = nil
		s.mu.Unlock()

		if ctx.Err() != nil {
			return
		}

		s.setState(Reconnecting)

		if !s.reconnectLoop(ctx) {
			s.logger.Error().Msg("reconnect attempts exhausted, terminating")
			s.setState(Terminated)
			cancelRun()
			return
		}

		s.setState(Running)
	}
}

// reconnectLoop sleeps with exponential backoff and re-dials the
// WebSocket, returning true on success and false once
// max_reconnect_attempts is exhausted.
func (s *Supervisor) reconnectLoop(ctx context.Context) bool {
	for {
		attempts := s.counters.ReconnectAttempts()
		if attempts >= int64(s.cfg.ReconnectMaxAttempts) {
			return false
		}

		delay := backoffDelay(s.cfg.ReconnectInitialDelay, s.cfg.ReconnectBackoffFactor, attempts)
		s.logger.Info().Dur("delay", delay).Int64("attempt", attempts+1).Msg("reconnecting after backoff")

		select {
		case <-ctx.Done():
			return false
		case <-time.After(delay):
		}

		conn, err := s.dialWebSocket(ctx)
		if err != nil {
			s.counters.IncReconnectAttempts()
			s.logger.Warn().Err(err).Msg("reconnect attempt failed")
			continue
		}

		s.counters.ResetReconnectAttempts()
		s.launchConnection(ctx, conn)
		return true
	}
}

// backoffDelay computes reconnect_delay * multiplier^attempts.
func backoffDelay(base time.Duration, multiplier float64, attempts int64) time.Duration {
	factor := math.Pow(multiplier, float64(attempts))
	return time.Duration(float64(base) * factor)
}

func (s *Supervisor) closeBroker() {
	s.mu.Lock()
	bc := s.brokerConn
	s.mu.Unlock()
	if bc != nil {
		bc.Close()
	}
}

// Stop cancels the active connection's tasks (Ingress, Ping Keeper) and
// closes the WebSocket handle; it is safe to call multiple times or
// before Run has reached a connected state.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	conn := s.conn
	cancel := s.cancelConn
	s.conn = nil
	s.cancelConn = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close()
	}
}

