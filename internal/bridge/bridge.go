// Package bridge exposes the single public entry point for embedding
// this streaming core: a facade with Start/Stop/Metrics.
package bridge

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/petrosa/binance-nats-bridge/internal/classify"
	"github.com/petrosa/binance-nats-bridge/internal/config"
	"github.com/petrosa/binance-nats-bridge/internal/metrics"
	"github.com/petrosa/binance-nats-bridge/internal/queue"
	"github.com/petrosa/binance-nats-bridge/internal/supervisor"
)

// Metrics is the read-only snapshot returned by Bridge.Metrics. All
// fields are copied from atomics or short lock sections, so no caller
// ever observes a torn update.
type Metrics struct {
	IsConnected             bool
	IsRunning               bool
	ConnectionStatus        string
	ReconnectAttempts       int64
	ProcessedMessages       int64
	DroppedMessages         int64
	StreamCount             int
	Streams                 []string
	UptimeSeconds           float64
	QueueSize               int
	QueueCapacity           int
	LastMessageTime         time.Time
	LastPing                time.Time
	WebSocketState          string
	BrokerState             string
	MessagesPerSecond       float64
	QueueUtilizationPercent float64
	TimeSinceLastMessage    *float64
	HeartbeatEnabled        bool
	HeartbeatInterval       time.Duration
}

// Bridge is the top-level facade. Construct with New, then Start/Stop
// as many times as the embedding process needs; Metrics may be called
// concurrently with either.
type Bridge struct {
	cfg    *config.Config
	logger zerolog.Logger

	counters   *metrics.Counters
	collector  *metrics.Collector
	supervisor *supervisor.Supervisor

	running atomic.Bool
	startedAt atomic.Int64 // unix nanos, 0 when never started

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a Bridge bound to cfg. registerer may be nil to skip
// Prometheus registration (e.g. in tests).
func New(cfg *config.Config, registerer prometheus.Registerer, logger zerolog.Logger) *Bridge {
	counters := &metrics.Counters{}
	collector := metrics.NewCollector(counters)
	if registerer != nil {
		collector.Register(registerer)
	}

	classifier := classify.New(cfg.StreamList())
	q := queue.New(cfg.QueueCapacity)
	sup := supervisor.New(cfg, q, counters, classifier, collector, logger)

	return &Bridge{
		cfg:        cfg,
		logger:     logger,
		counters:   counters,
		collector:  collector,
		supervisor: sup,
	}
}

// Start launches the supervisor in the background. It is idempotent:
// a second call while already running is a no-op, short-circuiting
// when the run flag is already true.
func (b *Bridge) Start(ctx context.Context) {
	if !b.running.CompareAndSwap(false, true) {
		return
	}

	b.startedAt.Store(time.Now().UnixNano())

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	b.mu.Lock()
	b.cancel = cancel
	b.done = done
	b.mu.Unlock()

	go func() {
		defer close(done)
		defer b.running.Store(false)
		if err := b.supervisor.Run(runCtx); err != nil {
			b.logger.Error().Err(err).Msg("bridge terminated")
		}
	}()
}

// Stop cancels the supervisor and waits for it to finish, and is safe
// to call multiple times or before Start ever succeeded.
func (b *Bridge) Stop() {
	b.mu.Lock()
	cancel := b.cancel
	done := b.done
	b.mu.Unlock()

	b.supervisor.Stop()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Metrics returns a consistent read-only snapshot of the bridge's
// current state.
func (b *Bridge) Metrics() Metrics {
	running := b.running.Load()
	connected := b.supervisor.Connected()

	status := "disconnected"
	if connected {
		status = "connected"
	}

	processed := b.counters.Processed()
	dropped := b.counters.Dropped()

	var uptime float64
	if startedAt := b.startedAt.Load(); startedAt != 0 {
		uptime = time.Since(time.Unix(0, startedAt)).Seconds()
	}

	var messagesPerSecond float64
	if uptime > 0 {
		messagesPerSecond = float64(processed) / uptime
	}

	queueSize := b.supervisor.QueueDepth()
	queueCap := b.supervisor.QueueCapacity()
	var utilization float64
	if queueCap > 0 {
		utilization = float64(queueSize) / float64(queueCap) * 100
	}

	lastMessage := b.supervisor.LastMessageAt()
	var sinceLastMessage *float64
	if !lastMessage.IsZero() {
		v := time.Since(lastMessage).Seconds()
		sinceLastMessage = &v
	}

	streams := b.cfg.StreamList()
	streamsCopy := make([]string, len(streams))
	copy(streamsCopy, streams)

	return Metrics{
		IsConnected:             connected,
		IsRunning:               running,
		ConnectionStatus:        status,
		ReconnectAttempts:       b.counters.ReconnectAttempts(),
		ProcessedMessages:       processed,
		DroppedMessages:         dropped,
		StreamCount:             len(streamsCopy),
		Streams:                 streamsCopy,
		UptimeSeconds:           uptime,
		QueueSize:               queueSize,
		QueueCapacity:           queueCap,
		LastMessageTime:         lastMessage,
		LastPing:                b.supervisor.LastPingAt(),
		WebSocketState:          b.supervisor.WebSocketState(),
		BrokerState:             b.supervisor.BrokerState(),
		MessagesPerSecond:       messagesPerSecond,
		QueueUtilizationPercent: utilization,
		TimeSinceLastMessage:    sinceLastMessage,
		HeartbeatEnabled:        b.cfg.HeartbeatEnabled,
		HeartbeatInterval:       b.cfg.HeartbeatInterval,
	}
}
