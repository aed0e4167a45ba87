// Package heartbeat runs the periodic structured-log reporter that
// summarizes bridge health: connection state, throughput, queue
// pressure, and process resource usage.
//
// Grounded on ws/metrics.go's MetricsCollector ticker loop, with
// gopsutil process sampling folded in the way old_ws/audit_logger.go
// folds contextual fields into a single structured record.
package heartbeat

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/petrosa/binance-nats-bridge/internal/breaker"
	"github.com/petrosa/binance-nats-bridge/internal/metrics"
	"github.com/petrosa/binance-nats-bridge/internal/queue"
)

// ConnectionState reports the current WebSocket and broker connection
// states the report needs; implemented by the supervisor.
type ConnectionState interface {
	WebSocketState() string
	BrokerState() string
	ReconnectAttempts() int64
	LastMessageAt() time.Time
	LastPingAt() time.Time
}

// Reporter logs a single heartbeat record every interval.
type Reporter struct {
	interval time.Duration
	queue    *queue.Queue
	counters *metrics.Counters
	wsBreaker     *breaker.Breaker
	brokerBreaker *breaker.Breaker
	state    ConnectionState
	collector *metrics.Collector
	logger   zerolog.Logger

	startedAt time.Time
	proc      *process.Process

	lastProcessed int64
	lastDropped   int64
	lastSampleAt  time.Time
}

// New builds a Reporter. startedAt marks the bridge's overall start
// time, used to compute uptime. collector may be nil, in which case
// the Prometheus gauges are simply not refreshed.
func New(interval time.Duration, q *queue.Queue, counters *metrics.Counters, wsBreaker, brokerBreaker *breaker.Breaker, state ConnectionState, collector *metrics.Collector, startedAt time.Time, logger zerolog.Logger) *Reporter {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		proc = nil
	}
	return &Reporter{
		interval:      interval,
		queue:         q,
		counters:      counters,
		wsBreaker:     wsBreaker,
		brokerBreaker: brokerBreaker,
		state:         state,
		collector:     collector,
		logger:        logger,
		startedAt:     startedAt,
		proc:          proc,
		lastSampleAt:  startedAt,
	}
}

// Run ticks every interval, logging one heartbeat record, until ctx is
// cancelled. It re-checks ctx immediately after waking from sleep so a
// cancellation during a slow tick still stops promptly.
func (r *Reporter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			select {
			case <-ctx.Done():
				return
			default:
			}
			r.report()
		}
	}
}

func (r *Reporter) report() {
	now := time.Now()
	processed := r.counters.Processed()
	dropped := r.counters.Dropped()

	elapsed := now.Sub(r.lastSampleAt).Seconds()
	var processedRate, droppedRate float64
	if elapsed > 0 {
		processedRate = float64(processed-r.lastProcessed) / elapsed
		droppedRate = float64(dropped-r.lastDropped) / elapsed
	}
	r.lastProcessed = processed
	r.lastDropped = dropped
	r.lastSampleAt = now

	if r.collector != nil {
		r.collector.SetQueueGauges(r.queue.Len(), r.queue.Cap())
		r.collector.SetBreakerState(r.wsBreaker.Name(), int(r.wsBreaker.State().State))
		r.collector.SetBreakerState(r.brokerBreaker.Name(), int(r.brokerBreaker.State().State))
	}

	evt := r.logger.Info().
		Str("websocket_state", r.state.WebSocketState()).
		Str("broker_state", r.state.BrokerState()).
		Str("websocket_breaker", r.wsBreaker.State().State.String()).
		Str("broker_breaker", r.brokerBreaker.State().State.String()).
		Int64("processed_total", processed).
		Int64("dropped_total", dropped).
		Float64("processed_per_second", processedRate).
		Float64("dropped_per_second", droppedRate).
		Int("queue_depth", r.queue.Len()).
		Int("queue_capacity", r.queue.Cap()).
		Float64("queue_utilization_percent", r.queue.UtilizationPercent()).
		Int64("reconnect_attempts", r.state.ReconnectAttempts()).
		Float64("uptime_seconds", now.Sub(r.startedAt).Seconds())

	if lastMsg := r.state.LastMessageAt(); !lastMsg.IsZero() {
		evt = evt.Float64("seconds_since_last_message", now.Sub(lastMsg).Seconds())
	}
	if lastPing := r.state.LastPingAt(); !lastPing.IsZero() {
		evt = evt.Float64("seconds_since_last_ping", now.Sub(lastPing).Seconds())
	}

	if r.proc != nil {
		if cpuPct, err := r.proc.CPUPercent(); err == nil {
			evt = evt.Float64("process_cpu_percent", cpuPct)
		}
		if memInfo, err := r.proc.MemoryInfo(); err == nil && memInfo != nil {
			evt = evt.Uint64("process_rss_bytes", memInfo.RSS)
		}
	}

	evt.Msg("heartbeat")
}
