// Package metrics holds the process-wide counters and the Prometheus
// collector that exposes them. Registration is the core's job;
// scraping them over HTTP belongs to the out-of-scope health endpoint.
package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Counters are process-wide counters incremented from many goroutines
// concurrently. The processed and dropped totals are monotonic;
// reconnectAttempts counts consecutive failed reconnects and is reset
// to 0 after a successful re-dial. All mutation goes through
// sync/atomic so concurrent increments from the Processor Pool are
// race-free.
type Counters struct {
	processedTotal     int64
	droppedTotal       int64
	reconnectAttempts  int64
}

func (c *Counters) IncProcessed()         { atomic.AddInt64(&c.processedTotal, 1) }
func (c *Counters) IncDropped()           { atomic.AddInt64(&c.droppedTotal, 1) }
func (c *Counters) IncReconnectAttempts() { atomic.AddInt64(&c.reconnectAttempts, 1) }
func (c *Counters) ResetReconnectAttempts() {
	atomic.StoreInt64(&c.reconnectAttempts, 0)
}

func (c *Counters) Processed() int64         { return atomic.LoadInt64(&c.processedTotal) }
func (c *Counters) Dropped() int64           { return atomic.LoadInt64(&c.droppedTotal) }
func (c *Counters) ReconnectAttempts() int64 { return atomic.LoadInt64(&c.reconnectAttempts) }

// Collector registers the core's counters and breaker/queue gauges
// with a Prometheus registerer. Grounded on ws/metrics.go's var block
// of prometheus.New* plus init()-time MustRegister, trimmed to what
// this core actually names.
type Collector struct {
	counters *Counters

	processedTotal    prometheus.CounterFunc
	droppedTotal      prometheus.CounterFunc
	reconnectAttempts prometheus.CounterFunc
	queueDepth        prometheus.Gauge
	queueCapacity     prometheus.Gauge
	breakerState      *prometheus.GaugeVec
}

// NewCollector builds a Collector bound to counters. Call Register to
// attach it to a prometheus.Registerer.
func NewCollector(counters *Counters) *Collector {
	c := &Collector{counters: counters}

	c.processedTotal = prometheus.NewCounterFunc(prometheus.CounterOpts{
		Name: "bridge_processed_messages_total",
		Help: "Total frames successfully published to the broker subject.",
	}, func() float64 { return float64(counters.Processed()) })

	c.droppedTotal = prometheus.NewCounterFunc(prometheus.CounterOpts{
		Name: "bridge_dropped_messages_total",
		Help: "Total frames dropped (queue-full or publish failure).",
	}, func() float64 { return float64(counters.Dropped()) })

	c.reconnectAttempts = prometheus.NewCounterFunc(prometheus.CounterOpts{
		Name: "bridge_reconnect_attempts_total",
		Help: "Consecutive failed WebSocket reconnection attempts since the last successful connection.",
	}, func() float64 { return float64(counters.ReconnectAttempts()) })

	c.queueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bridge_queue_depth",
		Help: "Current number of frames waiting in the hand-off queue.",
	})

	c.queueCapacity = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bridge_queue_capacity",
		Help: "Configured capacity of the hand-off queue.",
	})

	c.breakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "bridge_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half_open) by breaker name.",
	}, []string{"breaker"})

	return c
}

// Register attaches every collector to reg.
func (c *Collector) Register(reg prometheus.Registerer) {
	reg.MustRegister(c.processedTotal, c.droppedTotal, c.reconnectAttempts, c.queueDepth, c.queueCapacity, c.breakerState)
}

// SetQueueGauges updates the queue depth/capacity gauges; called by the
// Heartbeat Reporter on each tick.
func (c *Collector) SetQueueGauges(depth, capacity int) {
	c.queueDepth.Set(float64(depth))
	c.queueCapacity.Set(float64(capacity))
}

// SetBreakerState records a breaker's numeric state for a given name.
func (c *Collector) SetBreakerState(name string, state int) {
	c.breakerState.WithLabelValues(name).Set(float64(state))
}
