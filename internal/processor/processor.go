// Package processor runs the pool of parallel workers that drain the
// hand-off queue, classify and build envelopes, and publish them to the
// broker.
//
// Grounded on ws/worker_pool.go (fixed goroutine pool, panic recovery,
// context-driven graceful shutdown) and ws/kafka/consumer.go's
// per-record decode/process/count shape, with the data direction
// reversed: these workers pull from the local bounded queue instead of
// from a remote broker.
package processor

import (
	"context"
	"encoding/json"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"golang.org/x/time/rate"

	"github.com/petrosa/binance-nats-bridge/internal/breaker"
	"github.com/petrosa/binance-nats-bridge/internal/classify"
	"github.com/petrosa/binance-nats-bridge/internal/envelope"
	"github.com/petrosa/binance-nats-bridge/internal/metrics"
	"github.com/petrosa/binance-nats-bridge/internal/queue"
)

// Publisher is the narrow broker interface a worker needs, letting
// tests substitute a fake instead of a real NATS connection.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Handle is the current broker connection handle, read by every
// worker. It may be nil/closed between reconnects; workers must treat
// that as a drop, not an error.
type Handle interface {
	Connected() bool
}

// tracer names every span this package starts. Each frame gets its own
// span purely to mint the trace/span IDs carried in the envelope's
// _otel_trace_context; nothing exports these spans anywhere.
var tracer = otel.Tracer("github.com/petrosa/binance-nats-bridge/internal/processor")

// Pool runs numWorkers identical goroutines draining queue q.
type Pool struct {
	queue      *queue.Queue
	classifier *classify.Classifier
	counters   *metrics.Counters
	breaker    *breaker.Breaker
	subject    string
	batchTimeout time.Duration
	logger     zerolog.Logger

	statsLimiter *rate.Limiter

	mu        sync.Mutex
	publisher Publisher
	handle    Handle
}

// New builds a processor Pool. SetBroker must be called (even with a
// nil publisher) before Run, and may be called again on every
// reconnect to swap in the new broker handle.
func New(q *queue.Queue, classifier *classify.Classifier, counters *metrics.Counters, brk *breaker.Breaker, subject string, batchTimeout time.Duration, statsLogInterval time.Duration, logger zerolog.Logger) *Pool {
	return &Pool{
		queue:        q,
		classifier:   classifier,
		counters:     counters,
		breaker:      brk,
		subject:      subject,
		batchTimeout: batchTimeout,
		logger:       logger,
		statsLimiter: rate.NewLimiter(rate.Every(statsLogInterval), 1),
	}
}

// SetBroker atomically swaps in the broker handle workers publish
// through. pub/handle may be the same concrete value or nil.
func (p *Pool) SetBroker(pub Publisher, handle Handle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.publisher = pub
	p.handle = handle
}

func (p *Pool) broker() (Publisher, Handle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.publisher, p.handle
}

// Run starts numWorkers goroutines and blocks until ctx is cancelled
// and every worker has exited its current dequeue wait.
func (p *Pool) Run(ctx context.Context, numWorkers int) {
	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.worker(ctx)
		}()
	}
	wg.Wait()
}

// worker repeatedly dequeues with a short timeout so it can observe
// shutdown cooperatively.
func (p *Pool) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		frame, ok := p.queue.Dequeue(ctx, p.batchTimeout)
		if !ok {
			continue
		}

		p.process(ctx, frame)
	}
}

// process classifies and publishes a single frame, recovering from any
// panic so one bad frame never kills a worker.
//
// Open Question 2 (DESIGN.md): a publish that fails after Stop() has
// already been requested still counts as a drop here, because this
// method never checks ctx itself -- cancellation is only observed at
// the *next* dequeue, never mid-publish. That is a deliberate,
// deterministic choice, not an oversight.
func (p *Pool) process(ctx context.Context, frame queue.Frame) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("processor worker panic recovered")
			p.counters.IncDropped()
		}
	}()

	var decoded classify.Frame
	if err := json.Unmarshal(frame, &decoded); err != nil {
		p.logger.Warn().Err(err).Msg("discarding frame: not a structured object")
		return
	}

	stream := p.classifier.Classify(decoded)
	if stream == "" {
		p.logger.Warn().Msg("discarding frame: unclassifiable")
		return
	}

	_, span := tracer.Start(ctx, "processor.process_frame")
	defer span.End()

	env := envelope.New(stream, json.RawMessage(frame), span.SpanContext())
	payload, err := env.ToJSON()
	if err != nil {
		p.logger.Error().Err(err).Msg("failed to serialize envelope")
		p.counters.IncDropped()
		return
	}

	pub, handle := p.broker()
	if pub == nil || handle == nil || !handle.Connected() {
		p.counters.IncDropped()
		return
	}

	err = p.breaker.Call(func() error {
		return pub.Publish(p.subject, payload)
	})
	if err != nil {
		p.counters.IncDropped()
		return
	}

	p.counters.IncProcessed()
	p.logStatsIfDue()
}

// logStatsIfDue emits at most one "processing stats" line per
// statsLogInterval across the whole pool, using a shared rate limiter
// so throughput volume never increases log volume.
func (p *Pool) logStatsIfDue() {
	if !p.statsLimiter.Allow() {
		return
	}
	p.logger.Info().
		Int64("processed_total", p.counters.Processed()).
		Int64("dropped_total", p.counters.Dropped()).
		Msg("processing stats")
}
