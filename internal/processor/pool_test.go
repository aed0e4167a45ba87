package processor

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/petrosa/binance-nats-bridge/internal/breaker"
	"github.com/petrosa/binance-nats-bridge/internal/classify"
	"github.com/petrosa/binance-nats-bridge/internal/metrics"
	"github.com/petrosa/binance-nats-bridge/internal/queue"
	"github.com/petrosa/binance-nats-bridge/internal/tracing"
)

// TestMain installs a real TracerProvider before any test runs, the same
// way cmd/bridge/main.go does at process startup, so process's spans
// carry genuine trace/span IDs instead of the default no-op ones.
func TestMain(m *testing.M) {
	tracing.Install(tracing.NewProvider())
	os.Exit(m.Run())
}

type fakeBroker struct {
	mu        sync.Mutex
	published []publishedMessage
	connected bool
}

type publishedMessage struct {
	subject string
	data    []byte
}

func (f *fakeBroker) Publish(subject string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, publishedMessage{subject: subject, data: data})
	return nil
}

func (f *fakeBroker) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeBroker) snapshot() []publishedMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]publishedMessage, len(f.published))
	copy(out, f.published)
	return out
}

func newTestPool(q *queue.Queue, classifier *classify.Classifier, counters *metrics.Counters, brk *breaker.Breaker) *Pool {
	return New(q, classifier, counters, brk, "binance.websocket.data", 50*time.Millisecond, time.Minute, zerolog.Nop())
}

// TestProcessHappyPathSingleTrade checks that a single trade frame
// yields exactly one publish with the expected envelope fields.
func TestProcessHappyPathSingleTrade(t *testing.T) {
	classifier := classify.New([]string{"btcusdt@trade"})
	counters := &metrics.Counters{}
	brk := breaker.New("broker", 3, time.Minute, nil)
	q := queue.New(4)
	pool := newTestPool(q, classifier, counters, brk)

	broker := &fakeBroker{connected: true}
	pool.SetBroker(broker, broker)

	frame := []byte(`{"e":"trade","E":123456789,"s":"BTCUSDT","t":12345,"p":"0.001","q":"100"}`)
	pool.process(context.Background(), frame)

	published := broker.snapshot()
	if len(published) != 1 {
		t.Fatalf("got %d publishes, want 1", len(published))
	}
	if published[0].subject != "binance.websocket.data" {
		t.Errorf("subject = %q, want binance.websocket.data", published[0].subject)
	}

	var env map[string]any
	if err := json.Unmarshal(published[0].data, &env); err != nil {
		t.Fatalf("published payload did not decode: %v", err)
	}
	if env["stream"] != "btcusdt@trade" {
		t.Errorf("stream = %v, want btcusdt@trade", env["stream"])
	}
	if env["source"] != "binance-websocket" {
		t.Errorf("source = %v, want binance-websocket", env["source"])
	}
	if env["version"] != "1.0" {
		t.Errorf("version = %v, want 1.0", env["version"])
	}
	data, ok := env["data"].(map[string]any)
	if !ok || data["s"] != "BTCUSDT" {
		t.Errorf("data.s = %v, want BTCUSDT", env["data"])
	}

	traceCtx, ok := env["_otel_trace_context"].(map[string]any)
	if !ok {
		t.Fatal("_otel_trace_context missing from published envelope")
	}
	traceParent, _ := traceCtx["traceparent"].(string)
	if len(traceParent) == 0 {
		t.Error("traceparent should not be empty")
	}
	if traceParent == "00-00000000000000000000000000000000-0000000000000000-00" {
		t.Error("traceparent should carry a real trace/span ID, not the zero span")
	}

	if counters.Processed() != 1 {
		t.Errorf("processed_total = %d, want 1", counters.Processed())
	}
	if counters.Dropped() != 0 {
		t.Errorf("dropped_total = %d, want 0", counters.Dropped())
	}
}

// TestProcessUnclassifiableFrameIsDiscarded checks that a frame with
// no recognizable fields is discarded without a publish or counter
// change.
func TestProcessUnclassifiableFrameIsDiscarded(t *testing.T) {
	classifier := classify.New(nil)
	counters := &metrics.Counters{}
	brk := breaker.New("broker", 3, time.Minute, nil)
	q := queue.New(4)
	pool := newTestPool(q, classifier, counters, brk)

	broker := &fakeBroker{connected: true}
	pool.SetBroker(broker, broker)

	pool.process(context.Background(), []byte(`{"foo":"bar"}`))

	if len(broker.snapshot()) != 0 {
		t.Fatalf("got %d publishes, want 0", len(broker.snapshot()))
	}
	if counters.Processed() != 0 {
		t.Errorf("processed_total = %d, want 0", counters.Processed())
	}
	if counters.Dropped() != 0 {
		t.Errorf("dropped_total = %d, want 0 (unclassifiable is a discard, not a drop)", counters.Dropped())
	}
}

func TestProcessWithoutBrokerHandleCountsAsDrop(t *testing.T) {
	classifier := classify.New([]string{"btcusdt@trade"})
	counters := &metrics.Counters{}
	brk := breaker.New("broker", 3, time.Minute, nil)
	q := queue.New(4)
	pool := newTestPool(q, classifier, counters, brk)

	pool.process(context.Background(), []byte(`{"e":"trade","E":1,"s":"BTCUSDT"}`))

	if counters.Dropped() != 1 {
		t.Errorf("dropped_total = %d, want 1", counters.Dropped())
	}
	if counters.Processed() != 0 {
		t.Errorf("processed_total = %d, want 0", counters.Processed())
	}
}

func TestRunDrainsQueueUntilContextCancelled(t *testing.T) {
	classifier := classify.New([]string{"btcusdt@trade"})
	counters := &metrics.Counters{}
	brk := breaker.New("broker", 3, time.Minute, nil)
	q := queue.New(4)
	pool := newTestPool(q, classifier, counters, brk)

	broker := &fakeBroker{connected: true}
	pool.SetBroker(broker, broker)

	q.TryEnqueue([]byte(`{"e":"trade","E":1,"s":"BTCUSDT"}`))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		pool.Run(ctx, 2)
	}()

	deadline := time.Now().Add(time.Second)
	for counters.Processed() != 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if counters.Processed() != 1 {
		t.Fatalf("processed_total = %d, want 1 before cancelling", counters.Processed())
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
