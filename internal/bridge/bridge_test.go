package bridge

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/petrosa/binance-nats-bridge/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		WSURL:                         "wss://stream.example.com/stream",
		Streams:                       "btcusdt@trade,btcusdt@ticker",
		MaxMessageSize:                1048576,
		BrokerURL:                     "nats://localhost:4222",
		BrokerSubject:                 "binance.websocket.data",
		BrokerClientName:              "binance-nats-bridge-test",
		BrokerReconnectWait:           2 * time.Second,
		BrokerMaxReconnects:           -1,
		ReconnectInitialDelay:         time.Second,
		ReconnectMaxAttempts:          3,
		ReconnectBackoffFactor:        2.0,
		PingInterval:                  30 * time.Second,
		PingTimeout:                   10 * time.Second,
		CloseTimeout:                  10 * time.Second,
		QueueCapacity:                 1000,
		BatchTimeout:                  time.Second,
		ProcessorCount:                4,
		StatsLogInterval:              time.Minute,
		WSBreakerFailureThreshold:     5,
		WSBreakerRecoveryTimeout:      time.Minute,
		BrokerBreakerFailureThreshold: 3,
		BrokerBreakerRecoveryTimeout:  30 * time.Second,
		HeartbeatEnabled:              true,
		HeartbeatInterval:             time.Minute,
		LogLevel:                      "info",
		LogFormat:                     "json",
		Environment:                   "test",
	}
}

// TestMetricsSnapshotBeforeStartIsConsistent checks that Metrics
// returns a coherent snapshot even when the bridge was never started.
func TestMetricsSnapshotBeforeStartIsConsistent(t *testing.T) {
	cfg := testConfig()
	b := New(cfg, prometheus.NewRegistry(), zerolog.Nop())

	snap := b.Metrics()

	if snap.IsRunning {
		t.Error("IsRunning should be false before Start")
	}
	if snap.IsConnected {
		t.Error("IsConnected should be false before Start")
	}
	if snap.ConnectionStatus != "disconnected" {
		t.Errorf("ConnectionStatus = %q, want disconnected", snap.ConnectionStatus)
	}
	if snap.StreamCount != 2 {
		t.Errorf("StreamCount = %d, want 2", snap.StreamCount)
	}
	if len(snap.Streams) != 2 || snap.Streams[0] != "btcusdt@trade" {
		t.Errorf("Streams = %v, want [btcusdt@trade btcusdt@ticker]", snap.Streams)
	}
	if snap.ProcessedMessages != 0 || snap.DroppedMessages != 0 {
		t.Errorf("counters should start at zero, got processed=%d dropped=%d", snap.ProcessedMessages, snap.DroppedMessages)
	}
	if snap.TimeSinceLastMessage != nil {
		t.Error("TimeSinceLastMessage should be nil before any frame has arrived")
	}
	if !snap.HeartbeatEnabled {
		t.Error("HeartbeatEnabled should reflect the configured value")
	}
}

// TestStreamsCopyIsIndependent ensures the facade returns a defensive
// copy of the stream list, not a shared slice.
func TestStreamsCopyIsIndependent(t *testing.T) {
	cfg := testConfig()
	b := New(cfg, prometheus.NewRegistry(), zerolog.Nop())

	snap := b.Metrics()
	snap.Streams[0] = "mutated"

	again := b.Metrics()
	if again.Streams[0] == "mutated" {
		t.Error("Metrics() must return an independent copy of the stream list")
	}
}

// TestStopBeforeStartIsSafe exercises stopping a bridge that was
// never started.
func TestStopBeforeStartIsSafe(t *testing.T) {
	cfg := testConfig()
	b := New(cfg, prometheus.NewRegistry(), zerolog.Nop())

	b.Stop()
	b.Stop()
}
