package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func validConfig() *Config {
	return &Config{
		WSURL:                  "wss://stream.example.com/stream",
		Streams:                "btcusdt@trade, btcusdt@ticker ,",
		BrokerURL:              "nats://localhost:4222",
		BrokerSubject:          "binance.websocket.data",
		QueueCapacity:          1000,
		ProcessorCount:         4,
		ReconnectBackoffFactor: 2.0,
		LogLevel:               "info",
		LogFormat:              "json",
	}
}

func TestValidateAcceptsWellFormedConfig(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidateRejectsMissingWSURL(t *testing.T) {
	cfg := validConfig()
	cfg.WSURL = ""
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsZeroQueueCapacity(t *testing.T) {
	cfg := validConfig()
	cfg.QueueCapacity = 0
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsNonPositiveBackoffFactor(t *testing.T) {
	cfg := validConfig()
	cfg.ReconnectBackoffFactor = 0
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsUnknownLogLevel(t *testing.T) {
	cfg := validConfig()
	cfg.LogLevel = "verbose"
	assert.Error(t, cfg.Validate())
}

func TestStreamListTrimsAndDropsEmpties(t *testing.T) {
	cfg := validConfig()
	got := cfg.StreamList()
	want := []string{"btcusdt@trade", "btcusdt@ticker"}
	assert.Equal(t, want, got)
}

func TestStreamListHandlesSingleEntry(t *testing.T) {
	cfg := validConfig()
	cfg.Streams = "btcusdt@depth20@100ms"
	assert.Equal(t, []string{"btcusdt@depth20@100ms"}, cfg.StreamList())
}
