// Command bridge is the process entry point: it loads configuration,
// starts the streaming core, and waits for an interrupt or termination
// signal to shut down gracefully.
//
// Grounded on ws/main.go's flag parsing, automaxprocs log line, config
// load, and signal-driven shutdown.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	_ "go.uber.org/automaxprocs"

	"github.com/petrosa/binance-nats-bridge/internal/bridge"
	"github.com/petrosa/binance-nats-bridge/internal/config"
	"github.com/petrosa/binance-nats-bridge/internal/tracing"
)

func main() {
	debug := flag.Bool("debug", false, "enable debug logging (overrides LOG_LEVEL)")
	flag.Parse()

	logger := log.Output(os.Stdout)

	maxProcs := runtime.GOMAXPROCS(0)
	logger.Info().Int("gomaxprocs", maxProcs).Msg("automaxprocs applied")

	cfg, err := config.Load(&logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}

	if *debug {
		cfg.LogLevel = "debug"
	}
	applyLogLevel(&logger, cfg.LogLevel)

	cfg.LogConfig(logger)

	tracerProvider := tracing.NewProvider()
	tracing.Install(tracerProvider)
	defer tracing.Shutdown(context.Background(), tracerProvider)

	b := bridge.New(cfg, prometheus.DefaultRegisterer, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b.Start(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info().Msg("shutdown signal received, stopping bridge")
	b.Stop()
	logger.Info().Msg("bridge stopped")
}

func applyLogLevel(logger *zerolog.Logger, level string) {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		parsed = zerolog.InfoLevel
	}
	*logger = logger.Level(parsed)
}
