// Package tracing installs the process-wide OpenTelemetry TracerProvider
// that gives every outbound envelope a real W3C traceparent. There is no
// exporter wired up -- span IDs exist to populate
// internal/envelope.Envelope.TraceContext, not to be shipped to a
// collector -- but go.opentelemetry.io/otel/sdk/trace still generates a
// genuine random trace ID and span ID per span regardless of whether any
// SpanProcessor is registered.
//
// Grounded on gravitational-teleport's
// api/observability/tracing/ssh/ssh_test.go, which builds a bare
// sdktrace.NewTracerProvider() with no processors for the same reason:
// to get a valid, non-recording SpanContext without talking to a
// collector.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// NewProvider builds a TracerProvider with no exporter attached.
func NewProvider() *sdktrace.TracerProvider {
	return sdktrace.NewTracerProvider()
}

// Install registers provider as the default otel.GetTracerProvider()
// result, so every otel.Tracer(name) call across the core picks it up.
func Install(provider *sdktrace.TracerProvider) {
	otel.SetTracerProvider(provider)
}

// Shutdown flushes and releases provider's resources. Safe to call with
// a nil provider.
func Shutdown(ctx context.Context, provider *sdktrace.TracerProvider) {
	if provider == nil {
		return
	}
	_ = provider.Shutdown(ctx)
}
