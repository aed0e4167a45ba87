// Package envelope defines the normalized outbound record published to
// the broker subject for every ingested frame.
package envelope

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// Source and Version are constant for every envelope this bridge
// produces.
const (
	Source  = "binance-websocket"
	Version = "1.0"
)

// TraceContext carries standard W3C trace-context wire headers.
// Consumers that don't understand it ignore it (it's additive and
// optional).
type TraceContext struct {
	TraceParent string `json:"traceparent"`
}

// Envelope is the immutable outbound record. It exists only for the
// duration of one publish attempt.
type Envelope struct {
	Stream       string          `json:"stream"`
	Data         json.RawMessage `json:"data"`
	Timestamp    time.Time       `json:"timestamp"`
	MessageID    string          `json:"message_id"`
	Source       string          `json:"source"`
	Version      string          `json:"version"`
	TraceContext *TraceContext   `json:"_otel_trace_context,omitempty"`
}

// New builds a fresh Envelope: a new message_id and the current UTC
// instant as its timestamp.
func New(stream string, data json.RawMessage, spanCtx trace.SpanContext) Envelope {
	e := Envelope{
		Stream:    stream,
		Data:      data,
		Timestamp: time.Now().UTC(),
		MessageID: uuid.NewString(),
		Source:    Source,
		Version:   Version,
	}
	if spanCtx.IsValid() {
		e.TraceContext = &TraceContext{
			TraceParent: formatTraceParent(spanCtx),
		}
	}
	return e
}

// formatTraceParent renders a W3C traceparent header from an OTel span
// context: version-traceid-spanid-flags.
func formatTraceParent(sc trace.SpanContext) string {
	flags := "00"
	if sc.IsSampled() {
		flags = "01"
	}
	return "00-" + sc.TraceID().String() + "-" + sc.SpanID().String() + "-" + flags
}

// timestampLayout is ISO-8601 UTC with a literal trailing Z and
// microsecond precision, matching the original's
// `datetime.isoformat() + "Z"` convention.
const timestampLayout = "2006-01-02T15:04:05.000000Z"

// MarshalJSON renders the envelope with its timestamp in the exact
// wire format this core requires, rather than Go's default RFC3339Nano.
func (e Envelope) MarshalJSON() ([]byte, error) {
	type alias Envelope
	return json.Marshal(struct {
		alias
		Timestamp string `json:"timestamp"`
	}{
		alias:     alias(e),
		Timestamp: e.Timestamp.UTC().Format(timestampLayout),
	})
}

// ToJSON serializes the envelope to its wire representation.
func (e Envelope) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}
