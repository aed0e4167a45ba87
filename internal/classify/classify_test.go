package classify

import "testing"

func TestClassifyTrade(t *testing.T) {
	c := New([]string{"btcusdt@trade"})
	frame := Frame{"e": "trade", "E": float64(123456789), "s": "BTCUSDT", "t": float64(12345), "p": "0.001", "q": "100"}

	got := c.Classify(frame)
	want := "btcusdt@trade"
	if got != want {
		t.Fatalf("Classify() = %q, want %q", got, want)
	}
}

func TestClassifyTicker(t *testing.T) {
	c := New(nil)
	frame := Frame{"e": "24hrTicker", "s": "ETHUSDT"}

	if got := c.Classify(frame); got != "ethusdt@ticker" {
		t.Fatalf("Classify() = %q, want ethusdt@ticker", got)
	}
}

func TestClassifyDepthUpdateEvent(t *testing.T) {
	c := New(nil)
	frame := Frame{"e": "depthUpdate", "s": "BTCUSDT"}

	if got := c.Classify(frame); got != "btcusdt@depth20@100ms" {
		t.Fatalf("Classify() = %q, want btcusdt@depth20@100ms", got)
	}
}

func TestClassifyUnknownEventTypeFallsBackToRawSuffix(t *testing.T) {
	c := New(nil)
	frame := Frame{"e": "aggTrade", "s": "BTCUSDT"}

	if got := c.Classify(frame); got != "btcusdt@aggTrade" {
		t.Fatalf("Classify() = %q, want btcusdt@aggTrade", got)
	}
}

func TestClassifyMissingFieldsReturnsEmpty(t *testing.T) {
	c := New(nil)
	if got := c.Classify(Frame{"foo": "bar"}); got != "" {
		t.Fatalf("Classify() = %q, want empty string for unclassifiable frame", got)
	}
}

// TestClassifyDepthSnapshotWithSymbol covers a full order-book snapshot
// that happens to carry its own "s" field.
func TestClassifyDepthSnapshotWithSymbol(t *testing.T) {
	c := New(nil)
	frame := Frame{
		"lastUpdateId": float64(160),
		"bids":         []any{[]any{"0.001", "100"}},
		"asks":         []any{[]any{"0.0011", "150"}},
		"s":            "BTCUSDT",
	}

	if got := c.Classify(frame); got != "btcusdt@depth20@100ms" {
		t.Fatalf("Classify() = %q, want btcusdt@depth20@100ms", got)
	}
}

// TestClassifyDepthSnapshotSingleSubscriptionInference checks that a
// depth snapshot lacking its own symbol field is resolved via the
// single-depth-subscription fallback.
func TestClassifyDepthSnapshotSingleSubscriptionInference(t *testing.T) {
	c := New([]string{"btcusdt@depth20@100ms"})
	frame := Frame{
		"lastUpdateId": float64(160),
		"bids":         []any{[]any{"0.001", "100"}},
		"asks":         []any{[]any{"0.0011", "150"}},
	}

	got := c.Classify(frame)
	want := "btcusdt@depth20@100ms"
	if got != want {
		t.Fatalf("Classify() = %q, want %q", got, want)
	}
}

func TestClassifyDepthSnapshotAmbiguousSubscriptionsReturnsEmpty(t *testing.T) {
	c := New([]string{"btcusdt@depth20@100ms", "ethusdt@depth20@100ms"})
	frame := Frame{
		"lastUpdateId": float64(160),
		"bids":         []any{},
		"asks":         []any{},
	}

	if got := c.Classify(frame); got != "" {
		t.Fatalf("Classify() = %q, want empty string when depth symbol is ambiguous", got)
	}
}

func TestClassifyDepthSnapshotNoDepthSubscriptionReturnsEmpty(t *testing.T) {
	c := New([]string{"btcusdt@trade"})
	frame := Frame{
		"lastUpdateId": float64(160),
		"bids":         []any{},
		"asks":         []any{},
	}

	if got := c.Classify(frame); got != "" {
		t.Fatalf("Classify() = %q, want empty string with no depth subscription to infer from", got)
	}
}
