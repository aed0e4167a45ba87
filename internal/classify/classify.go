// Package classify derives the logical stream name for an inbound
// frame, the routing hint carried in every published Envelope.
package classify

import "strings"

// Frame is a decoded upstream payload keyed by the provider's short
// field names (e, E, s, lastUpdateId, bids, asks, ...).
type Frame map[string]any

// Classifier maps frames to stream identifiers. It is not safe to
// share a Classifier across cores with different subscriptions; each
// bridge instance owns one.
type Classifier struct {
	// subscribedStreams is consulted only for the single-depth-
	// subscription symbol-inference fallback in rule 1.
	subscribedStreams []string
}

// New builds a Classifier bound to the bridge's configured
// subscription list.
func New(subscribedStreams []string) *Classifier {
	return &Classifier{subscribedStreams: subscribedStreams}
}

// Classify returns the stream identifier for frame, or "" if it cannot
// be determined (caller should discard the frame with a warning log).
func (c *Classifier) Classify(f Frame) string {
	if isDepthSnapshot(f) {
		if symbol, ok := stringField(f, "s"); ok && symbol != "" {
			return strings.ToLower(symbol) + "@depth20@100ms"
		}
		if symbol, ok := c.inferDepthSymbol(); ok {
			return symbol + "@depth20@100ms"
		}
		return ""
	}

	eventType, hasType := stringField(f, "e")
	symbol, hasSymbol := stringField(f, "s")
	if !hasType || eventType == "" || !hasSymbol || symbol == "" {
		return ""
	}

	symbol = strings.ToLower(symbol)
	switch eventType {
	case "trade":
		return symbol + "@trade"
	case "24hrTicker":
		return symbol + "@ticker"
	case "depthUpdate":
		return symbol + "@depth20@100ms"
	case "markPriceUpdate":
		return symbol + "@markPrice@1s"
	case "fundingRate":
		return symbol + "@fundingRate@1s"
	default:
		return symbol + "@" + eventType
	}
}

// isDepthSnapshot matches a full order-book snapshot: last-update-id
// plus bid/ask arrays, distinct from an incremental depthUpdate event
// (which carries "e" and is handled by the event-type rules instead).
func isDepthSnapshot(f Frame) bool {
	_, hasLastUpdateID := f["lastUpdateId"]
	_, hasBids := f["bids"]
	_, hasAsks := f["asks"]
	return hasLastUpdateID && hasBids && hasAsks
}

// inferDepthSymbol extracts the symbol from the bridge's subscription
// list when exactly one depth-like stream is configured, e.g.
// "btcusdt@depth20@100ms" -> "btcusdt".
func (c *Classifier) inferDepthSymbol() (string, bool) {
	var depthStream string
	count := 0
	for _, s := range c.subscribedStreams {
		if strings.Contains(s, "@depth") {
			depthStream = s
			count++
		}
	}
	if count != 1 {
		return "", false
	}
	idx := strings.Index(depthStream, "@")
	if idx < 0 {
		return "", false
	}
	return depthStream[:idx], true
}

func stringField(f Frame, key string) (string, bool) {
	v, ok := f[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
