// Package events defines the typed events published on the internal event bus
// by the dispatch scheduler. Subscribers (metrics bridges, the SSE stream)
// receive them through internal/eventbus.
package events

// Event is the closed set of payloads carried on the dispatch bus.
type Event interface {
	// Kind names the event family: "offer", "response" or "run".
	Kind() string
}
