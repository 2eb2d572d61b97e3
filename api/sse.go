package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/shareprinto/dispatcher/core/events"
	"github.com/shareprinto/dispatcher/internal/eventbus"
)

// SSEEvent is the typed envelope sent to SSE clients.
type SSEEvent struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type sseClient struct {
	events chan SSEEvent
}

// EventHub bridges the internal event bus to SSE client connections.
type EventHub struct {
	bus eventbus.Bus

	mu       sync.RWMutex
	clients  map[*sseClient]struct{}
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewEventHub creates an EventHub fed by the given bus.
func NewEventHub(bus eventbus.Bus) *EventHub {
	return &EventHub{
		bus:      bus,
		clients:  make(map[*sseClient]struct{}),
		stopChan: make(chan struct{}),
	}
}

// Start begins the fan-out loop.
func (h *EventHub) Start() {
	sub := h.bus.Subscribe()
	go h.run(sub)
}

// Stop shuts down the event hub.
func (h *EventHub) Stop() {
	h.stopOnce.Do(func() { close(h.stopChan) })
}

func (h *EventHub) run(sub <-chan events.Event) {
	defer h.bus.Unsubscribe(sub)
	for {
		select {
		case <-h.stopChan:
			return
		case ev, ok := <-sub:
			if !ok {
				return
			}
			sseEvt, ok := translate(ev)
			if !ok {
				continue
			}
			h.broadcast(sseEvt)
		}
	}
}

// translate maps bus events to the frontend event vocabulary.
func translate(ev events.Event) (SSEEvent, bool) {
	switch e := ev.(type) {
	case events.OfferEvent:
		return SSEEvent{Type: "offer-pushed", Data: map[string]any{
			"offerId":  e.Offer.ID,
			"orderId":  e.Offer.OrderID,
			"farmerId": e.Offer.FarmerID,
			"position": e.Position,
		}}, true
	case events.ResponseEvent:
		data := map[string]any{
			"offerId":  e.OfferID,
			"orderId":  e.OrderID,
			"farmerId": e.FarmerID,
			"state":    e.State.String(),
			"latency":  e.Latency.Seconds(),
		}
		if e.Err != nil {
			data["error"] = e.Err.Error()
		}
		return SSEEvent{Type: "offer-resolved", Data: data}, true
	case events.RunEvent:
		return SSEEvent{Type: "run-update", Data: map[string]any{
			"orderId":             e.OrderID,
			"state":               e.State,
			"candidatesRanked":    e.CandidatesRanked,
			"candidatesContacted": e.CandidatesContacted,
			"assignedFarmerId":    e.AssignedFarmerID,
			"elapsedSeconds":      e.Elapsed.Seconds(),
		}}, true
	default:
		return SSEEvent{}, false
	}
}

func (h *EventHub) broadcast(evt SSEEvent) {
	h.mu.RLock()
	for c := range h.clients {
		select {
		case c.events <- evt:
		default:
			// Client buffer full, drop event
		}
	}
	h.mu.RUnlock()
}

func (h *EventHub) register(c *sseClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *EventHub) unregister(c *sseClient) {
	h.mu.Lock()
	delete(h.clients, c)
	close(c.events)
	h.mu.Unlock()
}

// HandleSSE is the HTTP handler for SSE connections.
func (h *EventHub) HandleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	client := &sseClient{events: make(chan SSEEvent, 64)}
	h.register(client)
	defer h.unregister(client)

	fmt.Fprintf(w, "event: connected\ndata: {}\n\n")
	flusher.Flush()

	keepalive := time.NewTicker(30 * time.Second)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-h.stopChan:
			return
		case evt, ok := <-client.events:
			if !ok {
				return
			}
			data, err := json.Marshal(evt.Data)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, data)
			flusher.Flush()
		case <-keepalive.C:
			fmt.Fprintf(w, ": keepalive\n\n")
			flusher.Flush()
		}
	}
}
