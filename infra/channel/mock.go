package channel

import (
	"context"
	"sync"

	corechannel "github.com/shareprinto/dispatcher/core/channel"
)

// OfferChannel mirrors the core channel interface.
type OfferChannel = corechannel.OfferChannel

// Push records one delivery attempt observed by the mock.
type Push struct {
	FarmerID string
	Payload  corechannel.OfferPayload
}

// MockChannel is an OfferChannel used in tests. Deliveries are recorded and
// announced on Pushes so tests can react to them.
type MockChannel struct {
	mu      sync.Mutex
	pushes  []Push
	failIDs map[string]bool

	// Pushes receives every successful delivery. Buffered so unread
	// notifications never block the scheduler.
	Pushes chan Push
}

// NewMockChannel creates a MockChannel.
func NewMockChannel() *MockChannel {
	return &MockChannel{
		failIDs: make(map[string]bool),
		Pushes:  make(chan Push, 64),
	}
}

// FailFor makes deliveries to the given farmer fail.
func (m *MockChannel) FailFor(farmerID string) {
	m.mu.Lock()
	m.failIDs[farmerID] = true
	m.mu.Unlock()
}

// Push records the delivery or returns ErrDeliveryFailed when configured to fail.
func (m *MockChannel) Push(ctx context.Context, farmerID string, payload corechannel.OfferPayload) error {
	m.mu.Lock()
	if m.failIDs[farmerID] {
		m.mu.Unlock()
		return corechannel.ErrDeliveryFailed
	}
	p := Push{FarmerID: farmerID, Payload: payload}
	m.pushes = append(m.pushes, p)
	m.mu.Unlock()
	select {
	case m.Pushes <- p:
	default:
	}
	return nil
}

// Deliveries returns the recorded pushes in order.
func (m *MockChannel) Deliveries() []Push {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Push(nil), m.pushes...)
}
