// Package eventbus fans dispatch events out to in-process subscribers.
package eventbus

import (
	"sync"

	"github.com/shareprinto/dispatcher/core/events"
)

// subBuffer bounds each subscriber channel. A subscriber that falls more
// than subBuffer events behind starts losing events rather than slowing
// the scheduler down.
const subBuffer = 8

// Bus is the publish side seen by the scheduler and the subscribe side
// seen by the SSE hub.
type Bus interface {
	Publish(events.Event)
	Subscribe() <-chan events.Event
	Unsubscribe(<-chan events.Event)
	Close()
}

// DispatchBus fans events.Event values out to all subscribers.
// The zero value is not usable; call New.
type DispatchBus struct {
	mu     sync.RWMutex
	subs   map[chan events.Event]struct{}
	closed bool
}

// New creates an empty DispatchBus.
func New() *DispatchBus {
	return &DispatchBus{subs: make(map[chan events.Event]struct{})}
}

// Publish delivers e to every subscriber without blocking. Subscribers
// with a full buffer miss the event.
func (b *DispatchBus) Publish(e events.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Subscribe registers a subscriber. On a closed bus the returned channel
// is already closed.
func (b *DispatchBus) Subscribe() <-chan events.Event {
	ch := make(chan events.Event, subBuffer)
	b.mu.Lock()
	if b.closed {
		close(ch)
	} else {
		b.subs[ch] = struct{}{}
	}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes the subscriber and closes its channel. Unknown
// channels are ignored.
func (b *DispatchBus) Unsubscribe(sub <-chan events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		if ch == sub {
			delete(b.subs, ch)
			if !b.closed {
				close(ch)
			}
			return
		}
	}
}

// Close closes every subscriber channel. Publish and Subscribe on a
// closed bus are no-ops.
func (b *DispatchBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}
