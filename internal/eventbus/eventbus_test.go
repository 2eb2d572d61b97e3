package eventbus

import (
	"testing"

	"github.com/shareprinto/dispatcher/core/events"
)

func TestDispatchBus_PublishSubscribe(t *testing.T) {
	b := New()
	sub := b.Subscribe()
	b.Publish(events.RunEvent{OrderID: "o1", State: "ranking"})
	got, ok := (<-sub).(events.RunEvent)
	if !ok || got.OrderID != "o1" {
		t.Fatalf("got %#v", got)
	}
	if got.Kind() != "run" {
		t.Fatalf("kind = %q", got.Kind())
	}
	b.Unsubscribe(sub)
	if _, open := <-sub; open {
		t.Fatalf("channel should be closed after unsubscribe")
	}
}

func TestDispatchBus_FanOut(t *testing.T) {
	b := New()
	a, c := b.Subscribe(), b.Subscribe()
	b.Publish(events.ResponseEvent{OfferID: "of1", OrderID: "o1"})
	for _, sub := range []<-chan events.Event{a, c} {
		ev, ok := (<-sub).(events.ResponseEvent)
		if !ok || ev.OfferID != "of1" {
			t.Fatalf("got %#v", ev)
		}
	}
}

func TestDispatchBus_NonBlockingPublish(t *testing.T) {
	b := New()
	b.Subscribe() // never drained
	for i := 0; i < 100; i++ {
		b.Publish(events.RunEvent{OrderID: "o1"}) // must not block once the buffer is full
	}
}

func TestDispatchBus_Close(t *testing.T) {
	b := New()
	sub := b.Subscribe()
	b.Close()
	if _, open := <-sub; open {
		t.Fatalf("channel should be closed")
	}
	b.Publish(events.RunEvent{OrderID: "ignored"})
	if ch := b.Subscribe(); ch == nil {
		t.Fatalf("subscribe after close must return a closed channel, not nil")
	}
}
