package events

import "testing"

func TestPublishReachesSubscribers(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(EventStatus)

	bus.Publish(EventStatus, Payload{"isStreaming": true})

	select {
	case payload := <-sub:
		if payload["isStreaming"] != true {
			t.Fatalf("unexpected payload: %+v", payload)
		}
	default:
		t.Fatal("expected a payload on the subscriber channel")
	}
}

func TestPublishSkipsFullSubscribers(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(EventLog)

	// Fill the buffered channel and then publish past it; the publisher must
	// not block.
	for i := 0; i < cap(sub)+5; i++ {
		bus.Publish(EventLog, Payload{"n": i})
	}

	if len(sub) != cap(sub) {
		t.Fatalf("expected channel to be full, have %d", len(sub))
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(EventError)
	bus.Unsubscribe(EventError, sub)

	if _, ok := <-sub; ok {
		t.Fatal("expected channel to be closed after unsubscribe")
	}

	// Publishing after unsubscribe must not panic.
	bus.Publish(EventError, Payload{"message": "x"})
}
