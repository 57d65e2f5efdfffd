package eventbus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	bus := New(4)
	rx := bus.Subscribe()
	defer rx.Close()

	bus.Publish(Event{Kind: KindTodoUpdated, Payload: TodoUpdatedPayload{SessionID: "s1"}})

	select {
	case ev := <-rx.C:
		if ev.Kind != KindTodoUpdated {
			t.Fatalf("expected KindTodoUpdated, got %v", ev.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestPublishNeverBlocksOnFullSubscriber(t *testing.T) {
	bus := New(1)
	rx := bus.Subscribe()
	defer rx.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			bus.Publish(Event{Kind: KindTodoUpdated})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber channel")
	}
}

func TestCloseDetaches(t *testing.T) {
	bus := New(4)
	rx := bus.Subscribe()
	if bus.SubscriberCount() != 1 {
		t.Fatalf("expected 1 subscriber, got %d", bus.SubscriberCount())
	}
	rx.Close()
	if bus.SubscriberCount() != 0 {
		t.Fatalf("expected 0 subscribers after close, got %d", bus.SubscriberCount())
	}
	rx.Close() // idempotent
}

func TestMultipleSubscribersAllReceive(t *testing.T) {
	bus := New(4)
	rx1 := bus.Subscribe()
	rx2 := bus.Subscribe()
	defer rx1.Close()
	defer rx2.Close()

	bus.Publish(Event{Kind: KindBackgroundTaskComplete})

	for _, rx := range []*Receiver{rx1, rx2} {
		select {
		case <-rx.C:
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}
}
