package provider

import (
	"context"
	"testing"
	"time"
)

func TestMockProviderReplaysTurnsInOrder(t *testing.T) {
	mp := NewMockProvider("mock",
		[]Event{{Kind: EventTextDelta, Text: "po"}, {Kind: EventTextDelta, Text: "ng"}, {Kind: EventMessageEnd, StopReason: "end_turn"}},
		[]Event{{Kind: EventMessageEnd, StopReason: "end_turn"}},
	)

	ctx := context.Background()

	stream, err := mp.Complete(ctx, nil, nil, "", "")
	if err != nil {
		t.Fatal(err)
	}
	var got []Event
	for ev := range stream.Events {
		got = append(got, ev)
	}
	if len(got) != 3 || got[0].Text != "po" || got[2].StopReason != "end_turn" {
		t.Fatalf("unexpected first turn: %+v", got)
	}

	stream2, err := mp.Complete(ctx, nil, nil, "", "")
	if err != nil {
		t.Fatal(err)
	}
	var got2 []Event
	for ev := range stream2.Events {
		got2 = append(got2, ev)
	}
	if len(got2) != 1 {
		t.Fatalf("unexpected second turn: %+v", got2)
	}
}

func TestMockProviderStopsOnCancel(t *testing.T) {
	events := make([]Event, 0, 1000)
	for i := 0; i < 1000; i++ {
		events = append(events, Event{Kind: EventTextDelta, Text: "x"})
	}
	mp := NewMockProvider("mock", events)

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := mp.Complete(ctx, nil, nil, "", "")
	if err != nil {
		t.Fatal(err)
	}

	// Read one event then cancel; the goroutine must stop sending rather
	// than blocking forever on an unread channel.
	<-stream.Events
	cancel()

	done := make(chan struct{})
	go func() {
		for range stream.Events {
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not stop after cancellation")
	}
}
