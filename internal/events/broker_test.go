package events

import (
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func receive(t *testing.T, ch chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
	return Event{}
}

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker()
	defer b.Close()

	if b.SubscriberCount() != 0 {
		t.Fatalf("expected 0 subscribers")
	}
	ch := b.Subscribe()
	if b.SubscriberCount() != 1 {
		t.Fatalf("expected 1 subscriber")
	}
	b.Unsubscribe(ch)
	if b.SubscriberCount() != 0 {
		t.Fatalf("expected 0 subscribers after unsubscribe")
	}
	if _, ok := <-ch; ok {
		t.Fatalf("expected channel to be closed after unsubscribe")
	}
}

func TestPublishFiltersByKind(t *testing.T) {
	b := NewBroker()
	defer b.Close()

	matches := b.Subscribe(KindNewMatch)
	all := b.Subscribe()

	b.Publish(Event{Kind: KindNotification, Payload: "n1"})
	b.Publish(Event{Kind: KindNewMatch, Payload: "m1"})

	if ev := receive(t, matches); ev.Kind != KindNewMatch || ev.Payload != "m1" {
		t.Fatalf("unexpected event for match subscriber: %+v", ev)
	}
	if ev := receive(t, all); ev.Kind != KindNotification {
		t.Fatalf("expected notification first, got %+v", ev)
	}
	if ev := receive(t, all); ev.Kind != KindNewMatch {
		t.Fatalf("expected match second, got %+v", ev)
	}

	// Barrier: once the count round-trips, the loop has handled both publishes.
	b.SubscriberCount()
	select {
	case ev := <-matches:
		t.Fatalf("match subscriber received foreign event: %+v", ev)
	default:
	}
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	b := NewBroker()
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	// Fill the buffer and then some more; publishing must not block.
	for i := 0; i < subscriberBuffer+10; i++ {
		b.Publish(Event{Kind: KindNotification})
	}
}

func TestCloseClosesSubscribersAndStopsOperations(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe(KindOffline)

	b.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected subscriber channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}

	if b.SubscriberCount() != 0 {
		t.Fatalf("expected 0 subscribers after close")
	}

	// Safe no-ops after close.
	b.Publish(Event{Kind: KindOffline})
	b.Unsubscribe(ch)
	if _, ok := <-b.Subscribe(); ok {
		t.Fatalf("subscribe after close must return a closed channel")
	}
	b.Close()
}

func drain(ch chan Event) []Event {
	var out []Event
	for ev := range ch {
		out = append(out, ev)
	}
	return out
}

func TestCloseDeliversPendingEvents(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe()

	for i := 0; i < 50; i++ {
		b.Publish(Event{Kind: KindNewMessage, Payload: i})
	}
	b.Close()

	got := drain(ch)
	if len(got) != 50 {
		t.Fatalf("expected 50 events before close, got %d", len(got))
	}
	for i, ev := range got {
		if ev.Payload != i {
			t.Fatalf("event %d out of order: %v", i, ev.Payload)
		}
	}
}

func TestOfflineSurvivesFullSubscriber(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	b := NewBroker(WithLogger(zap.New(core)))
	ch := b.Subscribe()

	for i := 0; i < subscriberBuffer; i++ {
		b.Publish(Event{Kind: KindConnection, Payload: i})
	}
	b.Publish(Event{Kind: KindNewMessage})
	b.Publish(Event{Kind: KindOffline})
	b.Close()

	got := drain(ch)
	if len(got) != subscriberBuffer {
		t.Fatalf("expected a full buffer of %d events, got %d", subscriberBuffer, len(got))
	}
	if last := got[len(got)-1]; last.Kind != KindOffline {
		t.Fatalf("offline event must be delivered, last event is %s", last.Kind)
	}
	if got[0].Payload != 1 {
		t.Fatalf("expected the oldest event to be evicted, first payload %v", got[0].Payload)
	}

	if b.Dropped() != 2 {
		t.Fatalf("expected 2 dropped events, got %d", b.Dropped())
	}
	if n := logs.FilterMessage("subscriber buffer full, event dropped").Len(); n != 2 {
		t.Fatalf("expected 2 drop warnings, got %d", n)
	}
}
