package relay

import (
	"context"
	"testing"
	"time"

	"github.com/KelkeFranvin/coco-quiz/internal/domain"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	events := []domain.RelayEvent{
		domain.SubmissionCreated{EventID: "e1", Username: "alice", Answer: "42"},
		domain.QuizReset{EventID: "e2", Username: "alice"},
		domain.QuizReset{EventID: "e3", ResetAll: true},
	}
	for _, event := range events {
		data, err := Encode(event)
		if err != nil {
			t.Fatalf("encode %+v: %v", event, err)
		}
		decoded, err := Decode(data)
		if err != nil {
			t.Fatalf("decode %s: %v", data, err)
		}
		if decoded != event {
			t.Fatalf("round trip mismatch: sent %+v, got %+v", event, decoded)
		}
	}
}

func TestDecodeRejectsUnknownType(t *testing.T) {
	if _, err := Decode([]byte(`{"type":"mystery","payload":{}}`)); err == nil {
		t.Fatalf("expected error for unknown event type")
	}
	if _, err := Decode([]byte(`not json`)); err == nil {
		t.Fatalf("expected error for malformed envelope")
	}
}

func TestHubBroadcastsToAllIncludingSender(t *testing.T) {
	ctx := context.Background()
	hub := NewHub()

	first, cancelFirst, err := hub.Subscribe(ctx)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancelFirst()
	second, cancelSecond, err := hub.Subscribe(ctx)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancelSecond()

	event := domain.SubmissionCreated{EventID: "e1", Username: "alice", Answer: "42"}
	if err := hub.Publish(ctx, event); err != nil {
		t.Fatalf("publish: %v", err)
	}

	for _, ch := range []<-chan domain.RelayEvent{first, second} {
		select {
		case got := <-ch:
			if got != domain.RelayEvent(event) {
				t.Fatalf("expected %+v, got %+v", event, got)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber did not receive event")
		}
	}
}

func TestHubUnsubscribeStopsDelivery(t *testing.T) {
	ctx := context.Background()
	hub := NewHub()

	events, cancel, err := hub.Subscribe(ctx)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	cancel()

	if err := hub.Publish(ctx, domain.QuizReset{EventID: "e1", ResetAll: true}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if _, ok := <-events; ok {
		t.Fatalf("expected closed channel after cancel")
	}
}

func TestHubDropsStaleEventsForSlowSubscriber(t *testing.T) {
	ctx := context.Background()
	hub := NewHub()

	events, cancel, err := hub.Subscribe(ctx)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	// Overflow the subscriber buffer; publish must never block.
	for i := 0; i < 32; i++ {
		if err := hub.Publish(ctx, domain.QuizReset{EventID: "e", ResetAll: true}); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	select {
	case <-events:
	case <-time.After(time.Second):
		t.Fatalf("expected at least one delivered event")
	}
}
