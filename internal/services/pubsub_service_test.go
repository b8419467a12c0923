package services

import (
	"context"
	"testing"
)

func TestUserChannelNaming(t *testing.T) {
	if got := UserChannel("user-123"); got != "user:user-123:events" {
		t.Errorf("Unexpected channel name %q", got)
	}
}

// A nil PubSubService is the Redis-less configuration: publishing must be a
// silent no-op and subscribing must fail cleanly instead of panicking.
func TestPubSubNilSafety(t *testing.T) {
	var s *PubSubService
	ctx := context.Background()

	s.Publish(ctx, "user-1", Event{Type: EventChatCreated, ChatID: "c1"})

	if err := s.Subscribe(ctx, "user-1", func(Event) {}); err == nil {
		t.Error("Expected Subscribe to fail when pub/sub is not configured")
	}

	if err := s.Close(); err != nil {
		t.Errorf("Close on nil service must succeed, got %v", err)
	}
}
