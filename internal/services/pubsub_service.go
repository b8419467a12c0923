package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Event types published on a user's channel after every chat mutation, so
// other signed-in devices know to refetch their collection.
const (
	EventChatCreated = "chat_created"
	EventChatUpdated = "chat_updated"
	EventChatDeleted = "chat_deleted"
)

// Event is one chat mutation notification.
type Event struct {
	Type   string `json:"type"`
	ChatID string `json:"chat_id"`
}

// PubSubService publishes chat mutation events over Redis pub/sub. It is
// optional infrastructure: a nil *PubSubService is safe to call and does
// nothing, so the core works without Redis.
type PubSubService struct {
	client *redis.Client
}

// NewPubSubService connects to Redis and verifies the connection.
func NewPubSubService(redisURL string) (*PubSubService, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opts.PoolSize = 10
	opts.MinIdleConns = 2
	opts.MaxRetries = 3
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Println("✅ Redis connection established")
	return &PubSubService{client: client}, nil
}

// UserChannel is the pub/sub channel carrying one user's events.
func UserChannel(userID string) string {
	return "user:" + userID + ":events"
}

// Publish sends an event on the user's channel. Publish failures are logged
// and swallowed: sync events are advisory and must never fail a mutation
// that already persisted.
func (s *PubSubService) Publish(ctx context.Context, userID string, event Event) {
	if s == nil || s.client == nil {
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("⚠️ [PUBSUB] Failed to marshal event: %v", err)
		return
	}

	if err := s.client.Publish(ctx, UserChannel(userID), payload).Err(); err != nil {
		log.Printf("⚠️ [PUBSUB] Failed to publish %s for user %s: %v", event.Type, userID, err)
	}
}

// Subscribe listens for a user's events and invokes the handler for each
// one until the context is cancelled. Used by long-polling/SSE surfaces and
// by other instances mirroring the same account.
func (s *PubSubService) Subscribe(ctx context.Context, userID string, handler func(Event)) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("pub/sub is not configured")
	}

	pubsub := s.client.Subscribe(ctx, UserChannel(userID))
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Printf("⚠️ [PUBSUB] Failed to decode event: %v", err)
				continue
			}
			handler(event)
		}
	}
}

// Close closes the Redis connection.
func (s *PubSubService) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}
