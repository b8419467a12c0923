package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"neurochat/internal/database"
	"neurochat/internal/models"
)

// casRetries bounds the reload-and-retry loop on collection version
// conflicts. Conflicts only arise from concurrent mutations of the same
// user's collection, so a small bound is plenty.
const casRetries = 5

// ChatService owns the chat lifecycle: it creates, lists, renames and
// deletes chats, keeps the owner's collection in most-recently-updated
// order, and answers ownership checks for externally supplied chat ids.
type ChatService struct {
	store database.Store

	// ownership caches chatID -> owner userID so the per-request ownership
	// gate does not rescan the collection on every hit. Entries are
	// maintained alongside every collection mutation; the TTL only evicts
	// entries orphaned by crashes.
	ownership *gocache.Cache

	events *PubSubService // optional, nil disables sync events
}

// NewChatService creates a chat service on top of a record store.
func NewChatService(store database.Store, events *PubSubService) *ChatService {
	return &ChatService{
		store:     store,
		ownership: gocache.New(1*time.Hour, 10*time.Minute),
		events:    events,
	}
}

// ListChats returns the user's chat collection, most recently updated first.
// A user without a collection gets an empty one created lazily; listing
// never fails with not-found.
func (s *ChatService) ListChats(ctx context.Context, userID string) ([]models.ChatSummary, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user ID is required", ErrValidation)
	}

	chats, version, err := s.loadCollection(ctx, userID)
	if err != nil {
		return nil, err
	}

	if version == 0 {
		data, _ := json.Marshal([]models.ChatSummary{})
		if _, err := s.store.Put(ctx, database.ChatsKey(userID), data, 0); err != nil && !errors.Is(err, database.ErrVersionConflict) {
			return nil, fmt.Errorf("failed to create chat collection: %w", err)
		}
	}

	return chats, nil
}

// CreateChat generates a globally unique id, inserts the summary at the
// front of the owner's collection and creates an empty message log in the
// same logical operation. If the log write fails the summary insertion is
// rolled back, so a summary never exists without its log.
func (s *ChatService) CreateChat(ctx context.Context, userID, title, model string) (*models.ChatSummary, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user ID is required", ErrValidation)
	}
	if title == "" {
		title = "New chat"
	}

	now := time.Now()
	summary := models.ChatSummary{
		ID:           uuid.NewString(),
		UserID:       userID,
		Title:        title,
		Model:        model,
		CreatedAt:    now,
		UpdatedAt:    now,
		MessageCount: 0,
	}

	if _, err := s.updateCollection(ctx, userID, func(chats []models.ChatSummary) ([]models.ChatSummary, error) {
		return append([]models.ChatSummary{summary}, chats...), nil
	}); err != nil {
		return nil, err
	}

	logData, err := json.Marshal(models.MessageLog{ChatID: summary.ID, Model: model, Messages: []models.Message{}})
	if err != nil {
		return nil, fmt.Errorf("failed to serialize message log: %w", err)
	}
	if _, err := s.store.Put(ctx, database.MessagesKey(summary.ID), logData, 0); err != nil {
		// Roll back the summary so the collection never references a chat
		// without a log.
		if _, rbErr := s.updateCollection(ctx, userID, func(chats []models.ChatSummary) ([]models.ChatSummary, error) {
			return removeChat(chats, summary.ID), nil
		}); rbErr != nil {
			log.Printf("❌ Failed to roll back summary for chat %s: %v", summary.ID, rbErr)
		}
		return nil, fmt.Errorf("failed to create message log: %w", err)
	}

	s.ownership.SetDefault(summary.ID, userID)
	s.events.Publish(ctx, userID, Event{Type: EventChatCreated, ChatID: summary.ID})

	return &summary, nil
}

// IsOwnedBy reports whether the chat id appears in the user's collection.
// It must gate every operation that takes a chat id from outside.
func (s *ChatService) IsOwnedBy(ctx context.Context, userID, chatID string) (bool, error) {
	if userID == "" || chatID == "" {
		return false, nil
	}

	if owner, found := s.ownership.Get(chatID); found {
		return owner.(string) == userID, nil
	}

	chats, _, err := s.loadCollection(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, chat := range chats {
		if chat.ID == chatID {
			s.ownership.SetDefault(chatID, userID)
			return true, nil
		}
	}
	return false, nil
}

// GetChat returns the message log (with the chat's model id) for an owned
// chat id.
func (s *ChatService) GetChat(ctx context.Context, userID, chatID string) (*models.MessageLog, error) {
	owned, err := s.IsOwnedBy(ctx, userID, chatID)
	if err != nil {
		return nil, err
	}
	if !owned {
		return nil, fmt.Errorf("%w: chat %s does not belong to user %s", ErrForbidden, chatID, userID)
	}

	return s.loadLog(ctx, chatID)
}

// RenameChat updates a chat's title. Renaming is not an activity signal, so
// it neither bumps updatedAt nor reorders the collection.
func (s *ChatService) RenameChat(ctx context.Context, userID, chatID, title string) (*models.ChatSummary, error) {
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrValidation)
	}

	owned, err := s.IsOwnedBy(ctx, userID, chatID)
	if err != nil {
		return nil, err
	}
	if !owned {
		return nil, fmt.Errorf("%w: chat %s does not belong to user %s", ErrForbidden, chatID, userID)
	}

	var renamed *models.ChatSummary
	if _, err := s.updateCollection(ctx, userID, func(chats []models.ChatSummary) ([]models.ChatSummary, error) {
		for i := range chats {
			if chats[i].ID == chatID {
				chats[i].Title = title
				copied := chats[i]
				renamed = &copied
				return chats, nil
			}
		}
		return nil, fmt.Errorf("%w: chat %s", ErrNotFound, chatID)
	}); err != nil {
		return nil, err
	}

	s.events.Publish(ctx, userID, Event{Type: EventChatUpdated, ChatID: chatID})
	return renamed, nil
}

// DeleteChat removes the message log and the summary together. Deleting an
// id that is absent from every collection succeeds without error; deleting
// another user's chat is rejected.
func (s *ChatService) DeleteChat(ctx context.Context, userID, chatID string) error {
	if userID == "" || chatID == "" {
		return fmt.Errorf("%w: user ID and chat ID are required", ErrValidation)
	}

	owned, err := s.IsOwnedBy(ctx, userID, chatID)
	if err != nil {
		return err
	}
	if !owned {
		// Distinguish "gone" (idempotent success) from "someone else's"
		// (rejected): the id belongs to another user when the ownership
		// index says so, or when its log still exists.
		if owner, found := s.ownership.Get(chatID); found && owner.(string) != userID {
			return fmt.Errorf("%w: chat %s does not belong to user %s", ErrForbidden, chatID, userID)
		}
		if _, err := s.store.Get(ctx, database.MessagesKey(chatID)); err == nil {
			return fmt.Errorf("%w: chat %s does not belong to user %s", ErrForbidden, chatID, userID)
		} else if !errors.Is(err, database.ErrNotFound) {
			return fmt.Errorf("failed to check message log: %w", err)
		}
		return nil
	}

	if err := s.store.Delete(ctx, database.MessagesKey(chatID)); err != nil {
		return fmt.Errorf("failed to delete message log: %w", err)
	}

	if _, err := s.updateCollection(ctx, userID, func(chats []models.ChatSummary) ([]models.ChatSummary, error) {
		return removeChat(chats, chatID), nil
	}); err != nil {
		return err
	}

	s.ownership.Delete(chatID)
	s.events.Publish(ctx, userID, Event{Type: EventChatDeleted, ChatID: chatID})
	return nil
}

// TouchChat records activity on a chat after a completed exchange: bumps
// updatedAt, refreshes the derived message count and moves the summary to
// the front of the owner's collection.
func (s *ChatService) TouchChat(ctx context.Context, userID, chatID string, messageCount int) error {
	_, err := s.updateCollection(ctx, userID, func(chats []models.ChatSummary) ([]models.ChatSummary, error) {
		for i := range chats {
			if chats[i].ID != chatID {
				continue
			}
			chat := chats[i]
			chat.UpdatedAt = time.Now()
			chat.MessageCount = messageCount
			return append([]models.ChatSummary{chat}, removeChat(chats, chatID)...), nil
		}
		return nil, fmt.Errorf("%w: chat %s", ErrNotFound, chatID)
	})
	if err != nil {
		return err
	}

	s.events.Publish(ctx, userID, Event{Type: EventChatUpdated, ChatID: chatID})
	return nil
}

// loadCollection reads a user's collection; a missing record is an empty
// collection at version 0.
func (s *ChatService) loadCollection(ctx context.Context, userID string) ([]models.ChatSummary, int64, error) {
	rec, err := s.store.Get(ctx, database.ChatsKey(userID))
	if errors.Is(err, database.ErrNotFound) {
		return []models.ChatSummary{}, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read chat collection: %w", err)
	}

	var chats []models.ChatSummary
	if err := json.Unmarshal(rec.Data, &chats); err != nil {
		return nil, 0, fmt.Errorf("failed to parse chat collection: %w", err)
	}
	if chats == nil {
		chats = []models.ChatSummary{}
	}
	return chats, rec.Version, nil
}

func (s *ChatService) loadLog(ctx context.Context, chatID string) (*models.MessageLog, error) {
	rec, err := s.store.Get(ctx, database.MessagesKey(chatID))
	if errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("%w: message log for chat %s", ErrNotFound, chatID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read message log: %w", err)
	}

	var messageLog models.MessageLog
	if err := json.Unmarshal(rec.Data, &messageLog); err != nil {
		return nil, fmt.Errorf("failed to parse message log: %w", err)
	}
	if messageLog.Messages == nil {
		messageLog.Messages = []models.Message{}
	}
	return &messageLog, nil
}

// updateCollection applies a mutation to the user's collection under the
// store's version token, reloading and retrying on conflict.
func (s *ChatService) updateCollection(ctx context.Context, userID string, mutate func([]models.ChatSummary) ([]models.ChatSummary, error)) ([]models.ChatSummary, error) {
	for attempt := 0; attempt < casRetries; attempt++ {
		chats, version, err := s.loadCollection(ctx, userID)
		if err != nil {
			return nil, err
		}

		updated, err := mutate(chats)
		if err != nil {
			return nil, err
		}

		data, err := json.Marshal(updated)
		if err != nil {
			return nil, fmt.Errorf("failed to serialize chat collection: %w", err)
		}

		if _, err := s.store.Put(ctx, database.ChatsKey(userID), data, version); err != nil {
			if errors.Is(err, database.ErrVersionConflict) {
				continue
			}
			return nil, fmt.Errorf("failed to save chat collection: %w", err)
		}
		return updated, nil
	}
	return nil, fmt.Errorf("failed to save chat collection after %d attempts: %w", casRetries, database.ErrVersionConflict)
}

func removeChat(chats []models.ChatSummary, chatID string) []models.ChatSummary {
	filtered := make([]models.ChatSummary, 0, len(chats))
	for _, chat := range chats {
		if chat.ID != chatID {
			filtered = append(filtered, chat)
		}
	}
	return filtered
}
