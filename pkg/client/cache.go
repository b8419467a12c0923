package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"neurochat/internal/models"

	"github.com/google/uuid"
)

// ErrSendInFlight is returned when a send is issued for a chat that already
// has an unresolved send. The cache enforces at-most-one outstanding send
// per chat so a double-submit cannot produce interleaved optimistic state.
var ErrSendInFlight = errors.New("a send is already in flight for this chat")

const sendFailedContent = "Failed to get a response from the model. Please try again later."

// State is a point-in-time snapshot of the cache, delivered to subscribers
// after every mutation. Slices are copies; subscribers may keep them.
type State struct {
	Chats          []models.ChatSummary
	SelectedChatID string
	Messages       []models.Message

	// SendInFlight is true while the selected chat has an unresolved send,
	// so views can disable input without tracking it themselves.
	SendInFlight bool
}

// pendingOp records one optimistic mutation that has not yet been confirmed
// by the server. The rollback action is declared when the mutation is
// applied, and is executed exactly as declared if the server rejects it.
type pendingOp struct {
	id       string
	rollback func()
}

// Cache mirrors the signed-in user's chats and the selected chat's message
// log. Mutations are applied optimistically before the network call and
// reconciled against the server's response.
type Cache struct {
	api *APIClient

	mu          sync.Mutex
	chats       []models.ChatSummary
	selectedID  string
	messages    []models.Message
	pending     map[string]*pendingOp
	sendAt      map[string]bool
	subscribers map[int]func(State)
	nextSubID   int
}

// NewCache creates a cache bound to one signed-in user's API client.
func NewCache(api *APIClient) *Cache {
	return &Cache{
		api:         api,
		pending:     make(map[string]*pendingOp),
		sendAt:      make(map[string]bool),
		subscribers: make(map[int]func(State)),
	}
}

// Subscribe registers a listener invoked with a state snapshot after every
// mutation. The returned function removes the listener.
func (c *Cache) Subscribe(fn func(State)) func() {
	c.mu.Lock()
	id := c.nextSubID
	c.nextSubID++
	c.subscribers[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subscribers, id)
		c.mu.Unlock()
	}
}

// Snapshot returns the current state.
func (c *Cache) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Cache) snapshotLocked() State {
	chats := make([]models.ChatSummary, len(c.chats))
	copy(chats, c.chats)
	messages := make([]models.Message, len(c.messages))
	copy(messages, c.messages)
	return State{
		Chats:          chats,
		SelectedChatID: c.selectedID,
		Messages:       messages,
		SendInFlight:   c.sendAt[c.selectedID],
	}
}

// notifyLocked delivers the current snapshot to all subscribers. Callers
// hold c.mu; handlers run synchronously and must not call back into the
// cache.
func (c *Cache) notifyLocked() {
	state := c.snapshotLocked()
	for _, fn := range c.subscribers {
		fn(state)
	}
}

func (c *Cache) beginOpLocked(rollback func()) string {
	op := &pendingOp{id: uuid.NewString(), rollback: rollback}
	c.pending[op.id] = op
	return op.id
}

// resolveOp finishes a pending operation: on failure the declared rollback
// runs, on success the op is simply discarded.
func (c *Cache) resolveOp(opID string, failed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	op, ok := c.pending[opID]
	if !ok {
		return
	}
	delete(c.pending, opID)
	if failed && op.rollback != nil {
		op.rollback()
	}
	c.notifyLocked()
}

// FetchChats replaces the cached collection with the server's.
func (c *Cache) FetchChats(ctx context.Context) error {
	chats, err := c.api.FetchChats(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.chats = chats
	c.notifyLocked()
	c.mu.Unlock()
	return nil
}

// SelectChat fetches the authoritative message log for the chat and makes
// it the current selection, superseding any prior selection's messages.
func (c *Cache) SelectChat(ctx context.Context, chatID string) error {
	messageLog, err := c.api.GetChat(ctx, chatID)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.selectedID = chatID
	c.messages = messageLog.Messages
	c.notifyLocked()
	c.mu.Unlock()
	return nil
}

// CreateChat inserts a placeholder summary at the front of the collection,
// then asks the server to create the chat. On success the placeholder is
// replaced with the server's summary; on failure it is removed.
func (c *Cache) CreateChat(ctx context.Context, title, model string) (*models.ChatSummary, error) {
	now := time.Now()
	placeholder := models.ChatSummary{
		ID:        "pending-" + uuid.NewString(),
		Title:     title,
		Model:     model,
		CreatedAt: now,
		UpdatedAt: now,
	}

	c.mu.Lock()
	c.chats = append([]models.ChatSummary{placeholder}, c.chats...)
	opID := c.beginOpLocked(func() {
		c.removeChatLocked(placeholder.ID)
	})
	c.notifyLocked()
	c.mu.Unlock()

	summary, err := c.api.CreateChat(ctx, title, model)
	if err != nil {
		c.resolveOp(opID, true)
		return nil, err
	}

	c.mu.Lock()
	for i := range c.chats {
		if c.chats[i].ID == placeholder.ID {
			c.chats[i] = *summary
			break
		}
	}
	c.mu.Unlock()
	c.resolveOp(opID, false)
	return summary, nil
}

// RenameChat applies the new title to the local summary immediately, then
// asks the server to rename. On failure the declared rollback restores the
// previous title.
func (c *Cache) RenameChat(ctx context.Context, chatID, title string) error {
	c.mu.Lock()
	var oldTitle string
	found := false
	for i := range c.chats {
		if c.chats[i].ID == chatID {
			oldTitle = c.chats[i].Title
			c.chats[i].Title = title
			found = true
			break
		}
	}
	if !found {
		c.mu.Unlock()
		return fmt.Errorf("chat %s is not in the local collection", chatID)
	}
	opID := c.beginOpLocked(func() {
		for i := range c.chats {
			if c.chats[i].ID == chatID {
				c.chats[i].Title = oldTitle
				return
			}
		}
	})
	c.notifyLocked()
	c.mu.Unlock()

	summary, err := c.api.RenameChat(ctx, chatID, title)
	if err != nil {
		c.resolveOp(opID, true)
		return err
	}

	c.mu.Lock()
	for i := range c.chats {
		if c.chats[i].ID == chatID {
			c.chats[i] = *summary
			break
		}
	}
	c.mu.Unlock()
	c.resolveOp(opID, false)
	return nil
}

// DeleteChat removes the chat from the local collection immediately. If the
// server rejects the delete the entry is not re-inserted; instead the whole
// collection is re-fetched so local state recovers server truth.
func (c *Cache) DeleteChat(ctx context.Context, chatID string) error {
	c.mu.Lock()
	c.removeChatLocked(chatID)
	if c.selectedID == chatID {
		c.selectedID = ""
		c.messages = nil
	}
	opID := c.beginOpLocked(nil)
	c.notifyLocked()
	c.mu.Unlock()

	err := c.api.DeleteChat(ctx, chatID)
	c.resolveOp(opID, err != nil)
	if err != nil {
		if refetchErr := c.FetchChats(ctx); refetchErr != nil {
			return fmt.Errorf("delete failed and reconciliation failed: %w", errors.Join(err, refetchErr))
		}
		return err
	}
	return nil
}

// Send appends an unconfirmed user message to the selected chat's log and
// runs the exchange. On success the server's reply is appended and the
// optimistic user message stays in place. On failure the user message is
// still not retracted: the declared rollback appends an error-flagged
// assistant message instead, so the missing reply is visible in the log.
//
// An empty selection sends without a chat id, letting the server create a
// new chat from the message; the new chat becomes the selection.
func (c *Cache) Send(ctx context.Context, content, model string) (*models.SendMessageResponse, error) {
	c.mu.Lock()
	chatID := c.selectedID
	if c.sendAt[chatID] {
		c.mu.Unlock()
		return nil, ErrSendInFlight
	}
	c.sendAt[chatID] = true

	userMessage := models.Message{
		Role:      models.RoleUser,
		Content:   content,
		Timestamp: time.Now(),
	}
	c.messages = append(c.messages, userMessage)
	opID := c.beginOpLocked(func() {
		c.messages = append(c.messages, models.Message{
			Role:      models.RoleAssistant,
			Content:   sendFailedContent,
			Timestamp: time.Now(),
			IsError:   true,
		})
	})
	c.notifyLocked()
	c.mu.Unlock()

	resp, err := c.api.SendMessage(ctx, chatID, content, model)

	c.mu.Lock()
	delete(c.sendAt, chatID)
	c.mu.Unlock()

	if err != nil {
		c.resolveOp(opID, true)
		return nil, err
	}

	c.mu.Lock()
	c.messages = append(c.messages, models.Message{
		Role:      models.RoleAssistant,
		Content:   resp.Response,
		Timestamp: time.Now(),
		IsError:   resp.IsError,
	})
	c.selectedID = resp.ChatID
	c.touchChatLocked(resp.ChatID, len(c.messages))
	c.mu.Unlock()
	c.resolveOp(opID, false)
	return resp, nil
}

// removeChatLocked drops a summary from the collection if present.
func (c *Cache) removeChatLocked(chatID string) {
	for i := range c.chats {
		if c.chats[i].ID == chatID {
			c.chats = append(c.chats[:i], c.chats[i+1:]...)
			return
		}
	}
}

// touchChatLocked mirrors the server's summary update: bump updatedAt and
// messageCount and move the chat to the front. A chat id not yet in the
// collection (server-created during this send) gets a minimal entry; the
// next FetchChats replaces it with the authoritative one.
func (c *Cache) touchChatLocked(chatID string, messageCount int) {
	for i := range c.chats {
		if c.chats[i].ID == chatID {
			summary := c.chats[i]
			summary.UpdatedAt = time.Now()
			summary.MessageCount = messageCount
			c.chats = append(c.chats[:i], c.chats[i+1:]...)
			c.chats = append([]models.ChatSummary{summary}, c.chats...)
			return
		}
	}
	now := time.Now()
	c.chats = append([]models.ChatSummary{{
		ID:           chatID,
		CreatedAt:    now,
		UpdatedAt:    now,
		MessageCount: messageCount,
	}}, c.chats...)
}
