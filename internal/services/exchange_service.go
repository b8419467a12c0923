package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"neurochat/internal/database"
	"neurochat/internal/llm"
	"neurochat/internal/logging"
	"neurochat/internal/models"
)

// titleLimit is how much of the first message becomes a new chat's title.
const titleLimit = 30

// replyErrorContent is persisted as the assistant message when the model
// collaborator fails or times out. The log stays complete and inspectable;
// errors are data, not silent drops.
const replyErrorContent = "Failed to get a response from the model. Please try again later."

// ExchangeService orchestrates one request/response cycle: append the user
// message, obtain a reply, append the reply, update the owning chat's
// summary. All mutations for a given chat id go through a per-chat mutex so
// two concurrent exchanges cannot discard each other's appends.
type ExchangeService struct {
	chats        *ChatService
	store        database.Store
	provider     llm.Provider
	defaultModel string
	replyTimeout time.Duration

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewExchangeService creates the exchange pipeline. replyTimeout bounds the
// model collaborator call; zero means 60 seconds.
func NewExchangeService(chats *ChatService, store database.Store, provider llm.Provider, defaultModel string, replyTimeout time.Duration) *ExchangeService {
	if replyTimeout == 0 {
		replyTimeout = 60 * time.Second
	}
	return &ExchangeService{
		chats:        chats,
		store:        store,
		provider:     provider,
		defaultModel: defaultModel,
		replyTimeout: replyTimeout,
		locks:        make(map[string]*sync.Mutex),
	}
}

// Send runs one exchange for the user. When req.ChatID is empty a new chat
// is created first, titled from the message content. A model failure does
// not fail the exchange: the error reply is persisted and returned with
// IsError set.
func (s *ExchangeService) Send(ctx context.Context, userID string, req *models.SendMessageRequest) (*models.SendMessageResponse, error) {
	start := time.Now()
	if m := GetMetrics(); m != nil {
		m.ExchangeRequests.Inc()
		defer func() { m.ExchangeLatency.Observe(time.Since(start).Seconds()) }()
	}

	if userID == "" {
		return nil, fmt.Errorf("%w: user ID is required", ErrValidation)
	}
	if strings.TrimSpace(req.Content) == "" {
		s.countError("validation")
		return nil, fmt.Errorf("%w: message content cannot be empty", ErrValidation)
	}

	chatID := req.ChatID
	if chatID == "" {
		model := req.Model
		if model == "" {
			model = s.defaultModel
		}
		summary, err := s.chats.CreateChat(ctx, userID, deriveTitle(req.Content), model)
		if err != nil {
			s.countError("persistence")
			return nil, err
		}
		if m := GetMetrics(); m != nil {
			m.ChatsCreated.Inc()
		}
		chatID = summary.ID
	} else {
		owned, err := s.chats.IsOwnedBy(ctx, userID, chatID)
		if err != nil {
			return nil, err
		}
		if !owned {
			s.countError("authorization")
			return nil, fmt.Errorf("%w: chat %s does not belong to user %s", ErrForbidden, chatID, userID)
		}
	}

	// Serialize all mutations to this chat id. Exchanges on different
	// chats proceed in parallel.
	lock := s.chatLock(chatID)
	lock.Lock()
	defer lock.Unlock()

	logger := logging.WithChat(chatID, userID)

	messageLog, version, err := s.loadLogWithVersion(ctx, chatID)
	if err != nil {
		return nil, err
	}

	// AppendUser. A persistence failure here aborts the exchange before a
	// reply is attempted; the chat summary stays untouched.
	userMessage := models.Message{
		Role:      models.RoleUser,
		Content:   req.Content,
		Timestamp: time.Now(),
	}
	messageLog.Messages = append(messageLog.Messages, userMessage)
	version, err = s.saveLog(ctx, chatID, messageLog, version)
	if err != nil {
		s.countError("persistence")
		return nil, fmt.Errorf("failed to persist user message: %w", err)
	}

	// RequestReply with an explicit deadline: a hanging upstream
	// deterministically takes the error-reply path.
	model := req.Model
	if model == "" {
		model = messageLog.Model
	}
	if model == "" {
		model = s.defaultModel
	}

	replyCtx, cancel := context.WithTimeout(ctx, s.replyTimeout)
	replyText, replyErr := s.provider.Reply(replyCtx, model, messageLog.Messages)
	cancel()

	assistantMessage := models.Message{
		Role:      models.RoleAssistant,
		Content:   replyText,
		Timestamp: time.Now(),
	}
	if replyErr != nil {
		logger.Warn("model reply failed", "model", model, "error", replyErr)
		s.countError("upstream")
		assistantMessage.Content = replyErrorContent
		assistantMessage.IsError = true
	}

	// AppendAssistant.
	messageLog.Messages = append(messageLog.Messages, assistantMessage)
	if _, err := s.saveLog(ctx, chatID, messageLog, version); err != nil {
		s.countError("persistence")
		return nil, fmt.Errorf("failed to persist assistant message: %w", err)
	}

	// UpdateSummary: the log is the source of truth, the summary caches
	// derived fields from it.
	if err := s.chats.TouchChat(ctx, userID, chatID, len(messageLog.Messages)); err != nil {
		s.countError("persistence")
		return nil, fmt.Errorf("failed to update chat summary: %w", err)
	}

	logger.Debug("exchange completed", "messages", len(messageLog.Messages), "upstream_error", replyErr != nil)

	return &models.SendMessageResponse{
		ChatID:   chatID,
		Response: assistantMessage.Content,
		IsError:  assistantMessage.IsError,
	}, nil
}

func (s *ExchangeService) loadLogWithVersion(ctx context.Context, chatID string) (*models.MessageLog, int64, error) {
	rec, err := s.store.Get(ctx, database.MessagesKey(chatID))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, 0, fmt.Errorf("%w: message log for chat %s", ErrNotFound, chatID)
		}
		return nil, 0, fmt.Errorf("failed to read message log: %w", err)
	}

	var messageLog models.MessageLog
	if err := json.Unmarshal(rec.Data, &messageLog); err != nil {
		return nil, 0, fmt.Errorf("failed to parse message log: %w", err)
	}
	if messageLog.Messages == nil {
		messageLog.Messages = []models.Message{}
	}
	return &messageLog, rec.Version, nil
}

func (s *ExchangeService) saveLog(ctx context.Context, chatID string, messageLog *models.MessageLog, version int64) (int64, error) {
	data, err := json.Marshal(messageLog)
	if err != nil {
		return 0, fmt.Errorf("failed to serialize message log: %w", err)
	}
	return s.store.Put(ctx, database.MessagesKey(chatID), data, version)
}

// chatLock returns the mutex serializing writes to one chat id.
func (s *ExchangeService) chatLock(chatID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[chatID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[chatID] = lock
	}
	return lock
}

func (s *ExchangeService) countError(errorType string) {
	if m := GetMetrics(); m != nil {
		m.ExchangeErrors.WithLabelValues(errorType).Inc()
	}
}

// deriveTitle builds a new chat's title from the first message: the first 30
// characters plus an ellipsis marker when truncated.
func deriveTitle(content string) string {
	runes := []rune(strings.TrimSpace(content))
	if len(runes) > titleLimit {
		return string(runes[:titleLimit]) + "..."
	}
	return string(runes)
}
