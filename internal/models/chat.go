package models

import "time"

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatSummary describes one conversation without its content (title, model,
// timestamps, message count). It lives inside exactly one user's collection.
type ChatSummary struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Title        string    `json:"title"`
	Model        string    `json:"model"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
}

// Message is a single entry in a chat's log. Messages are immutable once
// written. IsError marks a synthesized assistant reply produced when the
// model call failed.
type Message struct {
	Role      string    `json:"role"` // "user" or "assistant"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	IsError   bool      `json:"is_error,omitempty"`
}

// MessageLog is the ordered, append-only sequence of messages belonging to
// one chat. The log also carries the chat's model id so a single fetch is
// enough to resume a conversation.
type MessageLog struct {
	ChatID   string    `json:"chat_id"`
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
}

// CreateChatRequest is the request body for creating a chat explicitly.
type CreateChatRequest struct {
	Title string `json:"title"`
	Model string `json:"model"`
}

// RenameChatRequest is the request body for renaming a chat.
type RenameChatRequest struct {
	Title string `json:"title"`
}

// SendMessageRequest is the request body for one exchange. ChatID may be
// empty, in which case a new chat is created from the message content.
type SendMessageRequest struct {
	ChatID  string `json:"chat_id,omitempty"`
	Content string `json:"content"`
	Model   string `json:"model,omitempty"`
}

// SendMessageResponse is returned after a completed exchange.
type SendMessageResponse struct {
	ChatID   string `json:"chat_id"`
	Response string `json:"response"`
	IsError  bool   `json:"is_error,omitempty"`
}

// ChatListResponse wraps a user's chat collection, most recently updated
// first.
type ChatListResponse struct {
	Chats      []ChatSummary `json:"chats"`
	TotalCount int           `json:"total_count"`
}

// ModelInfo describes one selectable model from the catalog file.
type ModelInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Provider string `json:"provider"`
}

// ModelCatalog is the parsed models configuration file.
type ModelCatalog struct {
	Models       []ModelInfo `json:"models"`
	DefaultModel string      `json:"default_model"`
}
