package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"neurochat/internal/models"
)

// APIError carries the HTTP status and server-supplied message of a failed
// API call.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// APIClient is a thin HTTP wrapper over the chat API. All calls carry the
// bearer token of the signed-in user.
type APIClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewAPIClient creates an API client for the given server and access token.
func NewAPIClient(baseURL, token string) *APIClient {
	return &APIClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 90 * time.Second,
		},
	}
}

func (c *APIClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errBody struct {
			Error string `json:"error"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		json.Unmarshal(raw, &errBody)
		if errBody.Error == "" {
			errBody.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: errBody.Error}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// FetchChats returns the authoritative chat collection.
func (c *APIClient) FetchChats(ctx context.Context) ([]models.ChatSummary, error) {
	var resp models.ChatListResponse
	if err := c.do(ctx, http.MethodGet, "/api/chats", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Chats, nil
}

// CreateChat creates a new empty chat on the server.
func (c *APIClient) CreateChat(ctx context.Context, title, model string) (*models.ChatSummary, error) {
	var summary models.ChatSummary
	req := models.CreateChatRequest{Title: title, Model: model}
	if err := c.do(ctx, http.MethodPost, "/api/chats", req, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// GetChat returns a chat's full message log.
func (c *APIClient) GetChat(ctx context.Context, chatID string) (*models.MessageLog, error) {
	var messageLog models.MessageLog
	if err := c.do(ctx, http.MethodGet, "/api/chats/"+chatID, nil, &messageLog); err != nil {
		return nil, err
	}
	return &messageLog, nil
}

// RenameChat updates a chat's title.
func (c *APIClient) RenameChat(ctx context.Context, chatID, title string) (*models.ChatSummary, error) {
	var summary models.ChatSummary
	req := models.RenameChatRequest{Title: title}
	if err := c.do(ctx, http.MethodPatch, "/api/chats/"+chatID, req, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// DeleteChat removes a chat.
func (c *APIClient) DeleteChat(ctx context.Context, chatID string) error {
	return c.do(ctx, http.MethodDelete, "/api/chats/"+chatID, nil, nil)
}

// SendMessage runs one exchange. An empty chat id asks the server to create
// a new chat from the message.
func (c *APIClient) SendMessage(ctx context.Context, chatID, content, model string) (*models.SendMessageResponse, error) {
	var resp models.SendMessageResponse
	req := models.SendMessageRequest{ChatID: chatID, Content: content, Model: model}
	if err := c.do(ctx, http.MethodPost, "/api/messages", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
