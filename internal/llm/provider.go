package llm

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

// Provider produces one assistant reply for a model id and a message
// history. Implementations must respect the context deadline; the exchange
// pipeline converts any failure into an error-flagged assistant message.
type Provider interface {
	Reply(ctx context.Context, model string, history []models.Message) (string, error)
}

// OpenAIProvider talks to an OpenAI-compatible /chat/completions endpoint.
type OpenAIProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewOpenAIProvider creates a provider for the given endpoint. The timeout
// bounds every Reply call so a hanging upstream cannot block an exchange
// indefinitely.
func NewOpenAIProvider(baseURL, apiKey string, timeout time.Duration) *OpenAIProvider {
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &OpenAIProvider{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

type chatCompletionRequest struct {
	Model    string                  `json:"model"`
	Messages []chatCompletionMessage `json:"messages"`
	Stream   bool                    `json:"stream"`
}

type chatCompletionMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (p *OpenAIProvider) Reply(ctx context.Context, model string, history []models.Message) (string, error) {
	apiMessages := make([]chatCompletionMessage, 0, len(history))
	for _, msg := range history {
		// Error placeholders are conversation furniture, not model input.
		if msg.IsError {
			continue
		}
		apiMessages = append(apiMessages, chatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}

	reqBody, err := json.Marshal(chatCompletionRequest{
		Model:    model,
		Messages: apiMessages,
		Stream:   false,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/chat/completions", bytes.NewBuffer(reqBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("model request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("model API error (status %d): %s", resp.StatusCode, string(body))
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("model returned no choices")
	}

	return strings.TrimSpace(result.Choices[0].Message.Content), nil
}

// StubProvider returns canned replies without a network dependency. Used in
// development when no API key is configured, and in tests.
type StubProvider struct{}

func (StubProvider) Reply(ctx context.Context, model string, history []models.Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	last := ""
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == models.RoleUser {
			last = history[i].Content
			break
		}
	}
	return fmt.Sprintf("This is a stub reply from %s to: %s", model, last), nil
}
