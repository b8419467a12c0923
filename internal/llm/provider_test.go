package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"neurochat/internal/models"
)

func TestOpenAIProviderReply(t *testing.T) {
	var gotPath string
	var gotBody chatCompletionRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": "  Hello back!  "}},
			},
		})
	}))
	defer server.Close()

	provider := NewOpenAIProvider(server.URL, "test-key", 5*time.Second)
	history := []models.Message{
		{Role: models.RoleUser, Content: "Hello"},
		{Role: models.RoleAssistant, Content: "previous failure", IsError: true},
	}

	reply, err := provider.Reply(context.Background(), "gpt-4o", history)
	if err != nil {
		t.Fatalf("Reply failed: %v", err)
	}
	if reply != "Hello back!" {
		t.Errorf("Expected trimmed reply, got %q", reply)
	}
	if gotPath != "/chat/completions" {
		t.Errorf("Unexpected path: %s", gotPath)
	}
	if gotBody.Model != "gpt-4o" {
		t.Errorf("Unexpected model: %s", gotBody.Model)
	}
	// Error-flagged messages are stripped from the history sent upstream.
	if len(gotBody.Messages) != 1 {
		t.Errorf("Expected 1 message sent upstream, got %d", len(gotBody.Messages))
	}
}

func TestOpenAIProviderUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"overloaded"}`, http.StatusServiceUnavailable)
	}))
	defer server.Close()

	provider := NewOpenAIProvider(server.URL, "", 5*time.Second)
	_, err := provider.Reply(context.Background(), "gpt-4o", []models.Message{{Role: models.RoleUser, Content: "hi"}})
	if err == nil {
		t.Fatal("Expected error for non-200 response")
	}
}

func TestOpenAIProviderTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	provider := NewOpenAIProvider(server.URL, "", 5*time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := provider.Reply(ctx, "gpt-4o", []models.Message{{Role: models.RoleUser, Content: "hi"}})
	if err == nil {
		t.Fatal("Expected error when the context deadline expires")
	}
}

func TestStubProvider(t *testing.T) {
	reply, err := StubProvider{}.Reply(context.Background(), "gpt-4o", []models.Message{
		{Role: models.RoleUser, Content: "ping"},
	})
	if err != nil {
		t.Fatalf("Reply failed: %v", err)
	}
	if reply == "" {
		t.Error("Expected non-empty stub reply")
	}
}
