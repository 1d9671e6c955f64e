package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/ahcdata/snowpilot/internal/config"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// mockChat captures the request and returns a canned completion.
type mockChat struct {
	params openai.ChatCompletionNewParams
	resp   *openai.ChatCompletion
	err    error
}

func (m *mockChat) New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error) {
	m.params = params
	if m.err != nil {
		return nil, m.err
	}
	return m.resp, nil
}

func newTestClient(chat ChatService) *Client {
	return &Client{
		chat:        chat,
		model:       "llama-3.3-70b-versatile",
		temperature: 0.7,
		maxTokens:   1024,
	}
}

func TestComplete(t *testing.T) {
	mock := &mockChat{resp: &openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: `{"function_name": "query_snowflake", "function_parms": {"query": "SELECT 1"}}`}},
		},
		Usage: openai.CompletionUsage{TotalTokens: 137},
	}}
	client := newTestClient(mock)

	history := []Message{
		{Role: RoleUser, Content: "how many orders?"},
		{Role: RoleAssistant, Content: "There were 42."},
		{Role: RoleUser, Content: "and the month before?"},
	}

	content, tokens, err := client.Complete(context.Background(), "system instruction", history)
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if content == "" || tokens != 137 {
		t.Errorf("Complete() = (%q, %d), want content and total usage", content, tokens)
	}

	if got := mock.params.Model.Value; got != "llama-3.3-70b-versatile" {
		t.Errorf("model = %q", got)
	}
	if got := mock.params.Temperature.Value; got != 0.7 {
		t.Errorf("temperature = %v", got)
	}
	if got := mock.params.MaxTokens.Value; got != 1024 {
		t.Errorf("max tokens = %d", got)
	}

	// System message first, then the history in order.
	if got := len(mock.params.Messages.Value); got != len(history)+1 {
		t.Errorf("messages = %d, want system plus %d history entries", got, len(history))
	}
}

func TestComplete_APIError(t *testing.T) {
	client := newTestClient(&mockChat{err: errors.New("rate limited")})

	if _, _, err := client.Complete(context.Background(), "system", nil); err == nil {
		t.Fatal("API failure must surface as an error")
	}
}

func TestComplete_NoChoices(t *testing.T) {
	client := newTestClient(&mockChat{resp: &openai.ChatCompletion{
		Usage: openai.CompletionUsage{TotalTokens: 12},
	}})

	_, tokens, err := client.Complete(context.Background(), "system", nil)
	if err == nil {
		t.Fatal("empty choices must surface as an error")
	}
	if tokens != 12 {
		t.Errorf("tokens = %d, usage is still reported on empty choices", tokens)
	}
}

func TestNewClient(t *testing.T) {
	client := NewClient(config.LLMConfig{
		APIKey:      "gsk_test",
		BaseURL:     "https://api.groq.com/openai/v1",
		Model:       "llama-3.3-70b-versatile",
		Temperature: 0.5,
		MaxTokens:   512,
	})

	if client.ModelName() != "llama-3.3-70b-versatile" {
		t.Errorf("ModelName() = %q", client.ModelName())
	}
	if client.chat == nil {
		t.Error("client should wrap the chat completions service")
	}
}
