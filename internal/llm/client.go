// Package llm wraps the chat-completions API used for SQL generation and
// result summarization. The Groq endpoint is OpenAI-compatible, so the
// client is the standard openai-go client pointed at a configurable base
// URL.
package llm

import (
	"context"
	"fmt"

	"github.com/ahcdata/snowpilot/internal/config"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Role values for conversation messages.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry in the running conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Completer is the contract the session layer depends on: one blocking
// model call returning the response body and the total tokens it consumed.
type Completer interface {
	Complete(ctx context.Context, system string, history []Message) (content string, tokens int64, err error)
}

// Compile-time interface check
var _ Completer = (*Client)(nil)

// ChatService defines the interface for making chat completion API calls.
// This abstraction enables testing without calling the real API.
type ChatService interface {
	New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Client implements Completer on top of the OpenAI-compatible API.
type Client struct {
	chat        ChatService
	model       string
	temperature float64
	maxTokens   int64
}

// NewClient creates a chat client from configuration.
func NewClient(cfg config.LLMConfig) *Client {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := openai.NewClient(opts...)

	return &Client{
		chat:        client.Chat.Completions,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}
}

// Complete sends the system instruction plus the conversation history and
// returns the first choice's content together with total token usage.
func (c *Client) Complete(ctx context.Context, system string, history []Message) (string, int64, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+1)
	messages = append(messages, openai.SystemMessage(system))
	for _, m := range history {
		switch m.Role {
		case RoleAssistant:
			messages = append(messages, openai.AssistantMessage(m.Content))
		default:
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}

	resp, err := c.chat.New(ctx, openai.ChatCompletionNewParams{
		Messages:    openai.F(messages),
		Model:       openai.F(openai.ChatModel(c.model)),
		Temperature: openai.F(c.temperature),
		MaxTokens:   openai.F(c.maxTokens),
	})
	if err != nil {
		return "", 0, fmt.Errorf("chat completion failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", resp.Usage.TotalTokens, fmt.Errorf("chat completion failed: no choices returned")
	}

	return resp.Choices[0].Message.Content, resp.Usage.TotalTokens, nil
}

// ModelName returns the configured chat model name.
func (c *Client) ModelName() string {
	return c.model
}
