// Package llm wraps the upstream chat-completion provider behind a
// streaming interface the orchestrator can consume and tests can fake.
package llm

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// Message is one role+content pair in the upstream request history.
type Message struct {
	Role    string
	Content string
}

// Roles accepted by the upstream provider.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Usage reports the provider's token accounting for one completed stream.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Request describes one streaming completion call.
type Request struct {
	// Model is the concrete upstream model name (already resolved).
	Model string

	// SystemPrompt is sent as the leading system message.
	SystemPrompt string

	// History is the ordered conversation so far, oldest first, with the
	// new user message last.
	History []Message

	// MaxTokens caps the generated output length.
	MaxTokens int
}

// Stream is one in-flight streaming completion. Recv returns text
// increments in order and io.EOF on normal completion; any other error
// means the stream failed mid-flight. Usage is valid only after Recv
// has returned io.EOF. Close must always be called.
type Stream interface {
	Recv() (string, error)
	Usage() (Usage, bool)
	Close() error
}

// Streamer opens streaming completions. The orchestrator depends on
// this interface, not on the concrete client.
type Streamer interface {
	Stream(ctx context.Context, req Request) (Stream, error)
}

// Config holds client construction options.
type Config struct {
	APIKey  string
	BaseURL string // OpenAI-compatible endpoint; empty means the provider default
}

// Client talks to an OpenAI-compatible streaming chat-completion API.
type Client struct {
	api *openai.Client
}

var _ Streamer = (*Client)(nil)

// NewClient builds a client for the configured endpoint.
func NewClient(cfg Config) *Client {
	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}
	return &Client{api: openai.NewClientWithConfig(apiCfg)}
}

// Stream opens one streaming completion call.
func (c *Client) Stream(ctx context.Context, req Request) (Stream, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.History)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}
	for _, m := range req.History {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	upstream, err := c.api.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:     req.Model,
		Messages:  messages,
		MaxTokens: req.MaxTokens,
		Stream:    true,
		StreamOptions: &openai.StreamOptions{
			IncludeUsage: true,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("opening completion stream: %w", err)
	}

	return &providerStream{inner: upstream}, nil
}

// chunkReceiver is the part of the SDK stream providerStream consumes.
// Narrowed to an interface so tests can drive the chunk handling.
type chunkReceiver interface {
	Recv() (openai.ChatCompletionStreamResponse, error)
	Close() error
}

type providerStream struct {
	inner    chunkReceiver
	usage    Usage
	hasUsage bool
}

func (s *providerStream) Recv() (string, error) {
	for {
		resp, err := s.inner.Recv()
		if err != nil {
			return "", err
		}
		// With IncludeUsage the final chunk carries usage and no choices.
		if resp.Usage != nil {
			s.usage = Usage{
				InputTokens:  resp.Usage.PromptTokens,
				OutputTokens: resp.Usage.CompletionTokens,
			}
			s.hasUsage = true
		}
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		return delta, nil
	}
}

func (s *providerStream) Usage() (Usage, bool) {
	return s.usage, s.hasUsage
}

func (s *providerStream) Close() error {
	return s.inner.Close()
}
