package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	DefaultModel     = anthropic.ModelClaude4Sonnet20250514
	DefaultMaxTokens = 512
)

type Client struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

type Option func(*Client)

func WithModel(model anthropic.Model) Option {
	return func(c *Client) { c.model = model }
}

func WithMaxTokens(n int64) Option {
	return func(c *Client) { c.maxTokens = n }
}

func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:     DefaultModel,
		maxTokens: DefaultMaxTokens,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Complete sends a single user prompt and returns the text of the reply.
func (c *Client) Complete(ctx context.Context, system, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", fmt.Errorf("prompt cannot be empty")
	}

	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic api: %w", err)
	}

	if len(resp.Content) == 0 {
		return "", fmt.Errorf("anthropic returned empty content")
	}

	switch block := resp.Content[0]; block.Type {
	case "text":
		return strings.TrimSpace(block.Text), nil
	default:
		return "", fmt.Errorf("unexpected content block type: %s", block.Type)
	}
}
