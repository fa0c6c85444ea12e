// Package llmadapter provides TextGenerator implementations over the three
// LLM SDKs the teacher repository carries for its own agent runtime
// (Anthropic, OpenAI, AWS Bedrock), each narrowed to the single
// GenerateRawText call the Planner needs.
package llmadapter

import (
	"context"
	"errors"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicMessagesClient captures the subset of the Anthropic SDK client
// used by the adapter, matching *sdk.MessageService so callers can pass
// either a real client or a mock in tests.
type AnthropicMessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// AnthropicAdapter implements planner.TextGenerator over Claude Messages.
type AnthropicAdapter struct {
	msg          AnthropicMessagesClient
	defaultModel string
	maxTokens    int64
}

// NewAnthropicAdapter builds an adapter from an already-constructed Messages
// client.
func NewAnthropicAdapter(msg AnthropicMessagesClient, defaultModel string, maxTokens int64) (*AnthropicAdapter, error) {
	if msg == nil {
		return nil, errors.New("llmadapter: anthropic client is required")
	}
	if defaultModel == "" {
		return nil, errors.New("llmadapter: default model identifier is required")
	}
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &AnthropicAdapter{msg: msg, defaultModel: defaultModel, maxTokens: maxTokens}, nil
}

// NewAnthropicAdapterFromAPIKey constructs an adapter using the default
// Anthropic HTTP client, reading ANTHROPIC_API_KEY conventions from apiKey.
func NewAnthropicAdapterFromAPIKey(apiKey, defaultModel string) (*AnthropicAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("llmadapter: api key is required")
	}
	client := sdk.NewClient(option.WithAPIKey(apiKey))
	return NewAnthropicAdapter(&client.Messages, defaultModel, 4096)
}

// GenerateRawText issues a single-turn completion and returns the
// concatenated text content of the response.
func (a *AnthropicAdapter) GenerateRawText(ctx context.Context, prompt string) (string, error) {
	msg, err := a.msg.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(a.defaultModel),
		MaxTokens: a.maxTokens,
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", err
	}
	var out string
	for _, block := range msg.Content {
		if block.Type == "text" {
			out += block.Text
		}
	}
	return out, nil
}
