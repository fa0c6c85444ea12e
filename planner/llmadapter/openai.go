package llmadapter

import (
	"context"
	"errors"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIChatClient captures the subset of the openai-go client used by the
// adapter, matching client.Chat.Completions.
type OpenAIChatClient interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// OpenAIAdapter implements planner.TextGenerator over Chat Completions.
type OpenAIAdapter struct {
	chat         OpenAIChatClient
	defaultModel string
}

// NewOpenAIAdapter builds an adapter from an already-constructed chat
// completions client.
func NewOpenAIAdapter(chat OpenAIChatClient, defaultModel string) (*OpenAIAdapter, error) {
	if chat == nil {
		return nil, errors.New("llmadapter: openai client is required")
	}
	if defaultModel == "" {
		return nil, errors.New("llmadapter: default model is required")
	}
	return &OpenAIAdapter{chat: chat, defaultModel: defaultModel}, nil
}

// NewOpenAIAdapterFromAPIKey constructs an adapter using the default
// openai-go HTTP client.
func NewOpenAIAdapterFromAPIKey(apiKey, defaultModel string) (*OpenAIAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("llmadapter: api key is required")
	}
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return NewOpenAIAdapter(&client.Chat.Completions, defaultModel)
}

// GenerateRawText issues a single-turn chat completion and returns the first
// choice's message content.
func (a *OpenAIAdapter) GenerateRawText(ctx context.Context, prompt string) (string, error) {
	resp, err := a.chat.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(a.defaultModel),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("llmadapter: openai response contained no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
