package llmadapter

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

// BedrockRuntimeClient mirrors the subset of the AWS Bedrock runtime client
// required by the adapter, matching *bedrockruntime.Client.
type BedrockRuntimeClient interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockAdapter implements planner.TextGenerator over the Bedrock Converse
// API.
type BedrockAdapter struct {
	runtime      BedrockRuntimeClient
	defaultModel string
}

// NewBedrockAdapter builds an adapter from an already-constructed runtime
// client.
func NewBedrockAdapter(runtime BedrockRuntimeClient, defaultModel string) (*BedrockAdapter, error) {
	if runtime == nil {
		return nil, errors.New("llmadapter: bedrock runtime client is required")
	}
	if defaultModel == "" {
		return nil, errors.New("llmadapter: default model identifier is required")
	}
	return &BedrockAdapter{runtime: runtime, defaultModel: defaultModel}, nil
}

// GenerateRawText issues a single-turn Converse call and returns the
// concatenated text content of the response message.
func (a *BedrockAdapter) GenerateRawText(ctx context.Context, prompt string) (string, error) {
	out, err := a.runtime.Converse(ctx, &bedrockruntime.ConverseInput{
		ModelId: aws.String(a.defaultModel),
		Messages: []brtypes.Message{
			{
				Role:    brtypes.ConversationRoleUser,
				Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: prompt}},
			},
		},
	})
	if err != nil {
		return "", err
	}
	output, ok := out.Output.(*brtypes.ConverseOutputMemberMessage)
	if !ok {
		return "", errors.New("llmadapter: bedrock response had no message output")
	}
	var text string
	for _, block := range output.Value.Content {
		if tb, ok := block.(*brtypes.ContentBlockMemberText); ok {
			text += tb.Value
		}
	}
	return text, nil
}
