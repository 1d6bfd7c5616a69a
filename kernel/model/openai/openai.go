// Package openai adapts OpenAI's chat completions API to model.ChatModel.
package openai

import (
	"context"
	"fmt"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/flowkit/kernel/kernel/model"
)

// ChatModel implements model.ChatModel against OpenAI's streaming chat
// completions endpoint.
type ChatModel struct {
	client    openaisdk.Client
	modelName string
}

// NewChatModel returns a ChatModel for modelName (empty uses "gpt-4o"),
// authenticating with apiKey.
func NewChatModel(apiKey, modelName string) *ChatModel {
	if modelName == "" {
		modelName = "gpt-4o"
	}
	return &ChatModel{
		client:    openaisdk.NewClient(option.WithAPIKey(apiKey)),
		modelName: modelName,
	}
}

func (m *ChatModel) Chat(ctx context.Context, messages []model.Message, tools []model.ToolSpec) (<-chan model.Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	params := openaisdk.ChatCompletionNewParams{
		Model:    shared.ChatModel(m.modelName),
		Messages: toOpenAIMessages(messages),
	}
	if len(tools) > 0 {
		params.Tools = toOpenAITools(tools)
	}

	stream := m.client.Chat.Completions.NewStreaming(ctx, params)
	out := make(chan model.Chunk, 8)

	go func() {
		defer close(out)
		var usage model.Usage
		var pendingCall *model.ToolCall
		for stream.Next() {
			chunk := stream.Current()
			if chunk.Usage.PromptTokens > 0 {
				usage.PromptTokens = int(chunk.Usage.PromptTokens)
				usage.CompletionTokens = int(chunk.Usage.CompletionTokens)
			}
			for _, choice := range chunk.Choices {
				if choice.Delta.Content != "" {
					out <- model.Chunk{ContentDelta: choice.Delta.Content}
				}
				for _, tc := range choice.Delta.ToolCalls {
					if pendingCall == nil {
						pendingCall = &model.ToolCall{Name: tc.Function.Name}
					}
					if tc.Function.Arguments != "" {
						out <- model.Chunk{ToolCall: pendingCall}
					}
				}
			}
		}
		if err := stream.Err(); err != nil {
			out <- model.Chunk{Err: fmt.Errorf("openai stream error: %w", err)}
			return
		}
		out <- model.Chunk{Done: true, Usage: &usage}
	}()

	return out, nil
}

func toOpenAIMessages(messages []model.Message) []openaisdk.ChatCompletionMessageParamUnion {
	out := make([]openaisdk.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			out = append(out, openaisdk.SystemMessage(msg.Content))
		case model.RoleAssistant:
			out = append(out, openaisdk.AssistantMessage(msg.Content))
		default:
			out = append(out, openaisdk.UserMessage(msg.Content))
		}
	}
	return out
}

func toOpenAITools(tools []model.ToolSpec) []openaisdk.ChatCompletionToolParam {
	out := make([]openaisdk.ChatCompletionToolParam, 0, len(tools))
	for _, t := range tools {
		out = append(out, openaisdk.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        t.Name,
				Description: openaisdk.String(t.Description),
				Parameters:  shared.FunctionParameters(t.Schema),
			},
		})
	}
	return out
}
