// Package anthropic adapts Anthropic's Claude API to model.ChatModel.
package anthropic

import (
	"context"
	"fmt"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/flowkit/kernel/kernel/model"
)

// ChatModel implements model.ChatModel against Anthropic's Messages API,
// using its streaming endpoint so the agent executor can forward
// thinking/content deltas as they arrive.
type ChatModel struct {
	client    anthropicsdk.Client
	modelName string
}

// NewChatModel returns a ChatModel for modelName (empty uses Anthropic's
// current default Sonnet release), authenticating with apiKey.
func NewChatModel(apiKey, modelName string) *ChatModel {
	if modelName == "" {
		modelName = "claude-sonnet-4-5-20250929"
	}
	return &ChatModel{
		client:    anthropicsdk.NewClient(option.WithAPIKey(apiKey)),
		modelName: modelName,
	}
}

func (m *ChatModel) Chat(ctx context.Context, messages []model.Message, tools []model.ToolSpec) (<-chan model.Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	systemPrompt, turns := extractSystemPrompt(messages)
	params := anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(m.modelName),
		MaxTokens: 4096,
		Messages:  toAnthropicMessages(turns),
	}
	if systemPrompt != "" {
		params.System = []anthropicsdk.TextBlockParam{{Text: systemPrompt}}
	}
	if len(tools) > 0 {
		params.Tools = toAnthropicTools(tools)
	}

	stream := m.client.Messages.NewStreaming(ctx, params)
	out := make(chan model.Chunk, 8)

	go func() {
		defer close(out)
		var usage model.Usage
		for stream.Next() {
			event := stream.Current()
			switch delta := event.AsAny().(type) {
			case anthropicsdk.ContentBlockDeltaEvent:
				switch d := delta.Delta.AsAny().(type) {
				case anthropicsdk.TextDelta:
					out <- model.Chunk{ContentDelta: d.Text}
				case anthropicsdk.ThinkingDelta:
					out <- model.Chunk{ThinkingDelta: d.Thinking}
				}
			case anthropicsdk.MessageDeltaEvent:
				usage.CompletionTokens += int(delta.Usage.OutputTokens)
			}
		}
		if err := stream.Err(); err != nil {
			out <- model.Chunk{Err: fmt.Errorf("anthropic stream error: %w", err)}
			return
		}
		out <- model.Chunk{Done: true, Usage: &usage}
	}()

	return out, nil
}

func extractSystemPrompt(messages []model.Message) (string, []model.Message) {
	var system string
	var rest []model.Message
	for _, msg := range messages {
		if msg.Role == model.RoleSystem {
			system = msg.Content
			continue
		}
		rest = append(rest, msg)
	}
	return system, rest
}

func toAnthropicMessages(messages []model.Message) []anthropicsdk.MessageParam {
	out := make([]anthropicsdk.MessageParam, 0, len(messages))
	for _, msg := range messages {
		block := anthropicsdk.NewTextBlock(msg.Content)
		if msg.Role == model.RoleAssistant {
			out = append(out, anthropicsdk.NewAssistantMessage(block))
		} else {
			out = append(out, anthropicsdk.NewUserMessage(block))
		}
	}
	return out
}

func toAnthropicTools(tools []model.ToolSpec) []anthropicsdk.ToolUnionParam {
	out := make([]anthropicsdk.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		out = append(out, anthropicsdk.ToolUnionParam{
			OfTool: &anthropicsdk.ToolParam{
				Name:        t.Name,
				Description: anthropicsdk.String(t.Description),
				InputSchema: toInputSchema(t.Schema),
			},
		})
	}
	return out
}

func toInputSchema(schema map[string]any) anthropicsdk.ToolInputSchemaParam {
	properties, _ := schema["properties"]
	return anthropicsdk.ToolInputSchemaParam{Properties: properties}
}
