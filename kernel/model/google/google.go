// Package google adapts Google's Gemini API to model.ChatModel.
package google

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/flowkit/kernel/kernel/model"
)

// ChatModel implements model.ChatModel against Gemini's streaming
// GenerateContent endpoint.
type ChatModel struct {
	client    *genai.Client
	modelName string
}

// NewChatModel returns a ChatModel for modelName (empty uses
// "gemini-1.5-flash"), authenticating with apiKey.
func NewChatModel(ctx context.Context, apiKey, modelName string) (*ChatModel, error) {
	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	return &ChatModel{client: client, modelName: modelName}, nil
}

func (m *ChatModel) Chat(ctx context.Context, messages []model.Message, tools []model.ToolSpec) (<-chan model.Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	gm := m.client.GenerativeModel(m.modelName)
	systemPrompt, history, last := splitMessages(messages)
	if systemPrompt != "" {
		gm.SystemInstruction = genai.NewUserContent(genai.Text(systemPrompt))
	}
	if len(tools) > 0 {
		gm.Tools = toGeminiTools(tools)
	}

	cs := gm.StartChat()
	cs.History = history

	iter := cs.SendMessageStream(ctx, genai.Text(last))
	out := make(chan model.Chunk, 8)

	go func() {
		defer close(out)
		for {
			resp, err := iter.Next()
			if err == iterator.Done {
				break
			}
			if err != nil {
				out <- model.Chunk{Err: fmt.Errorf("google stream error: %w", err)}
				return
			}
			for _, cand := range resp.Candidates {
				if cand.Content == nil {
					continue
				}
				for _, part := range cand.Content.Parts {
					switch p := part.(type) {
					case genai.Text:
						out <- model.Chunk{ContentDelta: string(p)}
					case genai.FunctionCall:
						out <- model.Chunk{ToolCall: &model.ToolCall{Name: p.Name, Input: p.Args}}
					}
				}
			}
		}
		out <- model.Chunk{Done: true}
	}()

	return out, nil
}

func splitMessages(messages []model.Message) (system string, history []*genai.Content, last string) {
	var turns []model.Message
	for _, msg := range messages {
		if msg.Role == model.RoleSystem {
			system = msg.Content
			continue
		}
		turns = append(turns, msg)
	}
	if len(turns) == 0 {
		return system, nil, ""
	}
	for _, msg := range turns[:len(turns)-1] {
		role := "user"
		if msg.Role == model.RoleAssistant {
			role = "model"
		}
		history = append(history, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(msg.Content)},
		})
	}
	return system, history, turns[len(turns)-1].Content
}

func toGeminiTools(tools []model.ToolSpec) []*genai.Tool {
	out := make([]*genai.Tool, 0, len(tools))
	for _, t := range tools {
		out = append(out, &genai.Tool{
			FunctionDeclarations: []*genai.FunctionDeclaration{{
				Name:        t.Name,
				Description: t.Description,
			}},
		})
	}
	return out
}
