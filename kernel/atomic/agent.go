package atomic

import (
	"context"
	"fmt"
	"strings"

	"github.com/flowkit/kernel/kernel"
	"github.com/flowkit/kernel/kernel/bus"
	"github.com/flowkit/kernel/kernel/model"
)

// agentExecutor drives a streaming chat model, forwarding thinking and
// content deltas as they arrive and dispatching tool-call deltas to a
// ToolRegistry inline, in the same execution context the agent itself
// runs in.
type agentExecutor struct {
	id       string
	cfg      *kernel.AgentConfig
	chat     model.ChatModel
	registry *ToolRegistry
}

func newAgentExecutor(chat model.ChatModel, registry *ToolRegistry) kernel.AtomicCreator {
	return func(config kernel.ExecutorConfig, _ kernel.ChildFactory) (kernel.Executor, error) {
		if config.Agent == nil {
			return nil, &kernel.ConfigError{Code: kernel.CodeValidation, Message: "agent executor requires an agent config"}
		}
		if chat == nil {
			return nil, &kernel.ConfigError{Code: kernel.CodeValidation, Message: "agent executor requires a chat model"}
		}
		return &agentExecutor{id: config.ID, cfg: config.Agent, chat: chat, registry: registry}, nil
	}
}

func (e *agentExecutor) ID() string { return e.id }

func (e *agentExecutor) Execute(ctx context.Context, ec *kernel.ExecutionContext, input any) (kernel.ExecutionResult, error) {
	if err := ec.CheckCancelled(ctx); err != nil {
		return kernel.ExecutionResult{}, err
	}

	messages := e.buildMessages(ec, input)
	tools := e.toolSpecs()

	chunks, err := e.chat.Chat(ctx, messages, tools)
	if err != nil {
		return kernel.ExecutionResult{}, e.toDriverError(ec.NodeID(), err)
	}

	var content strings.Builder
	var usage kernel.TokenUsage
	toolResults := make([]map[string]any, 0)

	for chunk := range chunks {
		if err := ec.CheckCancelled(ctx); err != nil {
			return kernel.ExecutionResult{}, err
		}

		switch {
		case chunk.Err != nil:
			return kernel.ExecutionResult{}, e.toDriverError(ec.NodeID(), chunk.Err)
		case chunk.ThinkingDelta != "":
			ec.EmitThinking(chunk.ThinkingDelta)
		case chunk.ContentDelta != "":
			content.WriteString(chunk.ContentDelta)
			ec.EmitContent(chunk.ContentDelta)
		case chunk.ToolCall != nil:
			result, callErr := e.dispatchTool(ctx, ec, *chunk.ToolCall)
			toolResults = append(toolResults, map[string]any{
				"name":   chunk.ToolCall.Name,
				"result": result,
				"error":  errString(callErr),
			})
		}

		if chunk.Usage != nil {
			usage.PromptTokens += chunk.Usage.PromptTokens
			usage.CompletionTokens += chunk.Usage.CompletionTokens
			usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
		}
	}

	output := map[string]any{"content": content.String()}
	if len(toolResults) > 0 {
		output["toolCalls"] = toolResults
	}

	result := kernel.Success(output)
	result.Metadata = &kernel.Metadata{
		ExecutorID:   e.id,
		ExecutorType: kernel.TypeAgent,
		TokenUsage:   &usage,
	}
	return result, nil
}

func (e *agentExecutor) buildMessages(ec *kernel.ExecutionContext, input any) []model.Message {
	var messages []model.Message
	if e.cfg.SystemPrompt != "" {
		messages = append(messages, model.Message{Role: model.RoleSystem, Content: e.cfg.SystemPrompt})
	}
	if e.cfg.HistoryVariable != "" {
		if raw, ok := ec.Vars().Get(e.cfg.HistoryVariable); ok {
			messages = append(messages, toHistoryMessages(raw)...)
		}
	}
	messages = append(messages, model.Message{Role: model.RoleUser, Content: fmt.Sprintf("%v", input)})
	return messages
}

func toHistoryMessages(raw any) []model.Message {
	items, ok := raw.([]any)
	if !ok {
		return nil
	}
	out := make([]model.Message, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		role, _ := m["role"].(string)
		content, _ := m["content"].(string)
		if role == "" {
			role = model.RoleUser
		}
		out = append(out, model.Message{Role: role, Content: content})
	}
	return out
}

func (e *agentExecutor) toolSpecs() []model.ToolSpec {
	if len(e.cfg.Tools) == 0 {
		return nil
	}
	out := make([]model.ToolSpec, 0, len(e.cfg.Tools))
	for _, t := range e.cfg.Tools {
		out = append(out, model.ToolSpec{Name: t.Name, Description: t.Description, Schema: t.Parameters})
	}
	return out
}

// dispatchTool invokes the tool named by call.Name against the agent's own
// ToolRegistry, emitting the running/success/failed stream:tool_call
// lifecycle spec.md §4.9 requires around the call.
func (e *agentExecutor) dispatchTool(ctx context.Context, ec *kernel.ExecutionContext, call model.ToolCall) (map[string]any, error) {
	ec.Emitter().Emit(bus.StreamToolCall, map[string]any{
		"toolName": call.Name,
		"status":   "running",
		"args":     call.Input,
	}, ec.NodeID())

	handler, ok := e.registry.Lookup(call.Name)
	if !ok {
		err := errUnknownHandler(call.Name)
		ec.Emitter().Emit(bus.StreamToolCall, map[string]any{
			"toolName": call.Name,
			"status":   "failed",
			"error":    err.Error(),
		}, ec.NodeID())
		return nil, err
	}

	result, err := handler(ctx, call.Input)
	if err != nil {
		ec.Emitter().Emit(bus.StreamToolCall, map[string]any{
			"toolName": call.Name,
			"status":   "failed",
			"error":    err.Error(),
		}, ec.NodeID())
		return nil, err
	}

	ec.Emitter().Emit(bus.StreamToolCall, map[string]any{
		"toolName": call.Name,
		"status":   "success",
		"result":   result,
	}, ec.NodeID())
	return result, nil
}

// toDriverError classifies an outbound transport failure per spec.md
// §4.9's recoverability heuristic: HTTP status >= 500 or 429 is
// recoverable. Without a status code to inspect, treat the failure as
// non-recoverable rather than guess.
func (e *agentExecutor) toDriverError(nodeID string, err error) error {
	return &kernel.DriverError{NodeID: nodeID, Message: err.Error(), Cause: err}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
