// Package model provides the LLM transport abstraction the kernel's agent
// atomic executor drives. Wire-level request/response mapping per provider
// is the "external collaborator" boundary spec.md §1 calls out as out of
// scope for the kernel core; this package exists so agent has something
// concrete behind its interface.
package model

import "context"

// Standard role constants for LLM conversations.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn in a chat conversation.
type Message struct {
	Role    string
	Content string
}

// ToolSpec describes a tool the model may call, in JSON-Schema-shaped
// form matching kernel.ToolBinding.
type ToolSpec struct {
	Name        string
	Description string
	Schema      map[string]any
}

// ToolCall is a request from the model to invoke a specific tool.
type ToolCall struct {
	Name  string
	Input map[string]any
}

// Usage carries token accounting from one Chat call, when the provider
// reports it.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// Chunk is one increment of a streamed ChatModel response. Exactly one of
// ThinkingDelta, ContentDelta, ToolCall, or Err is populated per chunk,
// except the final successful chunk, which carries Done=true and
// optionally Usage. A chunk with a non-nil Err is always the last chunk
// the implementation sends before closing the channel; it reports a
// transport or provider failure that happened mid-stream, after Chat
// itself already returned successfully.
type Chunk struct {
	ThinkingDelta string
	ContentDelta  string
	ToolCall      *ToolCall
	Usage         *Usage
	Done          bool
	Err           error
}

// ChatModel is the provider-agnostic streaming chat contract the agent
// executor drives. Implementations translate Messages/Tools into a
// provider-specific request and translate the provider's stream back into
// Chunks, closing the returned channel when the stream ends. A stream
// that fails before it starts reports that through Chat's own error
// return; a stream that fails after delivering zero or more chunks
// reports that through a final Chunk with Err set instead, since Chat's
// error return is already spent by the time streaming begins.
type ChatModel interface {
	Chat(ctx context.Context, messages []Message, tools []ToolSpec) (<-chan Chunk, error)
}
