// Package bus implements the kernel's in-process typed publish/subscribe
// event stream, with per-execution scoping so that many workflows running
// concurrently in one process never leak events across each other.
package bus

import "time"

// Type identifies the kind of event carried on the bus. Handlers may
// subscribe to one Type or to Wildcard to observe everything.
type Type string

const (
	Wildcard Type = "*"

	ExecutionStart    Type = "execution:start"
	ExecutionProgress Type = "execution:progress"
	ExecutionComplete Type = "execution:complete"
	ExecutionError    Type = "execution:error"
	ExecutionCancel   Type = "execution:cancel"

	NodeStart    Type = "node:start"
	NodeUpdate   Type = "node:update"
	NodeComplete Type = "node:complete"
	NodeError    Type = "node:error"

	StreamThinking Type = "stream:thinking"
	StreamContent  Type = "stream:content"
	StreamToolCall Type = "stream:tool_call"

	StateChanged Type = "state:changed"
)

// Event is the envelope delivered to every subscriber. Payload shapes
// follow the canonical forms named per Type.
type Event struct {
	Type        Type           `json:"type"`
	ExecutionID string         `json:"executionId"`
	NodeID      string         `json:"nodeId,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
	Payload     map[string]any `json:"payload,omitempty"`
}
