package kernel

import "sync"

// TokenUsage is the prompt/completion token accounting attached to an
// agent node's Metadata.TokenUsage. Adapted from the teacher's
// CostTracker, trimmed to token counts — no dollar figures, since the
// pricing tables those need age out fast and the spec only asks for usage
// accounting, not cost.
type TokenUsage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// Add returns the element-wise sum of u and other.
func (u TokenUsage) Add(other TokenUsage) TokenUsage {
	return TokenUsage{
		PromptTokens:     u.PromptTokens + other.PromptTokens,
		CompletionTokens: u.CompletionTokens + other.CompletionTokens,
		TotalTokens:      u.TotalTokens + other.TotalTokens,
	}
}

// CostTracker accumulates TokenUsage across every agent call in one
// execution, keyed by node id, for callers that want a per-run breakdown
// beyond each node's own Metadata.
type CostTracker struct {
	mu        sync.Mutex
	byNode    map[string]TokenUsage
	total     TokenUsage
}

// NewCostTracker returns an empty tracker.
func NewCostTracker() *CostTracker {
	return &CostTracker{byNode: make(map[string]TokenUsage)}
}

// Record adds usage for nodeID and folds it into the running total.
func (t *CostTracker) Record(nodeID string, usage TokenUsage) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byNode[nodeID] = t.byNode[nodeID].Add(usage)
	t.total = t.total.Add(usage)
}

// Total returns the accumulated usage across every recorded node.
func (t *CostTracker) Total() TokenUsage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}

// ByNode returns a copy of the per-node usage map.
func (t *CostTracker) ByNode() map[string]TokenUsage {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]TokenUsage, len(t.byNode))
	for k, v := range t.byNode {
		out[k] = v
	}
	return out
}
