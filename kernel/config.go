package kernel

import "time"

// ExecutorType enumerates the leaf and composite kinds a factory can build.
type ExecutorType string

const (
	TypeAgent     ExecutorType = "agent"
	TypeHTTP      ExecutorType = "http"
	TypeTool      ExecutorType = "tool"
	TypeScript    ExecutorType = "script"
	TypeComposite ExecutorType = "composite"
)

// OrchestratorMode enumerates the composition disciplines a composite
// ExecutorConfig can request via its ModeConfig.
type OrchestratorMode string

const (
	ModeSerial   OrchestratorMode = "serial"
	ModeParallel OrchestratorMode = "parallel"
	ModeRouter   OrchestratorMode = "router"
	ModeLoop     OrchestratorMode = "loop"
	ModeDAG      OrchestratorMode = "dag"
)

// Constraints bounds an executor's retries, wall-clock budget, and token
// usage. No runtime default is substituted for a zero field; a zero
// MaxRetries means no retries. Of these fields only MaxRetries is read by
// the built-in executors (serial and http); Timeout and MaxTokens are not
// consulted by them.
type Constraints struct {
	MaxRetries int           `json:"maxRetries,omitempty" validate:"gte=0"`
	Timeout    time.Duration `json:"timeout,omitempty"`
	MaxTokens  int           `json:"maxTokens,omitempty" validate:"gte=0"`
}

// ExecutorConfig is the persisted, immutable shape the factory consumes to
// build one node. Unknown JSON fields are ignored and dropped during JSON
// decoding; Extra is not filled from JSON (its tag is "-") and holds only
// what Go code sets on it. An unknown Type is a fatal configuration error
// raised before execution starts (spec.md §6).
type ExecutorConfig struct {
	ID          string            `json:"id" validate:"required"`
	Name        string            `json:"name,omitempty"`
	Type        ExecutorType      `json:"type" validate:"required,oneof=agent http tool script composite"`
	Description string            `json:"description,omitempty"`
	Constraints Constraints       `json:"constraints,omitempty"`
	Extra       map[string]any    `json:"-"`

	// Type-specific configuration payloads. Exactly one is populated
	// depending on Type; the factory ignores the others.
	Agent  *AgentConfig  `json:"agent,omitempty"`
	HTTP   *HTTPConfig   `json:"http,omitempty"`
	Tool   *ToolConfig   `json:"tool,omitempty"`
	Script *ScriptConfig `json:"script,omitempty"`

	// Orchestrator extends this record when Type == composite. Kept as a
	// pointer so a plain atomic ExecutorConfig carries zero overhead.
	Orchestrator *OrchestratorConfig `json:"orchestrator,omitempty"`
}

// AgentConfig configures the "agent" atomic executor: a streaming chat
// call with optional tool dispatch.
type AgentConfig struct {
	SystemPrompt    string         `json:"systemPrompt,omitempty"`
	HistoryVariable string         `json:"historyVariable,omitempty"`
	Model           string         `json:"model,omitempty"`
	Tools           []ToolBinding  `json:"tools,omitempty"`
	Temperature     *float64       `json:"temperature,omitempty"`
}

// ToolBinding names a tool executor reachable by the agent's tool-call
// dispatch, keyed by the name the model will use in a tool_call delta.
type ToolBinding struct {
	Name        string         `json:"name" validate:"required"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// HTTPConfig configures the "http" atomic executor.
type HTTPConfig struct {
	URL          string            `json:"url" validate:"required"`
	Method       string            `json:"method,omitempty"`
	Headers      map[string]string `json:"headers,omitempty"`
	Body         string            `json:"body,omitempty"`
	ResponseType string            `json:"responseType,omitempty" validate:"omitempty,oneof=json text blob"`
	ExtractPath  string            `json:"extractPath,omitempty"`
	RetryOn      []int             `json:"retryOn,omitempty"`
	RetryDelay   time.Duration     `json:"retryDelay,omitempty"`
}

// ToolConfig configures the "tool" atomic executor: a typed function call
// with a JSON-schema-like parameter description.
type ToolConfig struct {
	Handler    string         `json:"handler" validate:"required"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Timeout    time.Duration  `json:"timeout,omitempty"`
}

// ScriptConfig configures a deterministic inline-expression executor; used
// primarily in tests and for trivial echo/tag transforms.
type ScriptConfig struct {
	Expression string `json:"expression,omitempty"`
}

// OrchestratorConfig extends ExecutorConfig with the composition
// discipline and the list of children it schedules. Children are
// positional (index order) and keyed by ID; IDs must be unique within one
// composite (spec.md §3 invariants).
type OrchestratorConfig struct {
	Mode       OrchestratorMode `json:"mode" validate:"required,oneof=serial parallel router loop dag"`
	Children   []ExecutorConfig `json:"children"`
	ModeConfig ModeConfig       `json:"modeConfig,omitempty"`
}

// ModeConfig is a discriminated union keyed by OrchestratorConfig.Mode.
// Exactly the field matching Mode is consulted.
type ModeConfig struct {
	Parallel *ParallelConfig `json:"parallel,omitempty"`
	Router   *RouterConfig   `json:"router,omitempty"`
	Loop     *LoopConfig     `json:"loop,omitempty"`
	DAG      *DAGConfig      `json:"dag,omitempty"`
}

// MergeStrategy controls how the parallel orchestrator folds child results.
type MergeStrategy string

const (
	MergeAll   MergeStrategy = "all"
	MergeFirst MergeStrategy = "first"
)

// ParallelConfig configures the parallel orchestrator (spec.md §4.5).
type ParallelConfig struct {
	MaxConcurrency int           `json:"maxConcurrency,omitempty" validate:"gte=0"`
	MergeStrategy  MergeStrategy `json:"mergeStrategy,omitempty" validate:"omitempty,oneof=all first"`
}

// RouterStrategy selects how the router orchestrator picks a child.
type RouterStrategy string

const (
	StrategyRule RouterStrategy = "rule"
	StrategyLLM  RouterStrategy = "llm"
)

// RouteRule is one rule evaluated in order by a "rule" strategy router.
type RouteRule struct {
	Condition string `json:"condition" validate:"required"`
	Target    string `json:"target" validate:"required"`
}

// RouterConfig configures the router orchestrator (spec.md §4.6). Per
// REDESIGN FLAGS (spec.md §9), the "llm" strategy finds its router child
// only through RouterChildID and never infers it from "the only agent
// child." RouterChildID is not validated; when it is unset or names no
// child, the first child is dispatched.
type RouterConfig struct {
	Strategy      RouterStrategy `json:"strategy" validate:"required,oneof=rule llm"`
	Rules         []RouteRule    `json:"rules,omitempty"`
	RouterChildID string         `json:"routerChildId,omitempty"`
}

// LoopConfig configures the loop orchestrator (spec.md §4.7).
type LoopConfig struct {
	MaxIterations    int           `json:"maxIterations" validate:"gte=0"`
	ExitCondition    string        `json:"exitCondition,omitempty"`
	IterationDelayMs int           `json:"iterationDelayMs,omitempty" validate:"gte=0"`
	CollectResults   bool          `json:"collectResults,omitempty"`
}

// DAGEdge declares one "from"→"to" dependency, referencing children by ID.
type DAGEdge struct {
	From string `json:"from" validate:"required"`
	To   string `json:"to" validate:"required"`
}

// DAGConfig configures the DAG orchestrator (spec.md §4.8).
type DAGConfig struct {
	Edges          []DAGEdge `json:"edges,omitempty"`
	MaxConcurrency int       `json:"maxConcurrency,omitempty" validate:"gte=0"`
}
