package kernel

import (
	"context"

	"github.com/flowkit/kernel/kernel/bus"
)

// VarFrame is one lexical frame of the context-variable chain. Reads walk
// from the innermost frame outward; writes always bind in the frame they
// were called on, never in an ancestor (spec.md §3's invariant that a
// child's writes are invisible to siblings and to the parent after
// return).
type VarFrame struct {
	parent *VarFrame
	values map[string]any
}

// NewRootFrame returns an empty top-level frame with no parent.
func NewRootFrame() *VarFrame {
	return &VarFrame{values: make(map[string]any)}
}

// Child returns a new frame nested under f.
func (f *VarFrame) Child() *VarFrame {
	return &VarFrame{parent: f, values: make(map[string]any)}
}

// Get walks outward from f until it finds name, returning (value, true),
// or (nil, false) if no frame in the chain defines it.
func (f *VarFrame) Get(name string) (any, bool) {
	for cur := f; cur != nil; cur = cur.parent {
		if v, ok := cur.values[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// Set binds name to value in f itself, never in an ancestor.
func (f *VarFrame) Set(name string, value any) {
	f.values[name] = value
}

// Root walks to the outermost frame; writes there are visible to the
// entire run.
func (f *VarFrame) Root() *VarFrame {
	cur := f
	for cur.parent != nil {
		cur = cur.parent
	}
	return cur
}

// ToObject produces a flattened snapshot of the full chain, inner frames
// overriding outer ones for the same name.
func (f *VarFrame) ToObject() map[string]any {
	var chain []*VarFrame
	for cur := f; cur != nil; cur = cur.parent {
		chain = append(chain, cur)
	}
	out := make(map[string]any)
	for i := len(chain) - 1; i >= 0; i-- {
		for k, v := range chain[i].values {
			out[k] = v
		}
	}
	return out
}

// ExecutionContext is the per-node runtime environment threaded through
// every Executor.Execute call. One is created per top-level run by the
// Runtime; CreateChild derives the view a composite hands each child.
type ExecutionContext struct {
	executionID string
	nodeID      string
	depth       int

	vars     *VarFrame
	emitter  *bus.ScopedEmitter
}

// NewExecutionContext builds the root context for one execution. The
// cancellation token itself lives in the context.Context threaded
// alongside this value, not here — every child shares the exact same
// context.Context rather than deriving a new cancellation scope, so that
// "a single token per execution" (spec.md §5) falls out of normal context
// propagation instead of a hand-rolled listener list.
func NewExecutionContext(executionID string, emitter *bus.ScopedEmitter) *ExecutionContext {
	return &ExecutionContext{
		executionID: executionID,
		vars:        NewRootFrame(),
		emitter:     emitter,
	}
}

// ExecutionID returns the immutable id of the run this context belongs to.
func (ec *ExecutionContext) ExecutionID() string { return ec.executionID }

// NodeID returns the id of the node currently executing in this context.
func (ec *ExecutionContext) NodeID() string { return ec.nodeID }

// Depth returns how many CreateChild calls separate this context from the
// root.
func (ec *ExecutionContext) Depth() int { return ec.depth }

// Vars returns the variable frame visible to the currently executing node.
func (ec *ExecutionContext) Vars() *VarFrame { return ec.vars }

// CreateChild returns a context that shares execution id, emitter, and
// (via the caller's shared context.Context) cancellation token with ec,
// but pushes a new variable frame and advances nodeID and depth.
func (ec *ExecutionContext) CreateChild(nodeID string) *ExecutionContext {
	return &ExecutionContext{
		executionID: ec.executionID,
		nodeID:      nodeID,
		depth:       ec.depth + 1,
		vars:        ec.vars.Child(),
		emitter:     ec.emitter,
	}
}

// CheckCancelled raises a CancellationError if ctx has been cancelled.
// Every orchestrator must call this at every loop boundary, before
// dispatching a child, and inside hot read loops.
func (ec *ExecutionContext) CheckCancelled(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return &CancellationError{NodeID: ec.nodeID}
	default:
		return nil
	}
}

// EmitThinking emits a stream:thinking delta scoped to the current node.
func (ec *ExecutionContext) EmitThinking(delta string) {
	ec.emitter.Emit(bus.StreamThinking, map[string]any{"delta": delta}, ec.nodeID)
}

// EmitContent emits a stream:content delta scoped to the current node.
func (ec *ExecutionContext) EmitContent(delta string) {
	ec.emitter.Emit(bus.StreamContent, map[string]any{"delta": delta}, ec.nodeID)
}

// EmitError emits a node:error event scoped to the current node.
func (ec *ExecutionContext) EmitError(err error) {
	ec.emitter.Emit(bus.NodeError, map[string]any{"error": err.Error()}, ec.nodeID)
}

// EmitNodeStatus emits a node:update event carrying a free-form status.
func (ec *ExecutionContext) EmitNodeStatus(status string) {
	ec.emitter.Emit(bus.NodeUpdate, map[string]any{"status": status}, ec.nodeID)
}

// Emitter exposes the raw scoped emitter for callers (atomic executors,
// orchestrators) that need event types EmitX doesn't wrap directly, such
// as node:start/node:complete or stream:tool_call.
func (ec *ExecutionContext) Emitter() *bus.ScopedEmitter { return ec.emitter }
