package kernel

import (
	"context"
	"sync"
	"time"

	"github.com/flowkit/kernel/kernel/bus"
	"github.com/google/uuid"
)

// RunOptions configures one Runtime.Execute call.
type RunOptions struct {
	// ExecutionID, if set, is used verbatim. Otherwise the runtime looks
	// for Variables["sessionId"], then falls back to a fresh uuid.
	ExecutionID string
	Variables   map[string]any
	Timeout     time.Duration
}

type activeExecution struct {
	cancel context.CancelFunc
	scope  *bus.ScopedEmitter
}

// Runtime is the top-level entry point: it allocates an execution id,
// wires cancellation (external signal, timeout, internal cancel), builds
// the context and event scope, runs the root executor, and tears down on
// every path (spec.md §4.10).
type Runtime struct {
	factory *Factory
	bus     *bus.Bus

	mu     sync.Mutex
	active map[string]*activeExecution
}

// NewRuntime returns a Runtime backed by factory and bus. Both may be
// shared across many concurrent Execute calls.
func NewRuntime(factory *Factory, b *bus.Bus) *Runtime {
	return &Runtime{factory: factory, bus: b, active: make(map[string]*activeExecution)}
}

// Bus returns the underlying event bus, for callers that want to subscribe
// before or alongside an Execute call.
func (r *Runtime) Bus() *bus.Bus { return r.bus }

// Execute derives an execution id, arms cancellation and an optional
// timeout, builds the root context, runs config's root executor to
// completion, and always emits the terminal lifecycle event and tears
// down the scope before returning.
func (r *Runtime) Execute(ctx context.Context, config ExecutorConfig, input any, opts RunOptions) (ExecutionResult, error) {
	executionID := opts.ExecutionID
	if executionID == "" {
		if sid, ok := opts.Variables["sessionId"].(string); ok && sid != "" {
			executionID = sid
		} else {
			executionID = uuid.NewString()
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	if opts.Timeout > 0 {
		var timeoutCancel context.CancelFunc
		runCtx, timeoutCancel = context.WithTimeout(runCtx, opts.Timeout)
		defer timeoutCancel()
	}

	scope := r.bus.CreateScope(executionID)
	r.mu.Lock()
	r.active[executionID] = &activeExecution{cancel: cancel, scope: scope}
	r.mu.Unlock()

	defer func() {
		cancel()
		r.mu.Lock()
		delete(r.active, executionID)
		r.mu.Unlock()
		scope.DestroyScope()
	}()

	root := NewExecutionContext(executionID, scope)
	for k, v := range opts.Variables {
		root.Vars().Set(k, v)
	}

	tracker := NewCostTracker()
	unsub := r.OnExecutionEvent(executionID, bus.NodeComplete, func(e bus.Event) {
		if tu, ok := e.Payload["tokenUsage"].(*TokenUsage); ok && tu != nil {
			tracker.Record(e.NodeID, *tu)
		}
	})
	defer unsub()

	scope.Emit(bus.ExecutionStart, map[string]any{
		"executionId": executionID,
		"config": map[string]any{
			"id":   config.ID,
			"name": config.Name,
			"type": string(config.Type),
		},
	}, "")

	exec, err := r.factory.Create(config)
	if err != nil {
		scope.Emit(bus.ExecutionError, map[string]any{
			"executionId": executionID,
			"error":       err.Error(),
		}, "")
		return ExecutionResult{}, err
	}

	result, execErr := exec.Execute(runCtx, root, input)
	if execErr != nil {
		if _, ok := execErr.(*CancellationError); ok {
			scope.Emit(bus.ExecutionCancel, map[string]any{"executionId": executionID}, "")
			return Cancelled(), nil
		}
		scope.Emit(bus.ExecutionError, map[string]any{
			"executionId": executionID,
			"error":       execErr.Error(),
		}, "")
		return ExecutionResult{}, execErr
	}

	if total := tracker.Total(); total.TotalTokens > 0 {
		if result.Metadata == nil {
			result.Metadata = &Metadata{}
		}
		result.Metadata.TokenUsage = &total
	}

	scope.Emit(bus.ExecutionComplete, map[string]any{
		"executionId": executionID,
		"status":      string(result.Status),
		"output":      result.Output,
	}, "")
	return result, nil
}

// Cancel flips the cancellation source registered for executionID, if
// still active. A no-op if the execution already finished.
func (r *Runtime) Cancel(executionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.active[executionID]; ok {
		a.cancel()
	}
}

// CancelAll flips every currently registered cancellation source.
func (r *Runtime) CancelAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.active {
		a.cancel()
	}
}

// OnEvent subscribes handler to every event of type t across all
// executions sharing this runtime's bus.
func (r *Runtime) OnEvent(t bus.Type, handler bus.Handler) bus.Unsubscribe {
	return r.bus.Subscribe(t, handler, bus.SubscribeOptions{})
}

// OnExecutionEvent subscribes handler to events of type t scoped to one
// executionID only.
func (r *Runtime) OnExecutionEvent(executionID string, t bus.Type, handler bus.Handler) bus.Unsubscribe {
	return r.bus.Subscribe(t, handler, bus.SubscribeOptions{
		Filter: func(e bus.Event) bool { return e.ExecutionID == executionID },
	})
}
