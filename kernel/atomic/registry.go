// Package atomic implements the kernel's leaf executors: agent, http, and
// tool. These live outside package kernel because they import concrete
// external collaborators (kernel/model's chat drivers, net/http) that
// kernel itself never needs to know about, and because kernel.NewFactory
// cannot import this package without an import cycle (it imports kernel
// for Executor/ExecutionContext). Callers wire these types in with
// RegisterAll at the composition root.
package atomic

import (
	"context"
	"fmt"
	"sync"
)

// ToolHandler is the function a "tool" executor or an agent's inline
// tool-call dispatch ultimately invokes. It receives already-validated
// arguments and returns a structured result.
type ToolHandler func(ctx context.Context, args map[string]any) (map[string]any, error)

// ToolRegistry resolves handler names (ExecutorConfig.Tool.Handler, or an
// agent's ToolBinding.Name) to the Go function that implements them. It is
// the seam between config-declared tool names and the process's actual
// capabilities, which the spec calls out as an external collaborator.
type ToolRegistry struct {
	mu       sync.RWMutex
	handlers map[string]ToolHandler
}

// NewToolRegistry returns an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{handlers: make(map[string]ToolHandler)}
}

// Register binds name to handler, overwriting any previous binding.
func (r *ToolRegistry) Register(name string, handler ToolHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = handler
}

// Lookup returns the handler bound to name, if any.
func (r *ToolRegistry) Lookup(name string) (ToolHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// errUnknownHandler is returned when a config names a handler the
// registry never had bound to it.
func errUnknownHandler(name string) error {
	return fmt.Errorf("atomic: no handler registered for %q", name)
}
