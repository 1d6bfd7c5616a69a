package atomic

import (
	"github.com/flowkit/kernel/kernel"
	"github.com/flowkit/kernel/kernel/bus"
)

// newTestExecContext returns a root ExecutionContext backed by a fresh bus
// scope, suitable for driving an atomic executor directly in tests.
func newTestExecContext() *kernel.ExecutionContext {
	b := bus.New()
	scope := b.CreateScope("test-run")
	return kernel.NewExecutionContext("test-run", scope)
}
