package atomic

import (
	"context"
	"time"

	"github.com/flowkit/kernel/kernel"
	"github.com/flowkit/kernel/kernel/bus"
)

// toolExecutor runs a named handler under a per-call timeout, validating
// arguments against a JSON-schema-like parameters document first.
type toolExecutor struct {
	id         string
	handler    string
	parameters map[string]any
	timeout    time.Duration
	registry   *ToolRegistry
}

func newToolExecutor(registry *ToolRegistry) kernel.AtomicCreator {
	return func(config kernel.ExecutorConfig, _ kernel.ChildFactory) (kernel.Executor, error) {
		if config.Tool == nil {
			return nil, &kernel.ConfigError{Code: kernel.CodeValidation, Message: "tool executor requires a tool config"}
		}
		return &toolExecutor{
			id:         config.ID,
			handler:    config.Tool.Handler,
			parameters: config.Tool.Parameters,
			timeout:    config.Tool.Timeout,
			registry:   registry,
		}, nil
	}
}

func (e *toolExecutor) ID() string { return e.id }

func (e *toolExecutor) Execute(ctx context.Context, ec *kernel.ExecutionContext, input any) (kernel.ExecutionResult, error) {
	if err := ec.CheckCancelled(ctx); err != nil {
		return kernel.ExecutionResult{}, err
	}

	args, _ := input.(map[string]any)
	if args == nil {
		args = map[string]any{}
	}

	if err := validateArgs(e.parameters, args); err != nil {
		return kernel.Failed(kernel.CodeValidation, err.Error(), false), nil
	}

	handler, ok := e.registry.Lookup(e.handler)
	if !ok {
		return kernel.Failed(kernel.CodeValidation, errUnknownHandler(e.handler).Error(), false), nil
	}

	callCtx := ctx
	cancel := func() {}
	if e.timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, e.timeout)
	}
	defer cancel()

	ec.Emitter().Emit(bus.StreamToolCall, map[string]any{
		"toolName": e.handler,
		"status":   "running",
		"args":     args,
	}, ec.NodeID())

	result, err := handler(callCtx, args)
	if err != nil {
		ec.Emitter().Emit(bus.StreamToolCall, map[string]any{
			"toolName": e.handler,
			"status":   "failed",
			"error":    err.Error(),
		}, ec.NodeID())
		return kernel.Failed(kernel.CodeExecutionError, err.Error(), false), nil
	}

	ec.Emitter().Emit(bus.StreamToolCall, map[string]any{
		"toolName": e.handler,
		"status":   "success",
		"result":   result,
	}, ec.NodeID())

	return kernel.Success(result), nil
}
