package kernel

import (
	"context"
	"fmt"

	"github.com/flowkit/kernel/kernel/expr"
)

// scriptExecutor evaluates a single restricted expression against
// {input, …variables} and returns its value as output. It exists mainly
// for tests and trivial echo/tag transforms that don't warrant an http or
// tool round trip.
type scriptExecutor struct {
	id         string
	expression string
}

func newScriptExecutor(config ExecutorConfig, _ ChildFactory) (Executor, error) {
	if config.Script == nil {
		return nil, &ValidationError{NodeID: config.ID, Message: "script executor requires a script config"}
	}
	return &scriptExecutor{id: config.ID, expression: config.Script.Expression}, nil
}

func (s *scriptExecutor) ID() string { return s.id }

func (s *scriptExecutor) Execute(ctx context.Context, ec *ExecutionContext, input any) (ExecutionResult, error) {
	if err := ec.CheckCancelled(ctx); err != nil {
		return ExecutionResult{}, err
	}
	if s.expression == "" {
		return Success(input), nil
	}

	env := ec.Vars().ToObject()
	env["input"] = input
	v, err := expr.EvalValue(s.expression, env)
	if err != nil {
		return Failed(CodeInvalidExpression, fmt.Sprintf("script %s: %v", s.id, err), false), nil
	}
	return Success(v), nil
}

func registerScriptExecutor(f *Factory) {
	f.RegisterAtomic(TypeScript, newScriptExecutor)
}
