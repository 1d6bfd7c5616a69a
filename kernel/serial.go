package kernel

import (
	"context"

	"github.com/flowkit/kernel/kernel/bus"
)

// serialOrchestrator runs children in config order, piping each child's
// output into the next child's input, honoring each child's
// ControlDirective to continue, end, route, or retry (spec.md §4.4).
type serialOrchestrator struct {
	id         string
	childType  ExecutorType
	children   []Executor
	childCfg   []ExecutorConfig
	maxRetries int
}

func newSerialOrchestrator(config ExecutorConfig, f ChildFactory) (Executor, error) {
	children, err := buildChildren(config, f)
	if err != nil {
		return nil, err
	}
	return &serialOrchestrator{
		id:         config.ID,
		children:   children,
		childCfg:   config.Orchestrator.Children,
		maxRetries: config.Constraints.MaxRetries,
	}, nil
}

func (s *serialOrchestrator) ID() string { return s.id }

func (s *serialOrchestrator) Execute(ctx context.Context, ec *ExecutionContext, input any) (ExecutionResult, error) {
	if len(s.children) == 0 {
		return Success(input), nil
	}

	byID := make(map[string]int, len(s.children))
	for i, c := range s.children {
		byID[c.ID()] = i
	}

	current := input
	idx := 0
	var last ExecutionResult

	for idx < len(s.children) {
		if err := ec.CheckCancelled(ctx); err != nil {
			return ExecutionResult{}, err
		}

		child := s.children[idx]
		childCtx := ec.CreateChild(child.ID())
		emitNodeStart(ec, child, s.childCfg[idx].Type, "")

		result, execErr := s.runWithRetry(ctx, ec, childCtx, child, current)
		if execErr != nil {
			return ExecutionResult{}, execErr
		}
		emitNodeTerminal(ec, child.ID(), result)
		last = result
		current = result.Output

		switch result.Control.Action {
		case ActionEnd:
			return result, nil
		case ActionRoute:
			if target, ok := byID[result.Control.Target]; ok {
				idx = target
				continue
			}
			idx++
		default:
			idx++
		}
	}

	return last, nil
}

// runWithRetry executes child once, then inline-retries the same child
// with the same input while the last result reports a recoverable error
// and s.maxRetries has not been exhausted.
func (s *serialOrchestrator) runWithRetry(ctx context.Context, ec *ExecutionContext, childCtx *ExecutionContext, child Executor, input any) (ExecutionResult, error) {
	var result ExecutionResult
	attempts := 0
	for {
		res, err := child.Execute(ctx, childCtx, input)
		if err != nil {
			if _, ok := err.(*CancellationError); ok {
				return ExecutionResult{}, err
			}
			res = synthesizeChildFailure(err)
		}
		result = res

		recoverable := result.Status == StatusFailed && len(result.Errors) > 0 && result.Errors[0].Recoverable
		wantsRetry := result.Control.Action == ActionRetry
		if (recoverable || wantsRetry) && attempts < s.maxRetries {
			attempts++
			ec.Emitter().Emit(bus.ExecutionProgress, map[string]any{
				"action":  "retry",
				"attempt": attempts,
			}, child.ID())
			if err := ec.CheckCancelled(ctx); err != nil {
				return ExecutionResult{}, err
			}
			continue
		}
		return result, nil
	}
}
