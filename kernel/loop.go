package kernel

import (
	"context"
	"time"

	"github.com/flowkit/kernel/kernel/expr"
)

// loopOrchestrator runs all children serially as one iteration, repeating
// up to maxIterations with an optional delay and exit condition
// (spec.md §4.7).
type loopOrchestrator struct {
	id             string
	serial         *serialOrchestrator
	maxIterations  int
	exitCondition  string
	iterationDelay time.Duration
	collectResults bool
}

func newLoopOrchestrator(config ExecutorConfig, f ChildFactory) (Executor, error) {
	innerCfg := config
	innerCfg.Orchestrator = &OrchestratorConfig{
		Mode:     ModeSerial,
		Children: config.Orchestrator.Children,
	}
	inner, err := newSerialOrchestrator(innerCfg, f)
	if err != nil {
		return nil, err
	}

	l := &loopOrchestrator{
		id:     config.ID,
		serial: inner.(*serialOrchestrator),
	}
	if lc := config.Orchestrator.ModeConfig.Loop; lc != nil {
		l.maxIterations = lc.MaxIterations
		l.exitCondition = lc.ExitCondition
		l.iterationDelay = time.Duration(lc.IterationDelayMs) * time.Millisecond
		l.collectResults = lc.CollectResults
	}
	return l, nil
}

func (l *loopOrchestrator) ID() string { return l.id }

func (l *loopOrchestrator) Execute(ctx context.Context, ec *ExecutionContext, input any) (ExecutionResult, error) {
	if l.maxIterations <= 0 {
		if l.collectResults {
			return ExecutionResult{
				Status:  StatusSuccess,
				Output:  input,
				Control: EndDirective(),
				Metadata: &Metadata{TotalIterations: 0},
			}, nil
		}
		return Success(input), nil
	}

	current := input
	var collected []any
	anyFailed := false
	iteration := 0

	for iteration < l.maxIterations {
		if err := ec.CheckCancelled(ctx); err != nil {
			return ExecutionResult{}, err
		}

		iterIndex := iteration
		root := ec.Vars().Root()
		root.Set("_iteration", iterIndex)
		root.Set("_isFirstIteration", iterIndex == 0)
		root.Set("_isLastIteration", iterIndex == l.maxIterations-1)

		iterCtx := ec.CreateChild(l.id)
		result, err := l.serial.Execute(ctx, iterCtx, current)
		if err != nil {
			if _, ok := err.(*CancellationError); ok {
				return ExecutionResult{}, err
			}
			return Failed(CodeLoopError, err.Error(), false), nil
		}

		if result.Status != StatusSuccess {
			anyFailed = true
		}
		current = result.Output
		if l.collectResults {
			collected = append(collected, result.Output)
		}
		iteration++

		if result.Control.Action == ActionEnd {
			break
		}

		if l.exitCondition != "" {
			env := ec.Vars().ToObject()
			env["output"] = current
			env["iteration"] = iterIndex
			truthy, evalErr := expr.Eval(l.exitCondition, env)
			if evalErr == nil && truthy {
				break
			}
		}

		if l.iterationDelay > 0 && iteration < l.maxIterations {
			timer := time.NewTimer(l.iterationDelay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return ExecutionResult{}, ec.CheckCancelled(ctx)
			}
		}
	}

	status := StatusSuccess
	if anyFailed {
		status = StatusPartial
	}

	var output any = current
	if l.collectResults {
		output = collected
	}

	return ExecutionResult{
		Status:  status,
		Output:  output,
		Control: EndDirective(),
		Metadata: &Metadata{TotalIterations: iteration},
	}, nil
}
