package kernel

import (
	"context"
	"sync"

	"github.com/flowkit/kernel/kernel/bus"
)

// parallelOrchestrator fans the same input out to every child, bounded by
// maxConcurrency, and merges the per-child results per mergeStrategy
// (spec.md §4.5).
type parallelOrchestrator struct {
	id             string
	children       []Executor
	childCfg       []ExecutorConfig
	maxConcurrency int
	mergeStrategy  MergeStrategy
}

func newParallelOrchestrator(config ExecutorConfig, f ChildFactory) (Executor, error) {
	children, err := buildChildren(config, f)
	if err != nil {
		return nil, err
	}
	maxConcurrency := len(children)
	merge := MergeAll
	if mc := config.Orchestrator.ModeConfig.Parallel; mc != nil {
		if mc.MaxConcurrency > 0 {
			maxConcurrency = mc.MaxConcurrency
		}
		if mc.MergeStrategy != "" {
			merge = mc.MergeStrategy
		}
	}
	if maxConcurrency <= 0 {
		maxConcurrency = len(children)
	}
	return &parallelOrchestrator{
		id:             config.ID,
		children:       children,
		childCfg:       config.Orchestrator.Children,
		maxConcurrency: maxConcurrency,
		mergeStrategy:  merge,
	}, nil
}

func (p *parallelOrchestrator) ID() string { return p.id }

func (p *parallelOrchestrator) Execute(ctx context.Context, ec *ExecutionContext, input any) (ExecutionResult, error) {
	if len(p.children) == 0 {
		return Success([]any{}), nil
	}
	if err := ec.CheckCancelled(ctx); err != nil {
		return ExecutionResult{}, err
	}

	ec.Emitter().Emit(bus.ExecutionProgress, map[string]any{
		"action": "fan_out",
		"width":  len(p.children),
	}, p.id)

	results := make([]ExecutionResult, len(p.children))
	indices := make(chan int, len(p.children))
	for i := range p.children {
		indices <- i
	}
	close(indices)

	workers := p.maxConcurrency
	if workers > len(p.children) {
		workers = len(p.children)
	}

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for idx := range indices {
				results[idx] = p.runChild(ctx, ec, idx, input)
			}
		}()
	}
	wg.Wait()

	if err := ec.CheckCancelled(ctx); err != nil {
		return ExecutionResult{}, err
	}

	return p.merge(results), nil
}

func (p *parallelOrchestrator) runChild(ctx context.Context, ec *ExecutionContext, idx int, input any) ExecutionResult {
	if err := ec.CheckCancelled(ctx); err != nil {
		return ExecutionResult{Status: StatusCancelled, Control: EndDirective()}
	}

	child := p.children[idx]
	childCtx := ec.CreateChild(child.ID())
	emitNodeStart(ec, child, p.childCfg[idx].Type, ModeParallel)

	result, err := child.Execute(ctx, childCtx, input)
	if err != nil {
		if _, ok := err.(*CancellationError); ok {
			return ExecutionResult{Status: StatusCancelled, Control: EndDirective()}
		}
		result = synthesizeChildFailure(err)
	}
	emitNodeTerminal(ec, child.ID(), result)
	return result
}

func (p *parallelOrchestrator) merge(results []ExecutionResult) ExecutionResult {
	switch p.mergeStrategy {
	case MergeFirst:
		for _, r := range results {
			if r.Status == StatusSuccess {
				return r
			}
		}
		return results[0]
	default: // MergeAll
		outputs := make([]any, len(results))
		var errs []ResultError
		successCount, failCount := 0, 0
		for i, r := range results {
			outputs[i] = r.Output
			errs = append(errs, r.Errors...)
			switch r.Status {
			case StatusSuccess:
				successCount++
			default:
				failCount++
			}
		}
		status := StatusPartial
		if successCount == len(results) {
			status = StatusSuccess
		} else if failCount == len(results) {
			status = StatusFailed
		}
		return ExecutionResult{
			Status:  status,
			Output:  outputs,
			Control: EndDirective(),
			Errors:  errs,
		}
	}
}
