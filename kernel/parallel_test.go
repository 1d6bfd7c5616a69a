package kernel

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func newParallelConfig(id string, maxConcurrency int, merge MergeStrategy, childIDs ...string) ExecutorConfig {
	return ExecutorConfig{
		ID:   id,
		Type: TypeComposite,
		Orchestrator: &OrchestratorConfig{
			Mode:     ModeParallel,
			Children: childConfigs(childIDs...),
			ModeConfig: ModeConfig{
				Parallel: &ParallelConfig{MaxConcurrency: maxConcurrency, MergeStrategy: merge},
			},
		},
	}
}

func TestParallelFansSameInputToEveryChild(t *testing.T) {
	var receivedA, receivedB any
	a := &stubExecutor{id: "a", fn: func(_ context.Context, _ *ExecutionContext, input any) (ExecutionResult, error) {
		receivedA = input
		return Success("a-done"), nil
	}}
	b := &stubExecutor{id: "b", fn: func(_ context.Context, _ *ExecutionContext, input any) (ExecutionResult, error) {
		receivedB = input
		return Success("b-done"), nil
	}}

	f := newFakeChildFactory(a, b)
	exec, _ := newParallelOrchestrator(newParallelConfig("p1", 0, MergeAll, "a", "b"), f)

	ec := newTestExecutionContext("run-1")
	result, err := exec.Execute(context.Background(), ec, "shared-input")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if receivedA != "shared-input" || receivedB != "shared-input" {
		t.Errorf("expected both children to receive the same input, got a=%v b=%v", receivedA, receivedB)
	}
	outputs, ok := result.Output.([]any)
	if !ok || len(outputs) != 2 {
		t.Fatalf("expected a 2-element output slice, got %v", result.Output)
	}
}

func TestParallelNeverExceedsMaxConcurrency(t *testing.T) {
	const childCount = 6
	const maxConcurrency = 2

	var inflight int32
	var maxObserved int32
	release := make(chan struct{})

	var children []Executor
	var ids []string
	for i := 0; i < childCount; i++ {
		id := idFor(i)
		ids = append(ids, id)
		children = append(children, &stubExecutor{id: id, fn: func(_ context.Context, _ *ExecutionContext, input any) (ExecutionResult, error) {
			cur := atomic.AddInt32(&inflight, 1)
			for {
				observed := atomic.LoadInt32(&maxObserved)
				if cur <= observed || atomic.CompareAndSwapInt32(&maxObserved, observed, cur) {
					break
				}
			}
			<-release
			atomic.AddInt32(&inflight, -1)
			return Success(nil), nil
		}})
	}

	f := newFakeChildFactory(children...)
	exec, _ := newParallelOrchestrator(newParallelConfig("p2", maxConcurrency, MergeAll, ids...), f)

	ec := newTestExecutionContext("run-2")
	done := make(chan struct{})
	go func() {
		_, _ = exec.Execute(context.Background(), ec, nil)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	close(release)
	<-done

	if atomic.LoadInt32(&maxObserved) > maxConcurrency {
		t.Errorf("observed %d children in flight at once, want <= %d", maxObserved, maxConcurrency)
	}
}

func TestParallelMergeFirstReturnsFirstSuccess(t *testing.T) {
	f := newFakeChildFactory(failingStub("fails", false), echoStub("succeeds"))
	exec, _ := newParallelOrchestrator(newParallelConfig("p3", 0, MergeFirst, "fails", "succeeds"), f)

	ec := newTestExecutionContext("run-3")
	result, err := exec.Execute(context.Background(), ec, "in")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.Succeeded() {
		t.Errorf("expected MergeFirst to surface the successful child, got status %v", result.Status)
	}
}

func TestParallelMergeAllPartialWhenSomeFail(t *testing.T) {
	f := newFakeChildFactory(failingStub("fails", false), echoStub("succeeds"))
	exec, _ := newParallelOrchestrator(newParallelConfig("p4", 0, MergeAll, "fails", "succeeds"), f)

	ec := newTestExecutionContext("run-4")
	result, err := exec.Execute(context.Background(), ec, "in")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Status != StatusPartial {
		t.Errorf("expected StatusPartial, got %v", result.Status)
	}
}

func idFor(i int) string {
	return string(rune('a' + i))
}
