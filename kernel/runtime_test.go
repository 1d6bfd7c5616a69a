package kernel

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/flowkit/kernel/kernel/bus"
)

func TestRuntimeExecuteReturnsRootExecutorResult(t *testing.T) {
	f := NewFactory()
	r := NewRuntime(f, bus.New())

	cfg := ExecutorConfig{ID: "root", Type: TypeScript, Script: &ScriptConfig{Expression: "input == 1"}}
	result, err := r.Execute(context.Background(), cfg, 1.0, RunOptions{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Output != true {
		t.Errorf("expected true, got %v", result.Output)
	}
}

func TestRuntimeUsesExplicitExecutionID(t *testing.T) {
	f := NewFactory()
	r := NewRuntime(f, bus.New())

	var seen string
	unsub := r.OnEvent(bus.ExecutionStart, func(e bus.Event) { seen = e.ExecutionID })
	defer unsub()

	cfg := ExecutorConfig{ID: "root", Type: TypeScript, Script: &ScriptConfig{}}
	_, err := r.Execute(context.Background(), cfg, "x", RunOptions{ExecutionID: "explicit-id"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if seen != "explicit-id" {
		t.Errorf("expected execution:start to carry the explicit id, got %q", seen)
	}
}

func TestRuntimeFallsBackToSessionIDVariable(t *testing.T) {
	f := NewFactory()
	r := NewRuntime(f, bus.New())

	var seen string
	unsub := r.OnEvent(bus.ExecutionStart, func(e bus.Event) { seen = e.ExecutionID })
	defer unsub()

	cfg := ExecutorConfig{ID: "root", Type: TypeScript, Script: &ScriptConfig{}}
	_, err := r.Execute(context.Background(), cfg, "x", RunOptions{Variables: map[string]any{"sessionId": "from-vars"}})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if seen != "from-vars" {
		t.Errorf("expected execution:start to carry the sessionId variable, got %q", seen)
	}
}

func TestRuntimeGeneratesExecutionIDWhenNoneSupplied(t *testing.T) {
	f := NewFactory()
	r := NewRuntime(f, bus.New())

	var seen string
	unsub := r.OnEvent(bus.ExecutionStart, func(e bus.Event) { seen = e.ExecutionID })
	defer unsub()

	cfg := ExecutorConfig{ID: "root", Type: TypeScript, Script: &ScriptConfig{}}
	_, err := r.Execute(context.Background(), cfg, "x", RunOptions{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if seen == "" {
		t.Error("expected a generated execution id to be used")
	}
}

func TestRuntimeEmitsLifecycleEventsInOrder(t *testing.T) {
	f := NewFactory()
	r := NewRuntime(f, bus.New())

	var mu sync.Mutex
	var types []bus.Type
	unsub := r.OnEvent(bus.Wildcard, func(e bus.Event) {
		mu.Lock()
		defer mu.Unlock()
		types = append(types, e.Type)
	})
	defer unsub()

	cfg := ExecutorConfig{ID: "root", Type: TypeScript, Script: &ScriptConfig{}}
	_, err := r.Execute(context.Background(), cfg, "x", RunOptions{ExecutionID: "order-check"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(types) < 2 || types[0] != bus.ExecutionStart || types[len(types)-1] != bus.ExecutionComplete {
		t.Errorf("expected execution:start first and execution:complete last, got %v", types)
	}
}

func TestRuntimeVariablesAreVisibleToTheRootExecutor(t *testing.T) {
	f := NewFactory()
	r := NewRuntime(f, bus.New())

	cfg := ExecutorConfig{ID: "root", Type: TypeScript, Script: &ScriptConfig{Expression: "flag == true"}}
	result, err := r.Execute(context.Background(), cfg, nil, RunOptions{Variables: map[string]any{"flag": true}})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Output != true {
		t.Errorf("expected the root's script to see the seeded variable, got %v", result.Output)
	}
}

// tokenUsageAtomic returns a canned TokenUsage in its Metadata, letting
// tests drive Runtime's per-execution cost aggregation deterministically.
type tokenUsageAtomic struct {
	id    string
	usage TokenUsage
}

func (t *tokenUsageAtomic) ID() string { return t.id }
func (t *tokenUsageAtomic) Execute(_ context.Context, _ *ExecutionContext, input any) (ExecutionResult, error) {
	result := Success(input)
	result.Metadata = &Metadata{ExecutorID: t.id, TokenUsage: &t.usage}
	return result, nil
}

func TestRuntimeAggregatesTokenUsageAcrossNodes(t *testing.T) {
	f := NewFactory()
	f.RegisterAtomic(ExecutorType("token-a"), func(config ExecutorConfig, _ ChildFactory) (Executor, error) {
		return &tokenUsageAtomic{id: config.ID, usage: TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}}, nil
	})
	f.RegisterAtomic(ExecutorType("token-b"), func(config ExecutorConfig, _ ChildFactory) (Executor, error) {
		return &tokenUsageAtomic{id: config.ID, usage: TokenUsage{PromptTokens: 3, CompletionTokens: 2, TotalTokens: 5}}, nil
	})
	r := NewRuntime(f, bus.New())

	cfg := ExecutorConfig{
		ID:   "root",
		Type: TypeComposite,
		Orchestrator: &OrchestratorConfig{
			Mode: ModeSerial,
			Children: []ExecutorConfig{
				{ID: "a", Type: ExecutorType("token-a")},
				{ID: "b", Type: ExecutorType("token-b")},
			},
		},
	}

	result, err := r.Execute(context.Background(), cfg, "x", RunOptions{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Metadata == nil || result.Metadata.TokenUsage == nil {
		t.Fatal("expected the aggregated TokenUsage to be attached to the top-level result")
	}
	got := *result.Metadata.TokenUsage
	want := TokenUsage{PromptTokens: 13, CompletionTokens: 7, TotalTokens: 20}
	if got != want {
		t.Errorf("expected aggregated usage %+v, got %+v", want, got)
	}
}

// blockingAtomic runs until its context is cancelled, letting tests drive
// Runtime's timeout and Cancel/CancelAll paths deterministically.
type blockingAtomic struct{ id string }

func (b *blockingAtomic) ID() string { return b.id }
func (b *blockingAtomic) Execute(ctx context.Context, ec *ExecutionContext, input any) (ExecutionResult, error) {
	<-ctx.Done()
	return ExecutionResult{}, &CancellationError{NodeID: b.id}
}

func newBlockingAtomic(config ExecutorConfig, _ ChildFactory) (Executor, error) {
	return &blockingAtomic{id: config.ID}, nil
}

func TestRuntimeTimeoutCancelsTheRunAndReturnsCancelled(t *testing.T) {
	f := NewFactory()
	f.RegisterAtomic(ExecutorType("blocking"), newBlockingAtomic)
	r := NewRuntime(f, bus.New())

	cfg := ExecutorConfig{ID: "root", Type: ExecutorType("blocking")}
	start := time.Now()
	result, err := r.Execute(context.Background(), cfg, "x", RunOptions{Timeout: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Status != StatusCancelled {
		t.Errorf("expected StatusCancelled on timeout, got %v", result.Status)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("expected the timeout to fire quickly, took %v", elapsed)
	}
}

func TestRuntimeCancelStopsAnInFlightExecution(t *testing.T) {
	f := NewFactory()
	f.RegisterAtomic(ExecutorType("blocking"), newBlockingAtomic)
	r := NewRuntime(f, bus.New())

	cfg := ExecutorConfig{ID: "root", Type: ExecutorType("blocking")}

	resultCh := make(chan ExecutionResult, 1)
	go func() {
		result, _ := r.Execute(context.Background(), cfg, "x", RunOptions{ExecutionID: "cancel-me"})
		resultCh <- result
	}()

	time.Sleep(20 * time.Millisecond)
	r.Cancel("cancel-me")

	select {
	case result := <-resultCh:
		if result.Status != StatusCancelled {
			t.Errorf("expected StatusCancelled, got %v", result.Status)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Cancel to stop the execution")
	}
}

func TestRuntimeOnExecutionEventOnlySeesItsOwnExecution(t *testing.T) {
	f := NewFactory()
	r := NewRuntime(f, bus.New())

	var seenA, seenB int
	unsubA := r.OnExecutionEvent("a", bus.Wildcard, func(bus.Event) { seenA++ })
	unsubB := r.OnExecutionEvent("b", bus.Wildcard, func(bus.Event) { seenB++ })
	defer unsubA()
	defer unsubB()

	cfg := ExecutorConfig{ID: "root", Type: TypeScript, Script: &ScriptConfig{}}
	if _, err := r.Execute(context.Background(), cfg, "x", RunOptions{ExecutionID: "a"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if seenA == 0 {
		t.Error("expected execution a's subscriber to observe its own events")
	}
	if seenB != 0 {
		t.Error("expected execution b's subscriber to observe nothing from execution a")
	}
}
