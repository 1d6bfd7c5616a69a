package kernel

import (
	"context"
	"testing"

	"github.com/flowkit/kernel/kernel/bus"
)

// tagStub appends a fixed suffix to whatever string input it receives,
// standing in for an atomic executor configured to "tag" its input.
func tagStub(id, suffix string) *stubExecutor {
	return &stubExecutor{id: id, fn: func(_ context.Context, _ *ExecutionContext, input any) (ExecutionResult, error) {
		return Success(input.(string) + suffix), nil
	}}
}

// TestScenarioSerialPiping is the serial[echo("[a]"), echo("[b]")] walk
// over input "x" producing "x[a][b]".
func TestScenarioSerialPiping(t *testing.T) {
	a := tagStub("a", "[a]")
	b := tagStub("b", "[b]")
	f := newFakeChildFactory(a, b)
	exec, err := newSerialOrchestrator(newSerialConfig("pipe", 0, "a", "b"), f)
	if err != nil {
		t.Fatalf("newSerialOrchestrator: %v", err)
	}

	var starts []string
	ec := newTestExecutionContext("scenario-s1")
	unsub := ec.Emitter().On(bus.NodeStart, func(e bus.Event) { starts = append(starts, e.NodeID) }, bus.SubscribeOptions{})
	defer unsub()

	result, err := exec.Execute(context.Background(), ec, "x")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Output != "x[a][b]" {
		t.Errorf("expected %q, got %v", "x[a][b]", result.Output)
	}
	if len(starts) != 2 || starts[0] != "a" || starts[1] != "b" {
		t.Errorf("expected node:start for a then b, got %v", starts)
	}
}

// TestScenarioParallelFanOutMergeAll is parallel{maxConcurrency:2,
// mergeStrategy:"all"}[echo("[A]"), failing(), echo("[C]")] over "x".
func TestScenarioParallelFanOutMergeAll(t *testing.T) {
	a := tagStub("A", "[A]")
	failing := failingStub("B", false)
	c := tagStub("C", "[C]")
	f := newFakeChildFactory(a, failing, c)
	exec, _ := newParallelOrchestrator(newParallelConfig("fanout", 2, MergeAll, "A", "B", "C"), f)

	ec := newTestExecutionContext("scenario-s2")
	result, err := exec.Execute(context.Background(), ec, "x")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Status != StatusPartial {
		t.Errorf("expected status partial, got %v", result.Status)
	}
	outputs, ok := result.Output.([]any)
	if !ok || len(outputs) != 3 {
		t.Fatalf("expected a 3-element output slice, got %v", result.Output)
	}
	if outputs[0] != "x[A]" || outputs[1] != nil || outputs[2] != "x[C]" {
		t.Errorf("expected [\"x[A]\", nil, \"x[C]\"], got %v", outputs)
	}
	if len(result.Errors) != 1 || result.Errors[0].Code != CodeExecutionError {
		t.Errorf("expected exactly one EXECUTION_ERROR entry, got %+v", result.Errors)
	}
}

// TestScenarioRouterRule is router{rules:[startsWith:hi -> greet,
// contains:bug -> triage]}[greet, triage, fallback] over "hi there",
// expected to dispatch to greet.
func TestScenarioRouterRule(t *testing.T) {
	greet := echoStub("greet")
	triage := echoStub("triage")
	fallback := echoStub("fallback")
	f := newFakeChildFactory(greet, triage, fallback)

	rules := []RouteRule{
		{Condition: "startsWith:hi", Target: "greet"},
		{Condition: "contains:bug", Target: "triage"},
	}
	exec, _ := newRouterOrchestrator(newRuleRouterConfig("route", rules, "greet", "triage", "fallback"), f)

	var progress []map[string]any
	ec := newTestExecutionContext("scenario-s3")
	unsub := ec.Emitter().On(bus.ExecutionProgress, func(e bus.Event) {
		progress = append(progress, e.Payload)
	}, bus.SubscribeOptions{})
	defer unsub()

	result, err := exec.Execute(context.Background(), ec, "hi there")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Output != "hi there" {
		t.Errorf("expected greet to echo the input unchanged, got %v", result.Output)
	}
	if len(progress) != 1 || progress[0]["action"] != "route" || progress[0]["selectedTarget"] != "greet" {
		t.Errorf("expected one route progress event selecting greet, got %+v", progress)
	}
}

// TestScenarioLoopExitCondition is loop{maxIterations:10,
// exitCondition:"iteration >= 3"}[echo(".")] over "", expecting 4
// iterations and output "....".
func TestScenarioLoopExitCondition(t *testing.T) {
	dot := tagStub("dot", ".")
	f := newFakeChildFactory(dot)
	exec, err := newLoopOrchestrator(newLoopConfig("loop", 10, "iteration >= 3", false, "dot"), f)
	if err != nil {
		t.Fatalf("newLoopOrchestrator: %v", err)
	}

	ec := newTestExecutionContext("scenario-s4")
	result, err := exec.Execute(context.Background(), ec, "")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Output != "...." {
		t.Errorf("expected %q after 4 iterations, got %v", "....", result.Output)
	}
}

// TestScenarioDAGDiamond is the A->B, A->C, B->D, C->D diamond: A produces
// "a", B appends "-b", C appends "-c", D concatenates its two fan-in
// inputs as "a-b|a-c".
func TestScenarioDAGDiamond(t *testing.T) {
	a := &stubExecutor{id: "A", fn: func(_ context.Context, _ *ExecutionContext, _ any) (ExecutionResult, error) {
		return Success("a"), nil
	}}
	b := tagStub("B", "-b")
	c := tagStub("C", "-c")
	d := &stubExecutor{id: "D", fn: func(_ context.Context, _ *ExecutionContext, input any) (ExecutionResult, error) {
		in := input.(map[string]any)
		return Success(in["B"].(string) + "|" + in["C"].(string)), nil
	}}

	edges := []DAGEdge{{From: "A", To: "B"}, {From: "A", To: "C"}, {From: "B", To: "D"}, {From: "C", To: "D"}}
	f := newFakeChildFactory(a, b, c, d)
	exec, err := newDAGOrchestrator(newDAGConfig("diamond", 4, edges, "A", "B", "C", "D"), f)
	if err != nil {
		t.Fatalf("newDAGOrchestrator: %v", err)
	}

	ec := newTestExecutionContext("scenario-s5")
	result, err := exec.Execute(context.Background(), ec, "")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Output != "a-b|a-c" {
		t.Errorf("expected %q, got %v", "a-b|a-c", result.Output)
	}
	if result.Status != StatusSuccess {
		t.Errorf("expected status success, got %v", result.Status)
	}
	if result.Metadata == nil || result.Metadata.Completed != 4 || result.Metadata.Failed != 0 || result.Metadata.Skipped != 0 {
		t.Errorf("expected 4 completed, 0 failed, 0 skipped, got %+v", result.Metadata)
	}
}

// TestScenarioDAGFailureCascade is the same diamond with B failing: A
// completes, B fails, C completes, D is skipped as B's transitive
// dependent; status partial, 2 completed/1 failed/1 skipped.
func TestScenarioDAGFailureCascade(t *testing.T) {
	a := &stubExecutor{id: "A", fn: func(_ context.Context, _ *ExecutionContext, _ any) (ExecutionResult, error) {
		return Success("a"), nil
	}}
	b := failingStub("B", false)
	c := tagStub("C", "-c")
	d := &stubExecutor{id: "D", fn: func(_ context.Context, _ *ExecutionContext, _ any) (ExecutionResult, error) {
		return Success("should not run"), nil
	}}

	edges := []DAGEdge{{From: "A", To: "B"}, {From: "A", To: "C"}, {From: "B", To: "D"}, {From: "C", To: "D"}}
	f := newFakeChildFactory(a, b, c, d)
	exec, err := newDAGOrchestrator(newDAGConfig("cascade", 4, edges, "A", "B", "C", "D"), f)
	if err != nil {
		t.Fatalf("newDAGOrchestrator: %v", err)
	}

	ec := newTestExecutionContext("scenario-s6")
	result, err := exec.Execute(context.Background(), ec, "")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Status != StatusPartial {
		t.Errorf("expected status partial, got %v", result.Status)
	}
	if result.Metadata == nil || result.Metadata.Completed != 2 || result.Metadata.Failed != 1 || result.Metadata.Skipped != 1 {
		t.Errorf("expected 2 completed, 1 failed, 1 skipped, got %+v", result.Metadata)
	}
}
