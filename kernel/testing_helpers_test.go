package kernel

import (
	"context"

	"github.com/flowkit/kernel/kernel/bus"
)

// stubExecutor is a directly-programmable Executor for orchestrator tests,
// avoiding the need to route every test through the real Factory's type
// dispatch.
type stubExecutor struct {
	id  string
	fn  func(ctx context.Context, ec *ExecutionContext, input any) (ExecutionResult, error)
	err error
}

func (s *stubExecutor) ID() string { return s.id }

func (s *stubExecutor) Execute(ctx context.Context, ec *ExecutionContext, input any) (ExecutionResult, error) {
	if s.err != nil {
		return ExecutionResult{}, s.err
	}
	return s.fn(ctx, ec, input)
}

// echoStub returns a stub that succeeds with its input unchanged.
func echoStub(id string) *stubExecutor {
	return &stubExecutor{id: id, fn: func(_ context.Context, _ *ExecutionContext, input any) (ExecutionResult, error) {
		return Success(input), nil
	}}
}

// failingStub returns a stub that always fails with the given
// recoverability.
func failingStub(id string, recoverable bool) *stubExecutor {
	return &stubExecutor{id: id, fn: func(_ context.Context, _ *ExecutionContext, _ any) (ExecutionResult, error) {
		return ExecutionResult{
			Status:  StatusFailed,
			Control: EndDirective(),
			Errors:  []ResultError{{Code: CodeExecutionError, Message: "boom", Recoverable: recoverable}},
		}, nil
	}}
}

// fakeChildFactory maps child ExecutorConfig.ID to a pre-built Executor,
// letting tests assemble orchestrator fixtures without touching the real
// Factory's type/mode registries.
type fakeChildFactory struct {
	byID map[string]Executor
}

func newFakeChildFactory(execs ...Executor) *fakeChildFactory {
	f := &fakeChildFactory{byID: make(map[string]Executor, len(execs))}
	for _, e := range execs {
		f.byID[e.ID()] = e
	}
	return f
}

func (f *fakeChildFactory) Create(config ExecutorConfig) (Executor, error) {
	if e, ok := f.byID[config.ID]; ok {
		return e, nil
	}
	return nil, &ConfigError{Code: CodeUnknownType, Message: "no stub registered for " + config.ID}
}

// newTestExecutionContext returns a root ExecutionContext backed by a
// fresh bus scope, suitable for driving a single orchestrator under test.
func newTestExecutionContext(executionID string) *ExecutionContext {
	b := bus.New()
	scope := b.CreateScope(executionID)
	return NewExecutionContext(executionID, scope)
}

// childConfigs builds the []ExecutorConfig slice an OrchestratorConfig
// needs, one entry per id, typed as script executors (the type value
// itself is never consulted since fakeChildFactory dispatches by id).
func childConfigs(ids ...string) []ExecutorConfig {
	out := make([]ExecutorConfig, 0, len(ids))
	for _, id := range ids {
		out = append(out, ExecutorConfig{ID: id, Type: TypeScript})
	}
	return out
}
