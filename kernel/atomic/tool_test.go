package atomic

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/flowkit/kernel/kernel"
)

func newTestToolConfig(id, handler string, params map[string]any) kernel.ExecutorConfig {
	return kernel.ExecutorConfig{
		ID:   id,
		Type: kernel.TypeTool,
		Tool: &kernel.ToolConfig{Handler: handler, Parameters: params},
	}
}

func TestToolCallsRegisteredHandlerWithValidatedArgs(t *testing.T) {
	registry := NewToolRegistry()
	var gotArgs map[string]any
	registry.Register("echo", func(_ context.Context, args map[string]any) (map[string]any, error) {
		gotArgs = args
		return map[string]any{"ok": true}, nil
	})

	creator := newToolExecutor(registry)
	schema := map[string]any{
		"type":       "object",
		"properties": map[string]any{"name": map[string]any{"type": "string"}},
		"required":   []any{"name"},
	}
	exec, err := creator(newTestToolConfig("t1", "echo", schema), nil)
	if err != nil {
		t.Fatalf("creator: %v", err)
	}

	ec := newTestExecContext()
	result, err := exec.Execute(context.Background(), ec, map[string]any{"name": "alice"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.Succeeded() {
		t.Fatalf("expected success, got %+v", result)
	}
	if gotArgs["name"] != "alice" {
		t.Errorf("expected the handler to see the validated args, got %v", gotArgs)
	}
}

func TestToolRejectsArgsMissingRequiredField(t *testing.T) {
	registry := NewToolRegistry()
	called := false
	registry.Register("echo", func(_ context.Context, _ map[string]any) (map[string]any, error) {
		called = true
		return nil, nil
	})

	creator := newToolExecutor(registry)
	schema := map[string]any{
		"type":     "object",
		"required": []any{"name"},
	}
	exec, _ := creator(newTestToolConfig("t2", "echo", schema), nil)

	ec := newTestExecContext()
	result, err := exec.Execute(context.Background(), ec, map[string]any{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Status != kernel.StatusFailed {
		t.Errorf("expected StatusFailed for a missing required arg, got %v", result.Status)
	}
	if called {
		t.Error("expected the handler not to run when validation fails")
	}
}

func TestToolUnknownHandlerFails(t *testing.T) {
	registry := NewToolRegistry()
	creator := newToolExecutor(registry)
	exec, _ := creator(newTestToolConfig("t3", "does-not-exist", nil), nil)

	ec := newTestExecContext()
	result, err := exec.Execute(context.Background(), ec, map[string]any{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Status != kernel.StatusFailed {
		t.Errorf("expected StatusFailed for an unregistered handler, got %v", result.Status)
	}
}

func TestToolHandlerErrorIsReportedAsFailed(t *testing.T) {
	registry := NewToolRegistry()
	registry.Register("boom", func(_ context.Context, _ map[string]any) (map[string]any, error) {
		return nil, errors.New("handler blew up")
	})
	creator := newToolExecutor(registry)
	exec, _ := creator(newTestToolConfig("t4", "boom", nil), nil)

	ec := newTestExecContext()
	result, err := exec.Execute(context.Background(), ec, map[string]any{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Status != kernel.StatusFailed {
		t.Errorf("expected StatusFailed, got %v", result.Status)
	}
}

func TestToolTimeoutAbortsLongRunningHandler(t *testing.T) {
	registry := NewToolRegistry()
	registry.Register("slow", func(ctx context.Context, _ map[string]any) (map[string]any, error) {
		select {
		case <-time.After(200 * time.Millisecond):
			return map[string]any{}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
	cfg := newTestToolConfig("t5", "slow", nil)
	cfg.Tool.Timeout = 10 * time.Millisecond
	creator := newToolExecutor(registry)
	exec, _ := creator(cfg, nil)

	ec := newTestExecContext()
	result, err := exec.Execute(context.Background(), ec, map[string]any{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Status != kernel.StatusFailed {
		t.Errorf("expected the timeout to surface as a failed result, got %v", result.Status)
	}
}

func TestToolWithoutConfigIsARejectedConfiguration(t *testing.T) {
	creator := newToolExecutor(NewToolRegistry())
	_, err := creator(kernel.ExecutorConfig{ID: "t6", Type: kernel.TypeTool}, nil)
	if err == nil {
		t.Fatal("expected an error when no tool config is supplied")
	}
}
