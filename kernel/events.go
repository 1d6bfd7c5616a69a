package kernel

import "github.com/flowkit/kernel/kernel/bus"

// emitNodeStart announces that child is about to run.
func emitNodeStart(ec *ExecutionContext, child Executor, childType ExecutorType, mode OrchestratorMode) {
	payload := map[string]any{"executorId": child.ID(), "executorType": string(childType)}
	if mode != "" {
		payload["mode"] = string(mode)
	}
	ec.Emitter().Emit(bus.NodeStart, payload, child.ID())
}

// emitNodeTerminal announces a child's completion, choosing node:complete
// or node:error based on result.Status.
func emitNodeTerminal(ec *ExecutionContext, nodeID string, result ExecutionResult) {
	if result.Status == StatusFailed && len(result.Errors) > 0 {
		ec.Emitter().Emit(bus.NodeError, map[string]any{"error": result.Errors[0].Message}, nodeID)
		return
	}
	payload := map[string]any{
		"status": string(result.Status),
		"output": result.Output,
	}
	if result.Metadata != nil && result.Metadata.TokenUsage != nil {
		payload["tokenUsage"] = result.Metadata.TokenUsage
	}
	ec.Emitter().Emit(bus.NodeComplete, payload, nodeID)
}

// recoverableError is implemented by driver-level errors (e.g. DriverError)
// that know whether a retry is worth attempting.
type recoverableError interface {
	Recoverable() bool
}

// synthesizeChildFailure builds the result a composite substitutes when a
// child's Execute call returns a Go error (not a failed ExecutionResult).
// Errors that know their own recoverability (DriverError's 5xx/429 rule)
// propagate it so a serial composite's inline retry can act on it.
func synthesizeChildFailure(err error) ExecutionResult {
	recoverable := false
	if re, ok := err.(recoverableError); ok {
		recoverable = re.Recoverable()
	}
	return ExecutionResult{
		Status:  StatusFailed,
		Output:  nil,
		Control: EndDirective(),
		Errors: []ResultError{{
			Code:        CodeExecutionError,
			Message:     err.Error(),
			Recoverable: recoverable,
		}},
	}
}
