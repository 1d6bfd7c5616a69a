package bus

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTelBridge opens one span per node:start and closes it on the matching
// node:complete or node:error, generalizing the teacher's one-span-per-
// event emitter into a duration-carrying span per node invocation.
type OTelBridge struct {
	tracer trace.Tracer

	mu    sync.Mutex
	spans map[string]trace.Span // keyed by executionId + "/" + nodeId
}

// NewOTelBridge subscribes a bridge backed by tracer to every event on bus
// and returns the Unsubscribe for the registration.
func NewOTelBridge(b *Bus, tracer trace.Tracer) (*OTelBridge, Unsubscribe) {
	o := &OTelBridge{tracer: tracer, spans: make(map[string]trace.Span)}
	unsub := b.Subscribe(Wildcard, o.handle, SubscribeOptions{})
	return o, unsub
}

func (o *OTelBridge) key(e Event) string { return e.ExecutionID + "/" + e.NodeID }

func (o *OTelBridge) handle(e Event) {
	switch e.Type {
	case NodeStart:
		_, span := o.tracer.Start(context.Background(), "node")
		span.SetAttributes(
			attribute.String("kernel.execution_id", e.ExecutionID),
			attribute.String("kernel.node_id", e.NodeID),
		)
		if t, ok := e.Payload["executorType"]; ok {
			span.SetAttributes(attribute.String("kernel.executor_type", toStr(t)))
		}
		o.mu.Lock()
		o.spans[o.key(e)] = span
		o.mu.Unlock()
	case NodeComplete:
		o.end(e, nil)
	case NodeError:
		o.end(e, e.Payload["error"])
	case ExecutionStart, ExecutionProgress, ExecutionComplete, ExecutionError, ExecutionCancel, StateChanged:
		// workflow-level events are not individually spanned; node spans
		// carry the timeline.
	}
}

func (o *OTelBridge) end(e Event, errVal any) {
	o.mu.Lock()
	span, ok := o.spans[o.key(e)]
	if ok {
		delete(o.spans, o.key(e))
	}
	o.mu.Unlock()
	if !ok {
		return
	}
	if errVal != nil {
		span.SetStatus(codes.Error, toStr(errVal))
	}
	span.End()
}

func toStr(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
