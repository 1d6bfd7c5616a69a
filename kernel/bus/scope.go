package bus

import "time"

// Now is overridable for tests; production code leaves it at time.Now.
var Now = time.Now

// ScopedEmitter is a view of a Bus restricted to one execution id. Emit
// stamps executionId/timestamp/nodeId onto every event before forwarding
// to the parent bus; On attaches a filter admitting only events carrying
// this execution id, so a subscriber registered through one execution's
// scope never observes another's events even though the underlying Bus is
// shared.
type ScopedEmitter struct {
	bus         *Bus
	executionID string
	destroyed   bool
}

// CreateScope allocates a ScopedEmitter bound to executionID. The Bus
// itself does not track the scope's lifetime beyond what DestroyScope
// does; scopes are lightweight views, not registries.
func (b *Bus) CreateScope(executionID string) *ScopedEmitter {
	return &ScopedEmitter{bus: b, executionID: executionID}
}

// DestroyScope marks the scope as torn down. Subscriptions created through
// it remain valid for events already in flight but the scope itself will
// refuse to originate new events afterward.
func (s *ScopedEmitter) DestroyScope() {
	s.destroyed = true
}

// Emit stamps the envelope fields and forwards to the underlying Bus. A
// no-op once the scope has been destroyed.
func (s *ScopedEmitter) Emit(t Type, payload map[string]any, nodeID string) {
	if s.destroyed {
		return
	}
	s.bus.Emit(Event{
		Type:        t,
		ExecutionID: s.executionID,
		NodeID:      nodeID,
		Timestamp:   Now(),
		Payload:     payload,
	})
}

// On subscribes handler to t, admitting only events whose ExecutionID
// matches this scope. Any caller-supplied filter is applied in addition
// to, not instead of, the scope filter.
func (s *ScopedEmitter) On(t Type, handler Handler, opts SubscribeOptions) Unsubscribe {
	userFilter := opts.Filter
	opts.Filter = func(e Event) bool {
		if e.ExecutionID != s.executionID {
			return false
		}
		if userFilter != nil {
			return userFilter(e)
		}
		return true
	}
	return s.bus.Subscribe(t, handler, opts)
}

// ExecutionID returns the id this scope is bound to.
func (s *ScopedEmitter) ExecutionID() string { return s.executionID }
