package bus

import "github.com/rs/zerolog"

// LogSubscriber forwards every event on a Bus to a zerolog.Logger. It
// subscribes to Wildcard so it observes the full stream regardless of
// type; construct one per process, not per execution.
type LogSubscriber struct {
	logger zerolog.Logger
}

// NewLogSubscriber wires logger to every event on bus and returns the
// Unsubscribe for the underlying registration.
func NewLogSubscriber(b *Bus, logger zerolog.Logger) (*LogSubscriber, Unsubscribe) {
	s := &LogSubscriber{logger: logger}
	unsub := b.Subscribe(Wildcard, s.handle, SubscribeOptions{})
	return s, unsub
}

func (s *LogSubscriber) handle(e Event) {
	evt := s.logger.Info()
	if isErrorType(e.Type) {
		evt = s.logger.Error()
	}
	evt = evt.
		Str("type", string(e.Type)).
		Str("executionId", e.ExecutionID).
		Time("timestamp", e.Timestamp)
	if e.NodeID != "" {
		evt = evt.Str("nodeId", e.NodeID)
	}
	for k, v := range e.Payload {
		evt = evt.Interface(k, v)
	}
	evt.Msg("kernel event")
}

func isErrorType(t Type) bool {
	return t == ExecutionError || t == NodeError
}
