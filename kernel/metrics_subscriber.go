package kernel

import (
	"sync"
	"time"

	"github.com/flowkit/kernel/kernel/bus"
)

// AttachMetrics subscribes m to every node:start/node:complete/node:error
// event on b, plus the execution:progress retry/skip_cascade/fan_out
// events, translating the event stream into the Metrics gauges and
// histograms without requiring every orchestrator to carry a Metrics
// reference directly.
func AttachMetrics(b *bus.Bus, m *Metrics) bus.Unsubscribe {
	var mu sync.Mutex
	started := make(map[string]time.Time)

	key := func(e bus.Event) string { return e.ExecutionID + "/" + e.NodeID }

	return b.Subscribe(bus.Wildcard, func(e bus.Event) {
		switch e.Type {
		case bus.NodeStart:
			m.ObserveNodeStart()
			mu.Lock()
			started[key(e)] = time.Now()
			mu.Unlock()
		case bus.NodeComplete, bus.NodeError:
			mu.Lock()
			t0, ok := started[key(e)]
			if ok {
				delete(started, key(e))
			}
			mu.Unlock()
			status := StatusSuccess
			if e.Type == bus.NodeError {
				status = StatusFailed
			} else if s, ok := e.Payload["status"].(string); ok {
				status = Status(s)
			}
			var latency float64
			if ok {
				latency = float64(time.Since(t0).Milliseconds())
			}
			executorType, _ := e.Payload["executorType"].(string)
			m.ObserveNodeDone(ExecutorType(executorType), status, latency)
		case bus.ExecutionProgress:
			switch e.Payload["action"] {
			case "retry":
				m.ObserveRetry(e.NodeID)
			case "skip_cascade":
				if count, ok := e.Payload["count"].(int); ok {
					m.ObserveSkipCascade(e.NodeID, count)
				}
			case "fan_out":
				if width, ok := e.Payload["width"].(int); ok {
					m.ObserveFanOut(e.NodeID, width)
				}
			}
		}
	}, bus.SubscribeOptions{})
}
