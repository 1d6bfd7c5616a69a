package kernel

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes Prometheus instrumentation for kernel execution,
// namespaced "kernel_" (the teacher's PrometheusMetrics namespaces
// "langgraph_" for the same concerns: inflight work, step latency,
// retries, and throttling).
type Metrics struct {
	inflightNodes prometheus.Gauge
	nodeLatency   *prometheus.HistogramVec
	retries       *prometheus.CounterVec
	dagSkips      *prometheus.CounterVec
	fanOutWidth   *prometheus.HistogramVec
}

// NewMetrics registers the kernel's metric set with registry. Pass nil to
// use prometheus.DefaultRegisterer.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		inflightNodes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "kernel",
			Name:      "inflight_nodes",
			Help:      "Current number of nodes executing concurrently across all executions",
		}),
		nodeLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "kernel",
			Name:      "node_latency_ms",
			Help:      "Node execution duration in milliseconds",
			Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000},
		}, []string{"executor_type", "status"}),
		retries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kernel",
			Name:      "retries_total",
			Help:      "Cumulative count of inline retry attempts in serial composites",
		}, []string{"node_id"}),
		dagSkips: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kernel",
			Name:      "dag_skip_cascades_total",
			Help:      "Count of DAG nodes transitioned to skipped by a failure cascade",
		}, []string{"dag_id"}),
		fanOutWidth: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "kernel",
			Name:      "parallel_fanout_width",
			Help:      "Number of children dispatched by a parallel orchestrator invocation",
			Buckets:   []float64{1, 2, 4, 8, 16, 32, 64},
		}, []string{"node_id"}),
	}
}

// ObserveNodeStart increments the inflight gauge; callers must pair it
// with ObserveNodeDone.
func (m *Metrics) ObserveNodeStart() { m.inflightNodes.Inc() }

// ObserveNodeDone records final latency/status and decrements the
// inflight gauge.
func (m *Metrics) ObserveNodeDone(executorType ExecutorType, status Status, latencyMs float64) {
	m.inflightNodes.Dec()
	m.nodeLatency.WithLabelValues(string(executorType), string(status)).Observe(latencyMs)
}

// ObserveRetry records one inline retry attempt against nodeID.
func (m *Metrics) ObserveRetry(nodeID string) {
	m.retries.WithLabelValues(nodeID).Inc()
}

// ObserveSkipCascade records count skip transitions triggered by one DAG
// failure.
func (m *Metrics) ObserveSkipCascade(dagID string, count int) {
	m.dagSkips.WithLabelValues(dagID).Add(float64(count))
}

// ObserveFanOut records the width of one parallel dispatch.
func (m *Metrics) ObserveFanOut(nodeID string, width int) {
	m.fanOutWidth.WithLabelValues(nodeID).Observe(float64(width))
}
