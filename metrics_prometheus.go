package annbench

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetricsCollector exports index operations as Prometheus metrics.
type PrometheusMetricsCollector struct {
	operations *prometheus.CounterVec
	errors     *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	vectors    prometheus.Counter
	queries    prometheus.Counter
}

var _ MetricsCollector = (*PrometheusMetricsCollector)(nil)

// NewPrometheusMetricsCollector creates the collector and registers it with reg.
// A nil reg uses prometheus.DefaultRegisterer.
func NewPrometheusMetricsCollector(reg prometheus.Registerer, namespace string) (*PrometheusMetricsCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "annbench"
	}

	p := &PrometheusMetricsCollector{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Index operations by type.",
		}, []string{"op"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Failed index operations by type.",
		}, []string{"op"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Index operation latency by type.",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 12),
		}, []string{"op"}),
		vectors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "indexed_vectors_total",
			Help:      "Vectors indexed by successful fits.",
		}),
		queries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_queries_total",
			Help:      "Queries submitted through batch calls.",
		}),
	}

	for _, c := range []prometheus.Collector{p.operations, p.errors, p.latency, p.vectors, p.queries} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *PrometheusMetricsCollector) observe(op string, duration time.Duration, err error) {
	p.operations.WithLabelValues(op).Inc()
	p.latency.WithLabelValues(op).Observe(duration.Seconds())
	if err != nil {
		p.errors.WithLabelValues(op).Inc()
	}
}

// RecordFit implements MetricsCollector.
func (p *PrometheusMetricsCollector) RecordFit(count int, duration time.Duration, err error) {
	p.observe("fit", duration, err)
	if err == nil {
		p.vectors.Add(float64(count))
	}
}

// RecordSearch implements MetricsCollector.
func (p *PrometheusMetricsCollector) RecordSearch(_ int, duration time.Duration, err error) {
	p.observe("search", duration, err)
}

// RecordBatch implements MetricsCollector.
func (p *PrometheusMetricsCollector) RecordBatch(count int, duration time.Duration, err error) {
	p.observe("batch", duration, err)
	p.queries.Add(float64(count))
}
