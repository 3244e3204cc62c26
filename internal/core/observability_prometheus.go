package core

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"familytree/pkg/domain"
)

const metricsNamespace = "familytree"

// PrometheusMetrics exports operation and forest metrics on a private
// registry. It serves both MetricsRecorder and ForestObserver.
type PrometheusMetrics struct {
	registry   *prometheus.Registry
	operations *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	people     prometheus.Gauge
	roots      prometheus.Gauge
	demotions  prometheus.Gauge
	rebuild    prometheus.Histogram
}

// NewPrometheusMetrics registers the familytree collectors on a new registry.
func NewPrometheusMetrics() *PrometheusMetrics {
	m := &PrometheusMetrics{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "operations_total",
			Help:      "Service operations by name and status.",
		}, []string{"operation", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "operation_duration_seconds",
			Help:      "Service operation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		people: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "forest",
			Name:      "people",
			Help:      "People in the current forest.",
		}),
		roots: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "forest",
			Name:      "roots",
			Help:      "Root people in the current forest.",
		}),
		demotions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "forest",
			Name:      "demotions",
			Help:      "Records promoted to roots because of a missing or cyclic parent.",
		}),
		rebuild: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "forest",
			Name:      "rebuild_seconds",
			Help:      "Time spent building the forest from a snapshot.",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}),
	}
	m.registry.MustRegister(m.operations, m.latency, m.people, m.roots, m.demotions, m.rebuild)
	return m
}

// Registry exposes the underlying registry.
func (m *PrometheusMetrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Observe implements MetricsRecorder.
func (m *PrometheusMetrics) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	status := AuditStatusSuccess
	if !success {
		status = AuditStatusError
	}
	m.operations.WithLabelValues(operation, string(status)).Inc()
	m.latency.WithLabelValues(operation).Observe(duration.Seconds())
}

// ObserveForest implements ForestObserver.
func (m *PrometheusMetrics) ObserveForest(f *domain.Forest, rebuild time.Duration) {
	m.people.Set(float64(f.Len()))
	m.roots.Set(float64(len(f.Roots())))
	m.demotions.Set(float64(len(f.Demotions())))
	m.rebuild.Observe(rebuild.Seconds())
}
