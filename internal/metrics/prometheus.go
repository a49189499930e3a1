// Package metrics exports engine metrics in Prometheus format.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"resourcesync/pkg/domain"
)

// PrometheusRecorder records one-shot operation outcomes and the lifecycle of
// live subscriptions.
type PrometheusRecorder struct {
	operations    *prometheus.CounterVec
	durations     *prometheus.HistogramVec
	subscriptions *prometheus.GaugeVec
	opened        *prometheus.CounterVec
	deliveries    *prometheus.CounterVec
	documents     *prometheus.HistogramVec
}

// NewPrometheusRecorder registers the collectors on reg. A nil reg uses the
// default registerer.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &PrometheusRecorder{
		operations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "resourcesync_operations_total",
				Help: "Total number of one-shot reads and writes",
			},
			[]string{"operation", "status"},
		),
		durations: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "resourcesync_operation_duration_seconds",
				Help:    "Duration of one-shot reads and writes in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
			},
			[]string{"operation"},
		),
		subscriptions: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "resourcesync_subscriptions_active",
				Help: "Current number of open live subscriptions",
			},
			[]string{"path"},
		),
		opened: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "resourcesync_subscriptions_opened_total",
				Help: "Total number of live subscriptions opened",
			},
			[]string{"path"},
		),
		deliveries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "resourcesync_deliveries_total",
				Help: "Total number of subscription deliveries by outcome",
			},
			[]string{"path", "outcome"},
		),
		documents: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "resourcesync_delivery_documents",
				Help:    "Number of documents carried by applied deliveries",
				Buckets: prometheus.ExponentialBuckets(1, 4, 6),
			},
			[]string{"path"},
		),
	}
}

// Observe implements core.MetricsRecorder.
func (r *PrometheusRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	status := "error"
	if success {
		status = "success"
	}
	r.operations.WithLabelValues(operation, status).Inc()
	r.durations.WithLabelValues(operation).Observe(duration.Seconds())
}

// SubscriptionOpened implements core.SubscriptionObserver.
func (r *PrometheusRecorder) SubscriptionOpened(path domain.EntityPath) {
	r.subscriptions.WithLabelValues(string(path)).Inc()
	r.opened.WithLabelValues(string(path)).Inc()
}

// SubscriptionClosed implements core.SubscriptionObserver.
func (r *PrometheusRecorder) SubscriptionClosed(path domain.EntityPath) {
	r.subscriptions.WithLabelValues(string(path)).Dec()
}

// SnapshotApplied implements core.SubscriptionObserver.
func (r *PrometheusRecorder) SnapshotApplied(path domain.EntityPath, documents int) {
	r.deliveries.WithLabelValues(string(path), "applied").Inc()
	r.documents.WithLabelValues(string(path)).Observe(float64(documents))
}

// SnapshotSuppressed implements core.SubscriptionObserver.
func (r *PrometheusRecorder) SnapshotSuppressed(path domain.EntityPath) {
	r.deliveries.WithLabelValues(string(path), "suppressed").Inc()
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
