package core

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetricsRecorder exports service operations as Prometheus metrics: a
// counter of operations by outcome and a histogram of their durations.
type PrometheusMetricsRecorder struct {
	total    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewPrometheusMetricsRecorder registers the service metrics on reg. A nil reg uses
// the default registerer.
func NewPrometheusMetricsRecorder(reg prometheus.Registerer) (*PrometheusMetricsRecorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	r := &PrometheusMetricsRecorder{
		total: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tbtr",
			Subsystem: "service",
			Name:      "operations_total",
			Help:      "Service operations by name and outcome.",
		}, []string{"operation", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tbtr",
			Subsystem: "service",
			Name:      "operation_duration_seconds",
			Help:      "Duration of service operations.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"operation"}),
	}
	for _, c := range []prometheus.Collector{r.total, r.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Observe implements MetricsRecorder.
func (r *PrometheusMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	status := "success"
	if !success {
		status = "error"
	}
	r.total.WithLabelValues(operation, status).Inc()
	r.duration.WithLabelValues(operation).Observe(duration.Seconds())
}
