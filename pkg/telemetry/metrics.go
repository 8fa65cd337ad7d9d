package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for reconciliations. A disabled
// instance accepts every call and records nothing.
type Metrics struct {
	config MetricsConfig

	reconciliations       *prometheus.CounterVec
	reconciliationSeconds *prometheus.HistogramVec

	remoteOperations       *prometheus.CounterVec
	remoteOperationSeconds *prometheus.HistogramVec

	statusWaitSeconds *prometheus.HistogramVec

	errorsByClass    *prometheus.CounterVec
	policyViolations *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	ns := cfg.Namespace
	buckets := cfg.DurationBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()
	m := &Metrics{
		config:   cfg,
		registry: registry,

		reconciliations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "reconciliations_total",
			Help:      "Total number of reconciliations by desired state and outcome",
		}, []string{"state", "outcome"}),
		reconciliationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "reconciliation_duration_seconds",
			Help:      "Duration of reconciliations in seconds",
			Buckets:   buckets,
		}, []string{"state"}),

		remoteOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "remote_operations_total",
			Help:      "Total number of remote partition operations",
		}, []string{"operation", "status"}),
		remoteOperationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "remote_operation_duration_seconds",
			Help:      "Duration of remote partition operations in seconds",
			Buckets:   buckets,
		}, []string{"operation"}),

		statusWaitSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "status_wait_duration_seconds",
			Help:      "Time spent waiting for partition status transitions",
			Buckets:   buckets,
		}, []string{"target"}),

		errorsByClass: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "errors_total",
			Help:      "Total number of reconciliation errors by class",
		}, []string{"class"}),
		policyViolations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "policy_violations_total",
			Help:      "Total number of policy violations by policy and severity",
		}, []string{"policy", "severity"}),
	}

	registry.MustRegister(
		m.reconciliations,
		m.reconciliationSeconds,
		m.remoteOperations,
		m.remoteOperationSeconds,
		m.statusWaitSeconds,
		m.errorsByClass,
		m.policyViolations,
	)
	return m, nil
}

// RecordReconciliation records a finished reconciliation.
// outcome is one of changed, unchanged or failed.
func (m *Metrics) RecordReconciliation(state, outcome string, duration time.Duration) {
	if m.reconciliations == nil {
		return
	}
	m.reconciliations.WithLabelValues(state, outcome).Inc()
	m.reconciliationSeconds.WithLabelValues(state).Observe(duration.Seconds())
}

// RecordOperation records a remote operation.
func (m *Metrics) RecordOperation(operation, status string, duration time.Duration) {
	if m.remoteOperations == nil {
		return
	}
	m.remoteOperations.WithLabelValues(operation, status).Inc()
	m.remoteOperationSeconds.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordStatusWait records the time spent waiting for a status.
func (m *Metrics) RecordStatusWait(target string, duration time.Duration) {
	if m.statusWaitSeconds == nil {
		return
	}
	m.statusWaitSeconds.WithLabelValues(target).Observe(duration.Seconds())
}

// RecordError records an error by class.
func (m *Metrics) RecordError(class string) {
	if m.errorsByClass == nil {
		return
	}
	m.errorsByClass.WithLabelValues(class).Inc()
}

// RecordPolicyViolation records a policy violation.
func (m *Metrics) RecordPolicyViolation(policy, severity string) {
	if m.policyViolations == nil {
		return
	}
	m.policyViolations.WithLabelValues(policy, severity).Inc()
}

// Registry returns the registry, nil when metrics are disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Timer measures elapsed time.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// StartMetricsServer serves the metrics endpoint until ctx is done.
// It returns immediately; serve errors are reported through logger.
func (m *Metrics) StartMetricsServer(ctx context.Context, logger *Logger) {
	if !m.config.Enabled || m.config.ListenAddress == "" {
		return
	}

	path := m.config.Path
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("metrics server failed")
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
}
