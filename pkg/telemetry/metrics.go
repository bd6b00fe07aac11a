package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Metrics provides Prometheus metrics for the reconciler. A Metrics built
// from a disabled config is a no-op; all record methods tolerate it.
type Metrics struct {
	config MetricsConfig

	applyTotal    *prometheus.CounterVec
	applyDuration *prometheus.HistogramVec

	runsCompleted *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec

	errorsByClass *prometheus.CounterVec

	driftDetected    prometheus.Counter
	resourcesManaged prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates a metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.HistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		applyTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "apply_operations_total",
				Help:      "Total number of apply operations by type and outcome",
			},
			[]string{"operation", "status"},
		),
		applyDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "apply_operation_duration_seconds",
				Help:      "Duration of apply operations in seconds",
				Buckets:   buckets,
			},
			[]string{"operation", "status"},
		),

		runsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_completed_total",
				Help:      "Total number of completed runs by status",
			},
			[]string{"status"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of run execution in seconds",
				Buckets:   buckets,
			},
			[]string{"status"},
		),

		errorsByClass: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of classified errors",
			},
			[]string{"class"},
		),

		driftDetected: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "drift_detections_total",
				Help:      "Total number of resources found drifted during refresh",
			},
		),
		resourcesManaged: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "resources_managed",
				Help:      "Current number of resources in the state store",
			},
		),
	}

	registry.MustRegister(
		m.applyTotal,
		m.applyDuration,
		m.runsCompleted,
		m.runDuration,
		m.errorsByClass,
		m.driftDetected,
		m.resourcesManaged,
	)

	return m, nil
}

// ObserveApply records one apply operation with its outcome and duration.
func (m *Metrics) ObserveApply(op, status string, duration time.Duration) {
	if m.applyTotal == nil {
		return
	}
	m.applyTotal.WithLabelValues(op, status).Inc()
	m.applyDuration.WithLabelValues(op, status).Observe(duration.Seconds())
}

// RecordRunCompleted records a completed run with its status and duration.
func (m *Metrics) RecordRunCompleted(status string, duration time.Duration) {
	if m.runsCompleted == nil {
		return
	}
	m.runsCompleted.WithLabelValues(status).Inc()
	m.runDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordError records an error by class.
func (m *Metrics) RecordError(class string) {
	if m.errorsByClass == nil {
		return
	}
	m.errorsByClass.WithLabelValues(class).Inc()
}

// RecordDriftDetection records a resource found drifted during refresh.
func (m *Metrics) RecordDriftDetection() {
	if m.driftDetected == nil {
		return
	}
	m.driftDetected.Inc()
}

// SetResourcesManaged sets the current count of managed resources.
func (m *Metrics) SetResourcesManaged(count float64) {
	if m.resourcesManaged == nil {
		return
	}
	m.resourcesManaged.Set(count)
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartServer starts an HTTP server exposing the metrics endpoint and
// returns it so the caller can shut it down. Returns nil when the endpoint
// is not configured.
func (m *Metrics) StartServer(logger zerolog.Logger) *http.Server {
	if !m.config.Enabled || m.config.ListenAddress == "" {
		return nil
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
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("Metrics server error")
		}
	}()

	return server
}
