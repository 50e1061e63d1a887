package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for openlift.
type Metrics struct {
	config MetricsConfig

	// Command metrics
	commandsStarted   *prometheus.CounterVec
	commandsCompleted *prometheus.CounterVec
	commandDuration   *prometheus.HistogramVec

	// Step metrics
	stepsExecuted *prometheus.CounterVec
	stepDuration  *prometheus.HistogramVec

	// Environment metrics
	environmentsByPhase *prometheus.GaugeVec

	// Error metrics
	errorsByClass *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// No-op metrics instance; every recorder checks for nil vectors.
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		commandsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commands_started_total",
				Help:      "Total number of lifecycle commands started",
			},
			[]string{"operation"},
		),
		commandsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commands_completed_total",
				Help:      "Total number of lifecycle commands completed",
			},
			[]string{"operation", "status"},
		),
		commandDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "command_duration_seconds",
				Help:      "Duration of lifecycle command execution in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation", "status"},
		),
		stepsExecuted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "steps_executed_total",
				Help:      "Total number of steps executed",
			},
			[]string{"operation", "step", "status"},
		),
		stepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "step_duration_seconds",
				Help:      "Duration of step execution in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation", "step"},
		),
		environmentsByPhase: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "environments_by_phase",
				Help:      "Current number of environments per lifecycle phase",
			},
			[]string{"phase"},
		),
		errorsByClass: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_class_total",
				Help:      "Total number of errors by error class",
			},
			[]string{"class"},
		),
	}

	registry.MustRegister(
		m.commandsStarted,
		m.commandsCompleted,
		m.commandDuration,
		m.stepsExecuted,
		m.stepDuration,
		m.environmentsByPhase,
		m.errorsByClass,
	)

	return m, nil
}

// RecordCommandStarted increments the counter for started commands.
func (m *Metrics) RecordCommandStarted(operation string) {
	if m.commandsStarted == nil {
		return
	}
	m.commandsStarted.WithLabelValues(operation).Inc()
}

// RecordCommandCompleted records a completed command with its status and
// duration.
func (m *Metrics) RecordCommandCompleted(operation, status string, duration time.Duration) {
	if m.commandsCompleted == nil {
		return
	}
	m.commandsCompleted.WithLabelValues(operation, status).Inc()
	m.commandDuration.WithLabelValues(operation, status).Observe(duration.Seconds())
}

// RecordStepExecution records one executed step.
func (m *Metrics) RecordStepExecution(operation, step, status string, duration time.Duration) {
	if m.stepsExecuted == nil {
		return
	}
	m.stepsExecuted.WithLabelValues(operation, step, status).Inc()
	m.stepDuration.WithLabelValues(operation, step).Observe(duration.Seconds())
}

// SetEnvironmentPhaseCount sets the gauge of environments in a phase.
func (m *Metrics) SetEnvironmentPhaseCount(phase string, count float64) {
	if m.environmentsByPhase == nil {
		return
	}
	m.environmentsByPhase.WithLabelValues(phase).Set(count)
}

// RecordError records an error by class.
func (m *Metrics) RecordError(class string) {
	if m.errorsByClass == nil {
		return
	}
	m.errorsByClass.WithLabelValues(class).Inc()
}

// Handler returns the HTTP handler serving the metrics registry, or nil
// when metrics are disabled.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return nil
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartMetricsServer starts the metrics HTTP server when a listen
// address is configured.
func (m *Metrics) StartMetricsServer() error {
	if m.registry == nil || m.config.ListenAddress == "" {
		return nil
	}
	path := m.config.Path
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())

	go func() {
		// The server lives for the remainder of the process.
		_ = http.ListenAndServe(m.config.ListenAddress, mux)
	}()
	return nil
}

// Registry exposes the underlying registry, primarily for tests.
func (m *Metrics) Registry() (*prometheus.Registry, error) {
	if m.registry == nil {
		return nil, fmt.Errorf("metrics are disabled")
	}
	return m.registry, nil
}
