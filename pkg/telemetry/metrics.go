package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for recipe executions. A nil or
// disabled Metrics ignores every Record call.
type Metrics struct {
	config MetricsConfig

	// Execution metrics
	executionsSubmitted *prometheus.CounterVec
	executionsCompleted *prometheus.CounterVec
	executionDuration   *prometheus.HistogramVec

	// Step metrics
	stepsExecuted *prometheus.CounterVec
	stepDuration  *prometheus.HistogramVec
	stepsDrained  prometheus.Counter

	// Error metrics
	errorsByKind *prometheus.CounterVec

	// System metrics
	activeExecutions prometheus.Gauge
	inboxFiles       *prometheus.CounterVec
	deployments      *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		executionsSubmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "executions_submitted_total",
				Help:      "Total number of recipe executions submitted",
			},
			[]string{"source"},
		),
		executionsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "executions_completed_total",
				Help:      "Total number of recipe executions that reached a terminal status",
			},
			[]string{"status"},
		),
		executionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "execution_duration_seconds",
				Help:      "Duration of recipe executions in seconds",
				Buckets:   buckets,
			},
			[]string{"status"},
		),

		stepsExecuted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "steps_executed_total",
				Help:      "Total number of recipe steps executed",
			},
			[]string{"step", "status"},
		),
		stepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "step_duration_seconds",
				Help:      "Duration of recipe step execution in seconds",
				Buckets:   buckets,
			},
			[]string{"step"},
		),
		stepsDrained: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "steps_drained_total",
				Help:      "Total number of queued steps discarded after a failure or cancel",
			},
		),

		errorsByKind: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of execution errors by kind",
			},
			[]string{"kind"},
		),

		activeExecutions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_executions",
				Help:      "Current number of started or running executions",
			},
		),
		inboxFiles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "inbox_files_total",
				Help:      "Total number of recipe files picked up from the inbox",
			},
			[]string{"result"},
		),
		deployments: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "deployments_total",
				Help:      "Total number of recipes pushed to deployment targets",
			},
			[]string{"target", "result"},
		),
	}

	registry.MustRegister(
		m.executionsSubmitted,
		m.executionsCompleted,
		m.executionDuration,
		m.stepsExecuted,
		m.stepDuration,
		m.stepsDrained,
		m.errorsByKind,
		m.activeExecutions,
		m.inboxFiles,
		m.deployments,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m, nil
}

func (m *Metrics) enabled() bool {
	return m != nil && m.registry != nil
}

// Execution Metrics

// RecordExecutionSubmitted counts a submitted execution by its source.
func (m *Metrics) RecordExecutionSubmitted(source string) {
	if !m.enabled() {
		return
	}
	m.executionsSubmitted.WithLabelValues(source).Inc()
}

// RecordExecutionCompleted records an execution reaching a terminal status.
func (m *Metrics) RecordExecutionCompleted(status string, duration time.Duration) {
	if !m.enabled() {
		return
	}
	m.executionsCompleted.WithLabelValues(status).Inc()
	m.executionDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// SetActiveExecutions sets the current number of unfinished executions.
func (m *Metrics) SetActiveExecutions(count int) {
	if !m.enabled() {
		return
	}
	m.activeExecutions.Set(float64(count))
}

// Step Metrics

// RecordStepExecuted records one step outcome and its duration.
func (m *Metrics) RecordStepExecuted(step, status string, duration time.Duration) {
	if !m.enabled() {
		return
	}
	m.stepsExecuted.WithLabelValues(step, status).Inc()
	m.stepDuration.WithLabelValues(step).Observe(duration.Seconds())
}

// RecordStepsDrained counts queued steps discarded without running.
func (m *Metrics) RecordStepsDrained(count int) {
	if !m.enabled() || count <= 0 {
		return
	}
	m.stepsDrained.Add(float64(count))
}

// RecordError counts an execution error by kind.
func (m *Metrics) RecordError(kind string) {
	if !m.enabled() {
		return
	}
	m.errorsByKind.WithLabelValues(kind).Inc()
}

// Inbox and deployment metrics

// RecordInboxFile counts a file picked up by the inbox watcher.
func (m *Metrics) RecordInboxFile(result string) {
	if !m.enabled() {
		return
	}
	m.inboxFiles.WithLabelValues(result).Inc()
}

// RecordDeployment counts a push to a deployment target.
func (m *Metrics) RecordDeployment(target, result string) {
	if !m.enabled() {
		return
	}
	m.deployments.WithLabelValues(target, result).Inc()
}

// Timer provides a convenient way to time operations.
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

// Gatherer returns the private registry, or nil when metrics are disabled.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	if !m.enabled() {
		return nil
	}
	return m.registry
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if !m.enabled() {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Server returns an HTTP server exposing the metrics endpoint, or nil when
// metrics are disabled. The caller owns ListenAndServe and Shutdown.
func (m *Metrics) Server() *http.Server {
	if !m.enabled() || m.config.ListenAddress == "" {
		return nil
	}

	path := m.config.Path
	if path == "" {
		path = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())

	return &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
