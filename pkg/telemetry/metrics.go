package telemetry

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/usnistgov/dioptra-sub004/pkg/engine"
)

// Metrics provides Prometheus metrics for the experiment engine. It
// satisfies engine.MetricsRecorder; a disabled instance degrades to no-ops.
type Metrics struct {
	config MetricsConfig

	// Run metrics
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec

	// Step metrics
	stepsExecuted *prometheus.CounterVec
	stepDuration  *prometheus.HistogramVec

	// Error metrics
	errorsByCode *prometheus.CounterVec

	// System metrics
	activeRuns prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// Return a no-op metrics instance
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

		runsStarted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_started_total",
				Help:      "Total number of experiment runs started",
			},
		),
		runsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_completed_total",
				Help:      "Total number of experiment runs completed",
			},
			[]string{"state"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of experiment run execution in seconds",
				Buckets:   buckets,
			},
			[]string{"state"},
		),

		stepsExecuted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "steps_executed_total",
				Help:      "Total number of graph steps executed",
			},
			[]string{"task", "status"},
		),
		stepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "step_duration_seconds",
				Help:      "Duration of graph step execution in seconds",
				Buckets:   buckets,
			},
			[]string{"task"},
		),

		errorsByCode: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_code_total",
				Help:      "Total number of errors by error code",
			},
			[]string{"code"},
		),

		activeRuns: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_runs",
				Help:      "Current number of active runs",
			},
		),
	}

	registry.MustRegister(
		m.runsStarted,
		m.runsCompleted,
		m.runDuration,
		m.stepsExecuted,
		m.stepDuration,
		m.errorsByCode,
		m.activeRuns,
	)

	return m, nil
}

// RunStarted increments the counter for started runs.
func (m *Metrics) RunStarted() {
	if m.runsStarted == nil {
		return
	}
	m.runsStarted.Inc()
	m.activeRuns.Inc()
}

// RunCompleted records a completed run with its terminal state and duration.
func (m *Metrics) RunCompleted(state engine.RunState, duration time.Duration) {
	if m.runsCompleted == nil {
		return
	}
	m.runsCompleted.WithLabelValues(string(state)).Inc()
	m.runDuration.WithLabelValues(string(state)).Observe(duration.Seconds())
	m.activeRuns.Dec()
}

// StepExecuted records the execution of a graph step.
func (m *Metrics) StepExecuted(step, task string, duration time.Duration, err error) {
	if m.stepsExecuted == nil {
		return
	}

	status := "succeeded"
	if err != nil {
		status = "failed"

		var expErr *engine.ExperimentError
		if errors.As(err, &expErr) {
			m.errorsByCode.WithLabelValues(string(expErr.Code)).Inc()
		} else {
			m.errorsByCode.WithLabelValues("unknown").Inc()
		}
	}

	m.stepsExecuted.WithLabelValues(task, status).Inc()
	m.stepDuration.WithLabelValues(task).Observe(duration.Seconds())
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

// ObserveDuration is a helper to time an operation and record it.
func (t *Timer) ObserveDuration(observer prometheus.Observer) {
	observer.Observe(t.Duration().Seconds())
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

// StartMetricsServer starts an HTTP server to expose metrics.
func (m *Metrics) StartMetricsServer() error {
	if !m.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			// Log error but don't fail the application
			fmt.Printf("metrics server error: %v\n", err)
		}
	}()

	return nil
}
