// Package telemetry provides observability instrumentation for the
// experiment engine.
//
// It integrates structured logging (zerolog), distributed tracing
// (OpenTelemetry), and metrics (Prometheus) into a unified system for
// monitoring experiment runs.
//
// Initialize telemetry at application startup:
//
//	cfg := telemetry.DefaultConfig()
//	cfg.ServiceName = "dioptra"
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
//
// The logger provides component-specific logging with run and step fields:
//
//	logger := tel.Logger.NewComponentLogger("runner")
//	logger = logger.WithRunID("run-123").WithStep("train_model")
//	logger.Info("Executing step")
//
// Metrics satisfy the engine's MetricsRecorder interface, so a Metrics
// instance can be handed to the Runner directly:
//
//	runner, err := engine.NewRunner(engine.RunnerConfig{
//	    Plugins: reg,
//	    Metrics: tel.Metrics,
//	})
//
// Tracing offers span helpers for the run, step, and plugin-call levels,
// exported via OTLP in production or stdout during development.
package telemetry
