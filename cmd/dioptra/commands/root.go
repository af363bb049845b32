package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/usnistgov/dioptra-sub004/pkg/telemetry"
)

var (
	// Global flags
	logLevel      string
	logFormat     string
	traceExporter string
	traceEndpoint string
	metricsListen string
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "dioptra",
		Short: "Dioptra - Declarative Experiment Execution Engine",
		Long: `Dioptra executes machine-learning experiments declared as YAML task
graphs. An experiment document names its global parameters, binds task
short names to external plugin coordinates, and wires task invocations
into a dependency graph through $-references.

Features:
  - Declarative task graphs with $-reference data flow
  - Topological scheduling with deterministic ordering
  - Starlark and WASM plugin collections
  - SQLite-backed run tracking with resume support
  - OPA/Rego admission policies`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "log format (console, json)")
	rootCmd.PersistentFlags().StringVar(&traceExporter, "trace", "none", "trace exporter (otlp, stdout, none)")
	rootCmd.PersistentFlags().StringVar(&traceEndpoint, "trace-endpoint", "", "OTLP trace endpoint")
	rootCmd.PersistentFlags().StringVar(&metricsListen, "metrics-listen", "", "address for the Prometheus metrics endpoint (empty disables)")

	rootCmd.AddCommand(newRunCommand(version))
	rootCmd.AddCommand(newValidateCommand(version))
	rootCmd.AddCommand(newGraphCommand())
	rootCmd.AddCommand(newPluginsCommand(version))
	rootCmd.AddCommand(newRunsCommand(version))

	return rootCmd
}

// setupTelemetry builds the telemetry stack from the global flags.
func setupTelemetry(version string) (*telemetry.Telemetry, error) {
	cfg := telemetry.DefaultConfig()
	cfg.ServiceVersion = version
	cfg.Logging.Level = logLevel
	cfg.Logging.Format = logFormat

	if traceExporter != "none" {
		cfg.Tracing.Enabled = true
		cfg.Tracing.Exporter = traceExporter
		cfg.Tracing.Endpoint = traceEndpoint
	}

	if metricsListen != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.ListenAddress = metricsListen
	}

	tel, err := telemetry.NewTelemetry(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	if err := tel.StartMetricsServer(); err != nil {
		return nil, fmt.Errorf("failed to start metrics server: %w", err)
	}

	return tel, nil
}
