package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/usnistgov/dioptra-sub004/pkg/config"
	"github.com/usnistgov/dioptra-sub004/pkg/engine"
	"github.com/usnistgov/dioptra-sub004/pkg/policy"
	"github.com/usnistgov/dioptra-sub004/pkg/tracking"
)

func newRunCommand(version string) *cobra.Command {
	var (
		params          []string
		trackingMode    string
		trackingDB      string
		policyPaths     []string
		enforcePolicies bool
		starlarkDirs    []string
		wasmDirs        []string
	)

	cmd := &cobra.Command{
		Use:   "run <experiment.yml>",
		Short: "Execute an experiment",
		Long: `Execute every step of an experiment's task graph exactly once.

Global parameters declared by the experiment can be supplied with -P;
declared defaults fill the rest. Steps run in topological order and the
first failing step terminates the run.`,
		Example: `  # Run with a supplied parameter
  dioptra run experiment.yml -P learning_rate=0.01

  # Run with tracking in a fresh run
  dioptra run experiment.yml --tracking new --tracking-db runs.db

  # Resume a previously created tracking run
  dioptra run experiment.yml --tracking resume:3e9c...

  # Run with a Starlark plugin collection
  dioptra run experiment.yml --starlark vision=./plugins/vision`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			tel, err := setupTelemetry(version)
			if err != nil {
				return err
			}
			defer func() { _ = tel.Shutdown(context.Background()) }()
			logger := tel.Logger.NewComponentLogger("run").Zerolog()

			loader, err := config.NewLoader()
			if err != nil {
				return err
			}
			exp, err := loader.Load(args[0])
			if err != nil {
				return err
			}
			name := exp.Name
			if name == "" {
				name = strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
			}

			globals, err := parseParams(params)
			if err != nil {
				return err
			}

			if enforcePolicies || len(policyPaths) > 0 {
				if err := enforceAdmission(ctx, exp.Description, policyPaths, logger); err != nil {
					return err
				}
			}

			reg, closeRegistry, err := buildRegistry(ctx, logger, starlarkDirs, wasmDirs)
			if err != nil {
				return err
			}
			defer func() { _ = closeRegistry(context.Background()) }()

			opts, tracker, cleanup, err := setupTracking(ctx, trackingMode, trackingDB, name, globals, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			runnerCfg := engine.RunnerConfig{
				Plugins: reg,
				Logger:  logger,
				Metrics: tel.Metrics,
				Tracer:  tel.Tracer.Otel(),
			}
			if tracker != nil {
				runnerCfg.Tracker = tracker
			}
			runner, err := engine.NewRunner(runnerCfg)
			if err != nil {
				return err
			}

			if err := runner.RunExperiment(ctx, exp.Description, globals, opts); err != nil {
				return err
			}

			if tracker != nil {
				fmt.Printf("Run %s completed\n", tracker.RunID())
			} else {
				fmt.Println("Run completed")
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&params, "param", "P", nil, "global parameter (key=value)")
	cmd.Flags().StringVar(&trackingMode, "tracking", "none", "tracking mode (none, new, resume:<run-id>)")
	cmd.Flags().StringVar(&trackingDB, "tracking-db", "dioptra.db", "tracking database path")
	cmd.Flags().StringSliceVar(&policyPaths, "policy", nil, "additional policy files or directories")
	cmd.Flags().BoolVar(&enforcePolicies, "enforce-policies", false, "evaluate admission policies before running")
	cmd.Flags().StringArrayVar(&starlarkDirs, "starlark", nil, "Starlark plugin collection (collection=dir)")
	cmd.Flags().StringArrayVar(&wasmDirs, "wasm", nil, "WASM plugin collection (collection=dir)")

	return cmd
}

// enforceAdmission evaluates the admission policies and rejects the run on
// any error-severity violation.
func enforceAdmission(
	ctx context.Context,
	desc engine.ExperimentDescription,
	policyPaths []string,
	logger zerolog.Logger,
) error {
	polEngine, err := policy.NewEngine(logger)
	if err != nil {
		return err
	}
	if len(policyPaths) > 0 {
		if err := polEngine.LoadPolicies(ctx, policyPaths); err != nil {
			return err
		}
	}

	result, err := polEngine.Evaluate(ctx, policy.BuildInput(desc, "run"))
	if err != nil {
		return err
	}

	for _, v := range result.Violations {
		event := logger.Warn()
		if v.Severity == policy.SeverityError {
			event = logger.Error()
		}
		event.Str("policy", v.Policy).Str("step", v.Step).Msg(v.Message)
	}
	for _, w := range result.Warnings {
		logger.Warn().Msg(w)
	}

	if !result.Allowed {
		return fmt.Errorf("experiment rejected by admission policies (%d violation(s))", len(result.Violations))
	}
	return nil
}

// setupTracking interprets the tracking flag and, when tracking is enabled,
// opens the SQLite store and builds a tracker over it.
func setupTracking(
	ctx context.Context,
	mode, dbPath, experiment string,
	globals map[string]engine.Value,
	logger zerolog.Logger,
) (engine.TrackingOptions, *tracking.Tracker, func(), error) {
	noop := func() {}

	opts := engine.TrackingOptions{Mode: engine.TrackingDisabled}
	switch {
	case mode == "none":
		return opts, nil, noop, nil
	case mode == "new":
		opts.Mode = engine.TrackingNewRun
	case strings.HasPrefix(mode, "resume:"):
		opts.Mode = engine.TrackingResumeRun
		opts.ResumeID = strings.TrimPrefix(mode, "resume:")
	default:
		return opts, nil, noop, fmt.Errorf("invalid tracking mode %q (expected none, new, or resume:<run-id>)", mode)
	}

	store, err := tracking.NewSQLiteStore(tracking.Config{Path: dbPath})
	if err != nil {
		return opts, nil, noop, err
	}
	if err := store.Init(ctx); err != nil {
		return opts, nil, noop, err
	}
	cleanup := func() { _ = store.Close() }
	if err := store.Migrate(ctx); err != nil {
		cleanup()
		return opts, nil, noop, err
	}

	plain := make(map[string]interface{}, len(globals))
	for k, v := range globals {
		plain[k] = v.Interface()
	}
	paramsJSON, err := json.Marshal(plain)
	if err != nil {
		cleanup()
		return opts, nil, noop, err
	}

	tracker, err := tracking.NewTracker(store, tracking.TrackerConfig{
		Experiment: experiment,
		Parameters: string(paramsJSON),
		Logger:     logger,
	})
	if err != nil {
		cleanup()
		return opts, nil, noop, err
	}

	return opts, tracker, cleanup, nil
}
