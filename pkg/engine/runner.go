package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// RunnerConfig assembles the collaborators of a Runner. Plugins is required;
// everything else is optional.
type RunnerConfig struct {
	// Plugins is the external plugin registry invoked for every step.
	Plugins PluginCaller

	// Tracker brackets runs with start/end notifications. Required only
	// when RunExperiment is invoked with tracking enabled.
	Tracker Tracker

	// Logger receives structured execution logs.
	Logger zerolog.Logger

	// Metrics receives execution counters; nil disables collection.
	Metrics MetricsRecorder

	// Tracer opens a span per run and per step; nil disables tracing.
	Tracer trace.Tracer
}

// Runner orchestrates one experiment run at a time: parameter
// reconciliation, step ordering, per-step argument construction and plugin
// invocation, output recording, and tracking-run bracketing. Execution is
// single-threaded and fail-fast; the first unhandled error terminates the
// run.
type Runner struct {
	plugins PluginCaller
	tracker Tracker
	logger  zerolog.Logger
	metrics MetricsRecorder
	tracer  trace.Tracer
}

// NewRunner creates a runner from its configuration.
func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if cfg.Plugins == nil {
		return nil, Errorf(ErrCodeValidation, "runner requires a plugin caller")
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("engine")
	}
	return &Runner{
		plugins: cfg.Plugins,
		tracker: cfg.Tracker,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		tracer:  tracer,
	}, nil
}

// RunExperiment executes every step of the description exactly once against
// the supplied global parameter values, which are reconciled in place.
// Tracking selects no run, a fresh run, or resumption of an existing run id;
// the tracking service is notified of the terminal status exactly once.
func (r *Runner) RunExperiment(
	ctx context.Context,
	desc ExperimentDescription,
	globalParameters map[string]Value,
	tracking TrackingOptions,
) error {
	if globalParameters == nil {
		globalParameters = make(map[string]Value)
	}

	ctx, span := r.tracer.Start(ctx, "experiment.run")
	defer span.End()

	logger := r.logger
	state := RunStateNotStarted

	trackingActive := tracking.Mode != TrackingDisabled
	if trackingActive {
		if r.tracker == nil {
			return Errorf(ErrCodeTracking, "tracking requested but no tracker is configured")
		}
		var resumeID *string
		if tracking.Mode == TrackingResumeRun {
			if tracking.ResumeID == "" {
				return Errorf(ErrCodeTracking, "tracking resume requested without a run id")
			}
			resumeID = &tracking.ResumeID
		}
		runID, err := r.tracker.StartRun(ctx, resumeID)
		if err != nil {
			return NewError(ErrCodeTracking, "failed to start tracking run", err)
		}
		logger = logger.With().Str("run_id", runID).Logger()
		span.SetAttributes(attribute.String("run.id", runID))
	}

	state = RunStateRunning
	if r.metrics != nil {
		r.metrics.RunStarted()
	}
	startedAt := time.Now()
	logger.Info().Int("steps", len(desc.Graph)).Msg("Run started")

	runErr := r.execute(ctx, desc, globalParameters, logger)

	duration := time.Since(startedAt)
	trackingStatus := TrackingSuccess
	if runErr != nil {
		state = RunStateFailed
		trackingStatus = TrackingFailed
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
		logger.Error().Err(runErr).Dur("duration", duration).Msg("Run failed")
	} else {
		state = RunStateCompleted
		logger.Info().Dur("duration", duration).Msg("Run completed")
	}
	if r.metrics != nil {
		r.metrics.RunCompleted(state, duration)
	}

	if trackingActive {
		if err := r.tracker.EndRun(ctx, trackingStatus); err != nil {
			if runErr == nil {
				runErr = NewError(ErrCodeTracking, "failed to end tracking run", err)
			} else {
				logger.Warn().Err(err).Msg("Failed to end tracking run")
			}
		}
	}

	return runErr
}

// execute performs the validation phase and the sequential step loop.
func (r *Runner) execute(
	ctx context.Context,
	desc ExperimentDescription,
	globals map[string]Value,
	logger zerolog.Logger,
) error {
	if err := ReconcileGlobalParameters(desc.Parameters, globals, logger); err != nil {
		return err
	}

	order, err := NewGraphBuilder().Order(desc.Graph)
	if err != nil {
		return err
	}
	logger.Debug().Strs("order", order).Msg("Computed step execution order")

	outputs := NewOutputStore()
	for _, stepName := range order {
		if err := r.executeStep(ctx, desc, desc.Graph[stepName], stepName, globals, outputs, logger); err != nil {
			return annotateStep(err, stepName)
		}
	}

	return nil
}

// executeStep classifies one step, resolves its arguments, invokes the
// plugin, and records declared outputs.
func (r *Runner) executeStep(
	ctx context.Context,
	desc ExperimentDescription,
	spec StepSpec,
	stepName string,
	globals map[string]Value,
	outputs *OutputStore,
	logger zerolog.Logger,
) error {
	form, err := ClassifyStep(spec.Raw)
	if err != nil {
		return err
	}

	task, ok := desc.Tasks[form.TaskName()]
	if !ok {
		return Errorf(
			ErrCodeTaskPluginNotFound,
			"task short name %q is not defined by the experiment",
			form.TaskName(),
		)
	}

	collection, module, operation, err := SplitPluginCoordinate(task.Plugin)
	if err != nil {
		return err
	}

	args, kwargs, err := BuildArguments(form, globals, outputs)
	if err != nil {
		return err
	}

	ctx, span := r.tracer.Start(ctx, "experiment.step",
		trace.WithAttributes(
			attribute.String("step.name", stepName),
			attribute.String("step.task", form.TaskName()),
			attribute.String("step.plugin", task.Plugin),
		),
	)
	defer span.End()

	logger.Info().
		Str("step", stepName).
		Str("task", form.TaskName()).
		Str("plugin", task.Plugin).
		Msg("Executing step")

	startedAt := time.Now()
	result, callErr := r.plugins.Call(ctx, collection, module, operation, args, kwargs)
	if r.metrics != nil {
		r.metrics.StepExecuted(stepName, form.TaskName(), time.Since(startedAt), callErr)
	}
	if callErr != nil {
		span.RecordError(callErr)
		span.SetStatus(codes.Error, callErr.Error())
		return callErr
	}

	if task.Outputs == nil {
		return nil
	}
	recorded, err := decomposeOutputs(task.Outputs, result, stepName, logger)
	if err != nil {
		return err
	}
	outputs.Record(stepName, recorded)
	return nil
}

// decomposeOutputs applies the output-arity rule: a single declared name
// receives the whole result; an ordered list of names is paired element-wise
// with a sequence result, keeping only as many entries as the shorter side.
func decomposeOutputs(spec *OutputSpec, result Value, stepName string, logger zerolog.Logger) (map[string]Value, error) {
	if !spec.Multiple {
		return map[string]Value{spec.Names[0]: result}, nil
	}

	if result.Kind() != KindList {
		return nil, Errorf(
			ErrCodeNonIterableTaskOutput,
			"task declared %d output names but the call result is not a sequence (got %s)",
			len(spec.Names), result.Kind(),
		)
	}

	elems := result.ListVal()
	if len(elems) != len(spec.Names) {
		logger.Warn().
			Str("step", stepName).
			Int("declared", len(spec.Names)).
			Int("returned", len(elems)).
			Msg("Output count mismatch; pairing the shorter of the two sequences")
	}

	n := len(spec.Names)
	if len(elems) < n {
		n = len(elems)
	}
	recorded := make(map[string]Value, n)
	for i := 0; i < n; i++ {
		recorded[spec.Names[i]] = elems[i]
	}
	return recorded, nil
}
