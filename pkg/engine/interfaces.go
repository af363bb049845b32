package engine

import (
	"context"
	"time"
)

// PluginCaller invokes an externally registered callable addressed by its
// three-part plugin coordinate. Implementations own signature validation and
// the actual call; the engine only routes arguments in and results out.
type PluginCaller interface {
	// Call invokes the operation with positional and keyword arguments and
	// returns its result. The call blocks until the plugin returns.
	Call(
		ctx context.Context,
		collection, module, operation string,
		args []Value,
		kwargs map[string]Value,
	) (Value, error)
}

// TrackingStatus is the terminal status reported to the tracking service.
type TrackingStatus string

const (
	// TrackingSuccess marks a run in which every step completed.
	TrackingSuccess TrackingStatus = "success"

	// TrackingFailed marks a run terminated by an unhandled error.
	TrackingFailed TrackingStatus = "failed"
)

// Tracker brackets a run with start/end-of-run notifications to an external
// experiment-tracking service. Each method is called at most once per run.
type Tracker interface {
	// StartRun opens a tracking run and returns its id. A non-nil resumeID
	// resumes the named existing run instead of creating a fresh one.
	StartRun(ctx context.Context, resumeID *string) (string, error)

	// EndRun closes the current tracking run with its terminal status.
	EndRun(ctx context.Context, status TrackingStatus) error
}

// MetricsRecorder receives execution counters from the Runner. It is
// satisfied by telemetry.Metrics; a nil recorder disables collection.
type MetricsRecorder interface {
	// RunStarted is called once when a run enters the running state.
	RunStarted()

	// RunCompleted is called once with the run's terminal state.
	RunCompleted(state RunState, duration time.Duration)

	// StepExecuted is called after each step invocation returns.
	StepExecuted(step, task string, duration time.Duration, err error)
}
