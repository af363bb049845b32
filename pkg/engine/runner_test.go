package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
)

// recordedCall captures one plugin invocation for assertions.
type recordedCall struct {
	coordinate string
	args       []Value
	kwargs     map[string]Value
}

// fakeCaller dispatches to an in-test handler table and records every call.
type fakeCaller struct {
	handlers map[string]func(args []Value, kwargs map[string]Value) (Value, error)
	calls    []recordedCall
}

func newFakeCaller() *fakeCaller {
	return &fakeCaller{
		handlers: make(map[string]func(args []Value, kwargs map[string]Value) (Value, error)),
	}
}

func (f *fakeCaller) handle(coordinate string, fn func(args []Value, kwargs map[string]Value) (Value, error)) {
	f.handlers[coordinate] = fn
}

func (f *fakeCaller) Call(
	_ context.Context,
	collection, module, operation string,
	args []Value,
	kwargs map[string]Value,
) (Value, error) {
	coordinate := module + "." + operation
	if collection != "" {
		coordinate = collection + "." + coordinate
	}
	f.calls = append(f.calls, recordedCall{coordinate: coordinate, args: args, kwargs: kwargs})
	handler, ok := f.handlers[coordinate]
	if !ok {
		return Null(), fmt.Errorf("no handler for %s", coordinate)
	}
	return handler(args, kwargs)
}

// fakeTracker counts bracket notifications.
type fakeTracker struct {
	started   int
	ended     int
	resumedID string
	status    TrackingStatus
	startErr  error
}

func (f *fakeTracker) StartRun(_ context.Context, resumeID *string) (string, error) {
	f.started++
	if resumeID != nil {
		f.resumedID = *resumeID
	}
	if f.startErr != nil {
		return "", f.startErr
	}
	return "run-1", nil
}

func (f *fakeTracker) EndRun(_ context.Context, status TrackingStatus) error {
	f.ended++
	f.status = status
	return nil
}

func newTestRunner(t *testing.T, caller PluginCaller, tracker Tracker) *Runner {
	t.Helper()
	runner, err := NewRunner(RunnerConfig{
		Plugins: caller,
		Tracker: tracker,
		Logger:  zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("Failed to create runner: %v", err)
	}
	return runner
}

// twoStepDescription is the add-then-square experiment: step2 consumes
// step1's sole declared output.
func twoStepDescription() ExperimentDescription {
	return ExperimentDescription{
		Parameters: ParameterSpec{},
		Tasks: map[string]TaskDefinition{
			"add": {
				Plugin:  "builtins.math.add",
				Outputs: SingleOutput("value"),
			},
			"square": {
				Plugin:  "builtins.math.square",
				Outputs: SingleOutput("value"),
			},
		},
		Graph: map[string]StepSpec{
			"step1": {Raw: Map(map[string]Value{"add": List(Int(1), Int(1))})},
			"step2": {Raw: Map(map[string]Value{"square": String("$step1.value")})},
		},
	}
}

func TestRunner_EndToEnd_TwoSteps(t *testing.T) {
	caller := newFakeCaller()
	caller.handle("builtins.math.add", func(args []Value, _ map[string]Value) (Value, error) {
		return Int(args[0].IntVal() + args[1].IntVal()), nil
	})
	caller.handle("builtins.math.square", func(args []Value, _ map[string]Value) (Value, error) {
		return Int(args[0].IntVal() * args[0].IntVal()), nil
	})

	runner := newTestRunner(t, caller, nil)
	err := runner.RunExperiment(context.Background(), twoStepDescription(), nil, TrackingOptions{})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if len(caller.calls) != 2 {
		t.Fatalf("Expected 2 plugin calls, got %d", len(caller.calls))
	}
	if caller.calls[0].coordinate != "builtins.math.add" {
		t.Errorf("Expected step1 to run first, got %s", caller.calls[0].coordinate)
	}
	squareArgs := caller.calls[1].args
	if len(squareArgs) != 1 || squareArgs[0].IntVal() != 2 {
		t.Errorf("Expected square to receive 2, got %v", squareArgs)
	}
}

func TestRunner_GlobalParameterFlow(t *testing.T) {
	desc := ExperimentDescription{
		Parameters: ParameterSpec{
			Mapping: true,
			Entries: map[string]ParameterEntry{
				"base":  {Default: Int(10), HasDefault: true},
				"scale": {},
			},
		},
		Tasks: map[string]TaskDefinition{
			"multiply": {Plugin: "math.multiply", Outputs: SingleOutput("product")},
		},
		Graph: map[string]StepSpec{
			"only": {Raw: Map(map[string]Value{
				"multiply": List(String("$base"), String("$scale")),
			})},
		},
	}

	caller := newFakeCaller()
	caller.handle("math.multiply", func(args []Value, _ map[string]Value) (Value, error) {
		return Int(args[0].IntVal() * args[1].IntVal()), nil
	})

	runner := newTestRunner(t, caller, nil)
	globals := map[string]Value{"scale": Int(3)}
	if err := runner.RunExperiment(context.Background(), desc, globals, TrackingOptions{}); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	got := caller.calls[0].args
	if got[0].IntVal() != 10 || got[1].IntVal() != 3 {
		t.Errorf("Expected args [10 3], got %v", got)
	}
}

func TestRunner_MissingParameterFailsBeforeAnyStep(t *testing.T) {
	desc := twoStepDescription()
	desc.Parameters = ParameterSpec{Names: []string{"needed"}}

	caller := newFakeCaller()
	tracker := &fakeTracker{}
	runner := newTestRunner(t, caller, tracker)

	err := runner.RunExperiment(context.Background(), desc, nil, TrackingOptions{Mode: TrackingNewRun})
	if !IsCode(err, ErrCodeMissingGlobalParameters) {
		t.Fatalf("Expected MISSING_GLOBAL_PARAMETERS, got: %v", err)
	}
	if len(caller.calls) != 0 {
		t.Errorf("Expected no plugin calls, got %d", len(caller.calls))
	}
	if tracker.ended != 1 || tracker.status != TrackingFailed {
		t.Errorf("Expected one failed end-of-run notification, got ended=%d status=%s",
			tracker.ended, tracker.status)
	}
}

func TestRunner_CycleFailsBeforeAnyStep(t *testing.T) {
	desc := twoStepDescription()
	desc.Graph["step1"] = StepSpec{
		Dependencies: []string{"step2"},
		Raw:          Map(map[string]Value{"add": List(Int(1), Int(1))}),
	}

	caller := newFakeCaller()
	runner := newTestRunner(t, caller, nil)

	err := runner.RunExperiment(context.Background(), desc, nil, TrackingOptions{})
	if !IsCode(err, ErrCodeDependencyCycle) {
		t.Fatalf("Expected DEPENDENCY_CYCLE, got: %v", err)
	}
	if len(caller.calls) != 0 {
		t.Errorf("Expected no plugin calls, got %d", len(caller.calls))
	}
}

func TestRunner_UnknownTask(t *testing.T) {
	desc := ExperimentDescription{
		Tasks: map[string]TaskDefinition{},
		Graph: map[string]StepSpec{
			"only": {Raw: Map(map[string]Value{"ghost": Null()})},
		},
	}

	runner := newTestRunner(t, newFakeCaller(), nil)
	err := runner.RunExperiment(context.Background(), desc, nil, TrackingOptions{})
	if !IsCode(err, ErrCodeTaskPluginNotFound) {
		t.Fatalf("Expected TASK_PLUGIN_NOT_FOUND, got: %v", err)
	}

	var expErr *ExperimentError
	if !errors.As(err, &expErr) || expErr.Step != "only" {
		t.Errorf("Expected error annotated with step name, got: %v", err)
	}
}

func TestRunner_IllegalPluginName(t *testing.T) {
	desc := ExperimentDescription{
		Tasks: map[string]TaskDefinition{
			"bad": {Plugin: "justonepart"},
		},
		Graph: map[string]StepSpec{
			"only": {Raw: Map(map[string]Value{"bad": Null()})},
		},
	}

	caller := newFakeCaller()
	runner := newTestRunner(t, caller, nil)
	err := runner.RunExperiment(context.Background(), desc, nil, TrackingOptions{})
	if !IsCode(err, ErrCodeIllegalPluginName) {
		t.Fatalf("Expected ILLEGAL_PLUGIN_NAME, got: %v", err)
	}
	if len(caller.calls) != 0 {
		t.Error("Expected no call attempt for an illegal plugin coordinate")
	}
}

func TestRunner_TwoComponentCoordinateHasEmptyCollection(t *testing.T) {
	desc := ExperimentDescription{
		Tasks: map[string]TaskDefinition{
			"echo": {Plugin: "util.echo"},
		},
		Graph: map[string]StepSpec{
			"only": {Raw: Map(map[string]Value{"echo": String("hi")})},
		},
	}

	caller := newFakeCaller()
	caller.handle("util.echo", func(args []Value, _ map[string]Value) (Value, error) {
		return args[0], nil
	})

	runner := newTestRunner(t, caller, nil)
	if err := runner.RunExperiment(context.Background(), desc, nil, TrackingOptions{}); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if caller.calls[0].coordinate != "util.echo" {
		t.Errorf("Expected empty collection, got %s", caller.calls[0].coordinate)
	}
}

func TestRunner_MultipleOutputs(t *testing.T) {
	desc := ExperimentDescription{
		Tasks: map[string]TaskDefinition{
			"addsub": {Plugin: "math.addsub", Outputs: OutputList("sum", "diff")},
			"echo":   {Plugin: "util.echo", Outputs: SingleOutput("value")},
		},
		Graph: map[string]StepSpec{
			"both": {Raw: Map(map[string]Value{"addsub": List(Int(5), Int(3))})},
			"use":  {Raw: Map(map[string]Value{"echo": String("$both.diff")})},
		},
	}

	caller := newFakeCaller()
	caller.handle("math.addsub", func(args []Value, _ map[string]Value) (Value, error) {
		a, b := args[0].IntVal(), args[1].IntVal()
		return List(Int(a+b), Int(a-b)), nil
	})
	var echoed Value
	caller.handle("util.echo", func(args []Value, _ map[string]Value) (Value, error) {
		echoed = args[0]
		return args[0], nil
	})

	runner := newTestRunner(t, caller, nil)
	if err := runner.RunExperiment(context.Background(), desc, nil, TrackingOptions{}); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if echoed.IntVal() != 2 {
		t.Errorf("Expected diff output 2, got %v", echoed.Interface())
	}
}

func TestRunner_NonIterableTaskOutput(t *testing.T) {
	desc := ExperimentDescription{
		Tasks: map[string]TaskDefinition{
			"addsub": {Plugin: "math.addsub", Outputs: OutputList("sum", "diff")},
		},
		Graph: map[string]StepSpec{
			"both": {Raw: Map(map[string]Value{"addsub": List(Int(5), Int(3))})},
		},
	}

	caller := newFakeCaller()
	caller.handle("math.addsub", func(_ []Value, _ map[string]Value) (Value, error) {
		return Int(8), nil
	})

	runner := newTestRunner(t, caller, nil)
	err := runner.RunExperiment(context.Background(), desc, nil, TrackingOptions{})
	if !IsCode(err, ErrCodeNonIterableTaskOutput) {
		t.Fatalf("Expected NON_ITERABLE_TASK_OUTPUT, got: %v", err)
	}
}

func TestRunner_OutputCountMismatchIsNotFatal(t *testing.T) {
	desc := ExperimentDescription{
		Tasks: map[string]TaskDefinition{
			"addsub": {Plugin: "math.addsub", Outputs: OutputList("sum", "diff")},
		},
		Graph: map[string]StepSpec{
			"both": {Raw: Map(map[string]Value{"addsub": List(Int(5), Int(3))})},
		},
	}

	caller := newFakeCaller()
	caller.handle("math.addsub", func(_ []Value, _ map[string]Value) (Value, error) {
		// One element short of the declaration.
		return List(Int(8)), nil
	})

	runner := newTestRunner(t, caller, nil)
	if err := runner.RunExperiment(context.Background(), desc, nil, TrackingOptions{}); err != nil {
		t.Fatalf("Expected pairing-shorter policy to succeed, got: %v", err)
	}
}

func TestRunner_TrackingBracket_Success(t *testing.T) {
	caller := newFakeCaller()
	caller.handle("builtins.math.add", func(args []Value, _ map[string]Value) (Value, error) {
		return Int(args[0].IntVal() + args[1].IntVal()), nil
	})
	caller.handle("builtins.math.square", func(args []Value, _ map[string]Value) (Value, error) {
		return Int(args[0].IntVal() * args[0].IntVal()), nil
	})

	tracker := &fakeTracker{}
	runner := newTestRunner(t, caller, tracker)
	err := runner.RunExperiment(context.Background(), twoStepDescription(), nil,
		TrackingOptions{Mode: TrackingNewRun})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if tracker.started != 1 || tracker.ended != 1 {
		t.Errorf("Expected exactly one start and one end, got %d/%d", tracker.started, tracker.ended)
	}
	if tracker.status != TrackingSuccess {
		t.Errorf("Expected success status, got %s", tracker.status)
	}
}

func TestRunner_TrackingBracket_Failure(t *testing.T) {
	caller := newFakeCaller()
	caller.handle("builtins.math.add", func(_ []Value, _ map[string]Value) (Value, error) {
		return Null(), errors.New("boom")
	})

	tracker := &fakeTracker{}
	runner := newTestRunner(t, caller, tracker)
	err := runner.RunExperiment(context.Background(), twoStepDescription(), nil,
		TrackingOptions{Mode: TrackingNewRun})
	if err == nil {
		t.Fatal("Expected error from failing plugin call")
	}

	var expErr *ExperimentError
	if !errors.As(err, &expErr) {
		t.Fatalf("Expected classified error, got: %v", err)
	}
	if expErr.Step != "step1" {
		t.Errorf("Expected error annotated with step1, got %q", expErr.Step)
	}
	if tracker.started != 1 || tracker.ended != 1 || tracker.status != TrackingFailed {
		t.Errorf("Expected one failed bracket, got started=%d ended=%d status=%s",
			tracker.started, tracker.ended, tracker.status)
	}
}

func TestRunner_TrackingResume(t *testing.T) {
	caller := newFakeCaller()
	caller.handle("builtins.math.add", func(args []Value, _ map[string]Value) (Value, error) {
		return Int(args[0].IntVal() + args[1].IntVal()), nil
	})
	caller.handle("builtins.math.square", func(args []Value, _ map[string]Value) (Value, error) {
		return Int(args[0].IntVal() * args[0].IntVal()), nil
	})

	tracker := &fakeTracker{}
	runner := newTestRunner(t, caller, tracker)
	err := runner.RunExperiment(context.Background(), twoStepDescription(), nil,
		TrackingOptions{Mode: TrackingResumeRun, ResumeID: "prior-run"})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if tracker.resumedID != "prior-run" {
		t.Errorf("Expected resume id forwarded, got %q", tracker.resumedID)
	}
}

func TestRunner_TrackingStartFailure(t *testing.T) {
	tracker := &fakeTracker{startErr: errors.New("service down")}
	runner := newTestRunner(t, newFakeCaller(), tracker)

	err := runner.RunExperiment(context.Background(), twoStepDescription(), nil,
		TrackingOptions{Mode: TrackingNewRun})
	if !IsCode(err, ErrCodeTracking) {
		t.Fatalf("Expected TRACKING_ERROR, got: %v", err)
	}
	if tracker.ended != 0 {
		t.Errorf("Expected no end-of-run notification after failed start, got %d", tracker.ended)
	}
}

func TestRunner_FailFastStopsLaterSteps(t *testing.T) {
	desc := ExperimentDescription{
		Tasks: map[string]TaskDefinition{
			"gen":    {Plugin: "util.gen", Outputs: SingleOutput("value")},
			"broken": {Plugin: "util.broken"},
			"after":  {Plugin: "util.after"},
		},
		Graph: map[string]StepSpec{
			"first":  {Raw: Map(map[string]Value{"gen": Null()})},
			"second": {Dependencies: []string{"first"}, Raw: Map(map[string]Value{"broken": Null()})},
			"third":  {Dependencies: []string{"second"}, Raw: Map(map[string]Value{"after": Null()})},
		},
	}

	caller := newFakeCaller()
	caller.handle("util.gen", func(_ []Value, _ map[string]Value) (Value, error) {
		return Int(1), nil
	})
	caller.handle("util.broken", func(_ []Value, _ map[string]Value) (Value, error) {
		return Null(), errors.New("boom")
	})
	caller.handle("util.after", func(_ []Value, _ map[string]Value) (Value, error) {
		t.Error("Step after the failure must not execute")
		return Null(), nil
	})

	runner := newTestRunner(t, caller, nil)
	err := runner.RunExperiment(context.Background(), desc, nil, TrackingOptions{})
	if err == nil {
		t.Fatal("Expected error")
	}
	if len(caller.calls) != 2 {
		t.Errorf("Expected exactly 2 calls before fail-fast stop, got %d", len(caller.calls))
	}
}
