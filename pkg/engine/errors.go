package engine

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrorCode classifies an engine failure for programmatic handling.
type ErrorCode string

// Error codes for every failure kind the engine can surface.
const (
	// ErrCodeUnresolvableReference means a bare $name matched neither a
	// global parameter nor a step in the output store.
	ErrCodeUnresolvableReference ErrorCode = "UNRESOLVABLE_REFERENCE"

	// ErrCodeStepNotFound means a qualified reference named a step that has
	// not produced any output.
	ErrCodeStepNotFound ErrorCode = "STEP_NOT_FOUND"

	// ErrCodeOutputNotFound means a qualified reference named an output the
	// step did not produce.
	ErrCodeOutputNotFound ErrorCode = "OUTPUT_NOT_FOUND"

	// ErrCodeIllegalOutputReference means a bare $name referenced a step
	// that produced more than one output; the caller must qualify it.
	ErrCodeIllegalOutputReference ErrorCode = "ILLEGAL_OUTPUT_REFERENCE"

	// ErrCodeMissingGlobalParameters means required parameters had no value
	// after reconciliation; the message enumerates every missing name.
	ErrCodeMissingGlobalParameters ErrorCode = "MISSING_GLOBAL_PARAMETERS"

	// ErrCodeDependencyCycle means the step graph contains a cycle.
	ErrCodeDependencyCycle ErrorCode = "DEPENDENCY_CYCLE"

	// ErrCodeDependencyNotFound means an explicit dependency named a step
	// absent from the graph.
	ErrCodeDependencyNotFound ErrorCode = "DEPENDENCY_NOT_FOUND"

	// ErrCodeMissingTaskPluginName means a step specification carries no
	// task short name.
	ErrCodeMissingTaskPluginName ErrorCode = "MISSING_TASK_PLUGIN_NAME"

	// ErrCodeTaskPluginNotFound means a step referenced a task short name
	// absent from the description's task mapping.
	ErrCodeTaskPluginNotFound ErrorCode = "TASK_PLUGIN_NOT_FOUND"

	// ErrCodeIllegalPluginName means a task's plugin coordinate string has
	// fewer than two dot-separated components.
	ErrCodeIllegalPluginName ErrorCode = "ILLEGAL_PLUGIN_NAME"

	// ErrCodeNonIterableTaskOutput means a task declared an ordered list of
	// output names but the call result was not a sequence.
	ErrCodeNonIterableTaskOutput ErrorCode = "NON_ITERABLE_TASK_OUTPUT"

	// ErrCodePluginCallFailed wraps an error raised by the external plugin
	// registry during a step's invocation.
	ErrCodePluginCallFailed ErrorCode = "PLUGIN_CALL_FAILED"

	// ErrCodeValidation covers malformed experiment descriptions detected
	// before any step executes.
	ErrCodeValidation ErrorCode = "VALIDATION_ERROR"

	// ErrCodeTracking wraps a failure reported by the tracking service.
	ErrCodeTracking ErrorCode = "TRACKING_ERROR"
)

// ExperimentError is a classified engine error carrying the step and plugin
// context in which it occurred.
type ExperimentError struct {
	// Code is the error classification.
	Code ErrorCode

	// Message is the human-readable error message.
	Message string

	// Step is the step name being executed when the error occurred, if any.
	Step string

	// Plugin is the plugin coordinate string involved, if any.
	Plugin string

	// Err is the underlying error that caused this error.
	Err error
}

// Error implements the error interface.
func (e *ExperimentError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s", e.Code, e.Message)
	if e.Step != "" {
		fmt.Fprintf(&sb, " (step=%s)", e.Step)
	}
	if e.Plugin != "" {
		fmt.Fprintf(&sb, " (plugin=%s)", e.Plugin)
	}
	if e.Err != nil {
		fmt.Fprintf(&sb, ": %v", e.Err)
	}
	return sb.String()
}

// Unwrap returns the underlying error for error chain inspection.
func (e *ExperimentError) Unwrap() error {
	return e.Err
}

// Is implements error equality for errors.Is; two experiment errors match
// when their codes match.
func (e *ExperimentError) Is(target error) bool {
	t, ok := target.(*ExperimentError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithStep adds step context to an error.
func (e *ExperimentError) WithStep(step string) *ExperimentError {
	e.Step = step
	return e
}

// WithPlugin adds plugin-coordinate context to an error.
func (e *ExperimentError) WithPlugin(plugin string) *ExperimentError {
	e.Plugin = plugin
	return e
}

// NewError creates a classified engine error.
func NewError(code ErrorCode, message string, err error) *ExperimentError {
	return &ExperimentError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Errorf creates a classified engine error with a formatted message.
func Errorf(code ErrorCode, format string, args ...interface{}) *ExperimentError {
	return &ExperimentError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// IsCode reports whether err is an ExperimentError with the given code.
func IsCode(err error, code ErrorCode) bool {
	var e *ExperimentError
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// annotateStep attaches the current step name to an error that does not
// already carry one; plugin failures are re-classified on the way through.
func annotateStep(err error, step string) error {
	var e *ExperimentError
	if errors.As(err, &e) {
		if e.Step == "" {
			e.Step = step
		}
		return err
	}
	return NewError(ErrCodePluginCallFailed, "step execution failed", err).WithStep(step)
}

// newMissingParametersError builds the batched missing-parameter error; the
// names are sorted so the message is stable.
func newMissingParametersError(missing []string) *ExperimentError {
	sorted := append([]string(nil), missing...)
	sort.Strings(sorted)
	return Errorf(
		ErrCodeMissingGlobalParameters,
		"missing values for required global parameters: %s",
		strings.Join(sorted, ", "),
	)
}
