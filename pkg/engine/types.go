package engine

import "strings"

// ExperimentDescription is the immutable declarative input to a run: the
// parameter specification, the reusable task definitions, and the step graph.
type ExperimentDescription struct {
	// Parameters is the global parameter specification.
	Parameters ParameterSpec

	// Tasks maps task short names to their definitions.
	Tasks map[string]TaskDefinition

	// Graph maps step names to step specifications. Insertion order is not
	// significant; execution order is computed by the GraphBuilder.
	Graph map[string]StepSpec
}

// TaskDefinition binds a task short name to an external plugin coordinate
// and describes how to decompose the callable's return value.
type TaskDefinition struct {
	// Plugin is the dot-delimited coordinate string identifying the external
	// callable. The last two components are the module and operation;
	// everything to the left is the collection.
	Plugin string

	// Outputs describes the task's declared outputs, or nil when the call
	// result is discarded.
	Outputs *OutputSpec
}

// OutputSpec declares how a task's return value maps onto named outputs.
type OutputSpec struct {
	// Names are the declared output names, in order.
	Names []string

	// Multiple marks the declaration as an ordered list of names: the call
	// result must be a sequence and is paired with Names element-wise. When
	// false, the entire result is stored under the single name.
	Multiple bool
}

// SingleOutput declares one output name receiving the whole call result.
func SingleOutput(name string) *OutputSpec {
	return &OutputSpec{Names: []string{name}}
}

// OutputList declares an ordered list of output names paired element-wise
// with the call result.
func OutputList(names ...string) *OutputSpec {
	return &OutputSpec{Names: names, Multiple: true}
}

// StepSpec is one node of the task graph before classification.
type StepSpec struct {
	// Dependencies are step names that must execute first regardless of
	// data flow.
	Dependencies []string

	// Raw is the remaining step specification with the dependencies field
	// already stripped: either the shorthand single-key mapping or the
	// explicit task/args/kwargs mapping.
	Raw Value
}

// ParameterSpec is the declaration of an experiment's global parameters, in
// one of two shapes: a plain ordered list of required names, or a mapping
// from name to a default entry.
type ParameterSpec struct {
	// Names is the list form; every named parameter is required.
	Names []string

	// Entries is the mapping form.
	Entries map[string]ParameterEntry

	// Mapping reports which form was declared.
	Mapping bool
}

// ParameterEntry is one parameter declaration in the mapping form.
type ParameterEntry struct {
	// Default is the value installed when the caller supplies none.
	Default Value

	// HasDefault distinguishes a declared default (even an explicit null
	// default) from a bare null entry, which makes the parameter required.
	HasDefault bool
}

// ParameterEntryFromValue interprets a raw mapping-form entry: a mapping
// uses its `default` field (null when absent), a non-null value is itself
// the default, and a null entry declares a required parameter.
func ParameterEntryFromValue(entry Value) ParameterEntry {
	switch entry.Kind() {
	case KindMap:
		def, ok := entry.MapVal()["default"]
		if !ok {
			def = Null()
		}
		return ParameterEntry{Default: def, HasDefault: true}
	case KindNull:
		return ParameterEntry{}
	default:
		return ParameterEntry{Default: entry, HasDefault: true}
	}
}

// TrackingMode selects how a run is bracketed by the tracking service.
type TrackingMode int

const (
	// TrackingDisabled runs without notifying the tracking service.
	TrackingDisabled TrackingMode = iota

	// TrackingNewRun starts a fresh tracking run.
	TrackingNewRun

	// TrackingResumeRun resumes a previously created tracking run.
	TrackingResumeRun
)

// TrackingOptions carries the tracking mode and, for TrackingResumeRun, the
// id of the run to resume.
type TrackingOptions struct {
	Mode     TrackingMode
	ResumeID string
}

// RunState is the lifecycle state of one experiment run.
type RunState string

const (
	// RunStateNotStarted is the initial state before any work begins.
	RunStateNotStarted RunState = "not_started"

	// RunStateRunning covers parameter reconciliation through the last step.
	RunStateRunning RunState = "running"

	// RunStateCompleted is the terminal state after every step succeeded.
	RunStateCompleted RunState = "completed"

	// RunStateFailed is the terminal state after the first unrecoverable
	// error.
	RunStateFailed RunState = "failed"
)

// IsTerminal reports whether the state is final.
func (s RunState) IsTerminal() bool {
	return s == RunStateCompleted || s == RunStateFailed
}

// SplitPluginCoordinate derives the three-part plugin address from a dotted
// plugin string: the last two components become the module and operation and
// everything to the left becomes the collection (empty for exactly two
// components). Fewer than two components is an IllegalPluginName error.
func SplitPluginCoordinate(plugin string) (collection, module, operation string, err error) {
	parts := strings.Split(plugin, ".")
	if len(parts) < 2 || parts[len(parts)-1] == "" || parts[len(parts)-2] == "" {
		return "", "", "", Errorf(
			ErrCodeIllegalPluginName,
			"plugin coordinate %q must have at least two dot-separated components",
			plugin,
		).WithPlugin(plugin)
	}
	operation = parts[len(parts)-1]
	module = parts[len(parts)-2]
	collection = strings.Join(parts[:len(parts)-2], ".")
	return collection, module, operation, nil
}
