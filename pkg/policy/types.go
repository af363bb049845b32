package policy

import (
	"sort"
	"time"

	"github.com/usnistgov/dioptra-sub004/pkg/engine"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is for warnings that should be reviewed.
	SeverityWarning Severity = "warning"

	// SeverityError is for errors that block a run.
	SeverityError Severity = "error"
)

// Policy represents a policy rule with its Rego code.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code.
	Rego string `json:"rego"`

	// Severity is the default severity for violations.
	Severity Severity `json:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`

	// Tags are labels for organizing policies.
	Tags []string `json:"tags,omitempty"`

	// CreatedAt is when the policy was created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the policy was last updated.
	UpdatedAt time.Time `json:"updated_at"`
}

// Violation represents a single policy violation.
type Violation struct {
	// Policy is the name of the policy that was violated.
	Policy string `json:"policy"`

	// Step is the graph step the violation concerns, if any.
	Step string `json:"step,omitempty"`

	// Message is a human-readable violation message.
	Message string `json:"message"`

	// Severity is the violation severity level.
	Severity Severity `json:"severity"`
}

// Result represents the result of policy evaluation.
type Result struct {
	// Allowed indicates if the run is admitted.
	Allowed bool `json:"allowed"`

	// Violations lists all policy violations.
	Violations []Violation `json:"violations,omitempty"`

	// Warnings lists policies whose evaluation itself failed.
	Warnings []string `json:"warnings,omitempty"`

	// EvaluatedAt is when the policies were evaluated.
	EvaluatedAt time.Time `json:"evaluated_at"`
}

// Input is the document handed to Rego as `input`.
type Input struct {
	// Experiment is the plain-data rendering of the description.
	Experiment map[string]interface{} `json:"experiment"`

	// Context provides evaluation context.
	Context *Context `json:"context"`
}

// Context provides context information for policy evaluation.
type Context struct {
	// Timestamp is when the evaluation is occurring.
	Timestamp time.Time `json:"timestamp"`

	// Operation is the operation being admitted ("validate" or "run").
	Operation string `json:"operation,omitempty"`
}

// BuildInput renders an experiment description as the policy input document.
func BuildInput(desc engine.ExperimentDescription, operation string) *Input {
	tasks := make(map[string]interface{}, len(desc.Tasks))
	for name, task := range desc.Tasks {
		entry := map[string]interface{}{"plugin": task.Plugin}
		if task.Outputs != nil {
			entry["outputs"] = task.Outputs.Names
		}
		tasks[name] = entry
	}

	graph := make(map[string]interface{}, len(desc.Graph))
	for name, step := range desc.Graph {
		entry := map[string]interface{}{"spec": step.Raw.Interface()}
		if len(step.Dependencies) > 0 {
			entry["dependencies"] = step.Dependencies
		}
		graph[name] = entry
	}

	parameters := []string{}
	if desc.Parameters.Mapping {
		for name := range desc.Parameters.Entries {
			parameters = append(parameters, name)
		}
		sort.Strings(parameters)
	} else {
		parameters = append(parameters, desc.Parameters.Names...)
	}

	return &Input{
		Experiment: map[string]interface{}{
			"parameters": parameters,
			"tasks":      tasks,
			"graph":      graph,
			"step_count": len(desc.Graph),
		},
		Context: &Context{
			Timestamp: time.Now(),
			Operation: operation,
		},
	}
}
