package policy

import (
	"time"
)

// GetBuiltinPolicies returns all built-in policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		stepNamingPolicy(),
		graphSizePolicy(),
		pluginCoordinatePolicy(),
	}
}

// stepNamingPolicy enforces step naming conventions.
func stepNamingPolicy() Policy {
	return Policy{
		Name:        "step-naming",
		Description: "Enforces step naming conventions (lowercase, alphanumeric, underscores only)",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"naming", "conventions"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package dioptra.policies.naming

import rego.v1

deny contains violation if {
	some name, _ in input.experiment.graph
	not regex.match("^[a-z0-9_]+$", name)
	violation := {
		"message": sprintf("Step name '%s' must contain only lowercase letters, numbers, and underscores", [name]),
		"severity": "warning",
		"step": name,
	}
}

deny contains violation if {
	some name, _ in input.experiment.graph
	count(name) > 63
	violation := {
		"message": sprintf("Step name '%s' must be at most 63 characters long", [name]),
		"severity": "warning",
		"step": name,
	}
}
`,
	}
}

// graphSizePolicy caps the number of steps admitted per run.
func graphSizePolicy() Policy {
	return Policy{
		Name:        "graph-size",
		Description: "Rejects experiments whose step graph exceeds the size ceiling",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"limits"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package dioptra.policies.limits

import rego.v1

max_steps := 500

deny contains violation if {
	input.experiment.step_count > max_steps
	violation := {
		"message": sprintf("Experiment declares %d steps, exceeding the ceiling of %d", [input.experiment.step_count, max_steps]),
		"severity": "error",
	}
}
`,
	}
}

// pluginCoordinatePolicy rejects malformed plugin coordinate strings.
func pluginCoordinatePolicy() Policy {
	return Policy{
		Name:        "plugin-coordinates",
		Description: "Rejects task plugins whose coordinate is not dot-delimited",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"plugins"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package dioptra.policies.plugins

import rego.v1

deny contains violation if {
	some name, task in input.experiment.tasks
	not regex.match("^[A-Za-z0-9_]+(\\.[A-Za-z0-9_]+)+$", task.plugin)
	violation := {
		"message": sprintf("Task '%s' declares malformed plugin coordinate '%s'", [name, task.plugin]),
		"severity": "error",
	}
}
`,
	}
}
