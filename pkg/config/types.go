package config

import (
	"gopkg.in/yaml.v3"
)

// ExperimentConfig is the YAML wire model of an experiment description.
// Parameters and graph nodes keep their raw YAML shape; the loader converts
// them to engine values after validation.
type ExperimentConfig struct {
	// Name is an optional human-readable experiment name, recorded with
	// tracked runs.
	Name string `yaml:"name,omitempty"`

	// Parameters declares the global parameters: either a plain list of
	// required names or a mapping of name to default specification.
	Parameters yaml.Node `yaml:"parameters,omitempty"`

	// Tasks maps task short names to plugin bindings.
	Tasks map[string]TaskConfig `yaml:"tasks" validate:"required,min=1,dive"`

	// Graph maps step names to step specifications.
	Graph map[string]yaml.Node `yaml:"graph" validate:"required,min=1"`
}

// TaskConfig binds a task short name to a plugin coordinate.
type TaskConfig struct {
	// Plugin is the dot-delimited plugin coordinate string.
	Plugin string `yaml:"plugin" validate:"required"`

	// Outputs is either a single output name or an ordered list of names.
	Outputs yaml.Node `yaml:"outputs,omitempty"`
}
