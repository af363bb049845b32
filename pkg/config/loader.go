package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/usnistgov/dioptra-sub004/pkg/engine"
)

// Experiment is a loaded and validated experiment description.
type Experiment struct {
	// Name is the optional experiment name from the document.
	Name string

	// Description is the engine representation of the document.
	Description engine.ExperimentDescription
}

// Loader loads experiment descriptions from YAML documents.
type Loader struct {
	validate *validator.Validate
	schema   *SchemaValidator
}

// NewLoader creates a loader with the embedded schema compiled.
func NewLoader() (*Loader, error) {
	schema, err := NewSchemaValidator()
	if err != nil {
		return nil, err
	}
	return &Loader{
		validate: validator.New(),
		schema:   schema,
	}, nil
}

// Load reads and parses the experiment description at path.
func (l *Loader) Load(path string) (*Experiment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read experiment file: %w", err)
	}
	exp, err := l.LoadBytes(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return exp, nil
}

// LoadBytes parses an experiment description from YAML bytes, running the
// struct-tag, schema, and engine-level validation stages.
func (l *Loader) LoadBytes(data []byte) (*Experiment, error) {
	var cfg ExperimentConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := l.validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	var document interface{}
	if err := yaml.Unmarshal(data, &document); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := l.schema.Validate(document); err != nil {
		return nil, err
	}

	desc, err := buildDescription(&cfg)
	if err != nil {
		return nil, err
	}

	if err := staticCheck(desc); err != nil {
		return nil, err
	}

	return &Experiment{Name: cfg.Name, Description: desc}, nil
}

// buildDescription converts the wire model into the engine description.
func buildDescription(cfg *ExperimentConfig) (engine.ExperimentDescription, error) {
	var desc engine.ExperimentDescription

	params, err := buildParameterSpec(&cfg.Parameters)
	if err != nil {
		return desc, err
	}
	desc.Parameters = params

	desc.Tasks = make(map[string]engine.TaskDefinition, len(cfg.Tasks))
	for name, task := range cfg.Tasks {
		outputs, err := buildOutputSpec(&task.Outputs)
		if err != nil {
			return desc, fmt.Errorf("task %q: %w", name, err)
		}
		desc.Tasks[name] = engine.TaskDefinition{
			Plugin:  task.Plugin,
			Outputs: outputs,
		}
	}

	desc.Graph = make(map[string]engine.StepSpec, len(cfg.Graph))
	for name, node := range cfg.Graph {
		node := node
		step, err := buildStepSpec(&node)
		if err != nil {
			return desc, fmt.Errorf("step %q: %w", name, err)
		}
		desc.Graph[name] = step
	}

	return desc, nil
}

// buildParameterSpec interprets the list-or-mapping parameters declaration.
func buildParameterSpec(node *yaml.Node) (engine.ParameterSpec, error) {
	var spec engine.ParameterSpec
	if node.Kind == 0 || node.Tag == "!!null" {
		return spec, nil
	}

	switch node.Kind {
	case yaml.SequenceNode:
		spec.Names = make([]string, 0, len(node.Content))
		for _, item := range node.Content {
			if item.Kind != yaml.ScalarNode || item.Tag != "!!str" {
				return spec, fmt.Errorf("parameter list entries must be names")
			}
			spec.Names = append(spec.Names, item.Value)
		}
		return spec, nil

	case yaml.MappingNode:
		spec.Mapping = true
		spec.Entries = make(map[string]engine.ParameterEntry, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			key := node.Content[i]
			val, err := nodeToValue(node.Content[i+1])
			if err != nil {
				return spec, fmt.Errorf("parameter %q: %w", key.Value, err)
			}
			spec.Entries[key.Value] = engine.ParameterEntryFromValue(val)
		}
		return spec, nil

	default:
		return spec, fmt.Errorf("parameters must be a list or a mapping")
	}
}

// buildOutputSpec interprets the single-name or name-list outputs field.
func buildOutputSpec(node *yaml.Node) (*engine.OutputSpec, error) {
	if node.Kind == 0 || node.Tag == "!!null" {
		return nil, nil
	}

	switch node.Kind {
	case yaml.ScalarNode:
		if node.Tag != "!!str" || node.Value == "" {
			return nil, fmt.Errorf("output name must be a non-empty string")
		}
		return engine.SingleOutput(node.Value), nil

	case yaml.SequenceNode:
		names := make([]string, 0, len(node.Content))
		for _, item := range node.Content {
			if item.Kind != yaml.ScalarNode || item.Tag != "!!str" || item.Value == "" {
				return nil, fmt.Errorf("output names must be non-empty strings")
			}
			names = append(names, item.Value)
		}
		return engine.OutputList(names...), nil

	default:
		return nil, fmt.Errorf("outputs must be a name or a list of names")
	}
}

// buildStepSpec converts one graph node, splitting the dependencies field
// off from the rest of the specification.
func buildStepSpec(node *yaml.Node) (engine.StepSpec, error) {
	var step engine.StepSpec

	raw, err := nodeToValue(node)
	if err != nil {
		return step, err
	}

	if raw.Kind() != engine.KindMap {
		step.Raw = raw
		return step, nil
	}

	entries := raw.MapVal()
	deps, ok := entries["dependencies"]
	if !ok {
		step.Raw = raw
		return step, nil
	}

	switch deps.Kind() {
	case engine.KindString:
		step.Dependencies = []string{deps.StringVal()}
	case engine.KindList:
		for _, dep := range deps.ListVal() {
			if dep.Kind() != engine.KindString {
				return step, fmt.Errorf("dependencies must be step names")
			}
			step.Dependencies = append(step.Dependencies, dep.StringVal())
		}
	default:
		return step, fmt.Errorf("dependencies must be a step name or a list of step names")
	}

	stripped := make(map[string]engine.Value, len(entries)-1)
	for key, val := range entries {
		if key == "dependencies" {
			continue
		}
		stripped[key] = val
	}
	step.Raw = engine.Map(stripped)
	return step, nil
}

// staticCheck runs the engine-level checks that need no runtime state:
// every step must classify, name a declared task, and every task must carry
// a well-formed plugin coordinate.
func staticCheck(desc engine.ExperimentDescription) error {
	for name, task := range desc.Tasks {
		if _, _, _, err := engine.SplitPluginCoordinate(task.Plugin); err != nil {
			return fmt.Errorf("task %q: %w", name, err)
		}
	}

	for name, step := range desc.Graph {
		form, err := engine.ClassifyStep(step.Raw)
		if err != nil {
			return fmt.Errorf("step %q: %w", name, err)
		}
		if _, ok := desc.Tasks[form.TaskName()]; !ok {
			return fmt.Errorf("step %q: %w", name, engine.Errorf(
				engine.ErrCodeTaskPluginNotFound,
				"task %q is not declared", form.TaskName(),
			))
		}
	}
	return nil
}

// nodeToValue converts a YAML node into an engine value. Integers stay
// integral; any other scalar resolves by its tag.
func nodeToValue(node *yaml.Node) (engine.Value, error) {
	switch node.Kind {
	case yaml.DocumentNode:
		if len(node.Content) == 0 {
			return engine.Null(), nil
		}
		return nodeToValue(node.Content[0])

	case yaml.AliasNode:
		return nodeToValue(node.Alias)

	case yaml.ScalarNode:
		switch node.Tag {
		case "!!null":
			return engine.Null(), nil
		case "!!bool":
			b, err := strconv.ParseBool(node.Value)
			if err != nil {
				return engine.Null(), fmt.Errorf("invalid bool %q", node.Value)
			}
			return engine.Bool(b), nil
		case "!!int":
			i, err := strconv.ParseInt(node.Value, 0, 64)
			if err != nil {
				return engine.Null(), fmt.Errorf("invalid integer %q", node.Value)
			}
			return engine.Int(i), nil
		case "!!float":
			f, err := strconv.ParseFloat(node.Value, 64)
			if err != nil {
				return engine.Null(), fmt.Errorf("invalid float %q", node.Value)
			}
			return engine.Float(f), nil
		default:
			return engine.String(node.Value), nil
		}

	case yaml.SequenceNode:
		elems := make([]engine.Value, len(node.Content))
		for i, item := range node.Content {
			v, err := nodeToValue(item)
			if err != nil {
				return engine.Null(), err
			}
			elems[i] = v
		}
		return engine.List(elems...), nil

	case yaml.MappingNode:
		entries := make(map[string]engine.Value, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			key := node.Content[i]
			if key.Kind != yaml.ScalarNode {
				return engine.Null(), fmt.Errorf("mapping keys must be scalars")
			}
			v, err := nodeToValue(node.Content[i+1])
			if err != nil {
				return engine.Null(), err
			}
			entries[key.Value] = v
		}
		return engine.Map(entries), nil

	default:
		return engine.Null(), fmt.Errorf("unsupported YAML node kind %d", node.Kind)
	}
}
