package engine

// Reserved step-specification keys. They are stripped or matched before any
// per-key lookup so that tasks may legally share these names.
const (
	keyTask         = "task"
	keyArgs         = "args"
	keyKwargs       = "kwargs"
	keyDependencies = "dependencies"
)

// StepForm is the disambiguated shape of a step specification: either the
// shorthand single-key form or the explicit task/args/kwargs form. The
// variant is decided once, by ClassifyStep, before any per-key lookup.
type StepForm interface {
	// TaskName returns the task short name the step invokes.
	TaskName() string

	stepForm()
}

// ShorthandStep is the single-key form: the key is the task short name and
// the value is its argument specification.
type ShorthandStep struct {
	Task    string
	ArgSpec Value
}

// TaskName returns the task short name.
func (s ShorthandStep) TaskName() string { return s.Task }

func (ShorthandStep) stepForm() {}

// ExplicitStep is the keyed form: a `task` field naming the task short name
// plus optional positional `args` and keyword `kwargs` specifications.
type ExplicitStep struct {
	Task string

	// Args is the positional argument specification; valid when HasArgs.
	Args    Value
	HasArgs bool

	// Kwargs is the keyword argument specification.
	Kwargs map[string]Value
}

// TaskName returns the task short name.
func (s ExplicitStep) TaskName() string { return s.Task }

func (ExplicitStep) stepForm() {}

// ClassifyStep decides the form of a raw step specification (with the
// dependencies field already stripped). A mapping containing a `task` key is
// explicit; any other mapping must be the single-key shorthand.
func ClassifyStep(raw Value) (StepForm, error) {
	if raw.Kind() != KindMap {
		return nil, Errorf(
			ErrCodeMissingTaskPluginName,
			"step specification must be a mapping, got %s",
			raw.Kind(),
		)
	}
	entries := raw.MapVal()

	if taskVal, ok := entries[keyTask]; ok {
		if taskVal.Kind() != KindString || taskVal.StringVal() == "" {
			return nil, Errorf(
				ErrCodeMissingTaskPluginName,
				"step field %q must be a non-empty task short name",
				keyTask,
			)
		}
		step := ExplicitStep{Task: taskVal.StringVal()}
		if args, ok := entries[keyArgs]; ok && !args.IsNull() {
			step.Args = args
			step.HasArgs = true
		}
		if kwargs, ok := entries[keyKwargs]; ok && !kwargs.IsNull() {
			if kwargs.Kind() != KindMap {
				return nil, Errorf(
					ErrCodeValidation,
					"step field %q must be a mapping, got %s",
					keyKwargs, kwargs.Kind(),
				)
			}
			step.Kwargs = kwargs.MapVal()
		}
		return step, nil
	}

	switch len(entries) {
	case 0:
		return nil, Errorf(
			ErrCodeMissingTaskPluginName,
			"step specification carries no task short name",
		)
	case 1:
		for task, argSpec := range entries {
			return ShorthandStep{Task: task, ArgSpec: argSpec}, nil
		}
		panic("unreachable")
	default:
		return nil, Errorf(
			ErrCodeValidation,
			"shorthand step specification must have exactly one key, got %d",
			len(entries),
		)
	}
}

// BuildArguments applies the reference resolver to a classified step and
// produces the positional and keyword invocation arguments.
func BuildArguments(
	form StepForm,
	globals map[string]Value,
	outputs *OutputStore,
) ([]Value, map[string]Value, error) {
	switch step := form.(type) {
	case ShorthandStep:
		// A mapping-shaped specification is entirely keyword arguments; any
		// other shape is positional.
		if step.ArgSpec.Kind() == KindMap {
			kwargs, err := buildKeyword(step.ArgSpec.MapVal(), globals, outputs)
			return nil, kwargs, err
		}
		args, err := buildPositional(step.ArgSpec, globals, outputs)
		return args, nil, err

	case ExplicitStep:
		var args []Value
		if step.HasArgs {
			var err error
			args, err = buildPositional(step.Args, globals, outputs)
			if err != nil {
				return nil, nil, err
			}
		}
		kwargs, err := buildKeyword(step.Kwargs, globals, outputs)
		if err != nil {
			return nil, nil, err
		}
		return args, kwargs, nil

	default:
		return nil, nil, Errorf(ErrCodeValidation, "unknown step form %T", form)
	}
}

// buildPositional resolves a positional argument specification, wrapping a
// non-sequence value as a single-element sequence.
func buildPositional(spec Value, globals map[string]Value, outputs *OutputStore) ([]Value, error) {
	elems := spec.ListVal()
	if spec.Kind() != KindList {
		elems = []Value{spec}
	}
	args := make([]Value, len(elems))
	for i, elem := range elems {
		resolved, err := Resolve(elem, globals, outputs)
		if err != nil {
			return nil, err
		}
		args[i] = resolved
	}
	return args, nil
}

// buildKeyword resolves every value of a keyword argument specification;
// keys pass through untouched.
func buildKeyword(spec map[string]Value, globals map[string]Value, outputs *OutputStore) (map[string]Value, error) {
	if len(spec) == 0 {
		return map[string]Value{}, nil
	}
	kwargs := make(map[string]Value, len(spec))
	for key, elem := range spec {
		resolved, err := Resolve(elem, globals, outputs)
		if err != nil {
			return nil, err
		}
		kwargs[key] = resolved
	}
	return kwargs, nil
}
