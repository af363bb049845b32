package engine

import "strings"

// referencePrefix marks a string as a reference; a doubled prefix escapes it.
const referencePrefix = "$"

// Resolve turns an argument specification into a concrete value. Mappings
// and sequences resolve recursively (keys pass through unchanged). A string
// beginning with exactly one `$` is a reference into the global parameters
// or the step output store; a string beginning with `$$` is an escaped
// literal that loses one leading `$`. Every other value is returned as-is.
func Resolve(spec Value, globals map[string]Value, outputs *OutputStore) (Value, error) {
	switch spec.Kind() {
	case KindMap:
		resolved := make(map[string]Value, len(spec.MapVal()))
		for key, elem := range spec.MapVal() {
			value, err := Resolve(elem, globals, outputs)
			if err != nil {
				return Null(), err
			}
			resolved[key] = value
		}
		return Map(resolved), nil

	case KindList:
		resolved := make([]Value, len(spec.ListVal()))
		for i, elem := range spec.ListVal() {
			value, err := Resolve(elem, globals, outputs)
			if err != nil {
				return Null(), err
			}
			resolved[i] = value
		}
		return List(resolved...), nil

	case KindString:
		s := spec.StringVal()
		if strings.HasPrefix(s, referencePrefix+referencePrefix) {
			return String(s[1:]), nil
		}
		if strings.HasPrefix(s, referencePrefix) {
			return resolveReference(s[1:], globals, outputs)
		}
		return spec, nil

	default:
		return spec, nil
	}
}

// resolveReference resolves reference text with the leading `$` stripped.
// Qualified references (`step.output`) split on the first dot and index the
// output store. Bare references check the global parameters first, then fall
// back to a step's sole output.
func resolveReference(ref string, globals map[string]Value, outputs *OutputStore) (Value, error) {
	if step, output, qualified := strings.Cut(ref, "."); qualified {
		stepOutputs, ok := outputs.Step(step)
		if !ok {
			return Null(), Errorf(
				ErrCodeStepNotFound,
				"reference $%s names step %q, which has not produced output",
				ref, step,
			)
		}
		value, ok := stepOutputs[output]
		if !ok {
			return Null(), Errorf(
				ErrCodeOutputNotFound,
				"reference $%s names output %q, which step %q did not produce",
				ref, output, step,
			)
		}
		return value, nil
	}

	if value, ok := globals[ref]; ok {
		return value, nil
	}

	stepOutputs, ok := outputs.Step(ref)
	if !ok {
		return Null(), Errorf(
			ErrCodeUnresolvableReference,
			"reference $%s matches neither a global parameter nor a step",
			ref,
		)
	}
	if len(stepOutputs) > 1 {
		return Null(), Errorf(
			ErrCodeIllegalOutputReference,
			"reference $%s is ambiguous: step produced %d outputs, qualify with $%s.<output>",
			ref, len(stepOutputs), ref,
		)
	}
	for _, value := range stepOutputs {
		return value, nil
	}
	return Null(), Errorf(
		ErrCodeUnresolvableReference,
		"reference $%s names a step that produced no outputs",
		ref,
	)
}

// scanReferences collects the step-name portion of every reference embedded
// in an unresolved argument specification, in depth-first order. Bare
// references report their whole text; qualified references report the text
// before the first dot. Escaped literals are skipped.
func scanReferences(spec Value, into []string) []string {
	switch spec.Kind() {
	case KindMap:
		for _, key := range spec.MapKeys() {
			into = scanReferences(spec.MapVal()[key], into)
		}
	case KindList:
		for _, elem := range spec.ListVal() {
			into = scanReferences(elem, into)
		}
	case KindString:
		s := spec.StringVal()
		if strings.HasPrefix(s, referencePrefix+referencePrefix) {
			return into
		}
		if strings.HasPrefix(s, referencePrefix) {
			ref := s[1:]
			if step, _, qualified := strings.Cut(ref, "."); qualified {
				into = append(into, step)
			} else if ref != "" {
				into = append(into, ref)
			}
		}
	}
	return into
}
