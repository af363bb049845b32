package engine

import (
	"errors"
	"testing"
)

func TestResolve_LiteralsPassThrough(t *testing.T) {
	globals := map[string]Value{}
	outputs := NewOutputStore()

	literals := []Value{
		Null(),
		Bool(true),
		Int(42),
		Float(3.5),
		String("plain"),
		String("has $ inside"),
	}

	for _, lit := range literals {
		resolved, err := Resolve(lit, globals, outputs)
		if err != nil {
			t.Fatalf("Expected no error resolving %#v, got: %v", lit, err)
		}
		if !resolved.Equal(lit) {
			t.Errorf("Expected %#v to resolve to itself, got %#v", lit, resolved)
		}
	}
}

func TestResolve_EscapedLiteral(t *testing.T) {
	resolved, err := Resolve(String("$$not_a_ref"), map[string]Value{}, NewOutputStore())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if resolved.StringVal() != "$not_a_ref" {
		t.Errorf("Expected one leading $ stripped, got %q", resolved.StringVal())
	}

	// Resolution of an already-resolved escaped value is a no-op only for
	// values no longer carrying the double prefix; `$not_a_ref` now looks
	// like a reference, so idempotence applies to non-reference strings.
	plain, err := Resolve(String("literal"), map[string]Value{}, NewOutputStore())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if plain.StringVal() != "literal" {
		t.Errorf("Expected idempotent resolution, got %q", plain.StringVal())
	}
}

func TestResolve_GlobalParameter(t *testing.T) {
	globals := map[string]Value{"rate": Float(0.1)}

	resolved, err := Resolve(String("$rate"), globals, NewOutputStore())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if resolved.FloatVal() != 0.1 {
		t.Errorf("Expected 0.1, got %v", resolved.Interface())
	}
}

func TestResolve_GlobalWinsOverStepOutput(t *testing.T) {
	globals := map[string]Value{"shared": Int(1)}
	outputs := NewOutputStore()
	outputs.Record("shared", map[string]Value{"value": Int(2)})

	resolved, err := Resolve(String("$shared"), globals, outputs)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if resolved.IntVal() != 1 {
		t.Errorf("Expected the global parameter to win, got %v", resolved.Interface())
	}
}

func TestResolve_QualifiedReference(t *testing.T) {
	outputs := NewOutputStore()
	outputs.Record("step1", map[string]Value{"value": Int(2)})

	resolved, err := Resolve(String("$step1.value"), map[string]Value{}, outputs)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if resolved.IntVal() != 2 {
		t.Errorf("Expected 2, got %v", resolved.Interface())
	}
}

func TestResolve_QualifiedReference_OutputNotFound(t *testing.T) {
	outputs := NewOutputStore()
	outputs.Record("step1", map[string]Value{"value": Int(2)})

	_, err := Resolve(String("$step1.other"), map[string]Value{}, outputs)
	if !IsCode(err, ErrCodeOutputNotFound) {
		t.Fatalf("Expected OUTPUT_NOT_FOUND, got: %v", err)
	}
}

func TestResolve_QualifiedReference_StepNotFound(t *testing.T) {
	_, err := Resolve(String("$never_ran.value"), map[string]Value{}, NewOutputStore())
	if !IsCode(err, ErrCodeStepNotFound) {
		t.Fatalf("Expected STEP_NOT_FOUND, got: %v", err)
	}
}

func TestResolve_BareReference_SoleOutput(t *testing.T) {
	outputs := NewOutputStore()
	outputs.Record("step1", map[string]Value{"value": String("ok")})

	resolved, err := Resolve(String("$step1"), map[string]Value{}, outputs)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if resolved.StringVal() != "ok" {
		t.Errorf("Expected sole output, got %v", resolved.Interface())
	}
}

func TestResolve_BareReference_Ambiguous(t *testing.T) {
	outputs := NewOutputStore()
	outputs.Record("step1", map[string]Value{"sum": Int(3), "diff": Int(1)})

	_, err := Resolve(String("$step1"), map[string]Value{}, outputs)
	if !IsCode(err, ErrCodeIllegalOutputReference) {
		t.Fatalf("Expected ILLEGAL_OUTPUT_REFERENCE, got: %v", err)
	}
}

func TestResolve_BareReference_Unresolvable(t *testing.T) {
	_, err := Resolve(String("$nothing"), map[string]Value{}, NewOutputStore())
	if !IsCode(err, ErrCodeUnresolvableReference) {
		t.Fatalf("Expected UNRESOLVABLE_REFERENCE, got: %v", err)
	}

	var expErr *ExperimentError
	if !errors.As(err, &expErr) {
		t.Fatal("Expected an *ExperimentError")
	}
}

func TestResolve_NestedStructures(t *testing.T) {
	globals := map[string]Value{"x": Int(7)}
	outputs := NewOutputStore()
	outputs.Record("gen", map[string]Value{"seed": Int(99)})

	spec := Map(map[string]Value{
		"config": Map(map[string]Value{
			"x":    String("$x"),
			"seed": String("$gen.seed"),
			"name": String("trial"),
		}),
		"series": List(String("$x"), Int(1), String("$$x")),
	})

	resolved, err := Resolve(spec, globals, outputs)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	config := resolved.MapVal()["config"].MapVal()
	if config["x"].IntVal() != 7 {
		t.Errorf("Expected nested global resolution, got %v", config["x"].Interface())
	}
	if config["seed"].IntVal() != 99 {
		t.Errorf("Expected nested output resolution, got %v", config["seed"].Interface())
	}
	if config["name"].StringVal() != "trial" {
		t.Errorf("Expected literal pass-through, got %v", config["name"].Interface())
	}

	series := resolved.MapVal()["series"].ListVal()
	if series[0].IntVal() != 7 || series[1].IntVal() != 1 {
		t.Errorf("Expected sequence order preserved, got %v", resolved.MapVal()["series"].Interface())
	}
	if series[2].StringVal() != "$x" {
		t.Errorf("Expected escaped literal in sequence, got %v", series[2].Interface())
	}
}

func TestScanReferences(t *testing.T) {
	spec := Map(map[string]Value{
		"a": String("$step1.value"),
		"b": List(String("$step2"), String("$$escaped"), String("plain")),
		"c": Map(map[string]Value{"nested": String("$global_name")}),
	})

	refs := scanReferences(spec, nil)

	want := map[string]bool{"step1": true, "step2": true, "global_name": true}
	if len(refs) != 3 {
		t.Fatalf("Expected 3 references, got %d: %v", len(refs), refs)
	}
	for _, ref := range refs {
		if !want[ref] {
			t.Errorf("Unexpected reference %q", ref)
		}
	}
}
