package engine

import (
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestReconcile_MappingForm_DefaultInstalled(t *testing.T) {
	spec := ParameterSpec{
		Mapping: true,
		Entries: map[string]ParameterEntry{
			"x": {Default: Int(1), HasDefault: true},
		},
	}
	globals := map[string]Value{}

	if err := ReconcileGlobalParameters(spec, globals, zerolog.Nop()); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if globals["x"].IntVal() != 1 {
		t.Errorf("Expected default 1 installed, got %v", globals["x"].Interface())
	}
}

func TestReconcile_MappingForm_SuppliedValueWins(t *testing.T) {
	spec := ParameterSpec{
		Mapping: true,
		Entries: map[string]ParameterEntry{
			"x": {Default: Int(1), HasDefault: true},
		},
	}
	globals := map[string]Value{"x": Int(2)}

	if err := ReconcileGlobalParameters(spec, globals, zerolog.Nop()); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if globals["x"].IntVal() != 2 {
		t.Errorf("Expected supplied value to win, got %v", globals["x"].Interface())
	}
}

func TestReconcile_MappingForm_NullDefault(t *testing.T) {
	spec := ParameterSpec{
		Mapping: true,
		Entries: map[string]ParameterEntry{
			"x": {Default: Null(), HasDefault: true},
		},
	}
	globals := map[string]Value{}

	if err := ReconcileGlobalParameters(spec, globals, zerolog.Nop()); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	value, ok := globals["x"]
	if !ok {
		t.Fatal("Expected x to be installed with a null default")
	}
	if !value.IsNull() {
		t.Errorf("Expected null, got %v", value.Interface())
	}
}

func TestReconcile_MappingForm_NullEntryIsRequired(t *testing.T) {
	spec := ParameterSpec{
		Mapping: true,
		Entries: map[string]ParameterEntry{
			"x": {},
		},
	}

	err := ReconcileGlobalParameters(spec, map[string]Value{}, zerolog.Nop())
	if !IsCode(err, ErrCodeMissingGlobalParameters) {
		t.Fatalf("Expected MISSING_GLOBAL_PARAMETERS, got: %v", err)
	}
}

func TestReconcile_ListForm_MissingParameter(t *testing.T) {
	spec := ParameterSpec{Names: []string{"x"}}

	err := ReconcileGlobalParameters(spec, map[string]Value{}, zerolog.Nop())
	if !IsCode(err, ErrCodeMissingGlobalParameters) {
		t.Fatalf("Expected MISSING_GLOBAL_PARAMETERS, got: %v", err)
	}
	if !strings.Contains(err.Error(), "x") {
		t.Errorf("Expected missing-parameter error to name x, got %q", err.Error())
	}
}

func TestReconcile_ListForm_MissingParametersBatched(t *testing.T) {
	spec := ParameterSpec{Names: []string{"a", "b", "c"}}
	globals := map[string]Value{"b": Int(1)}

	err := ReconcileGlobalParameters(spec, globals, zerolog.Nop())
	if !IsCode(err, ErrCodeMissingGlobalParameters) {
		t.Fatalf("Expected MISSING_GLOBAL_PARAMETERS, got: %v", err)
	}
	msg := err.Error()
	if !strings.Contains(msg, "a") || !strings.Contains(msg, "c") {
		t.Errorf("Expected batched error naming a and c, got %q", msg)
	}
	if strings.Contains(msg, "b,") || strings.HasSuffix(msg, "b") {
		t.Errorf("Expected error not to name the supplied parameter, got %q", msg)
	}
}

func TestReconcile_ExtraneousDropped(t *testing.T) {
	spec := ParameterSpec{Names: []string{"x"}}
	globals := map[string]Value{
		"x":        Int(1),
		"stowaway": Int(2),
	}

	if err := ReconcileGlobalParameters(spec, globals, zerolog.Nop()); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if _, ok := globals["stowaway"]; ok {
		t.Error("Expected extraneous parameter to be dropped")
	}
	if len(globals) != 1 {
		t.Errorf("Expected only declared parameters to remain, got %v", globals)
	}
}

func TestParameterEntryFromValue(t *testing.T) {
	cases := []struct {
		name        string
		entry       Value
		wantDefault Value
		wantHas     bool
	}{
		{"mapping with default", Map(map[string]Value{"default": Int(5)}), Int(5), true},
		{"mapping with null default", Map(map[string]Value{"default": Null()}), Null(), true},
		{"mapping without default", Map(map[string]Value{}), Null(), true},
		{"scalar entry", Float(0.5), Float(0.5), true},
		{"null entry", Null(), Null(), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			entry := ParameterEntryFromValue(tc.entry)
			if entry.HasDefault != tc.wantHas {
				t.Fatalf("Expected HasDefault=%v, got %v", tc.wantHas, entry.HasDefault)
			}
			if tc.wantHas && !entry.Default.Equal(tc.wantDefault) {
				t.Errorf("Expected default %#v, got %#v", tc.wantDefault, entry.Default)
			}
		})
	}
}
