package registry

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/usnistgov/dioptra-sub004/pkg/engine"
)

func TestRegistryDispatch(t *testing.T) {
	r := New(zerolog.Nop())

	r.Register("custom", "echo", "identity", func(_ context.Context, args []engine.Value, _ map[string]engine.Value) (engine.Value, error) {
		return args[0], nil
	})

	result, err := r.Call(context.Background(), "custom", "echo", "identity",
		[]engine.Value{engine.String("hello")}, nil)
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if result.StringVal() != "hello" {
		t.Errorf("Expected %q, got %v", "hello", result.Interface())
	}
}

func TestRegistryUnknownCoordinate(t *testing.T) {
	r := New(zerolog.Nop())

	_, err := r.Call(context.Background(), "missing", "module", "op", nil, nil)
	if !engine.IsCode(err, engine.ErrCodeTaskPluginNotFound) {
		t.Fatalf("Expected TASK_PLUGIN_NOT_FOUND, got: %v", err)
	}
}

func TestRegistryReplaceBinding(t *testing.T) {
	r := New(zerolog.Nop())

	constant := func(v engine.Value) Handler {
		return func(_ context.Context, _ []engine.Value, _ map[string]engine.Value) (engine.Value, error) {
			return v, nil
		}
	}
	r.Register("c", "m", "op", constant(engine.Int(1)))
	r.Register("c", "m", "op", constant(engine.Int(2)))

	result, err := r.Call(context.Background(), "c", "m", "op", nil, nil)
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if result.IntVal() != 2 {
		t.Errorf("Expected later binding to win, got %d", result.IntVal())
	}
	if r.Len() != 1 {
		t.Errorf("Expected 1 binding, got %d", r.Len())
	}
}

func TestRegistryList(t *testing.T) {
	r := New(zerolog.Nop())
	RegisterBuiltins(r)

	names := r.List()
	if len(names) != r.Len() {
		t.Fatalf("Expected %d names, got %d", r.Len(), len(names))
	}

	found := false
	for _, name := range names {
		if name == "builtins.math.add" {
			found = true
		}
	}
	if !found {
		t.Error("Expected builtins.math.add in listing")
	}

	for i := 1; i < len(names); i++ {
		if names[i-1] >= names[i] {
			t.Fatalf("Expected sorted listing, %q before %q", names[i-1], names[i])
		}
	}
}
