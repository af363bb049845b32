package registry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.starlark.net/starlark"

	"github.com/usnistgov/dioptra-sub004/pkg/engine"
)

// StarlarkOptions configures the Starlark plugin collection.
type StarlarkOptions struct {
	// Collection is the collection name the scripts register under.
	Collection string

	// Dir is the directory scanned for .star files. Each file becomes a
	// module named after its base name and each top-level function becomes
	// an operation.
	Dir string

	// Timeout bounds a single operation call. Zero means 30 seconds.
	Timeout time.Duration

	Logger zerolog.Logger
}

// LoadStarlarkCollection executes every .star file in the directory and
// registers its top-level functions as plugin operations.
func LoadStarlarkCollection(r *Registry, opts StarlarkOptions) error {
	if opts.Collection == "" {
		opts.Collection = "starlark"
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}

	entries, err := os.ReadDir(opts.Dir)
	if err != nil {
		return fmt.Errorf("failed to read plugin directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".star") {
			continue
		}
		path := filepath.Join(opts.Dir, entry.Name())
		module := strings.TrimSuffix(entry.Name(), ".star")
		if err := loadStarlarkModule(r, opts, module, path); err != nil {
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
	}
	return nil
}

func loadStarlarkModule(r *Registry, opts StarlarkOptions, module, path string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	thread := &starlark.Thread{
		Name: "dioptra-load",
		Print: func(_ *starlark.Thread, msg string) {
			opts.Logger.Debug().Str("module", module).Msg(msg)
		},
	}

	globals, err := starlark.ExecFile(thread, filepath.Base(path), src, nil)
	if err != nil {
		return fmt.Errorf("starlark execution failed: %w", err)
	}

	registered := 0
	for name, val := range globals {
		fn, ok := val.(*starlark.Function)
		if !ok || strings.HasPrefix(name, "_") {
			continue
		}
		r.Register(opts.Collection, module, name, starlarkHandler(fn, opts))
		registered++
	}

	opts.Logger.Info().
		Str("module", module).
		Int("operations", registered).
		Msg("Loaded Starlark plugin module")
	return nil
}

// starlarkHandler wraps a Starlark function as a registry handler. Each call
// runs on a fresh thread and is bounded by the configured timeout.
func starlarkHandler(fn *starlark.Function, opts StarlarkOptions) Handler {
	return func(ctx context.Context, args []engine.Value, kwargs map[string]engine.Value) (engine.Value, error) {
		callArgs := make(starlark.Tuple, len(args))
		for i, arg := range args {
			v, err := toStarlarkValue(arg)
			if err != nil {
				return engine.Null(), fmt.Errorf("failed to convert argument %d: %w", i, err)
			}
			callArgs[i] = v
		}

		callKwargs := make([]starlark.Tuple, 0, len(kwargs))
		for _, key := range sortedKeys(kwargs) {
			v, err := toStarlarkValue(kwargs[key])
			if err != nil {
				return engine.Null(), fmt.Errorf("failed to convert keyword %s: %w", key, err)
			}
			callKwargs = append(callKwargs, starlark.Tuple{starlark.String(key), v})
		}

		callCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
		defer cancel()

		type callResult struct {
			value starlark.Value
			err   error
		}
		resultCh := make(chan callResult, 1)

		thread := &starlark.Thread{Name: "dioptra-call"}
		go func() {
			value, err := starlark.Call(thread, fn, callArgs, callKwargs)
			resultCh <- callResult{value: value, err: err}
		}()

		select {
		case <-callCtx.Done():
			thread.Cancel("timeout")
			return engine.Null(), fmt.Errorf("starlark call %s timed out after %v", fn.Name(), opts.Timeout)
		case res := <-resultCh:
			if res.err != nil {
				return engine.Null(), fmt.Errorf("starlark call failed: %w", res.err)
			}
			return fromStarlarkValue(res.value)
		}
	}
}

func sortedKeys(m map[string]engine.Value) []string {
	wrapped := engine.Map(m)
	return wrapped.MapKeys()
}

// toStarlarkValue converts an engine value to a Starlark value.
func toStarlarkValue(v engine.Value) (starlark.Value, error) {
	switch v.Kind() {
	case engine.KindNull:
		return starlark.None, nil
	case engine.KindBool:
		return starlark.Bool(v.BoolVal()), nil
	case engine.KindInt:
		return starlark.MakeInt64(v.IntVal()), nil
	case engine.KindFloat:
		return starlark.Float(v.FloatVal()), nil
	case engine.KindString:
		return starlark.String(v.StringVal()), nil
	case engine.KindList:
		elems := v.ListVal()
		list := make([]starlark.Value, len(elems))
		for i, elem := range elems {
			converted, err := toStarlarkValue(elem)
			if err != nil {
				return nil, err
			}
			list[i] = converted
		}
		return starlark.NewList(list), nil
	case engine.KindMap:
		entries := v.MapVal()
		dict := starlark.NewDict(len(entries))
		for _, key := range v.MapKeys() {
			converted, err := toStarlarkValue(entries[key])
			if err != nil {
				return nil, err
			}
			if err := dict.SetKey(starlark.String(key), converted); err != nil {
				return nil, err
			}
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported kind: %s", v.Kind())
	}
}

// fromStarlarkValue converts a Starlark value to an engine value.
func fromStarlarkValue(v starlark.Value) (engine.Value, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return engine.Null(), nil
	case starlark.Bool:
		return engine.Bool(bool(val)), nil
	case starlark.Int:
		i, ok := val.Int64()
		if !ok {
			return engine.Null(), fmt.Errorf("integer too large")
		}
		return engine.Int(i), nil
	case starlark.Float:
		return engine.Float(float64(val)), nil
	case starlark.String:
		return engine.String(string(val)), nil
	case *starlark.List:
		elems := make([]engine.Value, val.Len())
		for i := 0; i < val.Len(); i++ {
			converted, err := fromStarlarkValue(val.Index(i))
			if err != nil {
				return engine.Null(), err
			}
			elems[i] = converted
		}
		return engine.List(elems...), nil
	case starlark.Tuple:
		elems := make([]engine.Value, val.Len())
		for i := 0; i < val.Len(); i++ {
			converted, err := fromStarlarkValue(val.Index(i))
			if err != nil {
				return engine.Null(), err
			}
			elems[i] = converted
		}
		return engine.List(elems...), nil
	case *starlark.Dict:
		entries := make(map[string]engine.Value)
		for _, item := range val.Items() {
			key, ok := item[0].(starlark.String)
			if !ok {
				return engine.Null(), fmt.Errorf("dict key must be string")
			}
			converted, err := fromStarlarkValue(item[1])
			if err != nil {
				return engine.Null(), err
			}
			entries[string(key)] = converted
		}
		return engine.Map(entries), nil
	default:
		return engine.Null(), fmt.Errorf("unsupported starlark type: %s", v.Type())
	}
}
