package commands

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/usnistgov/dioptra-sub004/pkg/engine"
	"github.com/usnistgov/dioptra-sub004/pkg/registry"
)

// parseParams converts repeated key=value flags into engine values. Values
// are parsed as YAML scalars, so numbers and booleans keep their types.
func parseParams(pairs []string) (map[string]engine.Value, error) {
	params := make(map[string]engine.Value, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid parameter %q (expected key=value)", pair)
		}

		var parsed interface{}
		if err := yaml.Unmarshal([]byte(raw), &parsed); err != nil {
			return nil, fmt.Errorf("invalid parameter value for %s: %w", key, err)
		}

		value, err := engine.FromInterface(parsed)
		if err != nil {
			return nil, fmt.Errorf("invalid parameter value for %s: %w", key, err)
		}
		params[key] = value
	}
	return params, nil
}

// splitCollectionFlag parses a "collection=dir" flag value. A bare directory
// uses its base name as the collection.
func splitCollectionFlag(value string) (collection, dir string) {
	if name, path, ok := strings.Cut(value, "="); ok && !strings.Contains(name, "/") {
		return name, path
	}
	return filepath.Base(value), value
}

// buildRegistry assembles the plugin registry: built-in operations plus any
// Starlark and WASM collections named on the command line. The returned
// closer releases WASM runtimes.
func buildRegistry(
	ctx context.Context,
	logger zerolog.Logger,
	starlarkDirs, wasmDirs []string,
) (*registry.Registry, func(context.Context) error, error) {
	reg := registry.New(logger)
	registry.RegisterBuiltins(reg)

	for _, flag := range starlarkDirs {
		collection, dir := splitCollectionFlag(flag)
		err := registry.LoadStarlarkCollection(reg, registry.StarlarkOptions{
			Collection: collection,
			Dir:        dir,
			Logger:     logger,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load Starlark collection %s: %w", collection, err)
		}
	}

	var wasmCollections []*registry.WASMCollection
	closer := func(ctx context.Context) error {
		var firstErr error
		for _, col := range wasmCollections {
			if err := col.Close(ctx); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	}

	for _, flag := range wasmDirs {
		collection, dir := splitCollectionFlag(flag)
		col, err := registry.LoadWASMCollection(ctx, reg, registry.WASMOptions{
			Collection: collection,
			Dir:        dir,
			Logger:     logger,
		})
		if err != nil {
			_ = closer(ctx)
			return nil, nil, fmt.Errorf("failed to load WASM collection %s: %w", collection, err)
		}
		wasmCollections = append(wasmCollections, col)
	}

	return reg, closer, nil
}
