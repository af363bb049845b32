package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/usnistgov/dioptra-sub004/pkg/engine"
)

// WASMOptions configures the WASM plugin collection.
type WASMOptions struct {
	// Collection is the collection name the modules register under.
	Collection string

	// Dir is the directory scanned for .wasm files. Each file becomes a
	// module named after its base name.
	Dir string

	// Timeout bounds a single operation call. Zero means 30 seconds.
	Timeout time.Duration

	// MemoryLimitPages is the maximum memory limit in pages (64KB each).
	// Default is 256 pages (16MB).
	MemoryLimitPages uint32

	Logger zerolog.Logger
}

// WASMCollection owns the wazero runtime and the instantiated plugin
// modules. Close must be called to release them.
type WASMCollection struct {
	runtime wazero.Runtime
	modules []api.Module
}

// wasmModule wraps one instantiated plugin module. The module must export
// invoke, operations, malloc, and free. Requests and responses are JSON
// blobs passed through linear memory; every call returns a packed u64 of
// (output_ptr << 32) | output_len.
type wasmModule struct {
	module     api.Module
	memory     api.Memory
	malloc     api.Function
	free       api.Function
	invoke     api.Function
	operations api.Function
	timeout    time.Duration
}

// invokeRequest is the JSON request handed to a module's invoke export.
type invokeRequest struct {
	Operation string                 `json:"operation"`
	Args      []interface{}          `json:"args"`
	Kwargs    map[string]interface{} `json:"kwargs"`
}

// invokeResponse is the JSON response read back from linear memory.
type invokeResponse struct {
	Result interface{} `json:"result"`
	Error  string      `json:"error,omitempty"`
}

// LoadWASMCollection instantiates every .wasm file in the directory and
// registers its advertised operations.
func LoadWASMCollection(ctx context.Context, r *Registry, opts WASMOptions) (*WASMCollection, error) {
	if opts.Collection == "" {
		opts.Collection = "wasm"
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MemoryLimitPages == 0 {
		opts.MemoryLimitPages = 256
	}

	entries, err := os.ReadDir(opts.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read plugin directory: %w", err)
	}

	runtimeConfig := wazero.NewRuntimeConfig().
		WithMemoryLimitPages(opts.MemoryLimitPages).
		WithCloseOnContextDone(true)
	runtime := wazero.NewRuntimeWithConfig(ctx, runtimeConfig)

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, runtime); err != nil {
		runtime.Close(ctx)
		return nil, fmt.Errorf("failed to instantiate WASI: %w", err)
	}

	collection := &WASMCollection{runtime: runtime}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".wasm") {
			continue
		}
		path := filepath.Join(opts.Dir, entry.Name())
		moduleName := strings.TrimSuffix(entry.Name(), ".wasm")
		if err := collection.loadModule(ctx, r, opts, moduleName, path); err != nil {
			collection.Close(ctx)
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
	}

	return collection, nil
}

// Close releases the instantiated modules and the runtime.
func (c *WASMCollection) Close(ctx context.Context) error {
	for _, mod := range c.modules {
		_ = mod.Close(ctx)
	}
	if c.runtime != nil {
		return c.runtime.Close(ctx)
	}
	return nil
}

func (c *WASMCollection) loadModule(ctx context.Context, r *Registry, opts WASMOptions, name, path string) error {
	wasmBytes, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	module, err := c.runtime.Instantiate(ctx, wasmBytes)
	if err != nil {
		return fmt.Errorf("failed to instantiate WASM module: %w", err)
	}
	c.modules = append(c.modules, module)

	wrapped, err := newWASMModule(module, opts.Timeout)
	if err != nil {
		return err
	}

	operations, err := wrapped.listOperations(ctx)
	if err != nil {
		return err
	}

	for _, operation := range operations {
		op := operation
		r.Register(opts.Collection, name, op, wrapped.handler(op))
	}

	opts.Logger.Info().
		Str("module", name).
		Int("operations", len(operations)).
		Msg("Loaded WASM plugin module")
	return nil
}

func newWASMModule(module api.Module, timeout time.Duration) (*wasmModule, error) {
	m := &wasmModule{
		module:  module,
		memory:  module.Memory(),
		timeout: timeout,
	}
	if m.memory == nil {
		return nil, fmt.Errorf("WASM module does not export memory")
	}

	for _, export := range []struct {
		name string
		dst  *api.Function
	}{
		{"malloc", &m.malloc},
		{"free", &m.free},
		{"invoke", &m.invoke},
		{"operations", &m.operations},
	} {
		fn := module.ExportedFunction(export.name)
		if fn == nil {
			return nil, fmt.Errorf("WASM module does not export %s function", export.name)
		}
		*export.dst = fn
	}
	return m, nil
}

// listOperations asks the module which operations it implements.
func (m *wasmModule) listOperations(ctx context.Context) ([]string, error) {
	output, err := m.call(ctx, m.operations, nil)
	if err != nil {
		return nil, fmt.Errorf("operations call failed: %w", err)
	}

	var operations []string
	if err := json.Unmarshal(output, &operations); err != nil {
		return nil, fmt.Errorf("failed to unmarshal operations list: %w", err)
	}
	return operations, nil
}

// handler wraps one advertised operation as a registry handler.
func (m *wasmModule) handler(operation string) Handler {
	return func(ctx context.Context, args []engine.Value, kwargs map[string]engine.Value) (engine.Value, error) {
		req := invokeRequest{
			Operation: operation,
			Args:      make([]interface{}, len(args)),
			Kwargs:    make(map[string]interface{}, len(kwargs)),
		}
		for i, arg := range args {
			req.Args[i] = arg.Interface()
		}
		for key, val := range kwargs {
			req.Kwargs[key] = val.Interface()
		}

		reqJSON, err := json.Marshal(req)
		if err != nil {
			return engine.Null(), fmt.Errorf("failed to marshal request: %w", err)
		}

		callCtx, cancel := context.WithTimeout(ctx, m.timeout)
		defer cancel()

		output, err := m.call(callCtx, m.invoke, reqJSON)
		if err != nil {
			return engine.Null(), fmt.Errorf("invoke failed: %w", err)
		}

		var resp invokeResponse
		if err := json.Unmarshal(output, &resp); err != nil {
			return engine.Null(), fmt.Errorf("failed to unmarshal response: %w", err)
		}
		if resp.Error != "" {
			return engine.Null(), fmt.Errorf("plugin error: %s", resp.Error)
		}
		return engine.FromInterface(resp.Result)
	}
}

// call passes a JSON blob through linear memory and reads the packed reply.
func (m *wasmModule) call(ctx context.Context, fn api.Function, input []byte) ([]byte, error) {
	var inputPtr, inputLen uint32
	if len(input) > 0 {
		ptr, err := m.allocate(ctx, uint32(len(input)))
		if err != nil {
			return nil, fmt.Errorf("failed to allocate WASM memory: %w", err)
		}
		defer m.deallocate(ctx, ptr)

		inputPtr = ptr
		inputLen = uint32(len(input))

		if !m.memory.Write(inputPtr, input) {
			return nil, fmt.Errorf("failed to write input to WASM memory")
		}
	}

	results, err := fn.Call(ctx, uint64(inputPtr), uint64(inputLen))
	if err != nil {
		return nil, fmt.Errorf("WASM function call failed: %w", err)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("WASM function returned no results")
	}

	packed := results[0]
	outputPtr := uint32(packed >> 32)
	outputLen := uint32(packed & 0xFFFFFFFF)
	if outputLen == 0 {
		return []byte("{}"), nil
	}

	output, ok := m.memory.Read(outputPtr, outputLen)
	if !ok {
		return nil, fmt.Errorf("failed to read output from WASM memory")
	}

	// Output memory was allocated by the module; release it after copying.
	copied := make([]byte, len(output))
	copy(copied, output)
	if err := m.deallocate(ctx, outputPtr); err != nil {
		return nil, err
	}

	return copied, nil
}

func (m *wasmModule) allocate(ctx context.Context, size uint32) (uint32, error) {
	results, err := m.malloc.Call(ctx, uint64(size))
	if err != nil {
		return 0, fmt.Errorf("malloc failed: %w", err)
	}
	if len(results) == 0 {
		return 0, fmt.Errorf("malloc returned no results")
	}

	ptr := uint32(results[0])
	if ptr == 0 {
		return 0, fmt.Errorf("malloc returned null pointer")
	}
	return ptr, nil
}

func (m *wasmModule) deallocate(ctx context.Context, ptr uint32) error {
	if _, err := m.free.Call(ctx, uint64(ptr)); err != nil {
		return fmt.Errorf("free failed: %w", err)
	}
	return nil
}
