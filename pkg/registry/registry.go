package registry

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/usnistgov/dioptra-sub004/pkg/engine"
)

// Handler executes one plugin operation.
type Handler func(ctx context.Context, args []engine.Value, kwargs map[string]engine.Value) (engine.Value, error)

// coordinate is the fully qualified address of a handler.
type coordinate struct {
	collection string
	module     string
	operation  string
}

func (c coordinate) String() string {
	if c.collection == "" {
		return c.module + "." + c.operation
	}
	return c.collection + "." + c.module + "." + c.operation
}

// Registry maps plugin coordinates to handlers. It implements the
// engine.PluginCaller interface. The zero value is not usable; create
// instances with New.
type Registry struct {
	mu       sync.RWMutex
	handlers map[coordinate]Handler
	logger   zerolog.Logger
}

// New creates an empty registry.
func New(logger zerolog.Logger) *Registry {
	return &Registry{
		handlers: make(map[coordinate]Handler),
		logger:   logger,
	}
}

// Register binds a handler to a coordinate, replacing any previous binding.
func (r *Registry) Register(collection, module, operation string, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[coordinate{collection, module, operation}] = handler
}

// Call dispatches to the handler registered for the coordinate.
func (r *Registry) Call(
	ctx context.Context,
	collection, module, operation string,
	args []engine.Value,
	kwargs map[string]engine.Value,
) (engine.Value, error) {
	coord := coordinate{collection, module, operation}

	r.mu.RLock()
	handler, ok := r.handlers[coord]
	r.mu.RUnlock()

	if !ok {
		return engine.Null(), engine.Errorf(
			engine.ErrCodeTaskPluginNotFound,
			"no plugin registered for %s", coord,
		).WithPlugin(coord.String())
	}

	r.logger.Debug().Str("plugin", coord.String()).Msg("Dispatching plugin call")
	return handler(ctx, args, kwargs)
}

// List returns the registered coordinates as dotted strings, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.handlers))
	for coord := range r.handlers {
		names = append(names, coord.String())
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered handlers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}
