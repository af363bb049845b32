// Package registry provides the task plugin registry and the built-in
// plugin collections. A Registry maps (collection, module, operation)
// coordinates to handlers and satisfies the engine's plugin caller
// interface. Collections can be native Go handlers, Starlark scripts,
// or WASM modules speaking a JSON-over-linear-memory call ABI.
package registry
