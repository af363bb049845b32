// Package config loads declarative experiment descriptions from YAML.
// Loading runs a three-stage validation pipeline: struct-tag validation,
// CUE schema unification against the embedded experiment schema, and
// engine-level static checks, before producing the engine's description
// types.
package config
