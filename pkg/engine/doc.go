// Package engine implements the task-graph execution core: reference
// resolution, step-argument construction, dependency-graph derivation with
// topological scheduling, global-parameter reconciliation, and the run
// lifecycle with fail-fast error propagation.
//
// The engine consumes an ExperimentDescription together with externally
// supplied global parameter values and executes every step of the graph
// exactly once, in an order consistent with both explicit `dependencies`
// declarations and implicit data-flow references embedded in argument
// specifications. Plugin invocation and tracking-run notifications are
// delegated to the PluginCaller and Tracker interfaces; the engine itself
// keeps no state between runs.
//
// # Execution model
//
//  1. Reconcile - merge the description's parameter specification with the
//     caller-supplied global parameter values (ReconcileGlobalParameters)
//  2. Order - derive the dependency DAG and a deterministic topological
//     order over step names (GraphBuilder)
//  3. Execute - for each step in order, classify its specification, resolve
//     its arguments against globals and prior step outputs, invoke the
//     plugin, and record declared outputs (Runner)
//
// Steps execute strictly one at a time. The only shared mutable state, the
// global-parameter mapping and the step OutputStore, is owned exclusively by
// the single run.
package engine
