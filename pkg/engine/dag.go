package engine

import (
	"fmt"
	"sort"
	"strings"
)

// GraphBuilder derives the execution order for a step graph. It combines
// explicit `dependencies` declarations with implicit edges scanned from the
// unresolved argument specifications, detects cycles, and performs a
// level-based topological sort.
type GraphBuilder struct {
	// steps maps step names to their specifications.
	steps map[string]StepSpec

	// adjacencyList maps step names to their dependents.
	adjacencyList map[string][]string

	// reverseAdjacencyList maps step names to their dependencies.
	reverseAdjacencyList map[string][]string

	// inDegree tracks the number of incoming edges for each step.
	inDegree map[string]int

	// levels maps topological level to the step names at that level.
	levels [][]string
}

// NewGraphBuilder creates a new graph builder.
func NewGraphBuilder() *GraphBuilder {
	return &GraphBuilder{
		steps:                make(map[string]StepSpec),
		adjacencyList:        make(map[string][]string),
		reverseAdjacencyList: make(map[string][]string),
		inDegree:             make(map[string]int),
		levels:               make([][]string, 0),
	}
}

// Order computes a total execution order over the step names of graph,
// consistent with every explicit and implicit dependency edge. The order is
// deterministic for a given input: independent steps within a level are
// sorted by name.
func (b *GraphBuilder) Order(graph map[string]StepSpec) ([]string, error) {
	if len(graph) == 0 {
		return []string{}, nil
	}

	if err := b.initialize(graph); err != nil {
		return nil, err
	}

	if err := b.detectCycles(); err != nil {
		return nil, err
	}

	if err := b.computeLevels(); err != nil {
		return nil, err
	}

	order := make([]string, 0, len(b.steps))
	for _, level := range b.levels {
		order = append(order, level...)
	}
	return order, nil
}

// initialize indexes the steps and builds the adjacency lists from explicit
// dependency declarations and implicit reference edges.
func (b *GraphBuilder) initialize(graph map[string]StepSpec) error {
	for name, spec := range graph {
		b.steps[name] = spec
		b.adjacencyList[name] = make([]string, 0)
		b.reverseAdjacencyList[name] = make([]string, 0)
		b.inDegree[name] = 0
	}

	// Iterate in sorted order so edge insertion order never depends on map
	// iteration.
	names := make([]string, 0, len(graph))
	for name := range graph {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		spec := graph[name]
		seen := make(map[string]bool)

		for _, dep := range spec.Dependencies {
			if _, exists := b.steps[dep]; !exists {
				return Errorf(
					ErrCodeDependencyNotFound,
					"step %q depends on %q, which is not in the graph",
					name, dep,
				).WithStep(name)
			}
			b.addEdge(dep, name, seen)
		}

		// A reference of the form stepName or stepName.outputName implies
		// that the referenced step must have executed first. Reference roots
		// that are not step names resolve against global parameters instead
		// and carry no edge.
		for _, ref := range scanReferences(spec.Raw, nil) {
			if _, exists := b.steps[ref]; exists {
				b.addEdge(ref, name, seen)
			}
		}
	}

	return nil
}

// addEdge records the edge from dependency to dependent once per step.
func (b *GraphBuilder) addEdge(from, to string, seen map[string]bool) {
	if seen[from] {
		return
	}
	seen[from] = true
	b.adjacencyList[from] = append(b.adjacencyList[from], to)
	b.reverseAdjacencyList[to] = append(b.reverseAdjacencyList[to], from)
	b.inDegree[to]++
}

// detectCycles uses depth-first search to find circular dependencies and
// reports the ordered step names on the first cycle found.
func (b *GraphBuilder) detectCycles() error {
	visited := make(map[string]bool)
	recStack := make(map[string]bool)

	names := make([]string, 0, len(b.steps))
	for name := range b.steps {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if visited[name] {
			continue
		}
		if cycle := b.findCycle(name, visited, recStack, nil); cycle != nil {
			return Errorf(
				ErrCodeDependencyCycle,
				"dependency cycle detected: %s",
				strings.Join(cycle, " -> "),
			)
		}
	}

	return nil
}

// findCycle performs the DFS walk; it returns the cycle path when the
// recursion stack is re-entered, or nil.
func (b *GraphBuilder) findCycle(name string, visited, recStack map[string]bool, path []string) []string {
	visited[name] = true
	recStack[name] = true
	path = append(path, name)

	for _, dependent := range b.adjacencyList[name] {
		if !visited[dependent] {
			if cycle := b.findCycle(dependent, visited, recStack, path); cycle != nil {
				return cycle
			}
		} else if recStack[dependent] {
			for i, id := range path {
				if id == dependent {
					return append(append([]string(nil), path[i:]...), dependent)
				}
			}
		}
	}

	recStack[name] = false
	return nil
}

// computeLevels assigns topological levels using Kahn's algorithm. Steps at
// the same level are mutually independent; each level is sorted by name to
// keep runs reproducible.
func (b *GraphBuilder) computeLevels() error {
	inDegree := make(map[string]int, len(b.inDegree))
	for name, degree := range b.inDegree {
		inDegree[name] = degree
	}

	currentLevel := make([]string, 0)
	for name, degree := range inDegree {
		if degree == 0 {
			currentLevel = append(currentLevel, name)
		}
	}

	processed := 0
	for len(currentLevel) > 0 {
		sort.Strings(currentLevel)
		b.levels = append(b.levels, currentLevel)
		processed += len(currentLevel)

		nextLevel := make([]string, 0)
		for _, name := range currentLevel {
			for _, dependent := range b.adjacencyList[name] {
				inDegree[dependent]--
				if inDegree[dependent] == 0 {
					nextLevel = append(nextLevel, dependent)
				}
			}
		}
		currentLevel = nextLevel
	}

	// Unreachable once detectCycles has passed.
	if processed != len(b.steps) {
		return Errorf(ErrCodeDependencyCycle, "failed to order all steps: possible cycle")
	}

	return nil
}

// Levels returns the computed topological levels. Steps within one level
// have no dependency relationship with each other.
func (b *GraphBuilder) Levels() [][]string {
	return b.levels
}

// Dependencies returns the combined explicit and implicit dependencies of a
// step, in edge-insertion order.
func (b *GraphBuilder) Dependencies(step string) []string {
	return b.reverseAdjacencyList[step]
}

// ToDOT renders the dependency graph in DOT format for Graphviz tools,
// grouping steps by topological level.
func (b *GraphBuilder) ToDOT() string {
	var sb strings.Builder

	sb.WriteString("digraph TaskGraph {\n")
	sb.WriteString("  rankdir=TB;\n")
	sb.WriteString("  node [shape=box, style=rounded];\n\n")

	for level, names := range b.levels {
		sb.WriteString(fmt.Sprintf("  subgraph cluster_level_%d {\n", level))
		sb.WriteString(fmt.Sprintf("    label=\"Level %d\";\n", level))
		sb.WriteString("    style=dashed;\n")
		for _, name := range names {
			sb.WriteString(fmt.Sprintf("    %q;\n", name))
		}
		sb.WriteString("  }\n\n")
	}

	names := make([]string, 0, len(b.steps))
	for name := range b.steps {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		for _, dep := range b.reverseAdjacencyList[name] {
			sb.WriteString(fmt.Sprintf("  %q -> %q;\n", dep, name))
		}
	}

	sb.WriteString("}\n")
	return sb.String()
}
