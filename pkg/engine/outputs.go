package engine

// OutputStore is the per-run accumulator of step results, keyed by step name
// then output name. Entries are added exactly once, immediately after a
// step's invocation completes, and never mutated or removed; the store is
// discarded at run end.
type OutputStore struct {
	outputs map[string]map[string]Value
}

// NewOutputStore creates an empty output store.
func NewOutputStore() *OutputStore {
	return &OutputStore{outputs: make(map[string]map[string]Value)}
}

// Record stores a step's named outputs. Recording the same step twice is a
// programming error in the Runner and panics rather than silently mutating.
func (s *OutputStore) Record(step string, outputs map[string]Value) {
	if _, exists := s.outputs[step]; exists {
		panic("engine: outputs recorded twice for step " + step)
	}
	s.outputs[step] = outputs
}

// Step returns the recorded outputs for a step and whether the step has
// produced output yet.
func (s *OutputStore) Step(name string) (map[string]Value, bool) {
	outputs, ok := s.outputs[name]
	return outputs, ok
}

// Output returns one named output of a step.
func (s *OutputStore) Output(step, name string) (Value, bool) {
	outputs, ok := s.outputs[step]
	if !ok {
		return Null(), false
	}
	value, ok := outputs[name]
	return value, ok
}

// Len returns the number of steps with recorded outputs.
func (s *OutputStore) Len() int {
	return len(s.outputs)
}
