package transform

// cascadeScope tracks one mutation's cascade: which transforms have already
// executed and how deep the chain has gone.
//
// A cascade revisiting a transform it already executed means the dependency
// graph is cyclic for this mutation; execution aborts with CycleDetected
// instead of recursing unboundedly. The depth bound is a backstop for
// non-repeating but pathologically long chains.
//
// Scopes are per-cascade and single-goroutine: cascades execute
// synchronously within the triggering call chain, so no locking is needed.
type cascadeScope struct {
	visited  map[string]bool
	depth    int
	maxDepth int
}

func newCascadeScope(maxDepth int) *cascadeScope {
	return &cascadeScope{
		visited:  make(map[string]bool),
		maxDepth: maxDepth,
	}
}

// wouldCycle reports whether executing id now would revisit it.
func (s *cascadeScope) wouldCycle(id string) bool {
	return s.visited[id]
}

// record marks id as executed within this cascade.
func (s *cascadeScope) record(id string) {
	s.visited[id] = true
}

// exceeded reports whether the depth bound has been hit.
func (s *cascadeScope) exceeded() bool {
	return s.depth >= s.maxDepth
}
