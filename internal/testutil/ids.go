// Package testutil provides deterministic helpers shared by package tests.
package testutil

import (
	"fmt"
	"sync"
)

// SeqIDs hands out a deterministic sequence of identifiers so tests can
// construct atoms and refs with predictable, greppable UUIDs.
//
// Safe for concurrent use.
type SeqIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSeqIDs creates a generator. The first call to Next returns
// "<prefix>-000001".
func NewSeqIDs(prefix string) *SeqIDs {
	if prefix == "" {
		prefix = "test"
	}
	return &SeqIDs{prefix: prefix}
}

// Next returns the next identifier in the sequence.
func (s *SeqIDs) Next() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("%s-%06d", s.prefix, s.n)
}

// Current returns the most recently issued identifier without advancing,
// or the empty string if none has been issued.
func (s *SeqIDs) Current() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.n == 0 {
		return ""
	}
	return fmt.Sprintf("%s-%06d", s.prefix, s.n)
}

// Reset rewinds the sequence so a scenario can run twice with identical ids.
func (s *SeqIDs) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n = 0
}
