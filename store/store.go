// Package store holds the stub primes an operator (or the engine itself)
// registers, and answers the connection engine's "what should I say back"
// lookups. It knows nothing about the wire codec: requests and responses
// cross its boundary as Request/ResponseSpec values built and consumed by
// package transport.
package store

import (
	"sync"

	"github.com/bjmb/simulacron-go/topology"
)

// Store is a concurrent, append-mostly collection of Primes. Find observes
// a consistent snapshot of the primes registered at call time.
type Store struct {
	mu      sync.RWMutex
	nextID  uint64
	primes  []*Prime
}

// New creates an empty Store.
func New() *Store {
	return &Store{}
}

// Add registers prime under scope, returning the assigned Prime. Internal
// primes (auto-prepares, system tables) are tagged so Clear can skip them.
func (s *Store) Add(scope Selector, matcher Matcher, then []Action, internal bool) *Prime {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	p := &Prime{
		ID:       s.nextID,
		Scope:    scope,
		Matcher:  matcher,
		Then:     then,
		Internal: internal,
	}
	s.primes = append(s.primes, p)
	return p
}

// Find returns the first Prime visible to node whose Matcher accepts req,
// in registration order, and true. If none matches, it returns (nil,
// false).
func (s *Store) Find(node topology.NodeRef, req Request) (*Prime, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.primes {
		if !p.Scope.Contains(node) {
			continue
		}
		if p.Matcher.Accepts(req) {
			return p, true
		}
	}
	return nil, false
}

// Clear removes every user (non-internal) prime visible under scope whose
// Matcher.Kind equals kind, or every kind if kind is nil. It returns the
// count removed; internal primes are never touched.
func (s *Store) Clear(scope Selector, kind *Kind) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.primes[:0]
	removed := 0
	for _, p := range s.primes {
		matchesScope := scopeOverlap(scope, p.Scope)
		matchesKind := kind == nil || p.Matcher.Kind == *kind
		if !p.Internal && matchesScope && matchesKind {
			removed++
			continue
		}
		kept = append(kept, p)
	}
	s.primes = kept
	return removed
}

// scopeOverlap reports whether a prime registered under primeScope should
// be cleared by a command issued against cmdScope: every axis the command
// pins must agree with the prime's pinned value on that axis (a prime
// scoped wider than the command, or to the same or a narrower target,
// is cleared; a prime scoped to an unrelated sibling is not).
func scopeOverlap(cmdScope, primeScope Selector) bool {
	if cmdScope.ClusterID != nil && primeScope.ClusterID != nil && *cmdScope.ClusterID != *primeScope.ClusterID {
		return false
	}
	if cmdScope.DataCenterID != nil && primeScope.DataCenterID != nil && *cmdScope.DataCenterID != *primeScope.DataCenterID {
		return false
	}
	if cmdScope.NodeID != nil && primeScope.NodeID != nil && *cmdScope.NodeID != *primeScope.NodeID {
		return false
	}
	return true
}
