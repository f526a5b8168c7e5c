// Copyright 2025 Certen Protocol
//
// Per-Call State Store
//
// One mutex, short critical sections: every transition takes the lock,
// writes the state wholesale, and releases. Entries expire after a TTL and
// are deleted lazily on the next access.

package proof

import (
	"log"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// DefaultTTL keeps results available for polling for an hour.
const DefaultTTL = time.Hour

type entry struct {
	state     State
	updatedAt time.Time
}

// Store holds per-call orchestrator state.
type Store struct {
	mu      sync.Mutex
	entries map[common.Hash]*entry
	ttl     time.Duration
	now     func() time.Time

	// onTerminal, when set, observes every transition into a terminal
	// state. It runs outside the lock.
	onTerminal func(common.Hash, State)
}

// OnTerminal installs the terminal-state observer (e.g. the archive
// repository).
func (s *Store) OnTerminal(fn func(common.Hash, State)) {
	s.onTerminal = fn
}

// NewStore builds a store; ttl <= 0 selects the default.
func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		entries: make(map[common.Hash]*entry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// SetState transitions the call to state. Backwards transitions and writes
// over a terminal state are rejected: the lattice only moves forward.
func (s *Store) SetState(hash common.Hash, state State) bool {
	s.mu.Lock()
	existing, ok := s.entries[hash]
	if ok {
		if existing.state.Kind.Terminal() {
			s.mu.Unlock()
			log.Printf("[proof] dropping transition %s -> %s for %x: state is terminal", existing.state.Kind, state.Kind, hash)
			return false
		}
		if stateRank[state.Kind] < stateRank[existing.state.Kind] {
			s.mu.Unlock()
			log.Printf("[proof] dropping backwards transition %s -> %s for %x", existing.state.Kind, state.Kind, hash)
			return false
		}
	}
	s.entries[hash] = &entry{state: state, updatedAt: s.now()}
	observer := s.onTerminal
	s.mu.Unlock()

	if observer != nil && state.Kind.Terminal() {
		observer(hash, state)
	}
	return true
}

// Get returns the call's state. Expired entries are removed on access.
func (s *Store) Get(hash common.Hash) (State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[hash]
	if !ok {
		return State{}, false
	}
	if s.now().Sub(e.updatedAt) > s.ttl {
		delete(s.entries, hash)
		return State{}, false
	}
	return e.state, true
}

// Contains reports whether the call is known and unexpired.
func (s *Store) Contains(hash common.Hash) bool {
	_, ok := s.Get(hash)
	return ok
}
