// Package poller keeps the collection fresh with conditional requests: a
// per-repository sync and a tight loop over active runs.
package poller

import (
	"sync"

	"github.com/kyleking/gh-actionboard/internal/github"
)

// State holds conditional request validators per key. It lives in memory
// only.
type State[K comparable] struct {
	mu sync.RWMutex
	m  map[K]github.Validators
}

// NewState creates an empty validator store.
func NewState[K comparable]() *State[K] {
	return &State[K]{m: make(map[K]github.Validators)}
}

// Get returns the validators stored for key, or the zero value.
func (s *State[K]) Get(key K) github.Validators {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.m[key]
}

// Set stores v for key. A zero v removes the key.
func (s *State[K]) Set(key K, v github.Validators) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v.IsZero() {
		delete(s.m, key)
		return
	}
	s.m[key] = v
}

// Delete removes key.
func (s *State[K]) Delete(key K) {
	s.mu.Lock()
	delete(s.m, key)
	s.mu.Unlock()
}

// Retain drops every key for which keep returns false.
func (s *State[K]) Retain(keep func(K) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.m {
		if !keep(k) {
			delete(s.m, k)
		}
	}
}

// Reset removes every key.
func (s *State[K]) Reset() {
	s.mu.Lock()
	s.m = make(map[K]github.Validators)
	s.mu.Unlock()
}

// Len returns the number of keys with validators.
func (s *State[K]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}
