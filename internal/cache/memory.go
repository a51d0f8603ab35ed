package cache

import (
	"sort"
	"strings"
	"sync"

	"github.com/kyleking/gh-actionboard/internal/pubsub"
)

// MemoryStore keeps entries for the lifetime of the process. It backs the
// session slot and tests.
type MemoryStore struct {
	*pubsub.Broadcaster[Event]
	mu      sync.RWMutex
	entries map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		Broadcaster: pubsub.New[Event](),
		entries:     make(map[string][]byte),
	}
}

// Get returns a copy of the stored value.
func (s *MemoryStore) Get(key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.entries[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

// Set stores value under key.
func (s *MemoryStore) Set(key string, value []byte) error {
	s.mu.Lock()
	s.entries[key] = append([]byte(nil), value...)
	s.mu.Unlock()
	s.Publish(Event{Key: key, Op: OpSet})
	return nil
}

// Clear removes key.
func (s *MemoryStore) Clear(key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	s.Publish(Event{Key: key, Op: OpClear})
	return nil
}

// Keys lists keys starting with prefix in lexical order.
func (s *MemoryStore) Keys(prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []string
	for k := range s.entries {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}
