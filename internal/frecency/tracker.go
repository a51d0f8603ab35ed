// Package frecency ranks filter picker options by how often and how
// recently they were chosen.
package frecency

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kyleking/gh-actionboard/internal/cache"
)

// Key is the cache slot holding the picker history.
const Key = "filter_history"

// maxEntries bounds the history kept per picker kind.
const maxEntries = 50

// Tracker persists picker history in a cache store.
type Tracker struct {
	mu    sync.Mutex
	store cache.Store
	now   func() time.Time
	log   *zap.Logger
}

// NewTracker creates a tracker over store.
func NewTracker(store cache.Store, log *zap.Logger) *Tracker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Tracker{store: store, now: time.Now, log: log}
}

func (t *Tracker) load() *History {
	h := NewHistory()
	data, ok, err := t.store.Get(Key)
	if err != nil || !ok {
		return h
	}
	if err := json.Unmarshal(data, h); err != nil {
		t.log.Warn("discarding unreadable picker history", zap.Error(err))
		return NewHistory()
	}
	if h.Entries == nil {
		h.Entries = make(map[string][]Entry)
	}
	return h
}

// Record counts a pick of value under kind. Empty values are ignored.
func (t *Tracker) Record(kind, value string) error {
	if value == "" {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	h := t.load()
	h.Touch(kind, value, now)
	if entries := h.Entries[kind]; len(entries) > maxEntries {
		h.Entries[kind] = prune(entries, now)
	}

	data, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("failed to encode picker history: %w", err)
	}
	return t.store.Set(Key, data)
}

// Rank orders values for the picker of kind.
func (t *Tracker) Rank(kind string, values []string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Rank(values, t.load().Entries[kind], t.now())
}

// prune keeps the maxEntries highest scoring entries, newest first on ties.
func prune(entries []Entry, now time.Time) []Entry {
	out := append([]Entry(nil), entries...)
	sort.SliceStable(out, func(i, j int) bool {
		si, sj := Score(out[i], now), Score(out[j], now)
		if si != sj {
			return si > sj
		}
		return out[i].LastUsedAt.After(out[j].LastUsedAt)
	})
	return out[:maxEntries]
}
