package logs

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/kyleking/gh-actionboard/internal/cache"
)

// KeyPrefix prefixes every cached run log entry.
const KeyPrefix = "run_logs_"

// DefaultTTL is how long completed run logs are kept.
const DefaultTTL = 24 * time.Hour

// RunKey identifies the logs of one run attempt.
func RunKey(repoFullName string, runID int64, attempt int) string {
	return KeyPrefix + repoFullName + "_" + strconv.FormatInt(runID, 10) + "_" + strconv.Itoa(attempt)
}

type cacheEntry struct {
	ExpiresAt time.Time `json:"expiresAt"`
	Logs      *RunLogs  `json:"logs"`
}

// Cache keeps parsed logs of finished runs in a cache.Store.
type Cache struct {
	store cache.Store
	now   func() time.Time
}

// NewCache creates a log cache over store.
func NewCache(store cache.Store) *Cache {
	return &Cache{store: store, now: time.Now}
}

// Put stores logs under key until ttl elapses.
func (c *Cache) Put(key string, logs *RunLogs, ttl time.Duration) error {
	data, err := json.Marshal(cacheEntry{ExpiresAt: c.now().Add(ttl), Logs: logs})
	if err != nil {
		return fmt.Errorf("failed to encode logs: %w", err)
	}
	return c.store.Set(key, data)
}

// Get returns unexpired logs for key.
func (c *Cache) Get(key string) (*RunLogs, bool) {
	data, ok, err := c.store.Get(key)
	if err != nil || !ok {
		return nil, false
	}
	var e cacheEntry
	if err := json.Unmarshal(data, &e); err != nil || e.Logs == nil {
		return nil, false
	}
	if !c.now().Before(e.ExpiresAt) {
		_ = c.store.Clear(key)
		return nil, false
	}
	return e.Logs, true
}

// Prune removes expired and unreadable entries.
func (c *Cache) Prune() error {
	keys, err := c.store.Keys(KeyPrefix)
	if err != nil {
		return err
	}
	var errs []error
	for _, k := range keys {
		if _, ok := c.Get(k); ok {
			continue
		}
		if err := c.store.Clear(k); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Clear removes every cached log entry.
func (c *Cache) Clear() error {
	keys, err := c.store.Keys(KeyPrefix)
	if err != nil {
		return err
	}
	var errs []error
	for _, k := range keys {
		if err := c.store.Clear(k); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
