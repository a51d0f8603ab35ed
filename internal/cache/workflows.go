package cache

import (
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kyleking/gh-actionboard/internal/github"
)

const (
	// Version is the persisted layout version. Entries with any other
	// version are discarded on load.
	Version = "2.0"

	// KeyPrefix prefixes every per-user workflow entry.
	KeyPrefix = "workflows_cache"
)

// Key returns the workflow cache key for a user.
func Key(username string) string {
	return KeyPrefix + "_" + username
}

// BatchMetadata records a successfully loaded batch.
type BatchMetadata struct {
	DateFrom      string `json:"dateFrom"`
	DateTo        string `json:"dateTo"`
	LoadedAt      int64  `json:"loadedAt"`
	WorkflowCount int    `json:"workflowCount"`
}

// Snapshot is the persisted form of a user's collection.
type Snapshot struct {
	Version   string                   `json:"version"`
	Data      []github.WorkflowRun     `json:"data"`
	Timestamp int64                    `json:"timestamp"`
	Batches   map[string]BatchMetadata `json:"batches"`
}

// WorkflowCache saves and loads per-user snapshots in a Store.
type WorkflowCache struct {
	store Store
	now   func() time.Time
	log   *zap.Logger
}

// NewWorkflowCache creates a workflow cache over store.
func NewWorkflowCache(store Store, log *zap.Logger) *WorkflowCache {
	if log == nil {
		log = zap.NewNop()
	}
	return &WorkflowCache{store: store, now: time.Now, log: log}
}

// Save overwrites the user's snapshot.
func (c *WorkflowCache) Save(username string, runs []github.WorkflowRun, batches map[string]BatchMetadata) error {
	if batches == nil {
		batches = map[string]BatchMetadata{}
	}
	if runs == nil {
		runs = []github.WorkflowRun{}
	}
	data, err := json.Marshal(Snapshot{
		Version:   Version,
		Data:      runs,
		Timestamp: c.now().UnixMilli(),
		Batches:   batches,
	})
	if err != nil {
		return fmt.Errorf("failed to encode workflow cache: %w", err)
	}
	return c.store.Set(Key(username), data)
}

// Load returns the user's snapshot. Unreadable entries count as a miss and
// entries with a different version are deleted.
func (c *WorkflowCache) Load(username string) (*Snapshot, bool) {
	key := Key(username)
	data, ok, err := c.store.Get(key)
	if err != nil {
		c.log.Warn("failed to read workflow cache", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		c.log.Warn("discarding unreadable workflow cache", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if snap.Version != Version {
		c.log.Info("discarding workflow cache with old version",
			zap.String("key", key), zap.String("version", snap.Version))
		if err := c.store.Clear(key); err != nil {
			c.log.Warn("failed to clear stale workflow cache", zap.Error(err))
		}
		return nil, false
	}
	if snap.Batches == nil {
		snap.Batches = map[string]BatchMetadata{}
	}
	return &snap, true
}

// Clear deletes the user's snapshot.
func (c *WorkflowCache) Clear(username string) error {
	return c.store.Clear(Key(username))
}
