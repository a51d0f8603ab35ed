package workflows

import (
	"sort"
	"sync"

	"github.com/kyleking/gh-actionboard/internal/github"
)

// Collection is the shared, deduplicated run list. Every mutation replaces the
// whole slice under the lock, so snapshots handed out are never modified.
type Collection struct {
	mu   sync.RWMutex
	runs []github.WorkflowRun
}

// NewCollection creates an empty collection.
func NewCollection() *Collection {
	return &Collection{}
}

// Snapshot returns the current runs. Callers must not modify the slice.
func (c *Collection) Snapshot() []github.WorkflowRun {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.runs
}

// Len returns the number of runs.
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.runs)
}

// Replace swaps in a new run list, normalized through Merge.
func (c *Collection) Replace(runs []github.WorkflowRun) {
	merged := Merge(nil, runs)
	c.mu.Lock()
	c.runs = merged
	c.mu.Unlock()
}

// Merge folds incoming runs into the collection and returns the new snapshot.
func (c *Collection) Merge(incoming []github.WorkflowRun) []github.WorkflowRun {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(incoming) == 0 {
		return c.runs
	}
	c.runs = Merge(c.runs, incoming)
	return c.runs
}

// Reset empties the collection.
func (c *Collection) Reset() {
	c.mu.Lock()
	c.runs = nil
	c.mu.Unlock()
}

// Get returns the run with the given ID.
func (c *Collection) Get(id int64) (github.WorkflowRun, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, r := range c.runs {
		if r.ID == id {
			return r, true
		}
	}
	return github.WorkflowRun{}, false
}

// Active returns the runs that are queued or in progress.
func (c *Collection) Active() []github.WorkflowRun {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []github.WorkflowRun
	for _, r := range c.runs {
		if r.IsActive() {
			out = append(out, r)
		}
	}
	return out
}

// Repositories returns the distinct repositories present, sorted by full name.
func (c *Collection) Repositories() []github.Repository {
	c.mu.RLock()
	defer c.mu.RUnlock()
	seen := make(map[string]github.Repository)
	for _, r := range c.runs {
		seen[r.Repository.FullName] = r.Repository
	}
	out := make([]github.Repository, 0, len(seen))
	for _, repo := range seen {
		out = append(out, repo)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FullName < out[j].FullName })
	return out
}
