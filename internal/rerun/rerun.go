// Package rerun re-triggers runs and refreshes them once GitHub has had time
// to register the new attempt.
package rerun

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kyleking/gh-actionboard/internal/api"
	"github.com/kyleking/gh-actionboard/internal/client"
	"github.com/kyleking/gh-actionboard/internal/github"
)

// DefaultDelay is the wait between a re-run request and the status refresh.
const DefaultDelay = 2 * time.Second

// Mode selects which jobs of a run are re-run.
type Mode string

const (
	ModeAll    Mode = api.RerunAll
	ModeFailed Mode = api.RerunFailed
)

var (
	// ErrNotEligible is returned for runs that have not completed.
	ErrNotEligible = errors.New("rerun: only completed runs can be re-run")

	// ErrModeNotOffered is returned when the requested mode is not offered
	// for the run's conclusion.
	ErrModeNotOffered = errors.New("rerun: mode not offered for this run")

	// ErrStopping is returned for re-runs requested while Wait is draining.
	ErrStopping = errors.New("rerun: coordinator is stopping")
)

// Options returns the modes offered for run: none unless it completed,
// failed-then-all for failed or cancelled runs, all otherwise.
func Options(run github.WorkflowRun) []Mode {
	if run.Status != github.StatusCompleted {
		return nil
	}
	if run.IsFailed() {
		return []Mode{ModeFailed, ModeAll}
	}
	return []Mode{ModeAll}
}

// API is the subset of the dashboard client used for re-runs.
type API interface {
	Rerun(ctx context.Context, owner, repo string, runID int64, mode string) error
	RerunJob(ctx context.Context, owner, repo string, jobID int64) error
	RunStatus(ctx context.Context, owner, repo string, runID int64, etag string) (*client.StatusResult, error)
}

// Coordinator issues re-runs and tracks which runs are waiting for their
// refreshed status.
type Coordinator struct {
	api      API
	delay    time.Duration
	onUpdate func(github.WorkflowRun)
	onChange func(runID int64, retrying bool)
	log      *zap.Logger

	mu       sync.Mutex
	retrying map[int64]bool
	waiters  int
	wg       sync.WaitGroup
}

// NewCoordinator creates a coordinator. onUpdate receives the refreshed run
// after a successful re-run; it may be nil.
func NewCoordinator(api API, delay time.Duration, onUpdate func(github.WorkflowRun), log *zap.Logger) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Coordinator{
		api:      api,
		delay:    max(delay, 0),
		onUpdate: onUpdate,
		log:      log,
		retrying: make(map[int64]bool),
	}
}

// OnChange registers a callback fired whenever a run's retrying marker is
// set or cleared.
func (c *Coordinator) OnChange(fn func(runID int64, retrying bool)) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

func (c *Coordinator) mark(id int64, retrying bool) {
	c.mu.Lock()
	if retrying {
		c.retrying[id] = true
	} else {
		delete(c.retrying, id)
	}
	fn := c.onChange
	c.mu.Unlock()
	if fn != nil {
		fn(id, retrying)
	}
}

// IsRetrying reports whether a re-run of id is in flight.
func (c *Coordinator) IsRetrying(id int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.retrying[id]
}

// Rerun re-runs run in the given mode. Ineligible requests fail before any
// network call. After the request is accepted, a background refresh waits
// the settle delay, fetches the run's status and hands it to onUpdate. The
// retrying marker is cleared when the refresh ends, successful or not.
func (c *Coordinator) Rerun(ctx context.Context, run github.WorkflowRun, mode Mode) error {
	offered := Options(run)
	if len(offered) == 0 {
		return ErrNotEligible
	}
	if !slices.Contains(offered, mode) {
		return fmt.Errorf("%w: %s", ErrModeNotOffered, mode)
	}

	if !c.begin() {
		return ErrStopping
	}

	owner, repo := run.Repository.Owner, run.Repository.Name
	c.mark(run.ID, true)
	if err := c.api.Rerun(ctx, owner, repo, run.ID, string(mode)); err != nil {
		c.mark(run.ID, false)
		c.wg.Done()
		c.log.Warn("rerun failed", zap.Int64("run", run.ID), zap.String("mode", string(mode)), zap.Error(err))
		return fmt.Errorf("failed to re-run workflow %d: %w", run.ID, err)
	}
	c.log.Info("rerun requested", zap.Int64("run", run.ID), zap.String("mode", string(mode)))

	go func() {
		defer c.wg.Done()
		defer c.mark(run.ID, false)
		c.refresh(ctx, owner, repo, run.ID)
	}()
	return nil
}

func (c *Coordinator) refresh(ctx context.Context, owner, repo string, runID int64) {
	t := time.NewTimer(c.delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return
	case <-t.C:
	}

	res, err := c.api.RunStatus(ctx, owner, repo, runID, "")
	if err != nil {
		c.log.Warn("failed to refresh re-run status", zap.Int64("run", runID), zap.Error(err))
		return
	}
	if res.Run == nil || ctx.Err() != nil {
		return
	}
	if c.onUpdate != nil {
		c.onUpdate(*res.Run)
	}
}

// RerunJob re-runs a single job. The next poll picks up the new state.
func (c *Coordinator) RerunJob(ctx context.Context, owner, repo string, jobID int64) error {
	if err := c.api.RerunJob(ctx, owner, repo, jobID); err != nil {
		return fmt.Errorf("failed to re-run job %d: %w", jobID, err)
	}
	c.log.Info("job rerun requested", zap.Int64("job", jobID))
	return nil
}

// begin reserves a slot in the wait group, unless a Wait is in progress.
func (c *Coordinator) begin() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.waiters > 0 {
		return false
	}
	c.wg.Add(1)
	return true
}

// Wait blocks until every in-flight re-run and its refresh have finished.
// Re-runs requested meanwhile fail with ErrStopping.
func (c *Coordinator) Wait() {
	c.mu.Lock()
	c.waiters++
	c.mu.Unlock()

	c.wg.Wait()

	c.mu.Lock()
	c.waiters--
	c.mu.Unlock()
}
