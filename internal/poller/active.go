package poller

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kyleking/gh-actionboard/internal/client"
	"github.com/kyleking/gh-actionboard/internal/github"
)

// DefaultActiveInterval is the period of the active-run poll.
const DefaultActiveInterval = 5 * time.Second

// StatusFetcher fetches the current state of a run conditionally on etag.
type StatusFetcher interface {
	RunStatus(ctx context.Context, owner, repo string, runID int64, etag string) (*client.StatusResult, error)
}

// ActivePoller refreshes queued and in-progress runs.
type ActivePoller struct {
	api    StatusFetcher
	active func() []github.WorkflowRun
	etags  *State[int64]
	limit  int
	log    *zap.Logger
}

// NewActivePoller creates a poller over the runs returned by active, which
// is called at every poll.
func NewActivePoller(api StatusFetcher, active func() []github.WorkflowRun, limit int, log *zap.Logger) *ActivePoller {
	if limit <= 0 {
		limit = DefaultConcurrency
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ActivePoller{api: api, active: active, etags: NewState[int64](), limit: limit, log: log}
}

// State exposes the per-run validators.
func (p *ActivePoller) State() *State[int64] {
	return p.etags
}

// Poll fetches every active run and returns those whose status or
// conclusion changed. With no active runs no request is made.
func (p *ActivePoller) Poll(ctx context.Context) []github.WorkflowRun {
	active := p.active()
	ids := make(map[int64]bool, len(active))
	for _, r := range active {
		ids[r.ID] = true
	}
	p.etags.Retain(func(id int64) bool { return ids[id] })

	if len(active) == 0 {
		return nil
	}

	results := make([]*github.WorkflowRun, len(active))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.limit)

	for i, run := range active {
		g.Go(func() error {
			results[i] = p.pollRun(gctx, run)
			return nil
		})
	}
	_ = g.Wait()

	var changed []github.WorkflowRun
	for _, r := range results {
		if r != nil {
			changed = append(changed, *r)
		}
	}
	return changed
}

func (p *ActivePoller) pollRun(ctx context.Context, run github.WorkflowRun) *github.WorkflowRun {
	res, err := p.api.RunStatus(ctx, run.Repository.Owner, run.Repository.Name, run.ID, p.etags.Get(run.ID).ETag)
	if err != nil {
		if ctx.Err() == nil {
			p.log.Warn("active poll failed", zap.Int64("run", run.ID), zap.Error(err))
		}
		p.etags.Delete(run.ID)
		return nil
	}
	if res.NotModified || res.Run == nil {
		return nil
	}
	if res.ETag != "" {
		p.etags.Set(run.ID, github.Validators{ETag: res.ETag})
	}

	if res.Run.Status == run.Status && res.Run.Conclusion == run.Conclusion {
		return nil
	}
	return res.Run
}
