package poller

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kyleking/gh-actionboard/internal/client"
	"github.com/kyleking/gh-actionboard/internal/github"
)

const (
	// DefaultSyncInterval is the repository sync period.
	DefaultSyncInterval = 15 * time.Second

	// DefaultConcurrency bounds in-flight requests per poll.
	DefaultConcurrency = 8
)

// Syncer fetches a repository's recently updated runs conditionally.
type Syncer interface {
	SyncRepo(ctx context.Context, owner, repo string, v github.Validators) (*client.SyncResult, error)
}

// SyncPoller reconciles every known repository with the server.
type SyncPoller struct {
	api   Syncer
	repos func() []github.Repository
	state *State[string]
	limit int
	log   *zap.Logger
}

// NewSyncPoller creates a poller over the repositories returned by repos,
// which is called at every poll.
func NewSyncPoller(api Syncer, repos func() []github.Repository, limit int, log *zap.Logger) *SyncPoller {
	if limit <= 0 {
		limit = DefaultConcurrency
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &SyncPoller{api: api, repos: repos, state: NewState[string](), limit: limit, log: log}
}

// State exposes the per-repository validators.
func (p *SyncPoller) State() *State[string] {
	return p.state
}

// Poll syncs every repository and returns the runs that came back. Repos
// answering 304, a non-success status or an empty list contribute nothing.
// A failed request is logged, its validators are cleared and the repo is
// skipped.
func (p *SyncPoller) Poll(ctx context.Context) []github.WorkflowRun {
	repos := p.repos()
	if len(repos) == 0 {
		return nil
	}

	results := make([][]github.WorkflowRun, len(repos))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.limit)

	for i, repo := range repos {
		g.Go(func() error {
			results[i] = p.syncRepo(gctx, repo)
			return nil
		})
	}
	_ = g.Wait()

	var runs []github.WorkflowRun
	for _, r := range results {
		runs = append(runs, r...)
	}
	return runs
}

func (p *SyncPoller) syncRepo(ctx context.Context, repo github.Repository) []github.WorkflowRun {
	key := repo.FullName
	res, err := p.api.SyncRepo(ctx, repo.Owner, repo.Name, p.state.Get(key))
	if err != nil {
		var apiErr *client.APIError
		if errors.As(err, &apiErr) {
			p.log.Debug("sync skipped", zap.String("repo", key), zap.Int("status", apiErr.StatusCode))
			return nil
		}
		if ctx.Err() == nil {
			p.log.Warn("sync failed", zap.String("repo", key), zap.Error(err))
		}
		p.state.Delete(key)
		return nil
	}
	if res.NotModified {
		return nil
	}

	if !res.Validators.IsZero() {
		p.state.Set(key, res.Validators)
	}
	if len(res.Runs) == 0 {
		return nil
	}
	return res.Runs
}
