package logs

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kyleking/gh-actionboard/internal/github"
	"github.com/kyleking/gh-actionboard/internal/testparse"
)

// Source is the part of the dashboard client the fetcher needs.
type Source interface {
	RunDetails(ctx context.Context, owner, repo string, runID int64, attempt int) (*github.RunDetails, error)
	JobLogs(ctx context.Context, owner, repo string, jobID int64) (string, error)
}

const jobConcurrency = 4

// Fetcher downloads and parses the job logs of a run attempt.
type Fetcher struct {
	source Source
	cache  *Cache
	ttl    time.Duration
	log    *zap.Logger
	now    func() time.Time
}

// NewFetcher creates a fetcher. cache may be nil.
func NewFetcher(source Source, cache *Cache, log *zap.Logger) *Fetcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Fetcher{source: source, cache: cache, ttl: DefaultTTL, log: log, now: time.Now}
}

// Details loads one attempt of run with its jobs. attempt 0 is the latest
// attempt.
func (f *Fetcher) Details(ctx context.Context, run github.WorkflowRun, attempt int) (*github.RunDetails, error) {
	details, err := f.source.RunDetails(ctx, run.Repository.Owner, run.Repository.Name, run.ID, attempt)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch run details: %w", err)
	}
	return details, nil
}

// Fetch loads the details of a run attempt and then its logs. attempt 0 is
// the latest attempt.
func (f *Fetcher) Fetch(ctx context.Context, run github.WorkflowRun, attempt int) (*github.RunDetails, *RunLogs, error) {
	details, err := f.Details(ctx, run, attempt)
	if err != nil {
		return nil, nil, err
	}
	logs, err := f.FetchLogs(ctx, details)
	if err != nil {
		return details, nil, err
	}
	return details, logs, nil
}

// FetchLogs downloads every job log of details. A job whose log cannot be
// downloaded yields steps carrying the error; the other jobs still load.
// Logs of completed attempts are served from and written to the cache.
func (f *Fetcher) FetchLogs(ctx context.Context, details *github.RunDetails) (*RunLogs, error) {
	key := RunKey(details.Repository.FullName, details.ID, details.CurrentAttempt)
	completed := details.Status == github.StatusCompleted
	if completed && f.cache != nil {
		if cached, ok := f.cache.Get(key); ok {
			return cached, nil
		}
	}

	fetchedAt := f.now()
	raw := make([]string, len(details.Jobs))
	errs := make([]error, len(details.Jobs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(jobConcurrency)
	for i, job := range details.Jobs {
		g.Go(func() error {
			text, err := f.source.JobLogs(gctx, details.Repository.Owner, details.Repository.Name, job.ID)
			if err != nil {
				f.log.Debug("job logs unavailable", zap.Int64("job", job.ID), zap.Error(err))
				errs[i] = err
				return nil
			}
			raw[i] = text
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	logs := NewRunLogs(details.Name, details.Branch)
	logs.FetchedAt = fetchedAt
	index := 0
	for i, job := range details.Jobs {
		if errs[i] != nil {
			for _, step := range jobSteps(job) {
				logs.AddStep(&StepLogs{
					StepIndex:  index,
					Workflow:   details.Name,
					RunID:      details.ID,
					JobID:      job.ID,
					JobName:    job.Name,
					StepName:   step.Name,
					Status:     step.Status,
					Conclusion: step.Conclusion,
					Error:      errs[i],
					FetchedAt:  fetchedAt,
				})
				index++
			}
			continue
		}

		steps := SplitJobLogs(job, raw[i], details.Name, details.ID, index, fetchedAt)
		for _, s := range steps {
			logs.AddStep(s)
		}
		index += len(steps)

		if result := testparse.Parse(plainText(steps)); result != nil {
			logs.Tests[job.ID] = result
		}
	}

	if completed && f.cache != nil && !logs.HasErrors() {
		if err := f.cache.Put(key, logs, f.ttl); err != nil {
			f.log.Warn("failed to cache run logs", zap.String("key", key), zap.Error(err))
		}
	}
	return logs, nil
}

// plainText rebuilds a job's log without runner timestamps.
func plainText(steps []*StepLogs) string {
	var b strings.Builder
	for _, s := range steps {
		for _, e := range s.Entries {
			b.WriteString(e.Content)
			b.WriteByte('\n')
		}
	}
	return b.String()
}
