package batch

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kyleking/gh-actionboard/internal/api"
)

// DefaultDelay is the pause between consecutive batch requests.
const DefaultDelay = 3 * time.Second

// Fetcher retrieves the runs created inside one date range.
type Fetcher interface {
	FetchBatch(ctx context.Context, batchID, dateFrom, dateTo string) (*api.BatchResponse, error)
}

// Result is the outcome of one window. Err is set when the fetch failed;
// the window should be retried on the next load.
type Result struct {
	Window   Window
	Index    int
	DateFrom string
	DateTo   string
	Response *api.BatchResponse
	Err      error
}

// Loader fetches windows one after another with a fixed delay between them.
type Loader struct {
	fetcher Fetcher
	delay   time.Duration
	now     func() time.Time
	log     *zap.Logger
}

// NewLoader creates a loader. A negative delay is treated as zero.
func NewLoader(fetcher Fetcher, delay time.Duration, log *zap.Logger) *Loader {
	if log == nil {
		log = zap.NewNop()
	}
	return &Loader{fetcher: fetcher, delay: max(delay, 0), now: time.Now, log: log}
}

// Run fetches each window in order and hands every result to onResult before
// moving on. There is no delay after the last window. Run stops early and
// returns the context error when ctx is cancelled; a result whose fetch
// finished after cancellation is not delivered.
func (l *Loader) Run(ctx context.Context, windows []Window, onResult func(Result)) error {
	for i, w := range windows {
		if err := ctx.Err(); err != nil {
			return err
		}

		from, to := Range(l.now(), w)
		resp, err := l.fetcher.FetchBatch(ctx, w.ID, from, to)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			l.log.Warn("batch load failed",
				zap.String("batch", w.ID), zap.String("from", from), zap.String("to", to), zap.Error(err))
			err = fmt.Errorf("failed to load workflows from %s: %w", w.ID, err)
		} else {
			l.log.Debug("batch loaded",
				zap.String("batch", w.ID), zap.Int("workflows", resp.WorkflowCount))
		}

		onResult(Result{Window: w, Index: i, DateFrom: from, DateTo: to, Response: resp, Err: err})

		if i < len(windows)-1 && l.delay > 0 {
			t := time.NewTimer(l.delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}
	}
	return nil
}
