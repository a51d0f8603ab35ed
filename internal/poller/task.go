package poller

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Every calls fn immediately and then on every tick until ctx is done.
func Every(ctx context.Context, interval time.Duration, fn func(context.Context)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	fn(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			fn(ctx)
		}
	}
}

// Task runs a function on a fixed schedule in its own goroutine and can be
// started and stopped repeatedly.
type Task struct {
	name     string
	interval time.Duration
	fn       func(context.Context)
	log      *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewTask creates a stopped task.
func NewTask(name string, interval time.Duration, fn func(context.Context), log *zap.Logger) *Task {
	if log == nil {
		log = zap.NewNop()
	}
	return &Task{name: name, interval: interval, fn: fn, log: log}
}

// Start runs the task under ctx. It reports false if the task was already
// running.
func (t *Task) Start(ctx context.Context) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		return false
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	t.cancel = cancel
	t.done = done

	t.log.Debug("poller started", zap.String("task", t.name), zap.Duration("interval", t.interval))
	go func() {
		defer close(done)
		_ = Every(ctx, t.interval, t.fn)
	}()
	return true
}

// Stop cancels the task and waits for the current run to return.
func (t *Task) Stop() {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel, t.done = nil, nil
	t.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	t.log.Debug("poller stopped", zap.String("task", t.name))
}
