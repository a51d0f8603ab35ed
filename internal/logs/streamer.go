package logs

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kyleking/gh-actionboard/internal/github"
	"github.com/kyleking/gh-actionboard/internal/poller"
)

// DefaultStreamInterval is the log refresh interval for in-progress runs.
const DefaultStreamInterval = 5 * time.Second

// StreamState records how many lines of each step were already delivered.
type StreamState struct {
	StepLineCounts map[int]int
}

// NewStreamState creates an empty state.
func NewStreamState() *StreamState {
	return &StreamState{StepLineCounts: make(map[int]int)}
}

// StreamUpdate carries the lines added since the previous update.
type StreamUpdate struct {
	RunID    int64
	NewSteps []*StepLogs
	Logs     *RunLogs
	Details  *github.RunDetails
	Done     bool
	Err      error
}

// LogStreamer refreshes the logs of an in-progress run until it completes.
type LogStreamer struct {
	fetcher  *Fetcher
	run      github.WorkflowRun
	runID    int64
	workflow string
	state    *StreamState
	updates  chan StreamUpdate
	task     *poller.Task
	log      *zap.Logger

	mu        sync.Mutex
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// NewLogStreamer creates a stopped streamer for run.
func NewLogStreamer(fetcher *Fetcher, run github.WorkflowRun, interval time.Duration, log *zap.Logger) *LogStreamer {
	if interval <= 0 {
		interval = DefaultStreamInterval
	}
	if log == nil {
		log = zap.NewNop()
	}
	s := &LogStreamer{
		fetcher:  fetcher,
		run:      run,
		runID:    run.ID,
		workflow: run.Name,
		state:    NewStreamState(),
		updates:  make(chan StreamUpdate, 4),
		log:      log,
	}
	s.task = poller.NewTask("logs", interval, s.poll, log)
	return s
}

// Updates delivers new lines. It is closed by Stop.
func (s *LogStreamer) Updates() <-chan StreamUpdate {
	return s.updates
}

// Start begins polling. The streamer stops itself after the update that
// reports the run as completed.
func (s *LogStreamer) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.task.Start(ctx)
}

// Stop halts polling and closes Updates.
func (s *LogStreamer) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
	s.task.Stop()
	s.closeOnce.Do(func() { close(s.updates) })
}

func (s *LogStreamer) poll(ctx context.Context) {
	details, logs, err := s.fetcher.Fetch(ctx, s.run, 0)
	if ctx.Err() != nil {
		return
	}
	update := StreamUpdate{RunID: s.runID, Details: details, Err: err}
	if err == nil {
		update.Logs = logs
		update.NewSteps = s.detectNewLogs(logs.Steps)
		update.Done = details.Status == github.StatusCompleted
	} else {
		s.log.Debug("log refresh failed", zap.Int64("run", s.runID), zap.Error(err))
	}

	select {
	case s.updates <- update:
	case <-ctx.Done():
		return
	}

	if update.Done {
		s.mu.Lock()
		s.cancel()
		s.mu.Unlock()
	}
}

// detectNewLogs returns, per step, the entries added since the last call.
// A step whose log shrank is delivered again in full.
func (s *LogStreamer) detectNewLogs(current []*StepLogs) []*StepLogs {
	fresh := make([]*StepLogs, 0)
	for _, step := range current {
		last := s.state.StepLineCounts[step.StepIndex]
		n := len(step.Entries)
		if n < last {
			last = 0
		}
		if n > last {
			cp := *step
			cp.Entries = step.Entries[last:]
			fresh = append(fresh, &cp)
		}
		s.state.StepLineCounts[step.StepIndex] = n
	}
	return fresh
}
