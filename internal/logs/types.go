// Package logs turns raw job logs into per-step entries with levels, and
// filters them for display.
package logs

import (
	"time"

	"github.com/kyleking/gh-actionboard/internal/testparse"
)

// LogLevel classifies a log line.
type LogLevel int

const (
	LogLevelInfo LogLevel = iota
	LogLevelDebug
	LogLevelSuccess
	LogLevelWarning
	LogLevelError
)

func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "debug"
	case LogLevelSuccess:
		return "success"
	case LogLevelWarning:
		return "warning"
	case LogLevelError:
		return "error"
	default:
		return "info"
	}
}

// LogEntry is a single log line.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Content   string    `json:"content"`
	Level     LogLevel  `json:"level"`
	StepName  string    `json:"stepName,omitempty"`
	GroupHead bool      `json:"groupHead,omitempty"`
}

// StepLogs holds the log entries of one job step.
type StepLogs struct {
	StepIndex  int        `json:"stepIndex"`
	Workflow   string     `json:"workflow"`
	RunID      int64      `json:"runId"`
	JobID      int64      `json:"jobId"`
	JobName    string     `json:"jobName"`
	StepName   string     `json:"stepName"`
	Status     string     `json:"status"`
	Conclusion string     `json:"conclusion"`
	Entries    []LogEntry `json:"entries"`
	Error      error      `json:"-"`
	FetchedAt  time.Time  `json:"fetchedAt"`
}

// RunLogs holds the logs of every job of a run attempt.
type RunLogs struct {
	Workflow  string                      `json:"workflow"`
	Branch    string                      `json:"branch"`
	Steps     []*StepLogs                 `json:"steps"`
	Tests     map[int64]*testparse.Result `json:"tests,omitempty"`
	FetchedAt time.Time                   `json:"fetchedAt"`
}

// NewRunLogs creates an empty RunLogs.
func NewRunLogs(workflow, branch string) *RunLogs {
	return &RunLogs{
		Workflow:  workflow,
		Branch:    branch,
		Steps:     make([]*StepLogs, 0),
		Tests:     make(map[int64]*testparse.Result),
		FetchedAt: time.Now(),
	}
}

// AddStep appends step logs.
func (r *RunLogs) AddStep(s *StepLogs) {
	r.Steps = append(r.Steps, s)
}

// TotalEntries counts entries across all steps.
func (r *RunLogs) TotalEntries() int {
	n := 0
	for _, s := range r.Steps {
		n += len(s.Entries)
	}
	return n
}

// HasErrors reports whether any step failed to load.
func (r *RunLogs) HasErrors() bool {
	for _, s := range r.Steps {
		if s.Error != nil {
			return true
		}
	}
	return false
}

// TestSummary folds the per-job test results into one, or nil when no job
// produced any.
func (r *RunLogs) TestSummary() *testparse.Result {
	var sum *testparse.Result
	for _, t := range r.Tests {
		if t == nil {
			continue
		}
		if sum == nil {
			sum = &testparse.Result{Framework: t.Framework, Failures: []testparse.Failure{}}
		}
		sum.Passed += t.Passed
		sum.Failed += t.Failed
		sum.Skipped += t.Skipped
		sum.Total += t.Total
		sum.Failures = append(sum.Failures, t.Failures...)
	}
	return sum
}
