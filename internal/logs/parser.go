package logs

import (
	"bufio"
	"regexp"
	"strings"
	"time"

	"github.com/kyleking/gh-actionboard/internal/github"
)

const (
	groupMarker    = "##[group]"
	endGroupMarker = "##[endgroup]"
)

var (
	isoTimestamp   = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(?:\.\d+)?Z)\s?`)
	clockTimestamp = regexp.MustCompile(`^(\d{2}:\d{2}:\d{2})\s`)
)

// splitTimestamp separates a leading runner timestamp from the line.
func splitTimestamp(line string) (time.Time, string) {
	if m := isoTimestamp.FindStringSubmatch(line); m != nil {
		if ts, err := time.Parse(time.RFC3339Nano, m[1]); err == nil {
			return ts, line[len(m[0]):]
		}
	}
	if m := clockTimestamp.FindStringSubmatch(line); m != nil {
		if ts, err := time.Parse(time.TimeOnly, m[1]); err == nil {
			return ts, line[len(m[0]):]
		}
	}
	return time.Time{}, line
}

// DetectLevel classifies a line by its content.
func DetectLevel(content string) LogLevel {
	lower := strings.ToLower(content)
	switch {
	case strings.HasPrefix(content, "##[error]"),
		strings.Contains(lower, "error"),
		strings.Contains(lower, "failed"),
		strings.Contains(lower, "failure"):
		return LogLevelError
	case strings.HasPrefix(content, "##[warning]"),
		strings.Contains(lower, "warn"):
		return LogLevelWarning
	case strings.Contains(lower, "success"),
		strings.Contains(lower, "complete"),
		strings.Contains(content, "✓"):
		return LogLevelSuccess
	case strings.HasPrefix(content, "##["),
		strings.Contains(content, "Metadata:"),
		strings.Contains(content, "Contents:"):
		return LogLevelDebug
	default:
		return LogLevelInfo
	}
}

// ParseLogOutput splits raw log text into entries.
func ParseLogOutput(raw, stepName string) []LogEntry {
	entries := make([]LogEntry, 0)
	scanner := bufio.NewScanner(strings.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		entries = append(entries, parseLine(strings.TrimSuffix(scanner.Text(), "\r"), stepName))
	}
	return entries
}

func parseLine(line, stepName string) LogEntry {
	ts, content := splitTimestamp(line)
	entry := LogEntry{Timestamp: ts, Content: content, StepName: stepName}
	switch {
	case strings.HasPrefix(content, groupMarker):
		entry.GroupHead = true
		entry.Level = LogLevelInfo
	case strings.HasPrefix(content, endGroupMarker):
		entry.Level = LogLevelDebug
	default:
		entry.Level = DetectLevel(content)
	}
	return entry
}

// SplitJobLogs assigns the lines of a job's log to its steps. A
// "##[group]" header whose title names a later step jumps to it; a "Run "
// header ends a non-empty step. Other groups are nested output and stay with
// the current step, as do lines past the last step.
func SplitJobLogs(job github.Job, raw, workflow string, runID int64, startIndex int, fetchedAt time.Time) []*StepLogs {
	defs := jobSteps(job)
	steps := make([]*StepLogs, len(defs))
	for i, s := range defs {
		steps[i] = &StepLogs{
			StepIndex:  startIndex + i,
			Workflow:   workflow,
			RunID:      runID,
			JobID:      job.ID,
			JobName:    job.Name,
			StepName:   s.Name,
			Status:     s.Status,
			Conclusion: s.Conclusion,
			Entries:    make([]LogEntry, 0),
			FetchedAt:  fetchedAt,
		}
	}

	current := 0
	for _, entry := range ParseLogOutput(raw, "") {
		if entry.GroupHead {
			title := strings.TrimPrefix(entry.Content, groupMarker)
			current = nextStep(defs, current, len(steps[current].Entries) == 0, title)
		}
		entry.StepName = steps[current].StepName
		steps[current].Entries = append(steps[current].Entries, entry)
	}
	return steps
}

// jobSteps returns the steps of job, or a single step named after the job
// when it reports none.
func jobSteps(job github.Job) []github.Step {
	if len(job.Steps) > 0 {
		return job.Steps
	}
	return []github.Step{{Name: job.Name, Status: job.Status, Conclusion: job.Conclusion, Number: 1}}
}

func nextStep(steps []github.Step, current int, empty bool, title string) int {
	for i := current; i < len(steps); i++ {
		if steps[i].Name == title {
			return i
		}
	}
	if strings.HasPrefix(title, "Run ") && !empty && current+1 < len(steps) {
		return current + 1
	}
	return current
}
