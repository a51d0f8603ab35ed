// Package testparse extracts test summaries from CI job logs.
package testparse

import (
	"strconv"
	"strings"
)

// Framework identifies the test runner a summary was read from.
type Framework string

const (
	FrameworkPytest Framework = "pytest"
	FrameworkJest   Framework = "jest"
	FrameworkJUnit  Framework = "junit"
)

// Result is a parsed test summary.
type Result struct {
	Framework Framework `json:"framework"`
	Passed    int       `json:"passed"`
	Failed    int       `json:"failed"`
	Skipped   int       `json:"skipped"`
	Total     int       `json:"total"`
	Duration  string    `json:"duration,omitempty"`
	Failures  []Failure `json:"failures"`
}

// Failure is a single failed test.
type Failure struct {
	TestName     string `json:"testName"`
	TestFile     string `json:"testFile,omitempty"`
	ErrorMessage string `json:"errorMessage"`
	StackTrace   string `json:"stackTrace,omitempty"`
	Line         int    `json:"line,omitempty"`
}

// Parser recognizes and parses the output of one test runner.
type Parser interface {
	Detect(logs string) bool
	Parse(logs string) *Result
}

// Parsers are tried in order by Parse.
var Parsers = []Parser{Pytest{}, Jest{}, JUnit{}}

// Parse returns the summary from the first parser that detects and parses
// logs, or nil when none does.
func Parse(logs string) *Result {
	for _, p := range Parsers {
		if !p.Detect(logs) {
			continue
		}
		if r := p.Parse(logs); r != nil {
			return r
		}
	}
	return nil
}

// failureBuilder accumulates the failure currently being read.
type failureBuilder struct {
	current  *Failure
	errLines []string
	failures []Failure
}

func (b *failureBuilder) start(f Failure) {
	b.flush()
	b.current = &f
	b.errLines = nil
}

func (b *failureBuilder) flush() {
	if b.current == nil || b.current.TestName == "" {
		b.current = nil
		b.errLines = nil
		return
	}
	f := *b.current
	if f.ErrorMessage == "" {
		f.ErrorMessage = "Test failed"
	}
	f.StackTrace = strings.Join(b.errLines, "\n")
	b.failures = append(b.failures, f)
	b.current = nil
	b.errLines = nil
}

func (b *failureBuilder) result(fw Framework, passed, failed, skipped int, duration string) *Result {
	b.flush()
	total := passed + failed + skipped
	if total == 0 && len(b.failures) == 0 {
		return nil
	}
	failures := b.failures
	if failures == nil {
		failures = []Failure{}
	}
	return &Result{
		Framework: fw,
		Passed:    passed,
		Failed:    failed,
		Skipped:   skipped,
		Total:     total,
		Duration:  duration,
		Failures:  failures,
	}
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
