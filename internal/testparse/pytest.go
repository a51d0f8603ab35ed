package testparse

import (
	"regexp"
	"strings"
)

var (
	pytestCounts     = regexp.MustCompile(`\d+ failed.*\d+ passed`)
	pytestNodeID     = regexp.MustCompile(`\.py::\w+::\w+`)
	pytestFailedN    = regexp.MustCompile(`(\d+)\s+failed`)
	pytestPassedN    = regexp.MustCompile(`(\d+)\s+passed`)
	pytestSkippedN   = regexp.MustCompile(`(\d+)\s+skipped`)
	pytestDuration   = regexp.MustCompile(`(?i)in\s+([\d.]+\s*[a-z]+)`)
	pytestFailedLine = regexp.MustCompile(`FAILED\s+([\w/.]+\.py)::([\w:]+)\s*-?\s*(.*)`)
	pytestLocation   = regexp.MustCompile(`([\w/.]+\.py):(\d+):\s*in\s+(\w+)`)
)

// Pytest parses pytest output.
type Pytest struct{}

func (Pytest) Detect(logs string) bool {
	return strings.Contains(logs, "pytest") ||
		strings.Contains(logs, "=== FAILURES ===") ||
		strings.Contains(logs, "=== short test summary info ===") ||
		pytestCounts.MatchString(logs) ||
		pytestNodeID.MatchString(logs)
}

func (Pytest) Parse(logs string) *Result {
	var (
		passed, failed, skipped int
		duration                string
		b                       failureBuilder
		inFailures              bool
	)

	for _, line := range strings.Split(logs, "\n") {
		// Summary: "=== 1 failed, 7 passed in 0.03s ==="
		if strings.Contains(line, "===") &&
			(strings.Contains(line, "failed") || strings.Contains(line, "passed") || strings.Contains(line, "skipped")) {
			if m := pytestFailedN.FindStringSubmatch(line); m != nil {
				failed = atoi(m[1])
			}
			if m := pytestPassedN.FindStringSubmatch(line); m != nil {
				passed = atoi(m[1])
			}
			if m := pytestSkippedN.FindStringSubmatch(line); m != nil {
				skipped = atoi(m[1])
			}
			if m := pytestDuration.FindStringSubmatch(line); m != nil {
				duration = m[1]
			}
		}
	}

	for _, line := range strings.Split(logs, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.Contains(line, "=== FAILURES ==="):
			inFailures = true
			continue
		case strings.Contains(line, "=== short test summary info ==="):
			inFailures = false
			b.flush()
			continue
		}

		if m := pytestFailedLine.FindStringSubmatch(line); m != nil {
			b.start(Failure{TestFile: m[1], TestName: m[2], ErrorMessage: m[3]})
			continue
		}
		if m := pytestLocation.FindStringSubmatch(line); m != nil && b.current != nil {
			b.current.TestFile = m[1]
			b.current.Line = atoi(m[2])
			b.current.TestName = m[3]
			continue
		}
		if !inFailures {
			continue
		}
		if strings.HasPrefix(trimmed, "E   ") {
			b.errLines = append(b.errLines, trimmed[4:])
			continue
		}
		if strings.HasPrefix(trimmed, "assert ") {
			if b.current != nil {
				b.current.ErrorMessage = trimmed
			}
			b.errLines = append(b.errLines, trimmed)
		}
	}

	return b.result(FrameworkPytest, passed, failed, skipped, duration)
}
