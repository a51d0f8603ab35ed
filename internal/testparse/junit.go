package testparse

import (
	"regexp"
	"strings"
)

var (
	junitRunning  = regexp.MustCompile(`\[INFO\] Running .+Test`)
	junitSummary  = regexp.MustCompile(`Tests run:\s*(\d+)[,\s]+Failures:\s*(\d+)[,\s]+Errors:\s*(\d+)[,\s]+Skipped:\s*(\d+)`)
	junitTime     = regexp.MustCompile(`(?i)Total time:\s+([\d.]+\s*[a-z]+)`)
	junitFailure  = regexp.MustCompile(`\[ERROR\]\s+(\w+)\(([^)]+)\)`)
	junitLocation = regexp.MustCompile(`at\s+[\w.]+\(([\w.]+\.java):(\d+)\)`)
)

// JUnit parses Maven Surefire output.
type JUnit struct{}

func (JUnit) Detect(logs string) bool {
	return strings.Contains(logs, "[INFO] BUILD SUCCESS") ||
		strings.Contains(logs, "[INFO] BUILD FAILURE") ||
		strings.Contains(logs, "Tests run:") ||
		junitRunning.MatchString(logs)
}

func (JUnit) Parse(logs string) *Result {
	var (
		passed, failed, skipped int
		duration                string
		b                       failureBuilder
		collecting              bool
	)

	for _, line := range strings.Split(logs, "\n") {
		// Surefire prints one summary per class and a final total; the last wins.
		if m := junitSummary.FindStringSubmatch(line); m != nil {
			total := atoi(m[1])
			failed = atoi(m[2]) + atoi(m[3])
			skipped = atoi(m[4])
			passed = total - failed - skipped
		}
		if m := junitTime.FindStringSubmatch(line); m != nil {
			duration = m[1]
		}

		if m := junitFailure.FindStringSubmatch(line); m != nil {
			b.start(Failure{
				TestName: m[1],
				TestFile: strings.ReplaceAll(m[2], ".", "/") + ".java",
			})
			collecting = true
			continue
		}

		if !collecting {
			continue
		}
		if strings.Contains(line, "[ERROR]") || strings.Contains(line, "[INFO]") {
			collecting = false
			continue
		}
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		b.errLines = append(b.errLines, trimmed)
		if b.current.ErrorMessage == "" &&
			(strings.Contains(line, "AssertionError") || strings.Contains(line, "Expected") || strings.Contains(line, "but was")) {
			b.current.ErrorMessage = trimmed
		}
		if m := junitLocation.FindStringSubmatch(line); m != nil {
			b.current.TestFile = m[1]
			b.current.Line = atoi(m[2])
		}
	}

	return b.result(FrameworkJUnit, passed, failed, skipped, duration)
}
