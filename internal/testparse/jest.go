package testparse

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	jestMarker   = regexp.MustCompile(`\s+●\s+`)
	jestSummary  = regexp.MustCompile(`Tests:\s+(?:(\d+)\s+failed[,\s]+)?(?:(\d+)\s+skipped[,\s]+)?(?:(\d+)\s+passed[,\s]+)?(\d+)\s+total`)
	jestTime     = regexp.MustCompile(`(?i)Time:\s+([\d.]+\s*[a-z]+)`)
	jestFailure  = regexp.MustCompile(`\s*●\s+(.+?)\s+›\s+(.+)`)
	jestLocation = regexp.MustCompile(`at\s+.*?\((.+?\.test\.[jt]sx?):(\d+):\d+\)`)
)

// Jest parses Jest (and Vitest in Jest reporter mode) output.
type Jest struct{}

func (Jest) Detect(logs string) bool {
	return (strings.Contains(logs, "PASS") && strings.Contains(logs, "FAIL")) ||
		(strings.Contains(logs, "Tests:") && strings.Contains(logs, "passed")) ||
		strings.Contains(logs, "Test Suites:") ||
		jestMarker.MatchString(logs)
}

func (Jest) Parse(logs string) *Result {
	var (
		passed, failed, skipped int
		duration                string
		b                       failureBuilder
		collecting              bool
	)

	for _, line := range strings.Split(logs, "\n") {
		trimmed := strings.TrimSpace(line)

		if m := jestSummary.FindStringSubmatch(line); m != nil {
			failed, skipped, passed = atoi(m[1]), atoi(m[2]), atoi(m[3])
		}
		if m := jestTime.FindStringSubmatch(line); m != nil {
			duration = m[1]
		}

		if m := jestFailure.FindStringSubmatch(line); m != nil {
			b.start(Failure{TestName: fmt.Sprintf("%s › %s", m[1], m[2])})
			collecting = true
			continue
		}

		if collecting && trimmed != "" {
			if strings.HasPrefix(trimmed, "at ") {
				collecting = false
			} else {
				b.errLines = append(b.errLines, trimmed)
				if b.current != nil && b.current.ErrorMessage == "" {
					b.current.ErrorMessage = trimmed
				}
			}
		}

		if m := jestLocation.FindStringSubmatch(line); m != nil && b.current != nil {
			b.current.TestFile = m[1]
			b.current.Line = atoi(m[2])
		}
	}

	return b.result(FrameworkJest, passed, failed, skipped, duration)
}
