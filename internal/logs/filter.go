package logs

import (
	"fmt"
	"regexp"
)

// FilterLevel selects entries by severity.
type FilterLevel int

const (
	FilterAll FilterLevel = iota
	FilterErrors
	FilterWarnings
)

func (l FilterLevel) String() string {
	switch l {
	case FilterErrors:
		return "errors"
	case FilterWarnings:
		return "warnings"
	default:
		return "all"
	}
}

// FilterConfig configures a Filter. StepIndex -1 keeps every step.
type FilterConfig struct {
	Level         FilterLevel
	SearchTerm    string
	CaseSensitive bool
	Regex         bool
	StepIndex     int
}

// QuickFilters are the presets bound to the viewer's level toggles.
var QuickFilters = map[string]*FilterConfig{
	"all":      {Level: FilterAll, StepIndex: -1},
	"errors":   {Level: FilterErrors, StepIndex: -1},
	"warnings": {Level: FilterWarnings, StepIndex: -1},
}

// MatchPosition is a byte range of a search hit within an entry.
type MatchPosition struct {
	Start int
	End   int
}

// FilteredLogEntry is an entry that passed the filter.
type FilteredLogEntry struct {
	Original      LogEntry
	OriginalIndex int
	Matches       []MatchPosition
}

// FilteredStepLogs is a step with its surviving entries.
type FilteredStepLogs struct {
	StepIndex int
	StepName  string
	JobName   string
	Entries   []FilteredLogEntry
}

// FilteredResult is the output of Filter.Apply.
type FilteredResult struct {
	Steps []*FilteredStepLogs
}

// TotalEntries counts entries across all steps.
func (r *FilteredResult) TotalEntries() int {
	n := 0
	for _, s := range r.Steps {
		n += len(s.Entries)
	}
	return n
}

// Filter selects log entries by level, step and search term.
type Filter struct {
	config *FilterConfig
	regex  *regexp.Regexp
}

// NewFilter compiles the search term. Plain terms are matched literally.
func NewFilter(config *FilterConfig) (*Filter, error) {
	f := &Filter{config: config}
	if config.SearchTerm == "" {
		return f, nil
	}

	pattern := config.SearchTerm
	if !config.Regex {
		pattern = regexp.QuoteMeta(pattern)
	}
	if !config.CaseSensitive {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid search pattern %q: %w", config.SearchTerm, err)
	}
	f.regex = re
	return f, nil
}

// Apply returns the steps and entries of logs that pass the filter. Steps
// left with no entries are dropped.
func (f *Filter) Apply(logs *RunLogs) *FilteredResult {
	result := &FilteredResult{Steps: make([]*FilteredStepLogs, 0)}
	for _, step := range logs.Steps {
		if f.config.StepIndex >= 0 && step.StepIndex != f.config.StepIndex {
			continue
		}

		filtered := &FilteredStepLogs{
			StepIndex: step.StepIndex,
			StepName:  step.StepName,
			JobName:   step.JobName,
		}
		for i, entry := range step.Entries {
			if !f.levelMatches(entry.Level) {
				continue
			}
			var matches []MatchPosition
			if f.regex != nil {
				matches = f.findMatches(entry.Content)
				if len(matches) == 0 {
					continue
				}
			}
			filtered.Entries = append(filtered.Entries, FilteredLogEntry{
				Original:      entry,
				OriginalIndex: i,
				Matches:       matches,
			})
		}
		if len(filtered.Entries) > 0 {
			result.Steps = append(result.Steps, filtered)
		}
	}
	return result
}

func (f *Filter) levelMatches(level LogLevel) bool {
	switch f.config.Level {
	case FilterErrors:
		return level == LogLevelError
	case FilterWarnings:
		return level == LogLevelError || level == LogLevelWarning
	default:
		return true
	}
}

func (f *Filter) findMatches(content string) []MatchPosition {
	if f.regex == nil {
		return nil
	}
	locs := f.regex.FindAllStringIndex(content, -1)
	matches := make([]MatchPosition, 0, len(locs))
	for _, loc := range locs {
		if loc[0] == loc[1] {
			continue
		}
		matches = append(matches, MatchPosition{Start: loc[0], End: loc[1]})
	}
	return matches
}
