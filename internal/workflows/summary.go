package workflows

import "github.com/kyleking/gh-actionboard/internal/github"

// Summary aggregates run outcomes for the dashboard header.
type Summary struct {
	Total      int
	Success    int
	Failure    int
	Cancelled  int
	InProgress int
	Queued     int
}

// SuccessRate is the share of successful runs among completed, non-cancelled
// runs, as a percentage rounded to one decimal. Zero when nothing finished.
func (s Summary) SuccessRate() float64 {
	finished := s.Success + s.Failure
	if finished == 0 {
		return 0
	}
	rate := float64(s.Success) * 100 / float64(finished)
	return float64(int(rate*10+0.5)) / 10
}

// Summarize counts runs by outcome.
func Summarize(runs []github.WorkflowRun) Summary {
	var s Summary
	for _, r := range runs {
		s.Total++
		switch {
		case r.Status == github.StatusInProgress:
			s.InProgress++
		case r.Status == github.StatusQueued:
			s.Queued++
		case r.IsSuccess():
			s.Success++
		case r.Conclusion == github.ConclusionFailure:
			s.Failure++
		case r.Conclusion == github.ConclusionCancelled:
			s.Cancelled++
		}
	}
	return s
}
