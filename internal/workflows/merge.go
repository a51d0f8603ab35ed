// Package workflows holds the merged run collection and the views derived from it.
package workflows

import (
	"sort"

	"github.com/kyleking/gh-actionboard/internal/github"
)

// Merge combines existing and incoming runs keyed by ID. Incoming runs replace
// existing ones with the same ID. The result is sorted by UpdatedAt descending
// with ID descending as a tie-break, and never aliases either input.
func Merge(existing, incoming []github.WorkflowRun) []github.WorkflowRun {
	byID := make(map[int64]github.WorkflowRun, len(existing)+len(incoming))
	for _, r := range existing {
		byID[r.ID] = r
	}
	for _, r := range incoming {
		byID[r.ID] = r
	}

	out := make([]github.WorkflowRun, 0, len(byID))
	for _, r := range byID {
		out = append(out, r)
	}
	Sort(out)
	return out
}

// Sort orders runs by UpdatedAt descending, then ID descending.
func Sort(runs []github.WorkflowRun) {
	sort.SliceStable(runs, func(i, j int) bool {
		if !runs[i].UpdatedAt.Equal(runs[j].UpdatedAt) {
			return runs[i].UpdatedAt.After(runs[j].UpdatedAt)
		}
		return runs[i].ID > runs[j].ID
	})
}
