// Package batch splits a history window into date-bounded batches and loads
// them sequentially.
package batch

import (
	"fmt"
	"time"

	"github.com/kyleking/gh-actionboard/internal/api"
)

// Window is one planned batch: the range ends DaysAgo days before today and
// spans DaysBack days.
type Window struct {
	ID       string
	DaysAgo  int
	DaysBack int
}

// Plan splits totalDays into at most count windows of ceil(totalDays/count)
// days each, newest first. Non-positive inputs yield an empty plan and no
// window has zero length.
func Plan(totalDays, count int) []Window {
	if totalDays <= 0 || count <= 0 {
		return nil
	}
	per := (totalDays + count - 1) / count

	windows := make([]Window, 0, count)
	for i := 0; i < count; i++ {
		daysAgo := i * per
		if daysAgo >= totalDays {
			break
		}
		windows = append(windows, Window{
			ID:       fmt.Sprintf("batch-%d", i+1),
			DaysAgo:  daysAgo,
			DaysBack: min(per, totalDays-daysAgo),
		})
	}
	return windows
}

// Range returns the window's dates relative to the local day containing now.
func Range(now time.Time, w Window) (from, to string) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	end := today.AddDate(0, 0, -w.DaysAgo)
	start := end.AddDate(0, 0, -w.DaysBack)
	return start.Format(api.DateLayout), end.Format(api.DateLayout)
}

// Missing returns the windows whose id is not in loaded, preserving order.
func Missing[V any](plan []Window, loaded map[string]V) []Window {
	var out []Window
	for _, w := range plan {
		if _, ok := loaded[w.ID]; !ok {
			out = append(out, w)
		}
	}
	return out
}
