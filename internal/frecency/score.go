package frecency

import (
	"sort"
	"time"
)

// Score calculates the frecency score for an entry at now.
// Higher scores indicate more frequently and recently used entries.
func Score(entry Entry, now time.Time) float64 {
	hoursSince := now.Sub(entry.LastUsedAt).Hours()
	var recency float64
	switch {
	case hoursSince < 1:
		recency = 4.0
	case hoursSince < 24:
		recency = 2.0
	case hoursSince < 168: // 1 week
		recency = 1.0
	default:
		recency = 0.5
	}
	return float64(entry.Count) * recency
}

// Rank orders values by the frecency of their entries. Values without
// history keep their relative order after the ranked ones.
func Rank(values []string, entries []Entry, now time.Time) []string {
	scores := make(map[string]float64, len(entries))
	for _, e := range entries {
		scores[e.Value] = Score(e, now)
	}
	out := append([]string(nil), values...)
	sort.SliceStable(out, func(i, j int) bool {
		return scores[out[i]] > scores[out[j]]
	})
	return out
}
