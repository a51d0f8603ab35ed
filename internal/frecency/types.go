package frecency

import "time"

// History holds picker usage keyed by picker kind, e.g. "repo" or
// "branch:acme/api".
type History struct {
	Entries map[string][]Entry `json:"entries"`
}

// Entry records how often and how recently a value was picked.
type Entry struct {
	Value      string    `json:"value"`
	Count      int       `json:"count"`
	LastUsedAt time.Time `json:"last_used_at"`
}

// NewHistory creates an empty History.
func NewHistory() *History {
	return &History{
		Entries: make(map[string][]Entry),
	}
}

// Touch bumps value under kind.
func (h *History) Touch(kind, value string, now time.Time) {
	entries := h.Entries[kind]
	for i := range entries {
		if entries[i].Value == value {
			entries[i].Count++
			entries[i].LastUsedAt = now
			return
		}
	}
	h.Entries[kind] = append(entries, Entry{Value: value, Count: 1, LastUsedAt: now})
}
