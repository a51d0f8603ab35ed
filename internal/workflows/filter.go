package workflows

import (
	"sort"
	"strings"

	"github.com/sahilm/fuzzy"

	"github.com/kyleking/gh-actionboard/internal/github"
)

// Filter narrows the run list. Empty fields match everything.
type Filter struct {
	Query  string
	Owner  string
	Repo   string // full name, owner/name
	Branch string
	Fuzzy  bool
}

// IsZero reports whether the filter matches everything.
func (f Filter) IsZero() bool {
	return f.Query == "" && f.Owner == "" && f.Repo == "" && f.Branch == ""
}

func (f Filter) matchesSelection(r github.WorkflowRun) bool {
	if f.Owner != "" && r.Repository.Owner != f.Owner {
		return false
	}
	if f.Repo != "" && r.Repository.FullName != f.Repo {
		return false
	}
	if f.Branch != "" && r.Branch != f.Branch {
		return false
	}
	return true
}

func matchesQuery(r github.WorkflowRun, q string) bool {
	q = strings.ToLower(q)
	return strings.Contains(strings.ToLower(r.Name), q) ||
		strings.Contains(strings.ToLower(r.Repository.FullName), q) ||
		(r.HeadSHA != "" && strings.Contains(strings.ToLower(r.HeadSHA), q))
}

type searchSource []github.WorkflowRun

func (s searchSource) String(i int) string {
	return s[i].Name + " " + s[i].Repository.FullName + " " + s[i].HeadSHA
}

func (s searchSource) Len() int { return len(s) }

// Apply returns the runs matching f. Substring search keeps collection order;
// fuzzy search orders by match score.
func (f Filter) Apply(runs []github.WorkflowRun) []github.WorkflowRun {
	selected := make([]github.WorkflowRun, 0, len(runs))
	for _, r := range runs {
		if f.matchesSelection(r) {
			selected = append(selected, r)
		}
	}
	if f.Query == "" {
		return selected
	}

	if f.Fuzzy {
		matches := fuzzy.FindFrom(f.Query, searchSource(selected))
		out := make([]github.WorkflowRun, 0, len(matches))
		for _, m := range matches {
			out = append(out, selected[m.Index])
		}
		return out
	}

	out := selected[:0]
	for _, r := range selected {
		if matchesQuery(r, f.Query) {
			out = append(out, r)
		}
	}
	return out
}

// Options lists the selectable owners, repositories and branches given the
// current selection. Branches are only offered once a repository is chosen.
type Options struct {
	Owners   []string
	Repos    []string
	Branches []string
}

// OptionsFor computes the filter options for runs under f.
func OptionsFor(runs []github.WorkflowRun, f Filter) Options {
	owners := map[string]struct{}{}
	repos := map[string]struct{}{}
	branches := map[string]struct{}{}

	for _, r := range runs {
		if f.Repo == "" || r.Repository.FullName == f.Repo {
			owners[r.Repository.Owner] = struct{}{}
		}
		if f.Owner == "" || r.Repository.Owner == f.Owner {
			repos[r.Repository.FullName] = struct{}{}
		}
		if f.Repo != "" && r.Repository.FullName == f.Repo && r.Branch != "" {
			branches[r.Branch] = struct{}{}
		}
	}

	return Options{
		Owners:   sortedKeys(owners),
		Repos:    sortedKeys(repos),
		Branches: sortedKeys(branches),
	}
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
