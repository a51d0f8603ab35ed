package workflows

import (
	"sync"
	"testing"
	"time"

	"github.com/kyleking/gh-actionboard/internal/github"
)

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func run(id int64, repo string, updated time.Duration) github.WorkflowRun {
	owner, name := "octo", repo
	return github.WorkflowRun{
		ID:         id,
		Name:       "CI",
		Status:     github.StatusCompleted,
		Conclusion: github.ConclusionSuccess,
		Repository: github.NewRepository(owner, name),
		Branch:     "main",
		UpdatedAt:  base.Add(updated),
	}
}

func ids(runs []github.WorkflowRun) []int64 {
	out := make([]int64, len(runs))
	for i, r := range runs {
		out[i] = r.ID
	}
	return out
}

func equalIDs(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestMerge(t *testing.T) {
	tests := []struct {
		name     string
		existing []github.WorkflowRun
		incoming []github.WorkflowRun
		want     []int64
	}{
		{
			name:     "empty inputs",
			existing: nil,
			incoming: nil,
			want:     []int64{},
		},
		{
			name:     "sorted by updatedAt desc",
			existing: []github.WorkflowRun{run(1, "a", 1*time.Minute), run(2, "a", 3*time.Minute)},
			incoming: []github.WorkflowRun{run(3, "b", 2*time.Minute)},
			want:     []int64{2, 3, 1},
		},
		{
			name:     "incoming replaces same id",
			existing: []github.WorkflowRun{run(1, "a", 1*time.Minute), run(2, "a", 2*time.Minute)},
			incoming: []github.WorkflowRun{run(1, "a", 5*time.Minute)},
			want:     []int64{1, 2},
		},
		{
			name:     "ties broken by id desc",
			existing: []github.WorkflowRun{run(4, "a", 0), run(9, "a", 0)},
			incoming: []github.WorkflowRun{run(6, "a", 0)},
			want:     []int64{9, 6, 4},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ids(Merge(tt.existing, tt.incoming))
			if !equalIDs(got, tt.want) {
				t.Errorf("Merge: got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMerge_IncomingWins(t *testing.T) {
	old := run(1, "a", 0)
	old.Status = github.StatusInProgress
	old.Conclusion = ""
	updated := run(1, "a", time.Minute)

	got := Merge([]github.WorkflowRun{old}, []github.WorkflowRun{updated})
	if len(got) != 1 {
		t.Fatalf("expected 1 run, got %d", len(got))
	}
	if got[0].Status != github.StatusCompleted {
		t.Errorf("Status: got %q, want %q", got[0].Status, github.StatusCompleted)
	}
}

func TestMerge_Idempotent(t *testing.T) {
	runs := []github.WorkflowRun{run(1, "a", 0), run(2, "b", time.Minute)}
	once := Merge(nil, runs)
	twice := Merge(once, runs)
	if !equalIDs(ids(once), ids(twice)) {
		t.Errorf("merge not idempotent: %v vs %v", ids(once), ids(twice))
	}
}

func TestCollection_MergeDoesNotMutateSnapshot(t *testing.T) {
	c := NewCollection()
	c.Replace([]github.WorkflowRun{run(1, "a", 0)})
	snap := c.Snapshot()

	c.Merge([]github.WorkflowRun{run(2, "a", time.Minute)})

	if len(snap) != 1 || snap[0].ID != 1 {
		t.Errorf("snapshot changed after merge: %v", ids(snap))
	}
	if c.Len() != 2 {
		t.Errorf("Len: got %d, want 2", c.Len())
	}
}

func TestCollection_ConcurrentMerges(t *testing.T) {
	c := NewCollection()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			c.Merge([]github.WorkflowRun{run(id, "a", time.Duration(id)*time.Second)})
		}(int64(i + 1))
	}
	wg.Wait()

	if c.Len() != 50 {
		t.Errorf("Len: got %d, want 50", c.Len())
	}
}

func TestCollection_ActiveAndRepositories(t *testing.T) {
	c := NewCollection()
	queued := run(1, "b", 0)
	queued.Status = github.StatusQueued
	queued.Conclusion = ""
	c.Replace([]github.WorkflowRun{queued, run(2, "a", time.Minute), run(3, "b", 2*time.Minute)})

	active := c.Active()
	if len(active) != 1 || active[0].ID != 1 {
		t.Errorf("Active: got %v, want [1]", ids(active))
	}

	repos := c.Repositories()
	if len(repos) != 2 {
		t.Fatalf("Repositories: got %d, want 2", len(repos))
	}
	if repos[0].FullName != "octo/a" || repos[1].FullName != "octo/b" {
		t.Errorf("Repositories: got %v", repos)
	}

	if _, ok := c.Get(3); !ok {
		t.Error("expected run 3 to be found")
	}
	c.Reset()
	if c.Len() != 0 {
		t.Errorf("Len after Reset: got %d, want 0", c.Len())
	}
}

func TestFilter_Apply(t *testing.T) {
	a := run(1, "api", 0)
	a.Name = "Deploy"
	a.HeadSHA = "deadbeef"
	b := run(2, "web", 0)
	b.Branch = "feature"
	c := github.WorkflowRun{ID: 3, Name: "Lint", Repository: github.NewRepository("other", "tools"), Branch: "main"}
	runs := []github.WorkflowRun{a, b, c}

	tests := []struct {
		name   string
		filter Filter
		want   []int64
	}{
		{"zero filter", Filter{}, []int64{1, 2, 3}},
		{"query on name", Filter{Query: "deploy"}, []int64{1}},
		{"query on repo", Filter{Query: "OCTO/WEB"}, []int64{2}},
		{"query on sha", Filter{Query: "beef"}, []int64{1}},
		{"owner", Filter{Owner: "other"}, []int64{3}},
		{"repo", Filter{Repo: "octo/api"}, []int64{1}},
		{"branch", Filter{Branch: "feature"}, []int64{2}},
		{"combined no match", Filter{Owner: "other", Query: "deploy"}, []int64{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ids(tt.filter.Apply(runs))
			if !equalIDs(got, tt.want) {
				t.Errorf("Apply: got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFilter_Fuzzy(t *testing.T) {
	a := run(1, "api", 0)
	a.Name = "Deploy production"
	b := run(2, "web", 0)
	b.Name = "Lint"

	got := Filter{Query: "dply", Fuzzy: true}.Apply([]github.WorkflowRun{a, b})
	if len(got) != 1 || got[0].ID != 1 {
		t.Errorf("fuzzy Apply: got %v, want [1]", ids(got))
	}
}

func TestOptionsFor(t *testing.T) {
	a := run(1, "api", 0)
	b := run(2, "web", 0)
	b.Branch = "feature"
	c := github.WorkflowRun{ID: 3, Repository: github.NewRepository("other", "tools"), Branch: "dev"}
	runs := []github.WorkflowRun{a, b, c}

	opts := OptionsFor(runs, Filter{})
	if len(opts.Owners) != 2 || len(opts.Repos) != 3 {
		t.Errorf("unfiltered options: %+v", opts)
	}
	if len(opts.Branches) != 0 {
		t.Errorf("branches without repo: got %v, want none", opts.Branches)
	}

	opts = OptionsFor(runs, Filter{Owner: "octo"})
	if len(opts.Repos) != 2 {
		t.Errorf("repos for owner: got %v", opts.Repos)
	}

	opts = OptionsFor(runs, Filter{Repo: "octo/web"})
	if len(opts.Branches) != 1 || opts.Branches[0] != "feature" {
		t.Errorf("branches for repo: got %v", opts.Branches)
	}
	if len(opts.Owners) != 1 || opts.Owners[0] != "octo" {
		t.Errorf("owners for repo: got %v", opts.Owners)
	}
}

func TestSummarize(t *testing.T) {
	failed := run(2, "a", 0)
	failed.Conclusion = github.ConclusionFailure
	queued := github.WorkflowRun{ID: 3, Status: github.StatusQueued}
	running := github.WorkflowRun{ID: 4, Status: github.StatusInProgress}
	cancelled := run(5, "a", 0)
	cancelled.Conclusion = github.ConclusionCancelled

	s := Summarize([]github.WorkflowRun{run(1, "a", 0), failed, queued, running, cancelled, run(6, "a", 0)})

	if s.Total != 6 || s.Success != 2 || s.Failure != 1 || s.Queued != 1 || s.InProgress != 1 || s.Cancelled != 1 {
		t.Errorf("Summarize: got %+v", s)
	}
	if rate := s.SuccessRate(); rate != 66.7 {
		t.Errorf("SuccessRate: got %v, want 66.7", rate)
	}
	if rate := (Summary{}).SuccessRate(); rate != 0 {
		t.Errorf("empty SuccessRate: got %v, want 0", rate)
	}
}
