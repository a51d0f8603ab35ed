package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyleking/gh-actionboard/internal/billing"
	"github.com/kyleking/gh-actionboard/internal/cache"
	"github.com/kyleking/gh-actionboard/internal/client"
	"github.com/kyleking/gh-actionboard/internal/engine"
	"github.com/kyleking/gh-actionboard/internal/frecency"
	"github.com/kyleking/gh-actionboard/internal/github"
	"github.com/kyleking/gh-actionboard/internal/logs"
	"github.com/kyleking/gh-actionboard/internal/rerun"
	"github.com/kyleking/gh-actionboard/internal/ui/modal"
)

type fakeDashboard struct {
	mu           sync.Mutex
	runs         []github.WorkflowRun
	state        engine.State
	cfg          billing.Config
	batches      map[string]cache.BatchMetadata
	retrying     map[int64]bool
	loadMissing  bool
	refreshCalls int
	reruns       []rerun.Mode
	rerunJobs    []int64
	rerunErr     error
	events       chan engine.Event
	unsubscribed bool
}

func newFakeDashboard(runs []github.WorkflowRun) *fakeDashboard {
	return &fakeDashboard{
		runs:     runs,
		state:    engine.Ready,
		cfg:      billing.Config{MaxDays: 7, MaxBatches: 2, UserTier: billing.TierFree},
		batches:  map[string]cache.BatchMetadata{"batch-1": {}, "batch-2": {}},
		retrying: map[int64]bool{},
		events:   make(chan engine.Event, 8),
	}
}

func (f *fakeDashboard) Runs() []github.WorkflowRun {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]github.WorkflowRun(nil), f.runs...)
}

func (f *fakeDashboard) State() engine.State                     { return f.state }
func (f *fakeDashboard) Billing() billing.Config                 { return f.cfg }
func (f *fakeDashboard) User() string                            { return "octo" }
func (f *fakeDashboard) Batches() map[string]cache.BatchMetadata { return f.batches }
func (f *fakeDashboard) BatchErrors() map[string]error           { return nil }
func (f *fakeDashboard) LoadMissing() bool                       { return f.loadMissing }
func (f *fakeDashboard) IsRetrying(id int64) bool                { return f.retrying[id] }
func (f *fakeDashboard) Subscribe() <-chan engine.Event          { return f.events }

func (f *fakeDashboard) ForceFullRefresh(confirm func(int) bool) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshCalls++
	return true, nil
}

func (f *fakeDashboard) Rerun(_ github.WorkflowRun, mode rerun.Mode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reruns = append(f.reruns, mode)
	return f.rerunErr
}

func (f *fakeDashboard) RerunJob(_, _ string, jobID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rerunJobs = append(f.rerunJobs, jobID)
	return nil
}

func (f *fakeDashboard) Unsubscribe(<-chan engine.Event) {
	f.unsubscribed = true
}

type fakeSource struct {
	details *github.RunDetails
	err     error
}

func (s *fakeSource) RunDetails(_ context.Context, _, _ string, _ int64, _ int) (*github.RunDetails, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.details == nil {
		return nil, errors.New("not found")
	}
	d := *s.details
	return &d, nil
}

func (s *fakeSource) JobLogs(context.Context, string, string, int64) (string, error) {
	return "2024-05-01T10:00:00.0000000Z ##[group]Run tests\n" +
		"2024-05-01T10:00:01.0000000Z ok\n" +
		"2024-05-01T10:00:02.0000000Z ##[endgroup]", nil
}

func sampleRuns() []github.WorkflowRun {
	ts := time.Now().Add(-time.Hour)
	return []github.WorkflowRun{
		{ID: 1, Name: "CI", Status: github.StatusCompleted, Conclusion: github.ConclusionFailure,
			Repository: github.NewRepository("acme", "api"), Branch: "main",
			HTMLURL: "https://github.com/acme/api/actions/runs/1", RunNumber: 41, CreatedAt: ts, UpdatedAt: ts},
		{ID: 2, Name: "Deploy", Status: github.StatusInProgress,
			Repository: github.NewRepository("acme", "web"), Branch: "main",
			HTMLURL: "https://github.com/acme/web/actions/runs/2", RunNumber: 7, CreatedAt: ts, UpdatedAt: ts},
		{ID: 3, Name: "Lint", Status: github.StatusCompleted, Conclusion: github.ConclusionSuccess,
			Repository: github.NewRepository("octo", "site"), Branch: "dev",
			HTMLURL: "https://github.com/octo/site/actions/runs/3", RunNumber: 3, CreatedAt: ts, UpdatedAt: ts},
	}
}

type harness struct {
	dash   *fakeDashboard
	source *fakeSource
	opened []string
	copied []string
}

func newModel(t *testing.T, runs []github.WorkflowRun) (Model, *harness) {
	t.Helper()
	h := &harness{
		dash: newFakeDashboard(runs),
		source: &fakeSource{details: &github.RunDetails{
			ID: 1, Name: "CI", Status: github.StatusCompleted, Conclusion: github.ConclusionFailure,
			Repository: github.NewRepository("acme", "api"), RunAttempt: 1, CurrentAttempt: 1,
			HTMLURL: "https://github.com/acme/api/actions/runs/1",
			Jobs: []github.Job{{ID: 10, Name: "test", Status: github.StatusCompleted,
				HTMLURL: "https://github.com/acme/api/actions/runs/1/job/10"}},
		}},
	}
	m := New(context.Background(), Options{
		Engine: h.dash,
		Logs:   logs.NewFetcher(h.source, nil, nil),
		Open: func(url string) error {
			h.opened = append(h.opened, url)
			return nil
		},
		Copy: func(text string) error {
			h.copied = append(h.copied, text)
			return nil
		},
		History: frecency.NewTracker(cache.NewMemoryStore(), nil),
	})
	m = send(t, m, tea.WindowSizeMsg{Width: 120, Height: 40})
	return m, h
}

func keyMsg(k string) tea.KeyMsg {
	switch k {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
}

func send(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	return next.(Model)
}

func press(t *testing.T, m Model, k string) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(keyMsg(k))
	return next.(Model), cmd
}

// run executes cmd and feeds its message back into the model.
func run(t *testing.T, m Model, cmd tea.Cmd) (Model, tea.Cmd) {
	t.Helper()
	require.NotNil(t, cmd)
	next, out := m.Update(cmd())
	return next.(Model), out
}

func TestModel_ShowsEngineRuns(t *testing.T) {
	m, _ := newModel(t, sampleRuns())

	assert.Equal(t, 3, m.runs.Len())
	view := m.View()
	assert.Contains(t, view, "@octo")
	assert.Contains(t, view, "CI")
	assert.Contains(t, view, "Deploy")
	assert.Contains(t, view, "Lint")
}

func TestModel_EngineEventRefreshes(t *testing.T) {
	m, h := newModel(t, sampleRuns())
	h.dash.runs = h.dash.runs[:1]
	h.dash.retrying[1] = true

	next, cmd := m.Update(engineEventMsg{event: engine.Event{Kind: engine.EventRuns}, ok: true})
	m = next.(Model)
	assert.NotNil(t, cmd, "the model listens for the next event")
	assert.Equal(t, 1, m.runs.Len())
	assert.Contains(t, m.runs.ViewContent(), "↻")

	_, cmd = m.Update(engineEventMsg{ok: false})
	assert.Nil(t, cmd, "a closed subscription stops listening")
}

func TestModel_BatchFailureShowsStatus(t *testing.T) {
	m, _ := newModel(t, sampleRuns())
	m = send(t, m, engineEventMsg{
		event: engine.Event{Kind: engine.EventBatch, BatchID: "batch-2", Err: errors.New("boom")},
		ok:    true,
	})
	assert.True(t, m.statusErr)
	assert.Contains(t, m.status, "batch-2")
}

func TestModel_BatchQuotaRejectionShowsLimit(t *testing.T) {
	m, _ := newModel(t, sampleRuns())
	quota := &client.APIError{
		StatusCode: http.StatusForbidden,
		Message:    "Date range exceeds allowed limit of 7 days for free tier",
		MaxDays:    7,
		UserTier:   "free",
	}
	m = send(t, m, engineEventMsg{
		event: engine.Event{Kind: engine.EventBatch, BatchID: "batch-3", Err: fmt.Errorf("failed to fetch batch: %w", quota)},
		ok:    true,
	})

	assert.True(t, m.statusErr)
	assert.Contains(t, m.status, "Date range exceeds allowed limit of 7 days for free tier")
	assert.Contains(t, m.status, "(max 7 days, free tier)")
}

func TestModel_LoadingScreen(t *testing.T) {
	m, h := newModel(t, nil)
	h.dash.state = engine.InitialLoad
	m = send(t, m, engineEventMsg{event: engine.Event{Kind: engine.EventState}, ok: true})

	assert.Contains(t, m.View(), "Loading 7 days of workflow history (2/2 batches)")
}

func TestModel_RepoFilterSelection(t *testing.T) {
	m, _ := newModel(t, sampleRuns())

	m, _ = press(t, m, "R")
	_, ok := m.modalStack.Top().(*modal.SelectModal)
	require.True(t, ok, "repository picker should open")

	m, _ = press(t, m, "down")
	m, cmd := press(t, m, "enter")
	m, _ = run(t, m, cmd)

	assert.Equal(t, "acme/api", m.filter.Filter().Repo)
	assert.Equal(t, 1, m.runs.Len())

	m, _ = press(t, m, "esc")
	assert.Equal(t, "", m.filter.Filter().Repo)
	assert.Equal(t, 3, m.runs.Len())
}

func TestModel_PickerRanksRecentChoices(t *testing.T) {
	m, _ := newModel(t, sampleRuns())

	m, _ = press(t, m, "R")
	m, _ = press(t, m, "down")
	m, _ = press(t, m, "down")
	m, cmd := press(t, m, "enter")
	m, _ = run(t, m, cmd)
	require.Equal(t, "acme/web", m.filter.Filter().Repo)

	m, _ = press(t, m, "esc")
	m, _ = press(t, m, "R")
	m, _ = press(t, m, "k")
	m, cmd = press(t, m, "enter")
	m, _ = run(t, m, cmd)

	assert.Equal(t, "acme/web", m.filter.Filter().Repo, "the last pick is listed first")
}

func TestModel_BranchNeedsRepo(t *testing.T) {
	m, _ := newModel(t, sampleRuns())
	m, _ = press(t, m, "b")

	assert.False(t, m.modalStack.HasActive())
	assert.Equal(t, "Select a repository first", m.status)
}

func TestModel_StaleFilterIsPruned(t *testing.T) {
	m, h := newModel(t, sampleRuns())
	m.filter.SetRepo("octo/site")
	m.filter.SetBranch("dev")

	h.dash.runs = h.dash.runs[:2]
	m = send(t, m, engineEventMsg{event: engine.Event{Kind: engine.EventRuns}, ok: true})

	f := m.filter.Filter()
	assert.Equal(t, "", f.Repo)
	assert.Equal(t, "", f.Branch)
	assert.Equal(t, 2, m.runs.Len())
}

func TestModel_Search(t *testing.T) {
	m, _ := newModel(t, sampleRuns())
	m, _ = press(t, m, "/")
	require.True(t, m.filter.Focused())

	for _, r := range "lint" {
		m, _ = press(t, m, string(r))
	}
	assert.Equal(t, 1, m.runs.Len())

	m, _ = press(t, m, "enter")
	assert.False(t, m.filter.Focused())
	assert.Equal(t, 1, m.runs.Len(), "enter keeps the query")
}

func TestModel_RerunFlow(t *testing.T) {
	m, h := newModel(t, sampleRuns())

	m, _ = press(t, m, "r")
	_, ok := m.modalStack.Top().(*modal.SelectModal)
	require.True(t, ok, "re-run picker should open")

	m, cmd := press(t, m, "enter")
	m, cmd = run(t, m, cmd)
	m, _ = run(t, m, cmd)

	assert.Equal(t, []rerun.Mode{rerun.ModeFailed}, h.dash.reruns)
	assert.Equal(t, "Re-run requested for CI #41", m.status)
}

func TestModel_RerunError(t *testing.T) {
	m, h := newModel(t, sampleRuns())
	h.dash.rerunErr = errors.New("forbidden")

	m, _ = press(t, m, "r")
	m, cmd := press(t, m, "enter")
	m, cmd = run(t, m, cmd)
	m, _ = run(t, m, cmd)

	assert.True(t, m.statusErr)
	assert.Contains(t, m.status, "forbidden")
}

func TestModel_RerunNotOffered(t *testing.T) {
	tests := []struct {
		name     string
		retrying bool
		down     int
		want     string
	}{
		{"in progress", false, 1, "Only completed runs can be re-run"},
		{"already retrying", true, 0, "A re-run of this run is already pending"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, h := newModel(t, sampleRuns())
			h.dash.retrying[1] = tt.retrying
			for range tt.down {
				m, _ = press(t, m, "down")
			}
			m, _ = press(t, m, "r")
			assert.False(t, m.modalStack.HasActive())
			assert.Equal(t, tt.want, m.status)
		})
	}
}

func TestModel_FullRefreshConfirm(t *testing.T) {
	m, h := newModel(t, sampleRuns())

	m, _ = press(t, m, "F")
	_, ok := m.modalStack.Top().(*modal.ConfirmModal)
	require.True(t, ok)

	m, cmd := press(t, m, "y")
	m, cmd = run(t, m, cmd)
	m, _ = run(t, m, cmd)

	assert.Equal(t, 1, h.dash.refreshCalls)
	assert.Equal(t, "Reloading workflow history", m.status)
}

func TestModel_FullRefreshDeclined(t *testing.T) {
	m, h := newModel(t, sampleRuns())

	m, _ = press(t, m, "F")
	m, cmd := press(t, m, "n")
	_, _ = run(t, m, cmd)

	assert.Equal(t, 0, h.dash.refreshCalls)
}

func TestModel_LoadMissing(t *testing.T) {
	m, h := newModel(t, sampleRuns())

	m, _ = press(t, m, "L")
	assert.Equal(t, "All batches are loaded", m.status)

	h.dash.loadMissing = true
	m, _ = press(t, m, "L")
	assert.Equal(t, "Loading missing batches", m.status)
}

func TestModel_OpenAndCopy(t *testing.T) {
	m, h := newModel(t, sampleRuns())

	m, cmd := press(t, m, "o")
	m, _ = run(t, m, cmd)
	assert.Equal(t, []string{"https://github.com/acme/api/actions/runs/1"}, h.opened)

	m, _ = press(t, m, "y")
	assert.Equal(t, []string{"https://github.com/acme/api/actions/runs/1"}, h.copied)
	assert.Contains(t, m.status, "Copied")
}

func TestModel_DetailsThenLogs(t *testing.T) {
	m, _ := newModel(t, sampleRuns())

	m, cmd := press(t, m, "enter")
	m, _ = run(t, m, cmd)
	details, ok := m.modalStack.Top().(*modal.RunDetailsModal)
	require.True(t, ok, "details dialog should open")
	assert.Equal(t, int64(1), details.Details().ID)

	m, cmd = press(t, m, "l")
	m, cmd = run(t, m, cmd)
	m, _ = run(t, m, cmd)

	viewer, ok := m.modalStack.Top().(*modal.LogsViewerModal)
	require.True(t, ok, "logs viewer should open")
	assert.False(t, viewer.Streaming(), "completed runs are not streamed")
	assert.Nil(t, m.streamer)
}

func TestModel_DetailsRerunJob(t *testing.T) {
	m, h := newModel(t, sampleRuns())

	m, cmd := press(t, m, "enter")
	m, _ = run(t, m, cmd)
	m, cmd = press(t, m, "r")
	m, cmd = run(t, m, cmd)
	m, _ = run(t, m, cmd)

	assert.Equal(t, []int64{10}, h.dash.rerunJobs)
	assert.Equal(t, "Re-run requested for job test", m.status)
}

func TestModel_DetailsOpenUsesJobURL(t *testing.T) {
	m, h := newModel(t, sampleRuns())

	m, cmd := press(t, m, "enter")
	m, _ = run(t, m, cmd)
	m, cmd = press(t, m, "o")
	m, cmd = run(t, m, cmd)
	_, _ = run(t, m, cmd)

	assert.Equal(t, []string{"https://github.com/acme/api/actions/runs/1/job/10"}, h.opened)
}

func TestModel_DetailsFetchError(t *testing.T) {
	m, h := newModel(t, sampleRuns())
	h.source.details = nil

	m, cmd := press(t, m, "enter")
	m, _ = run(t, m, cmd)

	assert.False(t, m.modalStack.HasActive())
	assert.True(t, m.statusErr)
}

func TestModel_EmptyPayloadShowsRefreshHint(t *testing.T) {
	m, h := newModel(t, sampleRuns())
	h.source.err = client.ErrEmptyPayload

	m, cmd := press(t, m, "enter")
	m, _ = run(t, m, cmd)

	assert.True(t, m.statusErr)
	assert.Equal(t, emptyPayloadHint, m.status)
}

func TestModel_StaleStreamUpdateIgnored(t *testing.T) {
	m, _ := newModel(t, sampleRuns())
	other := logs.NewLogStreamer(nil, sampleRuns()[1], time.Second, nil)

	_, cmd := m.Update(streamUpdateMsg{streamer: other, ok: true})
	assert.Nil(t, cmd)
}

func TestModel_HelpModal(t *testing.T) {
	m, _ := newModel(t, sampleRuns())

	m, _ = press(t, m, "?")
	_, ok := m.modalStack.Top().(*modal.HelpModal)
	require.True(t, ok)

	m, _ = press(t, m, "q")
	assert.False(t, m.modalStack.HasActive(), "any key closes help")
}

func TestModel_Quit(t *testing.T) {
	m, h := newModel(t, sampleRuns())

	_, cmd := press(t, m, "q")
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.True(t, h.dash.unsubscribed)
}
