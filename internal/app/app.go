// Package app is the terminal dashboard: a bubbletea model over the
// workflow engine.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/kyleking/gh-actionboard/internal/billing"
	"github.com/kyleking/gh-actionboard/internal/browser"
	"github.com/kyleking/gh-actionboard/internal/cache"
	"github.com/kyleking/gh-actionboard/internal/client"
	"github.com/kyleking/gh-actionboard/internal/engine"
	"github.com/kyleking/gh-actionboard/internal/frecency"
	"github.com/kyleking/gh-actionboard/internal/github"
	"github.com/kyleking/gh-actionboard/internal/logs"
	"github.com/kyleking/gh-actionboard/internal/rerun"
	"github.com/kyleking/gh-actionboard/internal/ui"
	"github.com/kyleking/gh-actionboard/internal/ui/modal"
	"github.com/kyleking/gh-actionboard/internal/ui/panes"
	"github.com/kyleking/gh-actionboard/internal/workflows"
)

// Dashboard is the part of the engine the terminal UI drives.
type Dashboard interface {
	Runs() []github.WorkflowRun
	State() engine.State
	Billing() billing.Config
	User() string
	Batches() map[string]cache.BatchMetadata
	BatchErrors() map[string]error
	LoadMissing() bool
	ForceFullRefresh(confirm func(maxDays int) bool) (bool, error)
	Rerun(run github.WorkflowRun, mode rerun.Mode) error
	RerunJob(owner, repo string, jobID int64) error
	IsRetrying(id int64) bool
	Subscribe() <-chan engine.Event
	Unsubscribe(ch <-chan engine.Event)
}

// Options configures the dashboard model.
type Options struct {
	Engine         Dashboard
	Logs           *logs.Fetcher
	Open           func(url string) error
	Copy           func(text string) error
	History        *frecency.Tracker
	StreamInterval time.Duration
	Logger         *zap.Logger
}

// Modal ids.
const (
	idRefresh = "refresh"
	idRerun   = "rerun"
	idOwner   = "owner"
	idRepo    = "repo"
	idBranch  = "branch"
)

const chromeHeight = 5 // header, filter bar, status and help lines

// Model is the root bubbletea model for the application.
type Model struct {
	ctx            context.Context
	eng            Dashboard
	fetcher        *logs.Fetcher
	open           func(string) error
	copy           func(string) error
	history        *frecency.Tracker
	streamInterval time.Duration
	log            *zap.Logger
	events         <-chan engine.Event

	all     []github.WorkflowRun
	runs    panes.RunsModel
	filter  panes.FilterModel
	summary panes.SummaryModel
	spinner spinner.Model

	modalStack   *modal.Stack
	streamer     *logs.LogStreamer
	pendingRerun *github.WorkflowRun
	status       string
	statusErr    bool

	width  int
	height int
	keys   KeyMap
}

// New creates the dashboard model and subscribes it to engine events.
func New(ctx context.Context, opts Options) Model {
	if opts.Open == nil {
		opts.Open = browser.Open
	}
	if opts.Copy == nil {
		opts.Copy = clipboard.WriteAll
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	m := Model{
		ctx:            ctx,
		eng:            opts.Engine,
		fetcher:        opts.Logs,
		open:           opts.Open,
		copy:           opts.Copy,
		history:        opts.History,
		streamInterval: opts.StreamInterval,
		log:            opts.Logger,
		events:         opts.Engine.Subscribe(),
		runs:           panes.NewRunsModel(),
		filter:         panes.NewFilterModel(),
		spinner:        spinner.New(spinner.WithSpinner(spinner.Dot)),
		modalStack:     modal.NewStack(),
		keys:           DefaultKeyMap(),
	}
	m.runs.SetFocused(true)
	m.refresh()
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(listen(m.events), m.spinner.Tick)
}

func listen(ch <-chan engine.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		return engineEventMsg{event: ev, ok: ok}
	}
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		if m.modalStack.HasActive() {
			return m, m.modalStack.Update(msg)
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case engineEventMsg:
		if !msg.ok {
			return m, nil
		}
		m.refresh()
		if msg.event.Kind == engine.EventBatch && msg.event.Err != nil {
			m.setError(fmt.Errorf("batch %s failed: %w", msg.event.BatchID, msg.event.Err))
		}
		return m, listen(m.events)

	case DetailsFetchedMsg:
		return m.handleDetailsFetched(msg)

	case LogsFetchedMsg:
		return m.handleLogsFetched(msg)

	case streamUpdateMsg:
		return m.handleStreamUpdate(msg)

	case actionDoneMsg:
		if msg.err != nil {
			m.setError(msg.err)
		} else {
			m.setStatus(msg.status)
		}
		return m, nil

	case modal.ConfirmResultMsg:
		return m.handleConfirmResult(msg)

	case modal.SelectResultMsg:
		return m.handleSelectResult(msg)

	case modal.DetailsActionMsg:
		return m.handleDetailsAction(msg)

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m.quit()
		}
		if m.modalStack.HasActive() {
			return m.updateModal(msg)
		}
		if m.filter.Focused() {
			return m.updateSearch(msg)
		}
		return m.handleKeyMsg(msg)
	}

	if m.modalStack.HasActive() {
		return m.updateModal(msg)
	}
	if m.filter.Focused() {
		var cmd tea.Cmd
		m.filter, cmd = m.filter.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) updateModal(msg tea.Msg) (tea.Model, tea.Cmd) {
	cmd := m.modalStack.Update(msg)
	if m.streamer != nil && m.logsViewer() == nil {
		m.stopStream()
	}
	return m, cmd
}

func (m Model) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		m.filter.Blur()
		return m, nil
	case tea.KeyEsc:
		m.filter.SetQuery("")
		m.filter.Blur()
		m.refresh()
		return m, nil
	}
	var cmd tea.Cmd
	m.filter, cmd = m.filter.Update(msg)
	m.refresh()
	return m, cmd
}

func (m Model) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m.quit()

	case key.Matches(msg, m.keys.Help):
		m.modalStack.Push(modal.NewHelpModal(m.keys.Bindings()))
		return m, nil

	case key.Matches(msg, m.keys.Up):
		m.runs.MoveUp()
		return m, nil

	case key.Matches(msg, m.keys.Down):
		m.runs.MoveDown()
		return m, nil

	case key.Matches(msg, m.keys.PageUp):
		m.runs.PageUp()
		return m, nil

	case key.Matches(msg, m.keys.PageDown):
		m.runs.PageDown()
		return m, nil

	case key.Matches(msg, m.keys.Search):
		cmd := m.filter.Focus()
		return m, cmd

	case key.Matches(msg, m.keys.Fuzzy):
		m.filter.ToggleFuzzy()
		m.refresh()
		return m, nil

	case key.Matches(msg, m.keys.ClearFilter):
		m.filter.Clear()
		m.refresh()
		return m, nil

	case key.Matches(msg, m.keys.Owner):
		return m.openFilterSelect(idOwner)

	case key.Matches(msg, m.keys.Repo):
		return m.openFilterSelect(idRepo)

	case key.Matches(msg, m.keys.Branch):
		return m.openFilterSelect(idBranch)

	case key.Matches(msg, m.keys.LoadMissing):
		if m.eng.LoadMissing() {
			m.setStatus("Loading missing batches")
		} else {
			m.setStatus("All batches are loaded")
		}
		m.refresh()
		return m, nil

	case key.Matches(msg, m.keys.Refresh):
		days := m.eng.Billing().MaxDays
		m.modalStack.Push(modal.NewConfirmModal(idRefresh, "Full refresh",
			fmt.Sprintf("Discard the cache and reload %d days of workflow history?", days)))
		return m, nil
	}

	run := m.runs.SelectedRun()
	if run == nil {
		return m, nil
	}
	selected := *run

	switch {
	case key.Matches(msg, m.keys.Details):
		return m, m.fetchDetails(selected, 0)

	case key.Matches(msg, m.keys.Logs):
		return m, m.fetchLogs(selected, nil, false)

	case key.Matches(msg, m.keys.ErrorLogs):
		return m, m.fetchLogs(selected, nil, true)

	case key.Matches(msg, m.keys.Rerun):
		return m.openRerunSelect(selected)

	case key.Matches(msg, m.keys.Open):
		return m, m.openURL(selected.HTMLURL)

	case key.Matches(msg, m.keys.Copy):
		if err := m.copy(selected.HTMLURL); err != nil {
			m.setError(fmt.Errorf("failed to copy: %w", err))
		} else {
			m.setStatus("Copied " + selected.HTMLURL)
		}
		return m, nil
	}
	return m, nil
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	m.stopStream()
	m.eng.Unsubscribe(m.events)
	return m, tea.Quit
}

var rerunLabels = map[string]string{
	string(rerun.ModeFailed): "Re-run failed jobs",
	string(rerun.ModeAll):    "Re-run all jobs",
}

func (m Model) openRerunSelect(run github.WorkflowRun) (tea.Model, tea.Cmd) {
	if m.eng.IsRetrying(run.ID) {
		m.setStatus("A re-run of this run is already pending")
		return m, nil
	}
	modes := rerun.Options(run)
	if len(modes) == 0 {
		m.setStatus("Only completed runs can be re-run")
		return m, nil
	}
	options := make([]string, len(modes))
	for i, mode := range modes {
		options[i] = string(mode)
	}
	m.pendingRerun = &run
	m.modalStack.Push(modal.NewSelectModal(idRerun,
		fmt.Sprintf("Re-run %s #%d", run.Name, run.RunNumber), options, "", rerunLabels))
	return m, nil
}

var anyLabel = map[string]string{"": "(any)"}

func (m Model) openFilterSelect(id string) (tea.Model, tea.Cmd) {
	f := m.filter.Filter()
	opts := workflows.OptionsFor(m.all, f)

	var values []string
	var current, title string
	switch id {
	case idOwner:
		values, current, title = opts.Owners, f.Owner, "Owner"
	case idRepo:
		values, current, title = opts.Repos, f.Repo, "Repository"
	case idBranch:
		if f.Repo == "" {
			m.setStatus("Select a repository first")
			return m, nil
		}
		values, current, title = opts.Branches, f.Branch, "Branch"
	}
	if m.history != nil {
		values = m.history.Rank(historyKind(id, f.Repo), values)
	}
	m.modalStack.Push(modal.NewSelectModal(id, title, append([]string{""}, values...), current, anyLabel))
	return m, nil
}

func (m Model) handleConfirmResult(msg modal.ConfirmResultMsg) (tea.Model, tea.Cmd) {
	if msg.ID != idRefresh || !msg.Value {
		return m, nil
	}
	eng := m.eng
	return m, func() tea.Msg {
		if _, err := eng.ForceFullRefresh(nil); err != nil {
			return actionDoneMsg{err: fmt.Errorf("full refresh failed: %w", err)}
		}
		return actionDoneMsg{status: "Reloading workflow history"}
	}
}

func (m Model) handleSelectResult(msg modal.SelectResultMsg) (tea.Model, tea.Cmd) {
	switch msg.ID {
	case idRerun:
		if m.pendingRerun == nil {
			return m, nil
		}
		run, mode := *m.pendingRerun, rerun.Mode(msg.Value)
		m.pendingRerun = nil
		eng := m.eng
		return m, func() tea.Msg {
			if err := eng.Rerun(run, mode); err != nil {
				return actionDoneMsg{err: fmt.Errorf("re-run failed: %w", err)}
			}
			return actionDoneMsg{status: fmt.Sprintf("Re-run requested for %s #%d", run.Name, run.RunNumber)}
		}
	case idOwner:
		m.filter.SetOwner(msg.Value)
	case idRepo:
		m.filter.SetRepo(msg.Value)
	case idBranch:
		m.filter.SetBranch(msg.Value)
	default:
		return m, nil
	}
	if m.history != nil {
		if err := m.history.Record(historyKind(msg.ID, m.filter.Filter().Repo), msg.Value); err != nil {
			m.log.Warn("failed to record picker history", zap.Error(err))
		}
	}
	m.refresh()
	return m, nil
}

// historyKind keys picker history; branches are ranked per repository.
func historyKind(id, repo string) string {
	if id == idBranch {
		return id + ":" + repo
	}
	return id
}

func (m Model) handleDetailsAction(msg modal.DetailsActionMsg) (tea.Model, tea.Cmd) {
	d := msg.Details
	run := runOf(d)
	switch msg.Action {
	case modal.ActionLogs:
		return m, m.fetchLogs(run, d, false)
	case modal.ActionErrorLogs:
		return m, m.fetchLogs(run, d, true)
	case modal.ActionAttempt:
		return m, m.fetchDetails(run, msg.Attempt)
	case modal.ActionOpen:
		url := d.HTMLURL
		if msg.Job != nil && msg.Job.HTMLURL != "" {
			url = msg.Job.HTMLURL
		}
		return m, m.openURL(url)
	case modal.ActionRerunJob:
		if msg.Job == nil {
			return m, nil
		}
		eng, job := m.eng, *msg.Job
		return m, func() tea.Msg {
			if err := eng.RerunJob(d.Repository.Owner, d.Repository.Name, job.ID); err != nil {
				return actionDoneMsg{err: fmt.Errorf("job re-run failed: %w", err)}
			}
			return actionDoneMsg{status: "Re-run requested for job " + job.Name}
		}
	}
	return m, nil
}

// runOf rebuilds the run reference of an attempt.
func runOf(d *github.RunDetails) github.WorkflowRun {
	return github.WorkflowRun{
		ID:         d.ID,
		Name:       d.Name,
		Status:     d.Status,
		Conclusion: d.Conclusion,
		Repository: d.Repository,
		Branch:     d.Branch,
		Event:      d.Event,
		HTMLURL:    d.HTMLURL,
		RunNumber:  d.RunNumber,
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}
}

func (m Model) openURL(url string) tea.Cmd {
	open := m.open
	return func() tea.Msg {
		if err := open(url); err != nil {
			return actionDoneMsg{err: err}
		}
		return actionDoneMsg{status: "Opened " + url}
	}
}

func (m Model) fetchDetails(run github.WorkflowRun, attempt int) tea.Cmd {
	ctx, fetcher := m.ctx, m.fetcher
	return func() tea.Msg {
		d, err := fetcher.Details(ctx, run, attempt)
		return DetailsFetchedMsg{Run: run, Details: d, Err: err}
	}
}

// fetchLogs loads the logs of the attempt in details, or of the latest
// attempt of run when details is nil.
func (m Model) fetchLogs(run github.WorkflowRun, details *github.RunDetails, errorsOnly bool) tea.Cmd {
	ctx, fetcher := m.ctx, m.fetcher
	return func() tea.Msg {
		msg := LogsFetchedMsg{Run: run, Details: details, ErrorsOnly: errorsOnly}
		if details == nil {
			msg.Details, msg.Logs, msg.Err = fetcher.Fetch(ctx, run, 0)
		} else {
			msg.Logs, msg.Err = fetcher.FetchLogs(ctx, details)
		}
		return msg
	}
}

func (m Model) handleDetailsFetched(msg DetailsFetchedMsg) (tea.Model, tea.Cmd) {
	if msg.Err != nil {
		m.setError(msg.Err)
		return m, nil
	}
	m.setStatus("")
	m.modalStack.Push(modal.NewRunDetailsModal(msg.Details))
	return m, nil
}

func (m Model) handleLogsFetched(msg LogsFetchedMsg) (tea.Model, tea.Cmd) {
	if msg.Err != nil {
		m.setError(msg.Err)
		return m, nil
	}

	var viewer *modal.LogsViewerModal
	if msg.ErrorsOnly {
		viewer = modal.NewLogsViewerModalWithError(msg.Logs, m.width, m.height)
	} else {
		viewer = modal.NewLogsViewerModal(msg.Logs, m.width, m.height)
	}
	m.modalStack.Push(viewer)

	d := msg.Details
	if d == nil || d.Status == github.StatusCompleted || d.CurrentAttempt < d.RunAttempt {
		return m, nil
	}
	viewer.SetLogs(msg.Logs, true)
	cmd := m.startStream(msg.Run)
	return m, cmd
}

func (m *Model) startStream(run github.WorkflowRun) tea.Cmd {
	m.stopStream()
	s := logs.NewLogStreamer(m.fetcher, run, m.streamInterval, m.log.Named("logs"))
	s.Start(m.ctx)
	m.streamer = s
	return waitForStream(s)
}

func (m *Model) stopStream() {
	if m.streamer == nil {
		return
	}
	m.streamer.Stop()
	m.streamer = nil
}

func waitForStream(s *logs.LogStreamer) tea.Cmd {
	return func() tea.Msg {
		u, ok := <-s.Updates()
		return streamUpdateMsg{streamer: s, update: u, ok: ok}
	}
}

func (m Model) handleStreamUpdate(msg streamUpdateMsg) (tea.Model, tea.Cmd) {
	if msg.streamer != m.streamer || !msg.ok {
		return m, nil
	}
	if viewer := m.logsViewer(); viewer != nil && msg.update.Err == nil {
		viewer.SetLogs(msg.update.Logs, !msg.update.Done)
	}
	if msg.update.Done {
		m.stopStream()
		return m, nil
	}
	return m, waitForStream(msg.streamer)
}

func (m Model) logsViewer() *modal.LogsViewerModal {
	v, _ := m.modalStack.Top().(*modal.LogsViewerModal)
	return v
}

// refresh rebuilds every pane from the engine.
func (m *Model) refresh() {
	m.all = m.eng.Runs()
	m.pruneFilter()

	visible := m.filter.Filter().Apply(m.all)
	m.runs.SetRuns(visible)
	for _, r := range visible {
		m.runs.SetRetrying(r.ID, m.eng.IsRetrying(r.ID))
	}

	cfg := m.eng.Billing()
	m.summary.User = m.eng.User()
	m.summary.Billing = cfg
	m.summary.State = m.eng.State()
	m.summary.Summary = workflows.Summarize(visible)
	m.summary.Loaded = len(m.eng.Batches())
	m.summary.Planned = cfg.MaxBatches
	m.summary.BatchErrors = len(m.eng.BatchErrors())
}

// pruneFilter drops selections that no longer match any run.
func (m *Model) pruneFilter() {
	f := m.filter.Filter()
	opts := workflows.OptionsFor(m.all, workflows.Filter{})
	if f.Owner != "" && !_contains(opts.Owners, f.Owner) {
		m.filter.SetOwner("")
	}
	if f.Repo != "" && !_contains(opts.Repos, f.Repo) {
		m.filter.SetRepo("")
		return
	}
	if f.Branch != "" && !_contains(workflows.OptionsFor(m.all, workflows.Filter{Repo: f.Repo}).Branches, f.Branch) {
		m.filter.SetBranch("")
	}
}

func (m *Model) setStatus(s string) {
	m.status, m.statusErr = s, false
}

const emptyPayloadHint = "Unable to load workflow data. The workflow may not exist or there may be a caching issue. Please refresh."

func (m *Model) setError(err error) {
	m.log.Debug("dashboard action failed", zap.Error(err))
	msg := err.Error()
	if errors.Is(err, client.ErrEmptyPayload) {
		msg = emptyPayloadHint
	}
	m.status, m.statusErr = msg, true
}

func (m *Model) resize(width, height int) {
	m.width = width
	m.height = height
	m.modalStack.SetSize(width, height)
	m.runs.SetSize(width, max(height-chromeHeight, 3))
	m.filter.SetWidth(width)
	m.summary.SetWidth(width)
}

// View implements tea.Model.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var body string
	if m.summary.State.Blocking() {
		body = m.viewLoading()
	} else {
		body = m.runs.View()
	}

	main := lipgloss.JoinVertical(lipgloss.Left,
		m.summary.View(),
		m.filter.View(),
		body,
		m.viewStatus(),
		ui.HelpStyle.Render("[enter] details  [l/e] logs  [r] re-run  [o] open  [/] search  [O/R/b] filter  [?] help  [q] quit"),
	)

	if m.modalStack.HasActive() {
		return m.modalStack.Render(main)
	}
	return main
}

func (m Model) viewLoading() string {
	cfg := m.summary.Billing
	text := fmt.Sprintf("%s Loading %d days of workflow history (%d/%d batches)",
		m.spinner.View(), cfg.MaxDays, m.summary.Loaded, m.summary.Planned)
	return lipgloss.Place(m.width, max(m.height-chromeHeight, 3), lipgloss.Center, lipgloss.Center,
		ui.RunningStyle.Render(text))
}

func (m Model) viewStatus() string {
	if m.status == "" {
		return ""
	}
	text := ui.TruncateWithEllipsis(m.status, max(m.width-2, 10))
	if m.statusErr {
		return ui.ErrorStyle.Render(text)
	}
	return ui.SubtitleStyle.Render(text)
}
