package modal

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kyleking/gh-actionboard/internal/logs"
	"github.com/kyleking/gh-actionboard/internal/testparse"
	"github.com/kyleking/gh-actionboard/internal/ui"
)

// LogsViewerModal displays run logs with filtering and search.
type LogsViewerModal struct {
	runLogs     *logs.RunLogs
	filtered    *logs.FilteredResult
	filter      *logs.Filter
	filterCfg   *logs.FilterConfig
	viewport    viewport.Model
	searchInput textinput.Model
	activeTab   int // current step being viewed
	matchLines  []int
	match       int
	searchMode  bool
	streaming   bool
	filterErr   error
	done        bool
	keys        logsViewerKeyMap
	width       int
	height      int
}

type logsViewerKeyMap struct {
	Close        key.Binding
	NextTab      key.Binding
	PrevTab      key.Binding
	Search       key.Binding
	ToggleFilter key.Binding
	ToggleCase   key.Binding
	ToggleRegex  key.Binding
	NextMatch    key.Binding
	PrevMatch    key.Binding
	ExitSearch   key.Binding
}

func defaultLogsViewerKeyMap() logsViewerKeyMap {
	return logsViewerKeyMap{
		Close:        key.NewBinding(key.WithKeys("esc", "q")),
		NextTab:      key.NewBinding(key.WithKeys("tab", "l", "right")),
		PrevTab:      key.NewBinding(key.WithKeys("shift+tab", "h", "left")),
		Search:       key.NewBinding(key.WithKeys("/")),
		ToggleFilter: key.NewBinding(key.WithKeys("f")),
		ToggleCase:   key.NewBinding(key.WithKeys("c")),
		ToggleRegex:  key.NewBinding(key.WithKeys("x")),
		NextMatch:    key.NewBinding(key.WithKeys("n")),
		PrevMatch:    key.NewBinding(key.WithKeys("N")),
		ExitSearch:   key.NewBinding(key.WithKeys("esc")),
	}
}

// NewLogsViewerModal creates a new logs viewer modal.
func NewLogsViewerModal(runLogs *logs.RunLogs, width, height int) *LogsViewerModal {
	filterCfg := *logs.QuickFilters["all"]
	filter, _ := logs.NewFilter(&filterCfg)

	vp := viewport.New(max(width-8, 10), max(height-16, 3))

	searchInput := textinput.New()
	searchInput.Placeholder = "Search logs..."
	searchInput.CharLimit = 100

	m := &LogsViewerModal{
		runLogs:     runLogs,
		filtered:    filter.Apply(runLogs),
		filter:      filter,
		filterCfg:   &filterCfg,
		viewport:    vp,
		searchInput: searchInput,
		keys:        defaultLogsViewerKeyMap(),
		width:       width,
		height:      height,
	}

	m.updateViewportContent()
	return m
}

// NewLogsViewerModalWithError creates a logs viewer pre-filtered for errors.
func NewLogsViewerModalWithError(runLogs *logs.RunLogs, width, height int) *LogsViewerModal {
	m := NewLogsViewerModal(runLogs, width, height)
	m.filterCfg.Level = logs.FilterErrors
	m.applyFilter()
	return m
}

// SetLogs replaces the displayed logs, keeping the filter and the current
// step tab. streaming marks logs of a run that is still in progress.
func (m *LogsViewerModal) SetLogs(runLogs *logs.RunLogs, streaming bool) {
	if runLogs == nil {
		return
	}
	m.runLogs = runLogs
	m.streaming = streaming
	atBottom := m.viewport.AtBottom()
	m.applyFilter()
	if streaming && atBottom {
		m.viewport.GotoBottom()
	}
}

// Streaming reports whether the viewer is following a running attempt.
func (m *LogsViewerModal) Streaming() bool {
	return m.streaming
}

// Update handles input for the logs viewer modal.
func (m *LogsViewerModal) Update(msg tea.Msg) (Context, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = max(msg.Width-8, 10)
		m.viewport.Height = max(msg.Height-16, 3)
		m.updateViewportContent()

	case tea.KeyMsg:
		if m.searchMode {
			return m.handleSearchInput(msg)
		}

		switch {
		case key.Matches(msg, m.keys.Close):
			m.done = true
			return m, nil

		case key.Matches(msg, m.keys.NextTab):
			m.nextTab()
			return m, nil

		case key.Matches(msg, m.keys.PrevTab):
			m.prevTab()
			return m, nil

		case key.Matches(msg, m.keys.Search):
			m.searchMode = true
			m.searchInput.SetValue(m.filterCfg.SearchTerm)
			m.searchInput.Focus()
			return m, textinput.Blink

		case key.Matches(msg, m.keys.ToggleFilter):
			m.cycleFilterLevel()
			return m, nil

		case key.Matches(msg, m.keys.ToggleCase):
			m.filterCfg.CaseSensitive = !m.filterCfg.CaseSensitive
			m.applyFilter()
			return m, nil

		case key.Matches(msg, m.keys.ToggleRegex):
			m.filterCfg.Regex = !m.filterCfg.Regex
			m.applyFilter()
			return m, nil

		case key.Matches(msg, m.keys.NextMatch):
			m.jumpToNextMatch()
			return m, nil

		case key.Matches(msg, m.keys.PrevMatch):
			m.jumpToPrevMatch()
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// handleSearchInput processes input when in search mode.
func (m *LogsViewerModal) handleSearchInput(msg tea.KeyMsg) (Context, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.ExitSearch):
		m.searchMode = false
		m.searchInput.Blur()
		return m, nil

	case msg.Type == tea.KeyEnter:
		m.filterCfg.SearchTerm = m.searchInput.Value()
		m.applyFilter()
		m.searchMode = false
		m.searchInput.Blur()
		m.jumpToNextMatch()
		return m, nil
	}

	var cmd tea.Cmd
	m.searchInput, cmd = m.searchInput.Update(msg)
	return m, cmd
}

func (m *LogsViewerModal) nextTab() {
	if len(m.filtered.Steps) == 0 {
		return
	}
	m.activeTab = (m.activeTab + 1) % len(m.filtered.Steps)
	m.updateViewportContent()
	m.viewport.GotoTop()
}

func (m *LogsViewerModal) prevTab() {
	if len(m.filtered.Steps) == 0 {
		return
	}
	m.activeTab = (m.activeTab - 1 + len(m.filtered.Steps)) % len(m.filtered.Steps)
	m.updateViewportContent()
	m.viewport.GotoTop()
}

// cycleFilterLevel cycles through filter levels: all -> errors -> warnings -> all.
func (m *LogsViewerModal) cycleFilterLevel() {
	switch m.filterCfg.Level {
	case logs.FilterAll:
		m.filterCfg.Level = logs.FilterErrors
	case logs.FilterErrors:
		m.filterCfg.Level = logs.FilterWarnings
	case logs.FilterWarnings:
		m.filterCfg.Level = logs.FilterAll
	}
	m.applyFilter()
}

// applyFilter reapplies the current filter configuration. An invalid
// pattern keeps the previous filter and is reported in the status line.
func (m *LogsViewerModal) applyFilter() {
	filter, err := logs.NewFilter(m.filterCfg)
	m.filterErr = err
	if err == nil {
		m.filter = filter
	}

	m.filtered = m.filter.Apply(m.runLogs)
	if m.activeTab >= len(m.filtered.Steps) {
		m.activeTab = 0
	}
	m.updateViewportContent()
}

func (m *LogsViewerModal) jumpToNextMatch() {
	if len(m.matchLines) == 0 {
		return
	}
	m.match = (m.match + 1) % len(m.matchLines)
	m.viewport.SetYOffset(m.matchLines[m.match])
}

func (m *LogsViewerModal) jumpToPrevMatch() {
	if len(m.matchLines) == 0 {
		return
	}
	if m.match <= 0 {
		m.match = len(m.matchLines)
	}
	m.match--
	m.viewport.SetYOffset(m.matchLines[m.match])
}

// updateViewportContent refreshes the viewport with current filtered logs.
func (m *LogsViewerModal) updateViewportContent() {
	m.matchLines = m.matchLines[:0]
	m.match = -1

	if len(m.filtered.Steps) == 0 {
		m.viewport.SetContent(ui.TableDimmedStyle.Render("No logs match the current filter"))
		return
	}
	if m.activeTab >= len(m.filtered.Steps) {
		m.activeTab = 0
	}
	m.viewport.SetContent(m.renderStepLogs(m.filtered.Steps[m.activeTab]))
}

// renderStepLogs renders one line per entry and records the lines holding
// search hits.
func (m *LogsViewerModal) renderStepLogs(step *logs.FilteredStepLogs) string {
	var sb strings.Builder
	for i, entry := range step.Entries {
		if len(entry.Matches) > 0 {
			m.matchLines = append(m.matchLines, i)
		}
		sb.WriteString(m.renderLogEntry(&entry))
		sb.WriteString("\n")
	}
	if sb.Len() == 0 {
		sb.WriteString(ui.TableDimmedStyle.Render("No log entries for this step"))
	}
	return sb.String()
}

func (m *LogsViewerModal) renderLogEntry(entry *logs.FilteredLogEntry) string {
	style := levelStyle(entry.Original.Level)
	content := entry.Original.Content
	if entry.Original.GroupHead {
		style = style.Bold(true)
	}
	if len(entry.Matches) > 0 {
		return highlightMatches(content, entry.Matches, style)
	}
	return style.Render(content)
}

func levelStyle(level logs.LogLevel) lipgloss.Style {
	switch level {
	case logs.LogLevelError:
		return ui.ErrorStyle
	case logs.LogLevelWarning:
		return ui.WarningStyle
	case logs.LogLevelSuccess:
		return ui.SuccessStyle
	case logs.LogLevelDebug:
		return ui.TableDimmedStyle
	default:
		return lipgloss.NewStyle()
	}
}

var highlightStyle = lipgloss.NewStyle().
	Background(lipgloss.Color("220")).
	Foreground(lipgloss.Color("0")).
	Bold(true)

// highlightMatches renders content with matched byte ranges highlighted.
func highlightMatches(content string, matches []logs.MatchPosition, base lipgloss.Style) string {
	var result strings.Builder
	lastEnd := 0
	for _, match := range matches {
		if match.Start < lastEnd || match.End > len(content) {
			continue
		}
		if match.Start > lastEnd {
			result.WriteString(base.Render(content[lastEnd:match.Start]))
		}
		result.WriteString(highlightStyle.Render(content[match.Start:match.End]))
		lastEnd = match.End
	}
	if lastEnd < len(content) {
		result.WriteString(base.Render(content[lastEnd:]))
	}
	return result.String()
}

// View renders the logs viewer modal.
func (m *LogsViewerModal) View() string {
	var s strings.Builder

	title := fmt.Sprintf("Logs: %s", m.runLogs.Workflow)
	if m.runLogs.Branch != "" {
		title += fmt.Sprintf(" (%s)", m.runLogs.Branch)
	}
	s.WriteString(ui.TitleStyle.Render(title))
	if m.streaming {
		s.WriteString("  " + ui.RunningStyle.Render("● live"))
	}
	s.WriteString("\n\n")

	if summary := renderTestSummary(m.runLogs.TestSummary()); summary != "" {
		s.WriteString(summary)
		s.WriteString("\n")
	}
	if failed := m.renderLoadErrors(); failed != "" {
		s.WriteString(failed)
		s.WriteString("\n")
	}

	s.WriteString(m.renderTabs())
	s.WriteString("\n\n")

	s.WriteString(m.renderFilterStatus())
	s.WriteString("\n")

	if m.searchMode {
		s.WriteString(ui.SubtitleStyle.Render("Search: "))
		s.WriteString(m.searchInput.View())
		s.WriteString("\n\n")
	}

	s.WriteString(m.viewport.View())
	s.WriteString("\n\n")
	s.WriteString(m.renderHelp())

	return s.String()
}

func renderTestSummary(r *testparse.Result) string {
	if r == nil {
		return ""
	}
	var s strings.Builder
	line := fmt.Sprintf("Tests (%s): %d passed, %d failed, %d skipped, %d total",
		r.Framework, r.Passed, r.Failed, r.Skipped, r.Total)
	if r.Duration != "" {
		line += " in " + r.Duration
	}
	if r.Failed > 0 {
		s.WriteString(ui.ErrorStyle.Render(line))
	} else {
		s.WriteString(ui.SuccessStyle.Render(line))
	}
	s.WriteString("\n")

	const shown = 5
	for i, f := range r.Failures {
		if i == shown {
			s.WriteString(ui.TableDimmedStyle.Render(fmt.Sprintf("  ... %d more", len(r.Failures)-shown)))
			s.WriteString("\n")
			break
		}
		name := f.TestName
		if f.TestFile != "" {
			name = f.TestFile + "::" + name
		}
		s.WriteString(ui.ErrorStyle.Render("  x " + name))
		if f.ErrorMessage != "" {
			s.WriteString(ui.TableDimmedStyle.Render(": " + ui.TruncateWithEllipsis(f.ErrorMessage, 80)))
		}
		s.WriteString("\n")
	}
	return s.String()
}

func (m *LogsViewerModal) renderLoadErrors() string {
	seen := map[int64]bool{}
	var lines []string
	for _, step := range m.runLogs.Steps {
		if step.Error == nil || seen[step.JobID] {
			continue
		}
		seen[step.JobID] = true
		lines = append(lines, ui.ErrorStyle.Render(
			fmt.Sprintf("%s: logs unavailable (%v)", step.JobName, step.Error)))
	}
	return strings.Join(lines, "\n")
}

var (
	activeTabStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("62")).
			Foreground(lipgloss.Color("230")).
			Padding(0, 2).
			Bold(true)

	inactiveTabStyle = lipgloss.NewStyle().
				Background(lipgloss.Color("235")).
				Foreground(lipgloss.Color("250")).
				Padding(0, 2)
)

// renderTabs renders the step tabs around the active one.
func (m *LogsViewerModal) renderTabs() string {
	if len(m.filtered.Steps) == 0 {
		return ui.TableDimmedStyle.Render("No steps available")
	}

	var tabs []string
	used := 0
	for i := m.activeTab; i < len(m.filtered.Steps); i++ {
		step := m.filtered.Steps[i]
		label := fmt.Sprintf("%d: %s", step.StepIndex+1, ui.TruncateWithEllipsis(step.StepName, 30))
		style := inactiveTabStyle
		if i == m.activeTab {
			label = fmt.Sprintf("%d: %s / %s", step.StepIndex+1, step.JobName, ui.TruncateWithEllipsis(step.StepName, 30))
			style = activeTabStyle
		}
		tab := style.Render(label)
		used += lipgloss.Width(tab)
		if i != m.activeTab && m.width > 0 && used > m.width-8 {
			break
		}
		tabs = append(tabs, tab)
	}
	return fmt.Sprintf("[%d/%d] ", m.activeTab+1, len(m.filtered.Steps)) +
		lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
}

// renderFilterStatus shows current filter settings.
func (m *LogsViewerModal) renderFilterStatus() string {
	parts := []string{ui.SubtitleStyle.Render(fmt.Sprintf("Filter: %s", m.filterCfg.Level))}

	if m.filterCfg.SearchTerm != "" {
		label := fmt.Sprintf("Search: %q", m.filterCfg.SearchTerm)
		if m.filterCfg.Regex {
			label += " regex"
		}
		if m.filterCfg.CaseSensitive {
			label += " case"
		}
		parts = append(parts, ui.TableDimmedStyle.Render(label))
		if len(m.matchLines) > 0 {
			parts = append(parts, ui.TableDimmedStyle.Render(
				fmt.Sprintf("match %d/%d", max(m.match, 0)+1, len(m.matchLines))))
		}
	}
	if m.filterErr != nil {
		parts = append(parts, ui.ErrorStyle.Render(m.filterErr.Error()))
	}

	parts = append(parts, ui.TableDimmedStyle.Render(fmt.Sprintf("%d entries", m.filtered.TotalEntries())))
	return strings.Join(parts, "  ")
}

func (m *LogsViewerModal) renderHelp() string {
	if m.searchMode {
		return ui.HelpStyle.Render("[enter] apply  [esc] cancel")
	}
	return ui.HelpStyle.Render(
		"[←→/tab] step  [f] level  [/] search  [n/N] match  [c] case  [x] regex  [↑↓] scroll  [q] close",
	)
}

// IsDone returns true if the modal is finished.
func (m *LogsViewerModal) IsDone() bool {
	return m.done
}

// Result returns nil.
func (m *LogsViewerModal) Result() any {
	return nil
}
