package panes

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kyleking/gh-actionboard/internal/github"
	"github.com/kyleking/gh-actionboard/internal/ui"
)

func formatTimeAgo(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	default:
		return t.Format("Jan 2")
	}
}

// RunsModel manages the run list pane.
type RunsModel struct {
	runs          []github.WorkflowRun
	retrying      map[int64]bool
	selectedIndex int
	scrollOffset  int
	focused       bool
	width         int
	height        int
	title         string
}

// NewRunsModel creates a new run list pane.
func NewRunsModel() RunsModel {
	return RunsModel{retrying: map[int64]bool{}, title: "Workflow Runs"}
}

// SetRuns replaces the listed runs, keeping the selected run when it is
// still present.
func (m *RunsModel) SetRuns(runs []github.WorkflowRun) {
	var selectedID int64
	if r := m.SelectedRun(); r != nil {
		selectedID = r.ID
	}
	m.runs = runs

	m.selectedIndex = min(m.selectedIndex, max(len(runs)-1, 0))
	for i, r := range runs {
		if r.ID == selectedID {
			m.selectedIndex = i
			break
		}
	}
	m.clampScroll()
}

// SetRetrying marks or unmarks a run as waiting for its re-run refresh.
func (m *RunsModel) SetRetrying(id int64, retrying bool) {
	if retrying {
		m.retrying[id] = true
	} else {
		delete(m.retrying, id)
	}
}

// SetTitle changes the pane title.
func (m *RunsModel) SetTitle(title string) {
	m.title = title
}

// SetSize updates the pane dimensions.
func (m *RunsModel) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.clampScroll()
}

// SetFocused updates the focus state.
func (m *RunsModel) SetFocused(focused bool) {
	m.focused = focused
}

// Len returns the number of listed runs.
func (m RunsModel) Len() int {
	return len(m.runs)
}

// MoveUp moves selection up.
func (m *RunsModel) MoveUp() {
	if m.selectedIndex > 0 {
		m.selectedIndex--
	}
	m.clampScroll()
}

// MoveDown moves selection down.
func (m *RunsModel) MoveDown() {
	if m.selectedIndex < len(m.runs)-1 {
		m.selectedIndex++
	}
	m.clampScroll()
}

// PageDown moves selection one screen down.
func (m *RunsModel) PageDown() {
	m.selectedIndex = min(m.selectedIndex+m.visibleRows(), max(len(m.runs)-1, 0))
	m.clampScroll()
}

// PageUp moves selection one screen up.
func (m *RunsModel) PageUp() {
	m.selectedIndex = max(m.selectedIndex-m.visibleRows(), 0)
	m.clampScroll()
}

// visibleRows is the number of run rows that fit under the title and
// header inside the border.
func (m RunsModel) visibleRows() int {
	return max(m.height-4, 1)
}

func (m *RunsModel) clampScroll() {
	rows := m.visibleRows()
	if m.selectedIndex < m.scrollOffset {
		m.scrollOffset = m.selectedIndex
	}
	if m.selectedIndex >= m.scrollOffset+rows {
		m.scrollOffset = m.selectedIndex - rows + 1
	}
	m.scrollOffset = max(min(m.scrollOffset, len(m.runs)-rows), 0)
}

// Update handles messages for the run list pane.
func (m RunsModel) Update(msg tea.Msg) (RunsModel, tea.Cmd) {
	return m, nil
}

// View renders the run list pane.
func (m RunsModel) View() string {
	style := ui.PaneStyle(m.width, m.height, m.focused)
	title := fmt.Sprintf("%s (%d)", m.title, len(m.runs))
	return style.Render(ui.TitleStyle.Render(title) + "\n" + m.ViewContent())
}

const (
	repoWidth     = 24
	workflowWidth = 22
	branchWidth   = 16
)

// ViewContent renders just the list content without the pane border.
func (m RunsModel) ViewContent() string {
	if len(m.runs) == 0 {
		var content strings.Builder
		content.WriteString(ui.SubtitleStyle.Render("No workflow runs"))
		content.WriteString("\n\n")
		content.WriteString(ui.NormalStyle.Render("Runs appear here once loaded,"))
		content.WriteString("\n")
		content.WriteString(ui.NormalStyle.Render("or clear the filter with [esc]."))
		return content.String()
	}

	var content strings.Builder
	content.WriteString(ui.TableHeaderStyle.Render(
		"    " + ui.PadRight("Repository", repoWidth) + "  " +
			ui.PadRight("Workflow", workflowWidth) + "  " +
			ui.PadRight("Branch", branchWidth) + "  " +
			ui.PadRight("#", 6) + "  Updated"))
	content.WriteString("\n")

	end := min(m.scrollOffset+m.visibleRows(), len(m.runs))
	for i := m.scrollOffset; i < end; i++ {
		content.WriteString(m.renderRow(i))
		if i < end-1 {
			content.WriteString("\n")
		}
	}
	return content.String()
}

func (m RunsModel) renderRow(i int) string {
	run := m.runs[i]

	indicator := "  "
	if i == m.selectedIndex {
		indicator = "> "
	}
	icon := ui.StatusIcon(run.Status, run.Conclusion)
	if m.retrying[run.ID] {
		icon = "↻"
	}

	row := indicator + icon + " " +
		ui.PadRight(ui.TruncateWithEllipsis(run.Repository.FullName, repoWidth), repoWidth) + "  " +
		ui.PadRight(ui.TruncateWithEllipsis(run.Name, workflowWidth), workflowWidth) + "  " +
		ui.PadRight(ui.TruncateWithEllipsis(run.Branch, branchWidth), branchWidth) + "  " +
		ui.PadRight(fmt.Sprintf("%d", run.RunNumber), 6) + "  " +
		formatTimeAgo(run.UpdatedAt)

	if i == m.selectedIndex {
		return ui.TableSelectedStyle.Render(row)
	}
	return ui.StatusStyle(run.Status, run.Conclusion).Render(row)
}

// SelectedRun returns the currently selected run.
func (m RunsModel) SelectedRun() *github.WorkflowRun {
	if len(m.runs) == 0 || m.selectedIndex >= len(m.runs) {
		return nil
	}
	return &m.runs[m.selectedIndex]
}

// RunSelectedMsg is sent when a run is opened.
type RunSelectedMsg struct {
	Run github.WorkflowRun
}

// HandleSelect processes a selection and returns a message.
func (m RunsModel) HandleSelect() tea.Cmd {
	run := m.SelectedRun()
	if run == nil {
		return nil
	}
	selected := *run
	return func() tea.Msg {
		return RunSelectedMsg{Run: selected}
	}
}
