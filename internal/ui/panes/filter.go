package panes

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/kyleking/gh-actionboard/internal/ui"
	"github.com/kyleking/gh-actionboard/internal/workflows"
)

// FilterModel holds the search box and the owner, repository and branch
// selection.
type FilterModel struct {
	input  textinput.Model
	filter workflows.Filter
	width  int
}

// NewFilterModel creates an empty filter bar.
func NewFilterModel() FilterModel {
	in := textinput.New()
	in.Placeholder = "name, repository or sha"
	in.Prompt = "/ "
	in.CharLimit = 100
	return FilterModel{input: in}
}

// Filter returns the current filter.
func (m FilterModel) Filter() workflows.Filter {
	return m.filter
}

// SetWidth updates the bar width.
func (m *FilterModel) SetWidth(width int) {
	m.width = width
	m.input.Width = max(width-40, 10)
}

// Focus starts editing the search query.
func (m *FilterModel) Focus() tea.Cmd {
	return m.input.Focus()
}

// Blur stops editing.
func (m *FilterModel) Blur() {
	m.input.Blur()
}

// Focused reports whether the search box has focus.
func (m FilterModel) Focused() bool {
	return m.input.Focused()
}

// SetOwner selects an owner. A repository of another owner is deselected.
func (m *FilterModel) SetOwner(owner string) {
	m.filter.Owner = owner
	if owner != "" && m.filter.Repo != "" && !strings.HasPrefix(m.filter.Repo, owner+"/") {
		m.filter.Repo = ""
		m.filter.Branch = ""
	}
}

// SetRepo selects a repository by full name. The branch is reset.
func (m *FilterModel) SetRepo(repo string) {
	if repo != m.filter.Repo {
		m.filter.Branch = ""
	}
	m.filter.Repo = repo
}

// SetBranch selects a branch.
func (m *FilterModel) SetBranch(branch string) {
	m.filter.Branch = branch
}

// SetQuery replaces the search query.
func (m *FilterModel) SetQuery(q string) {
	m.input.SetValue(q)
	m.filter.Query = strings.TrimSpace(q)
}

// ToggleFuzzy switches between substring and fuzzy search.
func (m *FilterModel) ToggleFuzzy() {
	m.filter.Fuzzy = !m.filter.Fuzzy
}

// Clear resets the whole filter, keeping the search mode.
func (m *FilterModel) Clear() {
	m.input.SetValue("")
	m.filter = workflows.Filter{Fuzzy: m.filter.Fuzzy}
}

// Update forwards key input to the search box while it has focus.
func (m FilterModel) Update(msg tea.Msg) (FilterModel, tea.Cmd) {
	if !m.input.Focused() {
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	m.filter.Query = strings.TrimSpace(m.input.Value())
	return m, cmd
}

// View renders the filter bar.
func (m FilterModel) View() string {
	var parts []string
	if m.input.Focused() || m.filter.Query != "" {
		parts = append(parts, m.input.View())
	} else {
		parts = append(parts, ui.HelpStyle.Render("[/] search"))
	}
	mode := "substring"
	if m.filter.Fuzzy {
		mode = "fuzzy"
	}
	parts = append(parts, ui.TableDimmedStyle.Render("("+mode+")"))

	for _, sel := range []struct{ label, value string }{
		{"owner", m.filter.Owner},
		{"repo", m.filter.Repo},
		{"branch", m.filter.Branch},
	} {
		if sel.value == "" {
			continue
		}
		parts = append(parts, ui.SelectedStyle.Render(sel.label+":"+sel.value))
	}
	return strings.Join(parts, "  ")
}
