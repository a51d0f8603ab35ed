package modal

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/kyleking/gh-actionboard/internal/ui"
)

// ConfirmResultMsg is delivered when a confirm dialog is answered. ID
// identifies the question.
type ConfirmResultMsg struct {
	ID    string
	Value bool
}

// ConfirmModal asks a yes/no question.
type ConfirmModal struct {
	id      string
	title   string
	message string
	value   bool
	done    bool
	keys    confirmKeyMap
}

type confirmKeyMap struct {
	Yes    key.Binding
	No     key.Binding
	Toggle key.Binding
	Enter  key.Binding
	Cancel key.Binding
}

func defaultConfirmKeyMap() confirmKeyMap {
	return confirmKeyMap{
		Yes:    key.NewBinding(key.WithKeys("y", "Y")),
		No:     key.NewBinding(key.WithKeys("n", "N")),
		Toggle: key.NewBinding(key.WithKeys("left", "right", "h", "l", "tab")),
		Enter:  key.NewBinding(key.WithKeys("enter")),
		Cancel: key.NewBinding(key.WithKeys("esc", "q")),
	}
}

// NewConfirmModal creates a dialog that defaults to No.
func NewConfirmModal(id, title, message string) *ConfirmModal {
	return &ConfirmModal{id: id, title: title, message: message, keys: defaultConfirmKeyMap()}
}

// Update handles input for the confirm dialog.
func (m *ConfirmModal) Update(msg tea.Msg) (Context, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch {
	case key.Matches(keyMsg, m.keys.Yes):
		m.value, m.done = true, true
	case key.Matches(keyMsg, m.keys.No), key.Matches(keyMsg, m.keys.Cancel):
		m.value, m.done = false, true
	case key.Matches(keyMsg, m.keys.Toggle):
		m.value = !m.value
	case key.Matches(keyMsg, m.keys.Enter):
		m.done = true
	}
	return m, nil
}

// View renders the confirm dialog.
func (m *ConfirmModal) View() string {
	var s strings.Builder
	s.WriteString(ui.TitleStyle.Render(m.title))
	s.WriteString("\n\n")
	if m.message != "" {
		s.WriteString(ui.WordWrap(m.message, 60))
		s.WriteString("\n\n")
	}

	yes, no := ui.NormalStyle.Render("  Yes  "), ui.SelectedStyle.Render("[ No ]")
	if m.value {
		yes, no = ui.SelectedStyle.Render("[ Yes ]"), ui.NormalStyle.Render("  No  ")
	}
	s.WriteString(yes + "  " + no)
	s.WriteString("\n\n")
	s.WriteString(ui.HelpStyle.Render("[y/n] answer  [←→] toggle  [enter] confirm  [esc] cancel"))
	return s.String()
}

// IsDone returns true once answered.
func (m *ConfirmModal) IsDone() bool {
	return m.done
}

// Result returns a ConfirmResultMsg.
func (m *ConfirmModal) Result() any {
	return ConfirmResultMsg{ID: m.id, Value: m.value}
}
