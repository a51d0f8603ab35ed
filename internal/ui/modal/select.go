package modal

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/kyleking/gh-actionboard/internal/ui"
)

// SelectResultMsg is delivered when an option is chosen.
type SelectResultMsg struct {
	ID    string
	Value string
}

// SelectModal picks one value from a list.
type SelectModal struct {
	id       string
	title    string
	options  []string
	labels   map[string]string
	selected int
	chosen   bool
	done     bool
	keys     selectKeyMap
}

type selectKeyMap struct {
	Up     key.Binding
	Down   key.Binding
	Enter  key.Binding
	Cancel key.Binding
}

func defaultSelectKeyMap() selectKeyMap {
	return selectKeyMap{
		Up:     key.NewBinding(key.WithKeys("up", "k")),
		Down:   key.NewBinding(key.WithKeys("down", "j")),
		Enter:  key.NewBinding(key.WithKeys("enter")),
		Cancel: key.NewBinding(key.WithKeys("esc", "q")),
	}
}

// NewSelectModal creates a picker over options with current preselected.
// labels, when set, replaces the displayed text of an option.
func NewSelectModal(id, title string, options []string, current string, labels map[string]string) *SelectModal {
	m := &SelectModal{id: id, title: title, options: options, labels: labels, keys: defaultSelectKeyMap()}
	for i, o := range options {
		if o == current {
			m.selected = i
		}
	}
	return m
}

// Update handles input for the picker.
func (m *SelectModal) Update(msg tea.Msg) (Context, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch {
	case key.Matches(keyMsg, m.keys.Up):
		if m.selected > 0 {
			m.selected--
		}
	case key.Matches(keyMsg, m.keys.Down):
		if m.selected < len(m.options)-1 {
			m.selected++
		}
	case key.Matches(keyMsg, m.keys.Enter):
		m.chosen = len(m.options) > 0
		m.done = true
	case key.Matches(keyMsg, m.keys.Cancel):
		m.done = true
	}
	return m, nil
}

// View renders the picker.
func (m *SelectModal) View() string {
	var s strings.Builder
	s.WriteString(ui.TitleStyle.Render(m.title))
	s.WriteString("\n\n")
	if len(m.options) == 0 {
		s.WriteString(ui.SubtitleStyle.Render("Nothing to choose"))
		s.WriteString("\n")
	}
	for i, o := range m.options {
		label := o
		if l, ok := m.labels[o]; ok {
			label = l
		}
		if i == m.selected {
			s.WriteString(ui.SelectedStyle.Render("> " + label))
		} else {
			s.WriteString(ui.NormalStyle.Render("  " + label))
		}
		s.WriteString("\n")
	}
	s.WriteString("\n")
	s.WriteString(ui.HelpStyle.Render("[↑↓] move  [enter] select  [esc] cancel"))
	return s.String()
}

// IsDone returns true once a choice was made or cancelled.
func (m *SelectModal) IsDone() bool {
	return m.done
}

// Result returns a SelectResultMsg, or nil when cancelled.
func (m *SelectModal) Result() any {
	if !m.chosen {
		return nil
	}
	return SelectResultMsg{ID: m.id, Value: m.options[m.selected]}
}
