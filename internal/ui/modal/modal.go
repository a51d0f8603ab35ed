// Package modal holds the dialogs layered over the dashboard.
package modal

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kyleking/gh-actionboard/internal/ui"
)

// Context is a dialog on the stack. Once IsDone reports true the stack pops
// it and delivers Result, when non-nil, as a message.
type Context interface {
	Update(msg tea.Msg) (Context, tea.Cmd)
	View() string
	IsDone() bool
	Result() any
}

// Stack holds the open dialogs; only the top one receives input.
type Stack struct {
	modals []Context
	width  int
	height int
}

// NewStack creates an empty stack.
func NewStack() *Stack {
	return &Stack{}
}

// Push opens m on top of the stack.
func (s *Stack) Push(m Context) {
	s.modals = append(s.modals, m)
}

// HasActive reports whether any dialog is open.
func (s *Stack) HasActive() bool {
	return len(s.modals) > 0
}

// Top returns the dialog receiving input, or nil.
func (s *Stack) Top() Context {
	if len(s.modals) == 0 {
		return nil
	}
	return s.modals[len(s.modals)-1]
}

// Len returns the number of open dialogs.
func (s *Stack) Len() int {
	return len(s.modals)
}

// SetSize records the terminal size used to place dialogs.
func (s *Stack) SetSize(width, height int) {
	s.width = width
	s.height = height
}

// Update forwards msg to the top dialog and pops it when it finishes.
func (s *Stack) Update(msg tea.Msg) tea.Cmd {
	top := s.Top()
	if top == nil {
		return nil
	}
	next, cmd := top.Update(msg)
	if !next.IsDone() {
		s.modals[len(s.modals)-1] = next
		return cmd
	}

	s.modals = s.modals[:len(s.modals)-1]
	result := next.Result()
	if result == nil {
		return cmd
	}
	return tea.Batch(cmd, func() tea.Msg { return result })
}

// Render draws the top dialog centered over the screen.
func (s *Stack) Render(background string) string {
	top := s.Top()
	if top == nil {
		return background
	}
	box := ui.ModalStyle.Render(top.View())
	if s.width == 0 || s.height == 0 {
		return box
	}
	return lipgloss.Place(s.width, s.height, lipgloss.Center, lipgloss.Center, box)
}
