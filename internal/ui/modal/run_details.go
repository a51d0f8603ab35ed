package modal

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/kyleking/gh-actionboard/internal/github"
	"github.com/kyleking/gh-actionboard/internal/ui"
)

// DetailsAction is what the user asked for from the details dialog.
type DetailsAction int

const (
	ActionLogs DetailsAction = iota + 1
	ActionErrorLogs
	ActionRerunJob
	ActionOpen
	ActionAttempt
)

// DetailsActionMsg is delivered when the details dialog closes with an action.
type DetailsActionMsg struct {
	Action  DetailsAction
	Details *github.RunDetails
	Job     *github.Job
	Attempt int
}

// RunDetailsModal shows one attempt of a run: its commit, jobs and steps.
type RunDetailsModal struct {
	details  *github.RunDetails
	selected int
	action   *DetailsActionMsg
	done     bool
	keys     runDetailsKeyMap
}

type runDetailsKeyMap struct {
	Close     key.Binding
	Up        key.Binding
	Down      key.Binding
	Logs      key.Binding
	ErrorLogs key.Binding
	RerunJob  key.Binding
	Open      key.Binding
	PrevTry   key.Binding
	NextTry   key.Binding
}

func defaultRunDetailsKeyMap() runDetailsKeyMap {
	return runDetailsKeyMap{
		Close:     key.NewBinding(key.WithKeys("esc", "q")),
		Up:        key.NewBinding(key.WithKeys("up", "k")),
		Down:      key.NewBinding(key.WithKeys("down", "j")),
		Logs:      key.NewBinding(key.WithKeys("l", "enter")),
		ErrorLogs: key.NewBinding(key.WithKeys("e")),
		RerunJob:  key.NewBinding(key.WithKeys("r")),
		Open:      key.NewBinding(key.WithKeys("o")),
		PrevTry:   key.NewBinding(key.WithKeys("[")),
		NextTry:   key.NewBinding(key.WithKeys("]")),
	}
}

// NewRunDetailsModal creates the details dialog.
func NewRunDetailsModal(details *github.RunDetails) *RunDetailsModal {
	return &RunDetailsModal{details: details, keys: defaultRunDetailsKeyMap()}
}

// Details returns the attempt shown.
func (m *RunDetailsModal) Details() *github.RunDetails {
	return m.details
}

// SelectedJob returns the highlighted job, or nil.
func (m *RunDetailsModal) SelectedJob() *github.Job {
	if m.selected < 0 || m.selected >= len(m.details.Jobs) {
		return nil
	}
	return &m.details.Jobs[m.selected]
}

func (m *RunDetailsModal) finish(a DetailsAction) {
	m.action = &DetailsActionMsg{Action: a, Details: m.details, Job: m.SelectedJob()}
	m.done = true
}

// Update handles input for the details dialog.
func (m *RunDetailsModal) Update(msg tea.Msg) (Context, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch {
	case key.Matches(keyMsg, m.keys.Close):
		m.done = true
	case key.Matches(keyMsg, m.keys.Up):
		if m.selected > 0 {
			m.selected--
		}
	case key.Matches(keyMsg, m.keys.Down):
		if m.selected < len(m.details.Jobs)-1 {
			m.selected++
		}
	case key.Matches(keyMsg, m.keys.Logs):
		m.finish(ActionLogs)
	case key.Matches(keyMsg, m.keys.ErrorLogs):
		m.finish(ActionErrorLogs)
	case key.Matches(keyMsg, m.keys.RerunJob):
		if job := m.SelectedJob(); job != nil && job.Status == github.StatusCompleted {
			m.finish(ActionRerunJob)
		}
	case key.Matches(keyMsg, m.keys.Open):
		m.finish(ActionOpen)
	case key.Matches(keyMsg, m.keys.PrevTry):
		if m.details.CurrentAttempt > 1 {
			m.finish(ActionAttempt)
			m.action.Attempt = m.details.CurrentAttempt - 1
		}
	case key.Matches(keyMsg, m.keys.NextTry):
		if m.details.CurrentAttempt < m.details.RunAttempt {
			m.finish(ActionAttempt)
			m.action.Attempt = m.details.CurrentAttempt + 1
		}
	}
	return m, nil
}

// View renders the details dialog.
func (m *RunDetailsModal) View() string {
	d := m.details
	var s strings.Builder

	s.WriteString(ui.TitleStyle.Render(fmt.Sprintf("%s #%d", d.Name, d.RunNumber)))
	s.WriteString("\n")
	s.WriteString(ui.SubtitleStyle.Render(fmt.Sprintf("%s  %s  %s", d.Repository.FullName, d.Branch, d.Event)))
	s.WriteString("\n\n")

	status := d.Status
	if d.Conclusion != "" {
		status = d.Conclusion
	}
	s.WriteString(ui.StatusStyle(d.Status, d.Conclusion).Render(
		fmt.Sprintf("%s %s", ui.StatusIcon(d.Status, d.Conclusion), status)))
	s.WriteString(fmt.Sprintf("  attempt %d of %d", d.CurrentAttempt, d.RunAttempt))
	if d.Duration != nil {
		s.WriteString("  " + formatDuration(time.Duration(*d.Duration)*time.Millisecond))
	}
	s.WriteString("\n")

	if d.Commit.SHA != "" {
		sha := d.Commit.SHA
		if len(sha) > 7 {
			sha = sha[:7]
		}
		subject, _, _ := strings.Cut(d.Commit.Message, "\n")
		s.WriteString(ui.TableDimmedStyle.Render(fmt.Sprintf("%s %s (%s)",
			sha, ui.TruncateWithEllipsis(subject, 60), d.Commit.Author.Name)))
		s.WriteString("\n")
	}
	s.WriteString("\n")

	if len(d.Jobs) == 0 {
		s.WriteString(ui.SubtitleStyle.Render("No jobs"))
		s.WriteString("\n")
	}
	for i, job := range d.Jobs {
		line := fmt.Sprintf("%s %s", ui.StatusIcon(job.Status, job.Conclusion), job.Name)
		if dur, ok := span(job.StartedAt, job.CompletedAt); ok {
			line += "  " + formatDuration(dur)
		}
		if i == m.selected {
			s.WriteString(ui.SelectedStyle.Render("> " + line))
			s.WriteString("\n")
			for _, step := range job.Steps {
				s.WriteString(ui.StatusStyle(step.Status, step.Conclusion).Render(
					fmt.Sprintf("    %s %d. %s", ui.StatusIcon(step.Status, step.Conclusion), step.Number, step.Name)))
				s.WriteString("\n")
			}
			continue
		}
		s.WriteString(ui.StatusStyle(job.Status, job.Conclusion).Render("  " + line))
		s.WriteString("\n")
	}

	s.WriteString("\n")
	s.WriteString(ui.HelpStyle.Render("[↑↓] job  [l] logs  [e] errors  [r] re-run job  [o] open  [ [ ] ] attempt  [esc] close"))
	return s.String()
}

// IsDone returns true once closed.
func (m *RunDetailsModal) IsDone() bool {
	return m.done
}

// Result returns the chosen DetailsActionMsg, or nil when closed.
func (m *RunDetailsModal) Result() any {
	if m.action == nil {
		return nil
	}
	return *m.action
}

func span(start, end *time.Time) (time.Duration, bool) {
	if start == nil || end == nil || end.Before(*start) {
		return 0, false
	}
	return end.Sub(*start), true
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}
