package panes

import (
	"fmt"
	"strings"

	"github.com/kyleking/gh-actionboard/internal/billing"
	"github.com/kyleking/gh-actionboard/internal/engine"
	"github.com/kyleking/gh-actionboard/internal/ui"
	"github.com/kyleking/gh-actionboard/internal/workflows"
)

// SummaryModel is the dashboard header: who is signed in, the load state
// and outcome counts of the listed runs.
type SummaryModel struct {
	User        string
	Billing     billing.Config
	State       engine.State
	Summary     workflows.Summary
	Loaded      int
	Planned     int
	BatchErrors int
	width       int
}

// SetWidth updates the header width.
func (m *SummaryModel) SetWidth(width int) {
	m.width = width
}

// View renders the header.
func (m SummaryModel) View() string {
	var top []string
	top = append(top, ui.TitleStyle.Render("gh-actionboard"))
	if m.User != "" {
		top = append(top, ui.NormalStyle.Render("@"+m.User))
	}
	if m.Billing.BillingEnabled {
		top = append(top, ui.SubtitleStyle.Render(fmt.Sprintf("%s plan, %d days", m.Billing.UserTier, m.Billing.MaxDays)))
	} else if m.Billing.MaxDays > 0 {
		top = append(top, ui.SubtitleStyle.Render(fmt.Sprintf("%d days", m.Billing.MaxDays)))
	}
	top = append(top, m.stateLabel())

	s := m.Summary
	counts := strings.Join([]string{
		fmt.Sprintf("%d runs", s.Total),
		ui.SuccessStyle.Render(fmt.Sprintf("+%d", s.Success)),
		ui.ErrorStyle.Render(fmt.Sprintf("x%d", s.Failure)),
		ui.WarningStyle.Render(fmt.Sprintf("-%d", s.Cancelled)),
		ui.RunningStyle.Render(fmt.Sprintf("*%d", s.InProgress)),
		ui.TableDimmedStyle.Render(fmt.Sprintf("o%d", s.Queued)),
		fmt.Sprintf("%.1f%% success", s.SuccessRate()),
	}, "  ")

	return strings.Join(top, "  ") + "\n" + counts
}

func (m SummaryModel) stateLabel() string {
	switch {
	case m.State.Loading():
		label := fmt.Sprintf("loading %d/%d batches", m.Loaded, m.Planned)
		if m.State == engine.FullRefresh {
			label = "refreshing, " + label
		}
		return ui.RunningStyle.Render(label)
	case m.BatchErrors > 0:
		return ui.WarningStyle.Render(fmt.Sprintf("%d batches failed, [L] to retry", m.BatchErrors))
	case m.State == engine.Ready:
		return ui.SuccessStyle.Render("synced")
	default:
		return ui.TableDimmedStyle.Render(m.State.String())
	}
}
