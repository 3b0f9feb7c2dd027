package tui

import (
	"fmt"
	"io"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"guardian-agent/src/contracts"
)

// Item wraps one ledger record and implements bubbles/list.Item.
type Item struct {
	Record contracts.OutcomeRecord
}

// FilterValue is the value used for fuzzy filtering.
func (i Item) FilterValue() string { return i.Record.Diagnosis.Summary }

// Title returns the primary text for the item.
func (i Item) Title() string {
	return fmt.Sprintf("pipeline %d / job %d", i.Record.Event.PipelineID, i.Record.Plan.TargetJobID)
}

// Description returns the secondary text for the item.
func (i Item) Description() string { return i.Record.Outcome.Detail }

var (
	succeededStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10")) // green
	failedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))  // red
	partialStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11")) // yellow
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	cursorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
)

func statusStyle(status contracts.OutcomeStatus) lipgloss.Style {
	switch status {
	case contracts.OutcomeSucceeded:
		return succeededStyle
	case contracts.OutcomeFailed:
		return failedStyle
	default:
		return partialStyle
	}
}

// Delegate renders outcome items as compact single-line rows.
type Delegate struct{}

func (d Delegate) Height() int  { return 1 }
func (d Delegate) Spacing() int { return 0 }

func (d Delegate) Update(msg tea.Msg, m *list.Model) tea.Cmd { return nil }

func (d Delegate) Render(w io.Writer, m list.Model, index int, listItem list.Item) {
	item, ok := listItem.(Item)
	if !ok {
		return
	}

	rec := item.Record
	// Truncate before styling so escape codes are never cut mid-sequence.
	plain := fmt.Sprintf("%-22s %-20s %-12s",
		item.Title(),
		string(rec.Diagnosis.Category),
		string(rec.Plan.Kind))
	if max := m.Width() - 4 - len(rec.Outcome.Status); max > 0 {
		plain = runewidth.Truncate(plain, max, "…")
	}
	row := plain + " " + statusStyle(rec.Outcome.Status).Render(string(rec.Outcome.Status))

	if index == m.Index() {
		fmt.Fprint(w, cursorStyle.Render("> ")+row)
		return
	}
	fmt.Fprint(w, "  "+row)
}
