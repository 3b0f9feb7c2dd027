// Package tui provides the terminal UI for watching the outcome ledger live.
// It is a read-only surface: remediation happens in the serve agent, this
// view only polls what the recorder has written.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"guardian-agent/src/contracts"
)

// refreshInterval is how often the ledger is re-polled.
const refreshInterval = 2 * time.Second

// Source is the slice of the recorder the watch view reads.
type Source interface {
	All(ctx context.Context) ([]contracts.OutcomeRecord, error)
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			Padding(0, 1)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("244")).
			Padding(0, 1)

	detailHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("10")).
				Padding(0, 1)

	detailBodyStyle = lipgloss.NewStyle().Padding(0, 2)
)

type outcomesMsg []contracts.OutcomeRecord

type refreshErrMsg struct{ err error }

type tickMsg time.Time

// Model is the Bubble Tea model for the watch view.
type Model struct {
	source Source
	list   list.Model

	showDetail bool
	width      int
	height     int
	lastErr    error
}

// NewModel creates the watch model over a ledger source.
func NewModel(source Source) Model {
	l := list.New(nil, Delegate{}, 0, 0)
	l.SetShowTitle(false)
	l.SetShowStatusBar(false)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)

	return Model{source: source, list: l}
}

// Run starts the watch TUI and blocks until the user quits.
func Run(source Source) error {
	_, err := tea.NewProgram(NewModel(source), tea.WithAltScreen()).Run()
	return err
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(refreshCmd(m.source), tickCmd())
}

func refreshCmd(source Source) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), refreshInterval)
		defer cancel()

		records, err := source.All(ctx)
		if err != nil {
			return refreshErrMsg{err: err}
		}
		return outcomesMsg(records)
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.list.SetSize(msg.Width, msg.Height-4)
		return m, nil

	case tickMsg:
		return m, tea.Batch(refreshCmd(m.source), tickCmd())

	case outcomesMsg:
		m.lastErr = nil
		return m.setRecords(msg), nil

	case refreshErrMsg:
		m.lastErr = msg.err
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "enter":
			if len(m.list.Items()) > 0 {
				m.showDetail = true
			}
			return m, nil
		case "esc":
			m.showDetail = false
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// setRecords replaces the list contents, keeping the cursor on the same row
// where possible.
func (m Model) setRecords(records []contracts.OutcomeRecord) Model {
	items := make([]list.Item, len(records))
	for i, rec := range records {
		items[i] = Item{Record: rec}
	}

	cursor := m.list.Index()
	m.list.SetItems(items)
	if cursor < len(items) {
		m.list.Select(cursor)
	}
	return m
}

func (m Model) View() string {
	header := titleStyle.Render(fmt.Sprintf("guardian watch · %d outcomes", len(m.list.Items())))
	if m.lastErr != nil {
		header += failedStyle.Render(fmt.Sprintf("  (refresh failed: %v)", m.lastErr))
	}

	if m.showDetail {
		return header + "\n" + m.detailView() + "\n" + helpStyle.Render("esc back · q quit")
	}
	return header + "\n" + m.list.View() + "\n" + helpStyle.Render("↑/↓ move · enter detail · q quit")
}

func (m Model) detailView() string {
	item, ok := m.list.SelectedItem().(Item)
	if !ok {
		return detailBodyStyle.Render("nothing selected")
	}
	rec := item.Record

	var b strings.Builder
	b.WriteString(detailHeaderStyle.Render(item.Title()) + "\n\n")
	fmt.Fprintf(&b, "Category:   %s (confidence %.2f)\n", rec.Diagnosis.Category, rec.Diagnosis.Confidence)
	fmt.Fprintf(&b, "Summary:    %s\n", rec.Diagnosis.Summary)
	if rec.Diagnosis.SuggestedFix != "" {
		fmt.Fprintf(&b, "Fix:        %s\n", rec.Diagnosis.SuggestedFix)
	}
	fmt.Fprintf(&b, "Plan:       %s · %s\n", rec.Plan.Kind, rec.Plan.Rationale)
	fmt.Fprintf(&b, "Outcome:    %s · %s\n", statusStyle(rec.Outcome.Status).Render(string(rec.Outcome.Status)), rec.Outcome.Detail)
	if !rec.Outcome.CompletedAt.IsZero() {
		fmt.Fprintf(&b, "Completed:  %s\n", rec.Outcome.CompletedAt.Format(time.RFC3339))
	}
	return detailBodyStyle.Render(b.String())
}
