// Package tui provides the interactive conflict review screen. It lists
// the field conflicts the ledger has surfaced and lets an operator resolve
// each one by choosing the stored or the incoming value.
package tui

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Veraticus/inward-bound/internal/model"
	"github.com/Veraticus/inward-bound/internal/service"
)

var (
	baseStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("240"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			MarginTop(1)

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#4ECDC4")).
			MarginTop(1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B")).
			MarginTop(1)
)

// conflictResolvedMsg reports the outcome of one resolve call.
type conflictResolvedMsg struct {
	err error
	id  string
}

// Model is the bubbletea model for the conflict review screen.
type Model struct {
	ctx       context.Context
	storage   service.Storage
	table     table.Model
	conflicts []model.FieldConflict
	status    string
	err       error
	quitting  bool
}

// NewModel builds the review screen over the currently open conflicts.
func NewModel(ctx context.Context, storage service.Storage, conflicts []model.FieldConflict) Model {
	columns := []table.Column{
		{Title: "Reference", Width: 18},
		{Title: "Field", Width: 12},
		{Title: "Stored", Width: 20},
		{Title: "Incoming", Width: 20},
		{Title: "Detected", Width: 16},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithRows(conflictRows(conflicts)),
		table.WithFocused(true),
		table.WithHeight(12),
	)

	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true)
	styles.Selected = styles.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(styles)

	return Model{
		ctx:       ctx,
		storage:   storage,
		table:     t,
		conflicts: conflicts,
	}
}

// Init implements tea.Model.
func (Model) Init() tea.Cmd { return nil }

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "s":
			return m.resolveSelected(false)
		case "i":
			return m.resolveSelected(true)
		}
	case conflictResolvedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.status = fmt.Sprintf("Resolved conflict %s", msg.id)
		m.removeConflict(msg.id)
		if len(m.conflicts) == 0 {
			m.quitting = true
			return m, tea.Quit
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if len(m.conflicts) == 0 {
		return statusStyle.Render("No open conflicts.") + "\n"
	}

	view := baseStyle.Render(m.table.View())
	view += helpStyle.Render("\n[s] keep stored   [i] take incoming   [q] quit")
	if m.status != "" {
		view += statusStyle.Render("\n" + m.status)
	}
	if m.err != nil {
		view += errorStyle.Render("\n" + m.err.Error())
	}
	return view + "\n"
}

// resolveSelected resolves the highlighted conflict.
func (m Model) resolveSelected(keepIncoming bool) (tea.Model, tea.Cmd) {
	idx := m.table.Cursor()
	if idx < 0 || idx >= len(m.conflicts) {
		return m, nil
	}
	conflict := m.conflicts[idx]

	return m, func() tea.Msg {
		err := m.storage.ResolveConflict(m.ctx, conflict.ID, keepIncoming)
		return conflictResolvedMsg{id: conflict.ID, err: err}
	}
}

// removeConflict drops a resolved conflict from the table.
func (m *Model) removeConflict(id string) {
	remaining := make([]model.FieldConflict, 0, len(m.conflicts))
	for _, c := range m.conflicts {
		if c.ID != id {
			remaining = append(remaining, c)
		}
	}
	m.conflicts = remaining
	m.table.SetRows(conflictRows(remaining))
	if cursor := m.table.Cursor(); cursor >= len(remaining) && cursor > 0 {
		m.table.SetCursor(len(remaining) - 1)
	}
}

func conflictRows(conflicts []model.FieldConflict) []table.Row {
	rows := make([]table.Row, len(conflicts))
	for i, c := range conflicts {
		rows[i] = table.Row{
			c.Reference,
			c.Field,
			c.StoredValue,
			c.IncomingValue,
			c.DetectedAt.Format("2006-01-02 15:04"),
		}
	}
	return rows
}

// Run opens the review screen and blocks until the operator quits or
// every conflict is resolved.
func Run(ctx context.Context, storage service.Storage) error {
	conflicts, err := storage.ListOpenConflicts(ctx)
	if err != nil {
		return fmt.Errorf("loading conflicts: %w", err)
	}

	program := tea.NewProgram(NewModel(ctx, storage, conflicts), tea.WithContext(ctx))
	_, err = program.Run()
	return err
}
