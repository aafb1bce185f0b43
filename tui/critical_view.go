package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/harperreed/relance/models"
)

func (m *Model) loadCritical() {
	dossiers, err := m.svc.CriticalDossiers(context.Background(), criticalLimit)
	if err != nil {
		m.err = err
		return
	}
	m.critical = dossiers
	if m.selectedRow >= len(dossiers) {
		m.selectedRow = 0
	}
}

func (m Model) renderCriticalView() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render("RELANCE"))
	s.WriteString("\n\n")
	s.WriteString(m.renderTabs())
	s.WriteString("\n\n")

	if len(m.critical) == 0 {
		s.WriteString("No critical dossiers\n")
	} else {
		s.WriteString(m.renderCriticalTable())
	}
	s.WriteString("\n")

	if status := m.renderStatus(); status != "" {
		s.WriteString(status)
		s.WriteString("\n")
	}
	s.WriteString(m.renderCriticalHelp())

	return s.String()
}

func (m Model) renderCriticalTable() string {
	columns := []table.Column{
		{Title: "Risk", Width: 8},
		{Title: "Client", Width: 28},
		{Title: "Status", Width: 12},
		{Title: "Days", Width: 6},
		{Title: "Outstanding", Width: 14},
		{Title: "Last contact", Width: 12},
	}

	var rows []table.Row
	for i := range m.critical {
		d := &m.critical[i]
		last := "never"
		if d.LastContact != nil {
			last = models.FormatDate(*d.LastContact)
		}
		rows = append(rows, table.Row{
			string(models.Classify(d)),
			d.ClientName,
			string(d.Status),
			fmt.Sprintf("%d", d.DaysOverdue),
			d.TotalAmount.StringFixed(2),
			last,
		})
	}

	height := m.height - 10
	if height < 3 {
		height = 3
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithRows(rows),
		table.WithFocused(true),
		table.WithHeight(height),
	)

	if m.selectedRow < len(rows) {
		t.SetCursor(m.selectedRow)
	}

	return t.View()
}

func (m Model) renderCriticalHelp() string {
	help := []string{
		"↑/↓: Navigate",
		"Enter: View dossier",
		"t: Run tick",
		"Tab: Calendar",
		"q: Quit",
	}
	return helpStyle.Render(strings.Join(help, " • "))
}

func (m Model) handleCriticalKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if m.selectedRow > 0 {
			m.selectedRow--
		}
	case "down", "j":
		if m.selectedRow < len(m.critical)-1 {
			m.selectedRow++
		}
	case "tab":
		m.viewMode = ViewCalendar
		m.loadGrid()
	case "enter":
		if m.selectedRow < len(m.critical) {
			m.selectedID = m.critical[m.selectedRow].ID
			m.returnTo = ViewCritical
			m.viewMode = ViewDetail
		}
	}

	return m, nil
}
