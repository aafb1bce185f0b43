package tui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"github.com/harperreed/relance/db"
	"github.com/harperreed/relance/models"
)

var (
	dayStyle = lipgloss.NewStyle().
			Width(7).
			Align(lipgloss.Center)

	outsideDayStyle = dayStyle.
			Foreground(lipgloss.Color("238"))

	busyDayStyle = dayStyle.
			Foreground(lipgloss.Color("214"))

	todayStyle = dayStyle.
			Underline(true)

	cursorStyle = dayStyle.
			Bold(true).
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("62"))

	weekdayStyle = dayStyle.
			Foreground(lipgloss.Color("240"))
)

// loadGrid refreshes the month around the cursor with its events.
func (m *Model) loadGrid() {
	grid, err := m.svc.Scheduler().GridWithEvents(context.Background(), m.cursor.Year(), m.cursor.Month())
	if err != nil {
		m.err = err
		return
	}
	m.grid = grid
}

// moveCursor shifts the selected day, reloading when the month changes.
func (m *Model) moveCursor(days int) {
	next := m.cursor.AddDate(0, 0, days)
	sameMonth := next.Month() == m.cursor.Month() && next.Year() == m.cursor.Year()
	m.cursor = next
	if !sameMonth {
		m.loadGrid()
	}
}

// selectedEvents returns the events of the day under the cursor.
func (m Model) selectedEvents() []models.RelanceEvent {
	for _, day := range m.grid.Days {
		if models.SameDay(day.Date, m.cursor) {
			return day.Events
		}
	}
	return nil
}

func (m Model) renderCalendarView() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render("RELANCE"))
	s.WriteString("\n\n")
	s.WriteString(m.renderTabs())
	s.WriteString("\n\n")

	s.WriteString(lipgloss.NewStyle().Bold(true).Render(fmt.Sprintf("%s %d", m.grid.Month, m.grid.Year)))
	s.WriteString("\n")
	s.WriteString(m.renderMonth())
	s.WriteString("\n")

	s.WriteString(m.renderAgenda())
	s.WriteString("\n")

	if status := m.renderStatus(); status != "" {
		s.WriteString(status)
		s.WriteString("\n")
	}
	s.WriteString(m.renderCalendarHelp())

	return s.String()
}

func (m Model) renderMonth() string {
	var rows []string

	var header []string
	for _, name := range []string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"} {
		header = append(header, weekdayStyle.Render(name))
	}
	rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, header...))

	for _, week := range m.grid.Weeks() {
		var cells []string
		for _, day := range week {
			label := fmt.Sprintf("%d", day.Date.Day())
			if n := len(day.Events); n > 0 {
				label = fmt.Sprintf("%d·%d", day.Date.Day(), n)
			}

			style := dayStyle
			switch {
			case models.SameDay(day.Date, m.cursor):
				style = cursorStyle
			case !day.InMonth:
				style = outsideDayStyle
			case day.IsToday:
				style = todayStyle
			case len(day.Events) > 0:
				style = busyDayStyle
			}
			cells = append(cells, style.Render(label))
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, cells...))
	}

	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func (m Model) renderAgenda() string {
	var s strings.Builder

	s.WriteString(lipgloss.NewStyle().Bold(true).Render(m.cursor.Format("Monday 2 January")))
	s.WriteString("\n")

	events := m.selectedEvents()
	if len(events) == 0 {
		s.WriteString("  Nothing scheduled\n")
		return s.String()
	}

	names := m.clientNames()
	for i := range events {
		ev := &events[i]
		detail := ev.TemplateID
		if ev.NewStatus != "" {
			detail = "-> " + string(ev.NewStatus)
		}
		s.WriteString(fmt.Sprintf("  %s %-13s %-24s %-10s %s\n",
			ev.Time, ev.Type, names[ev.DossierID], ev.Status, detail))
	}
	return s.String()
}

func (m Model) clientNames() map[uuid.UUID]string {
	names := make(map[uuid.UUID]string)
	dossiers, err := db.ListDossiers(context.Background(), m.svc.DB(), db.DossierFilter{IncludeClosed: true})
	if err != nil {
		return names
	}
	for _, d := range dossiers {
		names[d.ID] = d.ClientName
	}
	return names
}

func (m Model) renderCalendarHelp() string {
	help := []string{
		"←/→/↑/↓: Move",
		"n/p: Next/prev month",
		".: Today",
		"t: Run tick",
		"Tab: Critical",
		"q: Quit",
	}
	return helpStyle.Render(strings.Join(help, " • "))
}

func (m Model) handleCalendarKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "left", "h":
		m.moveCursor(-1)
	case "right", "l":
		m.moveCursor(1)
	case "up", "k":
		m.moveCursor(-7)
	case "down", "j":
		m.moveCursor(7)
	case "n":
		m.cursor = m.cursor.AddDate(0, 1, 1-m.cursor.Day())
		m.loadGrid()
	case "p":
		m.cursor = m.cursor.AddDate(0, -1, 1-m.cursor.Day())
		m.loadGrid()
	case ".":
		m.cursor = models.DateOf(m.svc.Now())
		m.loadGrid()
	case "tab":
		m.viewMode = ViewCritical
		m.selectedRow = 0
		m.loadCritical()
	}

	return m, nil
}
