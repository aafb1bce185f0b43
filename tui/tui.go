// ABOUTME: Terminal User Interface using bubbletea framework
// ABOUTME: Full-screen relance calendar, critical dossier list, dossier detail and graph views
package tui

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/harperreed/relance/models"
	"github.com/harperreed/relance/relance"
	"github.com/harperreed/relance/scheduler"
)

// ViewMode represents the current TUI view
type ViewMode int

const (
	ViewCalendar ViewMode = iota
	ViewCritical
	ViewDetail
	ViewGraph
)

const criticalLimit = 100

// Model is the main bubbletea model
type Model struct {
	svc      *relance.Service
	viewMode ViewMode

	// Calendar view state
	cursor time.Time
	grid   scheduler.Grid

	// Critical view state
	critical    []models.Dossier
	selectedRow int

	// Detail view state
	selectedID uuid.UUID
	returnTo   ViewMode

	// Graph view state
	graphKind    graphKind
	graphDOT     string
	graphTitle   string
	graphSummary string
	graphOffset  int

	// UI state
	status string
	width  int
	height int
	err    error
}

// tickDoneMsg carries the result of a tick run from the calendar view.
type tickDoneMsg struct {
	result *relance.TickResult
	err    error
}

// NewModel creates a new TUI model positioned on today.
func NewModel(svc *relance.Service) Model {
	m := Model{
		svc:      svc,
		viewMode: ViewCalendar,
		cursor:   models.DateOf(svc.Now()),
		width:    80,
		height:   24,
	}
	m.loadGrid()
	return m
}

// Run starts the full-screen program.
func Run(svc *relance.Service) error {
	p := tea.NewProgram(NewModel(svc), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case tickDoneMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.status = fmt.Sprintf("Tick: %d created, %d escalated, %d dispatched, %d failed",
			msg.result.Created, msg.result.Escalated, msg.result.Dispatched, msg.result.Failed)
		m.loadGrid()
		if m.viewMode == ViewCritical {
			m.loadCritical()
		}
		return m, nil
	}
	return m, nil
}

func (m Model) View() string {
	switch m.viewMode {
	case ViewCalendar:
		return m.renderCalendarView()
	case ViewCritical:
		return m.renderCriticalView()
	case ViewDetail:
		return m.renderDetailView()
	case ViewGraph:
		return m.renderGraphView()
	}
	return ""
}

func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "t":
		m.status = "Running tick..."
		return m, m.runTick()
	}

	switch m.viewMode {
	case ViewCalendar:
		return m.handleCalendarKeys(msg)
	case ViewCritical:
		return m.handleCriticalKeys(msg)
	case ViewDetail:
		return m.handleDetailKeys(msg)
	case ViewGraph:
		return m.handleGraphKeys(msg)
	}

	return m, nil
}

func (m Model) runTick() tea.Cmd {
	svc := m.svc
	return func() tea.Msg {
		res, err := svc.Tick(context.Background(), svc.Now())
		return tickDoneMsg{result: res, err: err}
	}
}

func (m Model) renderStatus() string {
	if m.err != nil {
		return errorStyle.Render("Error: " + m.err.Error())
	}
	if m.status != "" {
		return statusStyle.Render(m.status)
	}
	return ""
}

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("170")).
			MarginBottom(1)

	tabActiveStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("170")).
			Background(lipgloss.Color("235")).
			Padding(0, 2)

	tabInactiveStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("240")).
				Padding(0, 2)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			MarginTop(1)

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))
)

func (m Model) renderTabs() string {
	tabs := []string{"Calendar", "Critical"}
	var rendered []string

	for i, tab := range tabs {
		if ViewMode(i) == m.viewMode {
			rendered = append(rendered, tabActiveStyle.Render(tab))
		} else {
			rendered = append(rendered, tabInactiveStyle.Render(tab))
		}
	}

	return lipgloss.JoinHorizontal(lipgloss.Top, rendered...)
}
