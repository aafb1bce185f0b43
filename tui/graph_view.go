// ABOUTME: Graph view showing a dossier's relance timeline or the escalation ladder as DOT
// ABOUTME: The DOT source scrolls line by line within the terminal height
package tui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/harperreed/relance/db"
	"github.com/harperreed/relance/models"
	"github.com/harperreed/relance/viz"
)

type graphKind int

const (
	graphTimeline graphKind = iota
	graphLadder
)

// Lines taken by the title, summary, footer and help around the DOT source.
const graphChrome = 8

var dotStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))

func (m Model) renderGraphView() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render(m.graphTitle))
	s.WriteString("\n")
	if m.graphSummary != "" {
		s.WriteString(fieldValueStyle.Render(m.graphSummary))
		s.WriteString("\n")
	}
	s.WriteString("\n")

	lines := m.graphLines()
	if len(lines) == 0 {
		s.WriteString("Nothing to draw\n")
	} else {
		end := m.graphOffset + m.graphWindow()
		if end > len(lines) {
			end = len(lines)
		}
		s.WriteString(dotStyle.Render(strings.Join(lines[m.graphOffset:end], "\n")))
		s.WriteString("\n\n")
		s.WriteString(helpStyle.Render(fmt.Sprintf("lines %d-%d of %d", m.graphOffset+1, end, len(lines))))
	}

	s.WriteString("\n")
	if status := m.renderStatus(); status != "" {
		s.WriteString(status)
		s.WriteString("\n")
	}
	s.WriteString(m.renderGraphHelp())

	return s.String()
}

func (m Model) renderGraphHelp() string {
	other := "l: Escalation ladder"
	if m.graphKind == graphLadder {
		other = "l: Dossier timeline"
	}
	help := []string{
		"j/k: Scroll",
		other,
		"Esc: Dossier",
		"q: Quit",
	}
	return helpStyle.Render(strings.Join(help, " • "))
}

func (m Model) handleGraphKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "j", "down":
		if m.graphOffset < m.maxGraphOffset() {
			m.graphOffset++
		}
	case "k", "up":
		if m.graphOffset > 0 {
			m.graphOffset--
		}
	case "l":
		next := graphLadder
		if m.graphKind == graphLadder {
			next = graphTimeline
		}
		if err := m.generateGraph(next); err != nil {
			m.err = err
		}
	case "esc":
		m.viewMode = ViewDetail
		m.graphDOT = ""
		m.graphOffset = 0
	}

	return m, nil
}

func (m Model) graphLines() []string {
	if m.graphDOT == "" {
		return nil
	}
	return strings.Split(strings.TrimRight(m.graphDOT, "\n"), "\n")
}

func (m Model) graphWindow() int {
	if n := m.height - graphChrome; n > 3 {
		return n
	}
	return 3
}

func (m Model) maxGraphOffset() int {
	if n := len(m.graphLines()) - m.graphWindow(); n > 0 {
		return n
	}
	return 0
}

// generateGraph renders the selected dossier's timeline or the ladder as DOT
// and resets the scroll position.
func (m *Model) generateGraph(kind graphKind) error {
	ctx := context.Background()
	generator := viz.NewGraphGenerator(m.svc.DB())

	var dot, title, summary string
	var err error
	switch kind {
	case graphLadder:
		dot, err = generator.GenerateLadderGraph(ctx, "")
		title = "ESCALATION LADDER"
	default:
		dot, err = generator.GenerateDossierGraph(ctx, m.selectedID, "")
		if err == nil {
			title, summary, err = m.timelineHeader(ctx)
		}
	}
	if err != nil {
		return fmt.Errorf("failed to generate graph: %w", err)
	}

	m.graphKind = kind
	m.graphDOT = dot
	m.graphTitle = title
	m.graphSummary = summary
	m.graphOffset = 0
	return nil
}

// timelineHeader names the dossier and counts its relances per status.
func (m *Model) timelineHeader(ctx context.Context) (string, string, error) {
	d, err := db.GetDossier(ctx, m.svc.DB(), m.selectedID)
	if err != nil {
		return "", "", err
	}
	events, err := m.svc.Scheduler().History(ctx, d.ID)
	if err != nil {
		return "", "", err
	}

	title := fmt.Sprintf("TIMELINE · %s (%s)", d.ClientName, d.Status)
	if len(events) == 0 {
		return title, "No relances yet", nil
	}

	counts := make(map[models.EventStatus]int)
	for _, ev := range events {
		counts[ev.Status]++
	}
	var parts []string
	for _, st := range []models.EventStatus{
		models.EventScheduled, models.EventInFlight, models.EventCompleted, models.EventFailed, models.EventCancelled,
	} {
		if counts[st] > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", counts[st], st))
		}
	}
	return title, "Relances: " + strings.Join(parts, ", "), nil
}
