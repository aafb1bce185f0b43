package tui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/harperreed/relance/db"
	"github.com/harperreed/relance/models"
)

var (
	fieldLabelStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("170")).
			Width(20)

	fieldValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	sectionStyle = lipgloss.NewStyle().Bold(true)
)

func (m Model) renderDetailView() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render("DOSSIER"))
	s.WriteString("\n\n")
	s.WriteString(m.renderDossierDetail())
	s.WriteString("\n")

	if status := m.renderStatus(); status != "" {
		s.WriteString(status)
		s.WriteString("\n")
	}
	s.WriteString(m.renderDetailHelp())

	return s.String()
}

func (m Model) renderDossierDetail() string {
	ctx := context.Background()

	d, err := db.GetDossier(ctx, m.svc.DB(), m.selectedID)
	if err != nil {
		return fmt.Sprintf("Error: %v", err)
	}

	var s strings.Builder

	s.WriteString(m.renderField("Client", d.ClientName))
	s.WriteString(m.renderField("Reference", d.Reference))
	s.WriteString(m.renderField("Email", d.ClientEmail))
	s.WriteString(m.renderField("Phone", d.ClientPhone))
	s.WriteString(m.renderField("Status", string(d.Status)))
	s.WriteString(m.renderField("Priority", string(d.Priority)))
	s.WriteString(m.renderField("Days overdue", fmt.Sprintf("%d", d.DaysOverdue)))
	s.WriteString(m.renderField("Outstanding", d.TotalAmount.StringFixed(2)))
	s.WriteString(m.renderField("Risk", string(models.Classify(d))))
	s.WriteString(m.renderField("Tags", strings.Join(d.Tags, ", ")))
	if d.LastContact != nil {
		s.WriteString(m.renderField("Last contact", models.FormatDate(*d.LastContact)))
	}

	s.WriteString("\n")
	s.WriteString(sectionStyle.Render("INVOICES"))
	s.WriteString("\n")

	invoices, _ := db.ListInvoicesByDossier(ctx, m.svc.DB(), d.ID)
	for _, inv := range invoices {
		s.WriteString(fmt.Sprintf("  • %s  %s due %s, paid %s\n",
			inv.Number, inv.OriginalAmount.StringFixed(2), models.FormatDate(inv.DueDate), inv.PaidAmount.StringFixed(2)))
	}

	s.WriteString("\n")
	s.WriteString(sectionStyle.Render("RELANCES"))
	s.WriteString("\n")

	events, _ := m.svc.Scheduler().History(ctx, d.ID)
	for _, ev := range events {
		line := fmt.Sprintf("  • %s %s %s [%s]", models.FormatDate(ev.Date), ev.Time, ev.Type, ev.Status)
		if ev.Result != "" {
			line += " " + ev.Result
		}
		s.WriteString(line + "\n")
	}

	return s.String()
}

func (m Model) renderField(label, value string) string {
	if value == "" {
		value = "-"
	}
	return fmt.Sprintf("%s %s\n",
		fieldLabelStyle.Render(label+":"),
		fieldValueStyle.Render(value))
}

func (m Model) renderDetailHelp() string {
	help := []string{
		"Esc: Back",
		"g: Timeline graph",
		"q: Quit",
	}
	return helpStyle.Render(strings.Join(help, " • "))
}

func (m Model) handleDetailKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.viewMode = m.returnTo
	case "g":
		if err := m.generateGraph(graphTimeline); err != nil {
			m.err = err
			return m, nil
		}
		m.viewMode = ViewGraph
	}

	return m, nil
}
