// ABOUTME: MCP prompt handlers for reusable collection workflow templates
// ABOUTME: Provides dossier briefings, a daily collection plan and a rule review
package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/harperreed/relance/db"
	"github.com/harperreed/relance/models"
	"github.com/harperreed/relance/relance"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type PromptHandlers struct {
	svc *relance.Service
}

func NewPromptHandlers(svc *relance.Service) *PromptHandlers {
	return &PromptHandlers{svc: svc}
}

// Prompts lists the prompts served by GetPrompt, for registration.
func Prompts() []*mcp.Prompt {
	return []*mcp.Prompt{
		{
			Name:        "dossier-briefing",
			Description: "Brief on one debtor dossier with its invoices and relance history",
			Arguments: []*mcp.PromptArgument{
				{Name: "dossier_id", Description: "Dossier UUID", Required: true},
			},
		},
		{
			Name:        "collection-plan",
			Description: "Plan today's collection work from the calendar and the critical dossiers",
		},
		{
			Name:        "rule-review",
			Description: "Review the relance rule set for gaps and conflicts",
		},
	}
}

// GetPrompt generates the prompt message based on the template
func (h *PromptHandlers) GetPrompt(ctx context.Context, request *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	name := request.Params.Name
	arguments := request.Params.Arguments
	switch name {
	case "dossier-briefing":
		return h.getDossierBriefingPrompt(ctx, arguments)
	case "collection-plan":
		return h.getCollectionPlanPrompt(ctx)
	case "rule-review":
		return h.getRuleReviewPrompt(ctx)
	default:
		return nil, fmt.Errorf("unknown prompt: %s", name)
	}
}

func userPrompt(description, text string) *mcp.GetPromptResult {
	return &mcp.GetPromptResult{
		Description: description,
		Messages: []*mcp.PromptMessage{
			{
				Role:    "user",
				Content: &mcp.TextContent{Text: text},
			},
		},
	}
}

func (h *PromptHandlers) getDossierBriefingPrompt(ctx context.Context, args map[string]string) (*mcp.GetPromptResult, error) {
	id, err := parseID("dossier_id", args["dossier_id"])
	if err != nil {
		return nil, err
	}

	d, err := db.GetDossier(ctx, h.svc.DB(), id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch dossier: %w", err)
	}
	invoices, err := db.ListInvoicesByDossier(ctx, h.svc.DB(), id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch invoices: %w", err)
	}
	events, err := h.svc.Scheduler().History(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch events: %w", err)
	}

	var promptText strings.Builder
	promptText.WriteString("Please brief me on this debt collection dossier:\n\n")
	promptText.WriteString(fmt.Sprintf("Client: %s\n", d.ClientName))
	if d.Reference != "" {
		promptText.WriteString(fmt.Sprintf("Reference: %s\n", d.Reference))
	}
	promptText.WriteString(fmt.Sprintf("Status: %s\n", d.Status))
	promptText.WriteString(fmt.Sprintf("Outstanding: %s of %s (paid %s)\n",
		d.TotalAmount.StringFixed(2), d.OriginalAmount.StringFixed(2), d.PaidAmount.StringFixed(2)))
	promptText.WriteString(fmt.Sprintf("Days overdue: %d\n", d.DaysOverdue))
	promptText.WriteString(fmt.Sprintf("Risk tier: %s\n", models.Classify(d)))
	if len(d.Tags) > 0 {
		promptText.WriteString(fmt.Sprintf("Tags: %s\n", strings.Join(d.Tags, ", ")))
	}

	if len(invoices) > 0 {
		promptText.WriteString("\nInvoices:\n")
		for _, inv := range invoices {
			promptText.WriteString(fmt.Sprintf("- %s: %s due %s (%s)\n",
				inv.Number, inv.Amount.StringFixed(2), models.FormatDate(inv.DueDate), inv.Status))
		}
	}

	if len(events) > 0 {
		promptText.WriteString("\nRelance history:\n")
		for _, ev := range events {
			line := fmt.Sprintf("- %s %s %s: %s", models.FormatDate(ev.Date), ev.Time, ev.Type, ev.Status)
			if ev.Result != "" {
				line += " (" + ev.Result + ")"
			}
			promptText.WriteString(line + "\n")
		}
	}

	promptText.WriteString("\nPlease provide:")
	promptText.WriteString("\n1. A short assessment of the recovery outlook")
	promptText.WriteString("\n2. The next relance you would send and its tone")
	promptText.WriteString("\n3. Whether the dossier should be escalated or handed over")

	return userPrompt(fmt.Sprintf("Briefing for dossier: %s", d.ClientName), promptText.String()), nil
}

func (h *PromptHandlers) getCollectionPlanPrompt(ctx context.Context) (*mcp.GetPromptResult, error) {
	today, err := h.svc.EventsOn(ctx, h.svc.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to fetch today's events: %w", err)
	}
	critical, err := h.svc.CriticalDossiers(ctx, 10)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch critical dossiers: %w", err)
	}

	var promptText strings.Builder
	promptText.WriteString(fmt.Sprintf("Collection work for %s:\n\n", models.FormatDate(h.svc.Now())))

	promptText.WriteString("Relances on today's calendar:\n")
	if len(today) == 0 {
		promptText.WriteString("None.\n")
	}
	for _, ev := range today {
		promptText.WriteString(fmt.Sprintf("- %s %s for dossier %s (%s)\n", ev.Time, ev.Type, ev.DossierID, ev.Status))
	}

	promptText.WriteString("\nCritical dossiers:\n")
	if len(critical) == 0 {
		promptText.WriteString("None.\n")
	}
	for i := range critical {
		d := &critical[i]
		promptText.WriteString(fmt.Sprintf("- %s: %s outstanding, %d days overdue, %s, risk %s\n",
			d.ClientName, d.TotalAmount.StringFixed(2), d.DaysOverdue, d.Status, models.Classify(d)))
	}

	promptText.WriteString("\nPlease:")
	promptText.WriteString("\n1. Order today's calls and letters by urgency")
	promptText.WriteString("\n2. Flag critical dossiers that have nothing scheduled")
	promptText.WriteString("\n3. Suggest a talking point for each call")

	return userPrompt("Today's collection plan", promptText.String()), nil
}

func (h *PromptHandlers) getRuleReviewPrompt(ctx context.Context) (*mcp.GetPromptResult, error) {
	rules, err := db.ListRules(ctx, h.svc.DB(), false)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch rules: %w", err)
	}
	eval, err := h.svc.EvaluateNow(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate rules: %w", err)
	}

	var promptText strings.Builder
	promptText.WriteString("Relance rules:\n\n")
	if len(rules) == 0 {
		promptText.WriteString("No rules are defined.\n")
	}
	for i := range rules {
		r := &rules[i]
		state := "active"
		if !r.IsActive {
			state = "inactive"
		}
		actions := make([]string, len(r.Actions))
		for j, a := range r.Actions {
			actions[j] = string(a.Type)
			if a.NewStatus != "" {
				actions[j] += "->" + string(a.NewStatus)
			}
		}
		promptText.WriteString(fmt.Sprintf("- %s (%s): after %d days, priority %d, %s, actions %s\n",
			r.Name, state, r.TriggerDays, r.Priority, DescribeSchedule(r.Schedule), strings.Join(actions, ", ")))
	}

	if len(eval.ConfigErrors) > 0 {
		promptText.WriteString("\nRules skipped for configuration errors:\n")
		for _, e := range eval.ConfigErrors {
			promptText.WriteString(fmt.Sprintf("- %s\n", e.Error()))
		}
	}
	promptText.WriteString(fmt.Sprintf("\nA tick right now would schedule %d actions.\n", len(eval.Actions)))

	promptText.WriteString("\nPlease review:")
	promptText.WriteString("\n1. Gaps in the escalation ladder")
	promptText.WriteString("\n2. Rules that overlap or contradict each other")
	promptText.WriteString("\n3. Cadences likely to annoy debtors or let dossiers go stale")

	return userPrompt("Relance rule review", promptText.String()), nil
}
