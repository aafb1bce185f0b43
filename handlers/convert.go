// ABOUTME: Tool output shapes and input parsing shared by the MCP handlers
// ABOUTME: Outputs use plain strings for ids, dates and amounts so their JSON schema stays simple
package handlers

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/relance/models"
)

const timestampLayout = "2006-01-02T15:04:05Z07:00"

type DossierOutput struct {
	ID             string   `json:"id"`
	Reference      string   `json:"reference,omitempty"`
	ClientName     string   `json:"client_name"`
	ClientEmail    string   `json:"client_email,omitempty"`
	ClientPhone    string   `json:"client_phone,omitempty"`
	TotalAmount    string   `json:"total_amount"`
	OriginalAmount string   `json:"original_amount"`
	PaidAmount     string   `json:"paid_amount"`
	Status         string   `json:"status"`
	DaysOverdue    int      `json:"days_overdue"`
	Priority       string   `json:"priority"`
	RiskTier       string   `json:"risk_tier"`
	Tags           []string `json:"tags,omitempty"`
	LastContact    string   `json:"last_contact,omitempty"`
	ClosedAt       string   `json:"closed_at,omitempty"`
}

func dossierToOutput(d *models.Dossier) DossierOutput {
	out := DossierOutput{
		ID:             d.ID.String(),
		Reference:      d.Reference,
		ClientName:     d.ClientName,
		ClientEmail:    d.ClientEmail,
		ClientPhone:    d.ClientPhone,
		TotalAmount:    d.TotalAmount.StringFixed(2),
		OriginalAmount: d.OriginalAmount.StringFixed(2),
		PaidAmount:     d.PaidAmount.StringFixed(2),
		Status:         string(d.Status),
		DaysOverdue:    d.DaysOverdue,
		Priority:       string(d.Priority),
		RiskTier:       string(models.Classify(d)),
		Tags:           d.Tags,
	}
	if d.LastContact != nil {
		out.LastContact = d.LastContact.Format(timestampLayout)
	}
	if d.ClosedAt != nil {
		out.ClosedAt = d.ClosedAt.Format(timestampLayout)
	}
	return out
}

type InvoiceOutput struct {
	ID             string `json:"id"`
	DossierID      string `json:"dossier_id"`
	Number         string `json:"number"`
	Amount         string `json:"amount"`
	OriginalAmount string `json:"original_amount"`
	PaidAmount     string `json:"paid_amount"`
	DueDate        string `json:"due_date"`
	Status         string `json:"status"`
}

func invoiceToOutput(inv *models.Invoice) InvoiceOutput {
	return InvoiceOutput{
		ID:             inv.ID.String(),
		DossierID:      inv.DossierID.String(),
		Number:         inv.Number,
		Amount:         inv.Amount.StringFixed(2),
		OriginalAmount: inv.OriginalAmount.StringFixed(2),
		PaidAmount:     inv.PaidAmount.StringFixed(2),
		DueDate:        models.FormatDate(inv.DueDate),
		Status:         string(inv.Status),
	}
}

type EventOutput struct {
	ID             string `json:"id"`
	DossierID      string `json:"dossier_id"`
	RuleID         string `json:"rule_id,omitempty"`
	Date           string `json:"date"`
	Time           string `json:"time"`
	Type           string `json:"type"`
	Status         string `json:"status"`
	TemplateID     string `json:"template_id,omitempty"`
	NewStatus      string `json:"new_status,omitempty"`
	AssignTo       string `json:"assign_to,omitempty"`
	Message        string `json:"message,omitempty"`
	Priority       string `json:"priority"`
	IsAutomatic    bool   `json:"is_automatic"`
	Result         string `json:"result,omitempty"`
	AwaitingManual bool   `json:"awaiting_manual,omitempty"`
}

func eventToOutput(ev *models.RelanceEvent) EventOutput {
	out := EventOutput{
		ID:             ev.ID.String(),
		DossierID:      ev.DossierID.String(),
		Date:           models.FormatDate(ev.Date),
		Time:           ev.Time,
		Type:           string(ev.Type),
		Status:         string(ev.Status),
		TemplateID:     ev.TemplateID,
		NewStatus:      string(ev.NewStatus),
		AssignTo:       ev.AssignTo,
		Message:        ev.Message,
		Priority:       string(ev.Priority),
		IsAutomatic:    ev.IsAutomatic,
		Result:         ev.Result,
		AwaitingManual: ev.AwaitingManual,
	}
	if ev.RuleID != nil {
		out.RuleID = ev.RuleID.String()
	}
	return out
}

func eventsToOutput(events []models.RelanceEvent) []EventOutput {
	out := make([]EventOutput, len(events))
	for i := range events {
		out[i] = eventToOutput(&events[i])
	}
	return out
}

type PendingActionOutput struct {
	DossierID   string `json:"dossier_id"`
	RuleID      string `json:"rule_id"`
	RuleName    string `json:"rule_name"`
	ActionIndex int    `json:"action_index"`
	Type        string `json:"type"`
	TemplateID  string `json:"template_id,omitempty"`
	NewStatus   string `json:"new_status,omitempty"`
	Date        string `json:"date"`
	Time        string `json:"time"`
}

func pendingToOutput(pa *models.PendingAction) PendingActionOutput {
	return PendingActionOutput{
		DossierID:   pa.DossierID.String(),
		RuleID:      pa.RuleID.String(),
		RuleName:    pa.RuleName,
		ActionIndex: pa.ActionIndex,
		Type:        string(pa.Action.Type),
		TemplateID:  pa.Action.TemplateID,
		NewStatus:   string(pa.Action.NewStatus),
		Date:        models.FormatDate(pa.Date),
		Time:        pa.Time,
	}
}

type ActionInput struct {
	Type       string `json:"type" jsonschema:"Action type: email, sms, call, letter or status_change"`
	TemplateID string `json:"template_id,omitempty" jsonschema:"Template id for email and sms actions"`
	NewStatus  string `json:"new_status,omitempty" jsonschema:"Target status for status_change: reminder_1, reminder_2 or critical"`
	AssignTo   string `json:"assign_to,omitempty" jsonschema:"Person responsible for calls and letters"`
	Message    string `json:"message,omitempty" jsonschema:"Free text appended to the message or task"`
}

type RuleOutput struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	TriggerDays int           `json:"trigger_days"`
	Priority    int           `json:"priority"`
	IsActive    bool          `json:"is_active"`
	Statuses    []string      `json:"statuses,omitempty"`
	Priorities  []string      `json:"priorities,omitempty"`
	MinAmount   string        `json:"min_amount,omitempty"`
	MaxAmount   string        `json:"max_amount,omitempty"`
	Tags        []string      `json:"tags,omitempty"`
	Actions     []ActionInput `json:"actions"`
	Schedule    string        `json:"schedule"`
}

func ruleToOutput(r *models.RelanceRule) RuleOutput {
	out := RuleOutput{
		ID:          r.ID.String(),
		Name:        r.Name,
		TriggerDays: r.TriggerDays,
		Priority:    r.Priority,
		IsActive:    r.IsActive,
		Tags:        r.TriggerConditions.Tags,
		Schedule:    DescribeSchedule(r.Schedule),
	}
	for _, s := range r.TriggerConditions.Statuses {
		out.Statuses = append(out.Statuses, string(s))
	}
	for _, p := range r.TriggerConditions.Priorities {
		out.Priorities = append(out.Priorities, string(p))
	}
	if r.TriggerConditions.MinAmount != nil {
		out.MinAmount = r.TriggerConditions.MinAmount.StringFixed(2)
	}
	if r.TriggerConditions.MaxAmount != nil {
		out.MaxAmount = r.TriggerConditions.MaxAmount.StringFixed(2)
	}
	for _, a := range r.Actions {
		out.Actions = append(out.Actions, ActionInput{
			Type:       string(a.Type),
			TemplateID: a.TemplateID,
			NewStatus:  string(a.NewStatus),
			AssignTo:   a.AssignTo,
			Message:    a.Message,
		})
	}
	return out
}

// DescribeSchedule renders a rule schedule for listings.
func DescribeSchedule(s models.Schedule) string {
	if !s.Enabled {
		return "immediate, once"
	}
	switch s.Frequency {
	case models.FrequencyWeekly:
		days := make([]string, len(s.Weekdays))
		for i, wd := range s.Weekdays {
			days[i] = strings.ToLower(wd.String()[:3])
		}
		return fmt.Sprintf("weekly on %s at %s", strings.Join(days, ","), s.Time)
	case models.FrequencyDaily:
		return "daily at " + s.Time
	default:
		return "once at " + s.Time
	}
}

func parseID(field, value string) (uuid.UUID, error) {
	if value == "" {
		return uuid.Nil, fmt.Errorf("%s is required", field)
	}
	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s: %w", field, err)
	}
	return id, nil
}

// parseDate parses YYYY-MM-DD, defaulting to now when empty.
func parseDate(value string, now time.Time) (time.Time, error) {
	if value == "" {
		return models.DateOf(now), nil
	}
	d, err := models.ParseDate(value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", value)
	}
	return d, nil
}
