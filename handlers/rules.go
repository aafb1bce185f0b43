// ABOUTME: Relance rule MCP tool handlers
// ABOUTME: Creates, lists, toggles and deletes the rules the engine evaluates on each tick
package handlers

import (
	"context"
	"fmt"

	"github.com/harperreed/relance/db"
	"github.com/harperreed/relance/engine"
	"github.com/harperreed/relance/models"
	"github.com/harperreed/relance/relance"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type RuleHandlers struct {
	svc *relance.Service
}

func NewRuleHandlers(svc *relance.Service) *RuleHandlers {
	return &RuleHandlers{svc: svc}
}

type CreateRuleInput struct {
	Name        string        `json:"name" jsonschema:"Rule name (required)"`
	TriggerDays int           `json:"trigger_days" jsonschema:"Days overdue threshold, at least 1 (required)"`
	Priority    int           `json:"priority,omitempty" jsonschema:"Tie-break weight between rules with the same threshold, higher wins"`
	Statuses    []string      `json:"statuses,omitempty" jsonschema:"Only match dossiers at these steps"`
	Priorities  []string      `json:"priorities,omitempty" jsonschema:"Only match dossiers with these priorities"`
	MinAmount   string        `json:"min_amount,omitempty" jsonschema:"Minimum outstanding amount"`
	MaxAmount   string        `json:"max_amount,omitempty" jsonschema:"Maximum outstanding amount"`
	Tags        []string      `json:"tags,omitempty" jsonschema:"Dossier must carry all of these tags"`
	Actions     []ActionInput `json:"actions" jsonschema:"Ordered actions to run when the rule fires (required)"`
	Frequency   string        `json:"frequency,omitempty" jsonschema:"once, daily or weekly. Omit to fire immediately, once per crossing"`
	Time        string        `json:"time,omitempty" jsonschema:"Time of day HH:MM for scheduled rules"`
	Weekdays    []string      `json:"weekdays,omitempty" jsonschema:"Weekdays for weekly rules, e.g. mon, thu"`
	Inactive    bool          `json:"inactive,omitempty" jsonschema:"Create the rule disabled"`
}

func (h *RuleHandlers) CreateRule(ctx context.Context, request *mcp.CallToolRequest, input CreateRuleInput) (*mcp.CallToolResult, RuleOutput, error) {
	if input.Name == "" {
		return nil, RuleOutput{}, fmt.Errorf("name is required")
	}

	rule, err := buildRule(input)
	if err != nil {
		return nil, RuleOutput{}, err
	}
	if err := engine.Validate(rule); err != nil {
		return nil, RuleOutput{}, fmt.Errorf("invalid rule: %w", err)
	}

	if err := db.CreateRule(ctx, h.svc.DB(), rule); err != nil {
		return nil, RuleOutput{}, fmt.Errorf("failed to create rule: %w", err)
	}

	return nil, ruleToOutput(rule), nil
}

func buildRule(input CreateRuleInput) (*models.RelanceRule, error) {
	rule := &models.RelanceRule{
		Name:        input.Name,
		TriggerDays: input.TriggerDays,
		Priority:    input.Priority,
		IsActive:    !input.Inactive,
	}

	cond := &rule.TriggerConditions
	for _, s := range input.Statuses {
		cond.Statuses = append(cond.Statuses, models.DossierStatus(s))
	}
	for _, p := range input.Priorities {
		cond.Priorities = append(cond.Priorities, models.Priority(p))
	}
	cond.Tags = input.Tags

	var err error
	if cond.MinAmount, err = models.ParseAmount("min_amount", input.MinAmount); err != nil {
		return nil, err
	}
	if cond.MaxAmount, err = models.ParseAmount("max_amount", input.MaxAmount); err != nil {
		return nil, err
	}

	for _, a := range input.Actions {
		rule.Actions = append(rule.Actions, models.RuleAction{
			Type:       models.ActionType(a.Type),
			TemplateID: a.TemplateID,
			NewStatus:  models.DossierStatus(a.NewStatus),
			AssignTo:   a.AssignTo,
			Message:    a.Message,
		})
	}

	if input.Frequency != "" {
		weekdays, err := models.ParseWeekdays(input.Weekdays)
		if err != nil {
			return nil, err
		}
		rule.Schedule = models.Schedule{
			Enabled:   true,
			Time:      input.Time,
			Frequency: models.Frequency(input.Frequency),
			Weekdays:  weekdays,
		}
	}

	return rule, nil
}

type ListRulesInput struct {
	ActiveOnly bool `json:"active_only,omitempty" jsonschema:"Only list enabled rules"`
}

type RuleListOutput struct {
	Rules []RuleOutput `json:"rules"`
}

func (h *RuleHandlers) ListRules(ctx context.Context, request *mcp.CallToolRequest, input ListRulesInput) (*mcp.CallToolResult, RuleListOutput, error) {
	rules, err := db.ListRules(ctx, h.svc.DB(), input.ActiveOnly)
	if err != nil {
		return nil, RuleListOutput{}, fmt.Errorf("failed to list rules: %w", err)
	}

	out := RuleListOutput{Rules: make([]RuleOutput, len(rules))}
	for i := range rules {
		out.Rules[i] = ruleToOutput(&rules[i])
	}
	return nil, out, nil
}

type SetRuleActiveInput struct {
	RuleID string `json:"rule_id" jsonschema:"Rule UUID (required)"`
	Active bool   `json:"active" jsonschema:"true to enable the rule, false to disable it"`
}

func (h *RuleHandlers) SetRuleActive(ctx context.Context, request *mcp.CallToolRequest, input SetRuleActiveInput) (*mcp.CallToolResult, RuleOutput, error) {
	id, err := parseID("rule_id", input.RuleID)
	if err != nil {
		return nil, RuleOutput{}, err
	}

	if err := db.SetRuleActive(ctx, h.svc.DB(), id, input.Active); err != nil {
		return nil, RuleOutput{}, fmt.Errorf("failed to update rule: %w", err)
	}

	rule, err := db.GetRule(ctx, h.svc.DB(), id)
	if err != nil {
		return nil, RuleOutput{}, err
	}
	return nil, ruleToOutput(rule), nil
}

type RuleIDInput struct {
	RuleID string `json:"rule_id" jsonschema:"Rule UUID (required)"`
}

type DeleteRuleOutput struct {
	RuleID  string `json:"rule_id"`
	Deleted bool   `json:"deleted"`
}

func (h *RuleHandlers) DeleteRule(ctx context.Context, request *mcp.CallToolRequest, input RuleIDInput) (*mcp.CallToolResult, DeleteRuleOutput, error) {
	id, err := parseID("rule_id", input.RuleID)
	if err != nil {
		return nil, DeleteRuleOutput{}, err
	}

	if err := db.DeleteRule(ctx, h.svc.DB(), id); err != nil {
		return nil, DeleteRuleOutput{}, fmt.Errorf("failed to delete rule: %w", err)
	}

	return nil, DeleteRuleOutput{RuleID: id.String(), Deleted: true}, nil
}
