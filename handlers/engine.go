// ABOUTME: Rule engine MCP tool handlers
// ABOUTME: Dry evaluation of the rule set and on-demand scheduling ticks
package handlers

import (
	"context"
	"fmt"

	"github.com/harperreed/relance/engine"
	"github.com/harperreed/relance/models"
	"github.com/harperreed/relance/relance"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type EngineHandlers struct {
	svc *relance.Service
}

func NewEngineHandlers(svc *relance.Service) *EngineHandlers {
	return &EngineHandlers{svc: svc}
}

type EvaluateNowInput struct{}

type EvaluateNowOutput struct {
	AsOf         string                `json:"as_of"`
	Actions      []PendingActionOutput `json:"actions"`
	ConfigErrors []string              `json:"config_errors,omitempty"`
}

func (h *EngineHandlers) EvaluateNow(ctx context.Context, request *mcp.CallToolRequest, input EvaluateNowInput) (*mcp.CallToolResult, EvaluateNowOutput, error) {
	eval, err := h.svc.EvaluateNow(ctx)
	if err != nil {
		return nil, EvaluateNowOutput{}, fmt.Errorf("failed to evaluate rules: %w", err)
	}

	out := EvaluateNowOutput{
		AsOf:         eval.AsOf.Format(timestampLayout),
		Actions:      make([]PendingActionOutput, len(eval.Actions)),
		ConfigErrors: configErrorStrings(eval.ConfigErrors),
	}
	for i := range eval.Actions {
		out.Actions[i] = pendingToOutput(&eval.Actions[i])
	}
	return nil, out, nil
}

type RunTickInput struct {
	AsOf string `json:"as_of,omitempty" jsonschema:"Evaluate as of this day YYYY-MM-DD at the current time of day (default now)"`
}

type DispatchOutput struct {
	EventID   string `json:"event_id"`
	DossierID string `json:"dossier_id"`
	Type      string `json:"type"`
	Outcome   string `json:"outcome"`
	Detail    string `json:"detail,omitempty"`
}

type RunTickOutput struct {
	RunID        string           `json:"run_id"`
	AsOf         string           `json:"as_of"`
	Dossiers     int              `json:"dossiers"`
	Created      int              `json:"created"`
	Escalated    int              `json:"escalated"`
	Dispatched   int              `json:"dispatched"`
	Failed       int              `json:"failed"`
	Dispatches   []DispatchOutput `json:"dispatches,omitempty"`
	ConfigErrors []string         `json:"config_errors,omitempty"`
	Errors       []string         `json:"errors,omitempty"`
}

func (h *EngineHandlers) RunTick(ctx context.Context, request *mcp.CallToolRequest, input RunTickInput) (*mcp.CallToolResult, RunTickOutput, error) {
	now := h.svc.Now()
	asOf := now
	if input.AsOf != "" {
		day, err := parseDate(input.AsOf, now)
		if err != nil {
			return nil, RunTickOutput{}, err
		}
		asOf = models.At(day, models.ClockOf(now))
	}

	res, err := h.svc.Tick(ctx, asOf)
	if err != nil {
		return nil, RunTickOutput{}, fmt.Errorf("tick failed: %w", err)
	}

	out := RunTickOutput{
		RunID:        res.RunID.String(),
		AsOf:         res.AsOf.Format(timestampLayout),
		Dossiers:     res.Dossiers,
		Created:      res.Created,
		Escalated:    res.Escalated,
		Dispatched:   res.Dispatched,
		Failed:       res.Failed,
		ConfigErrors: configErrorStrings(res.ConfigErrors),
	}
	for _, d := range res.Dispatches {
		out.Dispatches = append(out.Dispatches, DispatchOutput{
			EventID:   d.EventID.String(),
			DossierID: d.DossierID.String(),
			Type:      string(d.Type),
			Outcome:   string(d.Outcome),
			Detail:    d.Detail,
		})
	}
	for _, e := range res.Errors {
		out.Errors = append(out.Errors, fmt.Sprintf("%s: %s", e.DossierID, e.Err))
	}
	return nil, out, nil
}

func configErrorStrings(errs []engine.ConfigError) []string {
	if len(errs) == 0 {
		return nil
	}
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Error()
	}
	return out
}
