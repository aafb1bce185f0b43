// ABOUTME: Relance event MCP tool handlers
// ABOUTME: Calendar queries plus manual scheduling, cancellation, completion and retry of events
package handlers

import (
	"context"
	"fmt"

	"github.com/harperreed/relance/db"
	"github.com/harperreed/relance/models"
	"github.com/harperreed/relance/relance"
	"github.com/harperreed/relance/scheduler"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type EventHandlers struct {
	svc *relance.Service
}

func NewEventHandlers(svc *relance.Service) *EventHandlers {
	return &EventHandlers{svc: svc}
}

type EventsOnInput struct {
	Date string `json:"date,omitempty" jsonschema:"Calendar day YYYY-MM-DD (default today)"`
}

type EventListOutput struct {
	Events []EventOutput `json:"events"`
}

func (h *EventHandlers) EventsOn(ctx context.Context, request *mcp.CallToolRequest, input EventsOnInput) (*mcp.CallToolResult, EventListOutput, error) {
	date, err := parseDate(input.Date, h.svc.Now())
	if err != nil {
		return nil, EventListOutput{}, err
	}

	events, err := h.svc.EventsOn(ctx, date)
	if err != nil {
		return nil, EventListOutput{}, fmt.Errorf("failed to list events: %w", err)
	}

	return nil, EventListOutput{Events: eventsToOutput(events)}, nil
}

func (h *EventHandlers) UpcomingEvents(ctx context.Context, request *mcp.CallToolRequest, input DossierIDInput) (*mcp.CallToolResult, EventListOutput, error) {
	id, err := parseID("dossier_id", input.DossierID)
	if err != nil {
		return nil, EventListOutput{}, err
	}

	events, err := h.svc.Upcoming(ctx, id)
	if err != nil {
		return nil, EventListOutput{}, fmt.Errorf("failed to list upcoming events: %w", err)
	}

	return nil, EventListOutput{Events: eventsToOutput(events)}, nil
}

type ScheduleEventInput struct {
	DossierID  string `json:"dossier_id" jsonschema:"Dossier UUID (required)"`
	Date       string `json:"date,omitempty" jsonschema:"Day YYYY-MM-DD (default today)"`
	Time       string `json:"time,omitempty" jsonschema:"Time of day HH:MM (default 09:00)"`
	Type       string `json:"type" jsonschema:"Action type: email, sms, call, letter or status_change (required)"`
	TemplateID string `json:"template_id,omitempty" jsonschema:"Template id for email and sms events"`
	NewStatus  string `json:"new_status,omitempty" jsonschema:"Target status for status_change events"`
	AssignTo   string `json:"assign_to,omitempty" jsonschema:"Person responsible for calls and letters"`
	Message    string `json:"message,omitempty" jsonschema:"Free text appended to the message or task"`
	Priority   string `json:"priority,omitempty" jsonschema:"Event priority, defaults to the dossier priority"`
	Dispatch   bool   `json:"dispatch,omitempty" jsonschema:"Run the event right away when it is already due"`
}

type ScheduleEventOutput struct {
	Event    EventOutput `json:"event"`
	Outcome  string      `json:"outcome,omitempty"`
	Detail   string      `json:"detail,omitempty"`
	Executed bool        `json:"executed"`
}

func (h *EventHandlers) ScheduleEvent(ctx context.Context, request *mcp.CallToolRequest, input ScheduleEventInput) (*mcp.CallToolResult, ScheduleEventOutput, error) {
	id, err := parseID("dossier_id", input.DossierID)
	if err != nil {
		return nil, ScheduleEventOutput{}, err
	}
	date, err := parseDate(input.Date, h.svc.Now())
	if err != nil {
		return nil, ScheduleEventOutput{}, err
	}

	ev, err := h.svc.Schedule(ctx, scheduler.ManualEvent{
		DossierID:  id,
		Date:       date,
		Time:       input.Time,
		Type:       models.ActionType(input.Type),
		TemplateID: input.TemplateID,
		NewStatus:  models.DossierStatus(input.NewStatus),
		AssignTo:   input.AssignTo,
		Message:    input.Message,
		Priority:   models.Priority(input.Priority),
	})
	if err != nil {
		return nil, ScheduleEventOutput{}, fmt.Errorf("failed to schedule event: %w", err)
	}

	out := ScheduleEventOutput{Event: eventToOutput(ev)}
	if !input.Dispatch || ev.DueAt().After(h.svc.Now()) {
		return nil, out, nil
	}

	res, err := h.svc.DispatchEvent(ctx, ev.ID)
	if err != nil {
		return nil, out, fmt.Errorf("event scheduled but dispatch failed: %w", err)
	}
	out.Executed = true
	out.Outcome = string(res.Outcome)
	out.Detail = res.Detail
	if updated, err := db.GetEvent(ctx, h.svc.DB(), ev.ID); err == nil {
		out.Event = eventToOutput(updated)
	}
	return nil, out, nil
}

type EventIDInput struct {
	EventID string `json:"event_id" jsonschema:"Event UUID (required)"`
}

type EventStatusOutput struct {
	EventID string `json:"event_id"`
	Status  string `json:"status"`
}

func (h *EventHandlers) CancelEvent(ctx context.Context, request *mcp.CallToolRequest, input EventIDInput) (*mcp.CallToolResult, EventStatusOutput, error) {
	id, err := parseID("event_id", input.EventID)
	if err != nil {
		return nil, EventStatusOutput{}, err
	}

	if err := h.svc.Scheduler().Cancel(ctx, id); err != nil {
		return nil, EventStatusOutput{}, fmt.Errorf("failed to cancel event: %w", err)
	}

	return nil, EventStatusOutput{EventID: id.String(), Status: string(models.EventCancelled)}, nil
}

type CompleteEventInput struct {
	EventID string `json:"event_id" jsonschema:"Event UUID (required)"`
	Result  string `json:"result,omitempty" jsonschema:"Outcome note, e.g. what was agreed on the call"`
	Failed  bool   `json:"failed,omitempty" jsonschema:"Record the event as failed instead of completed"`
}

func (h *EventHandlers) CompleteEvent(ctx context.Context, request *mcp.CallToolRequest, input CompleteEventInput) (*mcp.CallToolResult, EventStatusOutput, error) {
	id, err := parseID("event_id", input.EventID)
	if err != nil {
		return nil, EventStatusOutput{}, err
	}

	status := models.EventCompleted
	if input.Failed {
		status = models.EventFailed
		err = h.svc.Scheduler().Fail(ctx, id, input.Result)
	} else {
		err = h.svc.Scheduler().Complete(ctx, id, input.Result)
	}
	if err != nil {
		return nil, EventStatusOutput{}, fmt.Errorf("failed to record event outcome: %w", err)
	}

	return nil, EventStatusOutput{EventID: id.String(), Status: string(status)}, nil
}

func (h *EventHandlers) RetryEvent(ctx context.Context, request *mcp.CallToolRequest, input EventIDInput) (*mcp.CallToolResult, EventOutput, error) {
	id, err := parseID("event_id", input.EventID)
	if err != nil {
		return nil, EventOutput{}, err
	}

	ev, err := h.svc.Scheduler().Retry(ctx, id)
	if err != nil {
		return nil, EventOutput{}, fmt.Errorf("failed to retry event: %w", err)
	}

	return nil, eventToOutput(ev), nil
}

func (h *EventHandlers) DossierHistory(ctx context.Context, request *mcp.CallToolRequest, input DossierIDInput) (*mcp.CallToolResult, EventListOutput, error) {
	id, err := parseID("dossier_id", input.DossierID)
	if err != nil {
		return nil, EventListOutput{}, err
	}

	events, err := h.svc.Scheduler().History(ctx, id)
	if err != nil {
		return nil, EventListOutput{}, fmt.Errorf("failed to load history: %w", err)
	}

	return nil, EventListOutput{Events: eventsToOutput(events)}, nil
}
