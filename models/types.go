// ABOUTME: Data models for the relance engine
// ABOUTME: Defines Dossier, Invoice, RelanceRule, RelanceEvent and their closed enumerations
package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DossierStatus is a step on the escalation ladder.
type DossierStatus string

const (
	StatusInitial   DossierStatus = "initial"
	StatusReminder1 DossierStatus = "reminder_1"
	StatusReminder2 DossierStatus = "reminder_2"
	StatusCritical  DossierStatus = "critical"
)

// Valid reports whether s is a known ladder step.
func (s DossierStatus) Valid() bool {
	switch s {
	case StatusInitial, StatusReminder1, StatusReminder2, StatusCritical:
		return true
	}
	return false
}

// Priority of a dossier (and of the events scheduled for it).
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// InvoiceStatus constants.
type InvoiceStatus string

const (
	InvoiceOpen          InvoiceStatus = "open"
	InvoiceOverdue       InvoiceStatus = "overdue"
	InvoicePartiallyPaid InvoiceStatus = "partially_paid"
	InvoicePaid          InvoiceStatus = "paid"
)

// ActionType is the kind of relance an action or event performs.
type ActionType string

const (
	ActionEmail        ActionType = "email"
	ActionSMS          ActionType = "sms"
	ActionCall         ActionType = "call"
	ActionLetter       ActionType = "letter"
	ActionStatusChange ActionType = "status_change"
)

func (a ActionType) Valid() bool {
	switch a {
	case ActionEmail, ActionSMS, ActionCall, ActionLetter, ActionStatusChange:
		return true
	}
	return false
}

// IsManual reports whether the action is fulfilled by a person rather than by dispatch.
func (a ActionType) IsManual() bool {
	switch a {
	case ActionCall, ActionLetter:
		return true
	case ActionEmail, ActionSMS, ActionStatusChange:
		return false
	}
	return false
}

// EventStatus of a RelanceEvent. InFlight is the claim marker held while a
// dispatch performs its side effects.
type EventStatus string

const (
	EventScheduled EventStatus = "scheduled"
	EventInFlight  EventStatus = "in_flight"
	EventCompleted EventStatus = "completed"
	EventFailed    EventStatus = "failed"
	EventCancelled EventStatus = "cancelled"
)

// IsTerminal reports whether no further transition is allowed.
func (s EventStatus) IsTerminal() bool {
	switch s {
	case EventCompleted, EventFailed, EventCancelled:
		return true
	case EventScheduled, EventInFlight:
		return false
	}
	return false
}

// Frequency of a rule schedule.
type Frequency string

const (
	FrequencyOnce   Frequency = "once"
	FrequencyDaily  Frequency = "daily"
	FrequencyWeekly Frequency = "weekly"
)

func (f Frequency) Valid() bool {
	switch f {
	case FrequencyOnce, FrequencyDaily, FrequencyWeekly:
		return true
	}
	return false
}

type Dossier struct {
	ID             uuid.UUID       `json:"id"`
	ManagerID      uuid.UUID       `json:"manager_id"`
	Reference      string          `json:"reference,omitempty"`
	ClientName     string          `json:"client_name"`
	ClientEmail    string          `json:"client_email,omitempty"`
	ClientPhone    string          `json:"client_phone,omitempty"`
	TotalAmount    decimal.Decimal `json:"total_amount"` // outstanding balance
	OriginalAmount decimal.Decimal `json:"original_amount"`
	PaidAmount     decimal.Decimal `json:"paid_amount"`
	Status         DossierStatus   `json:"status"`
	DaysOverdue    int             `json:"days_overdue"`
	Priority       Priority        `json:"priority"`
	Tags           []string        `json:"tags,omitempty"`
	LastContact    *time.Time      `json:"last_contact,omitempty"`
	ResetAt        *time.Time      `json:"reset_at,omitempty"`
	ClosedAt       *time.Time      `json:"closed_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// IsSettled reports whether the debt has been fully paid.
func (d *Dossier) IsSettled() bool {
	return d.OriginalAmount.IsPositive() && d.PaidAmount.Equal(d.OriginalAmount)
}

// IsClosed reports whether the dossier has been archived.
func (d *Dossier) IsClosed() bool {
	return d.ClosedAt != nil
}

// HasTag reports whether the dossier carries tag.
func (d *Dossier) HasTag(tag string) bool {
	for _, t := range d.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

type Invoice struct {
	ID             uuid.UUID       `json:"id"`
	DossierID      uuid.UUID       `json:"dossier_id"`
	Number         string          `json:"number"`
	Amount         decimal.Decimal `json:"amount"` // outstanding on this invoice
	OriginalAmount decimal.Decimal `json:"original_amount"`
	PaidAmount     decimal.Decimal `json:"paid_amount"`
	DueDate        time.Time       `json:"due_date"`
	Status         InvoiceStatus   `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// DaysOverdue returns max(0, asOf - dueDate) in whole days.
func (i *Invoice) DaysOverdue(asOf time.Time) int {
	if i.IsPaid() {
		return 0
	}
	days := DaysBetween(i.DueDate, asOf)
	if days < 0 {
		return 0
	}
	return days
}

// IsPaid reports whether the invoice is fully paid.
func (i *Invoice) IsPaid() bool {
	return i.OriginalAmount.IsPositive() && i.PaidAmount.GreaterThanOrEqual(i.OriginalAmount)
}

// DeriveStatus computes the invoice status as of a date.
func (i *Invoice) DeriveStatus(asOf time.Time) InvoiceStatus {
	switch {
	case i.IsPaid():
		return InvoicePaid
	case i.PaidAmount.IsPositive():
		return InvoicePartiallyPaid
	case i.DaysOverdue(asOf) > 0:
		return InvoiceOverdue
	default:
		return InvoiceOpen
	}
}

// TriggerConditions filter which dossiers a rule applies to. All non-empty
// fields are AND-combined; an empty filter matches everything.
type TriggerConditions struct {
	Statuses   []DossierStatus  `json:"statuses,omitempty"`
	Priorities []Priority       `json:"priorities,omitempty"`
	MinAmount  *decimal.Decimal `json:"min_amount,omitempty"`
	MaxAmount  *decimal.Decimal `json:"max_amount,omitempty"`
	Tags       []string         `json:"tags,omitempty"`
}

// ParseAmount reads an optional money amount. An empty value yields nil.
func ParseAmount(field, value string) (*decimal.Decimal, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q: %w", field, value, err)
	}
	return &d, nil
}

type RuleAction struct {
	Type       ActionType    `json:"type"`
	TemplateID string        `json:"template_id,omitempty"`
	NewStatus  DossierStatus `json:"new_status,omitempty"`
	AssignTo   string        `json:"assign_to,omitempty"`
	Message    string        `json:"message,omitempty"`
}

type Schedule struct {
	Enabled   bool           `json:"enabled"`
	Time      string         `json:"time,omitempty"` // HH:MM
	Frequency Frequency      `json:"frequency"`
	Weekdays  []time.Weekday `json:"weekdays,omitempty"`
}

// IsRecurring reports whether the schedule may fire again on later ticks.
func (s Schedule) IsRecurring() bool {
	return s.Enabled && (s.Frequency == FrequencyDaily || s.Frequency == FrequencyWeekly)
}

// RunsOn reports whether a recurring schedule has a tick on the given date.
func (s Schedule) RunsOn(date time.Time) bool {
	switch s.Frequency {
	case FrequencyDaily:
		return true
	case FrequencyWeekly:
		wd := date.Weekday()
		for _, d := range s.Weekdays {
			if d == wd {
				return true
			}
		}
		return false
	case FrequencyOnce:
		return true
	}
	return false
}

type RelanceRule struct {
	ID                uuid.UUID         `json:"id"`
	Name              string            `json:"name"`
	TriggerDays       int               `json:"trigger_days"`
	TriggerConditions TriggerConditions `json:"trigger_conditions"`
	Actions           []RuleAction      `json:"actions"`
	Schedule          Schedule          `json:"schedule"`
	IsActive          bool              `json:"is_active"`
	Priority          int               `json:"priority"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// StatusChange returns the rule's status change action, if it has one.
func (r *RelanceRule) StatusChange() (int, *RuleAction) {
	for i := range r.Actions {
		if r.Actions[i].Type == ActionStatusChange {
			return i, &r.Actions[i]
		}
	}
	return -1, nil
}

type RelanceEvent struct {
	ID             uuid.UUID     `json:"id"`
	DossierID      uuid.UUID     `json:"dossier_id"`
	RuleID         *uuid.UUID    `json:"rule_id,omitempty"`
	ActionIndex    int           `json:"action_index"`
	Date           time.Time     `json:"date"`
	Time           string        `json:"time"` // HH:MM
	Type           ActionType    `json:"type"`
	Status         EventStatus   `json:"status"`
	TemplateID     string        `json:"template_id,omitempty"`
	NewStatus      DossierStatus `json:"new_status,omitempty"`
	AssignTo       string        `json:"assign_to,omitempty"`
	Message        string        `json:"message,omitempty"`
	Priority       Priority      `json:"priority"`
	IsAutomatic    bool          `json:"is_automatic"`
	Result         string        `json:"result,omitempty"`
	// AwaitingManual marks a call or letter already handed to a person.
	AwaitingManual bool          `json:"awaiting_manual,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// DueAt combines the event date and time-of-day.
func (e *RelanceEvent) DueAt() time.Time {
	return At(e.Date, e.Time)
}

// PendingAction is one (rule, action) pair the rule engine decided should
// become a RelanceEvent.
type PendingAction struct {
	DossierID    uuid.UUID  `json:"dossier_id"`
	RuleID       uuid.UUID  `json:"rule_id"`
	RuleName     string     `json:"rule_name"`
	ActionIndex  int        `json:"action_index"`
	Action       RuleAction `json:"action"`
	Date         time.Time  `json:"date"`
	Time         string     `json:"time"`
	Priority     Priority   `json:"priority"`
	RulePriority int        `json:"rule_priority"`
	TriggerDays  int        `json:"trigger_days"`
}

// Template is a message template for email and SMS relances.
type Template struct {
	ID      string     `json:"id"`
	Channel ActionType `json:"channel"`
	Subject string     `json:"subject,omitempty"`
	Body    string     `json:"body"`
}
