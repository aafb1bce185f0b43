// ABOUTME: Rule engine that turns relance rules into pending actions for a dossier
// ABOUTME: Validates rules once per tick, then evaluates conditions, ordering and idempotency
package engine

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/harperreed/relance/models"
)

var (
	ErrNoActions           = errors.New("rule has no actions")
	ErrInvertedAmountRange = errors.New("rule amount range has min greater than max")
	ErrMalformedSchedule   = errors.New("rule schedule is malformed")
	ErrInvalidAction       = errors.New("rule action is invalid")
)

// ConfigError reports a rule that was skipped because of its configuration.
type ConfigError struct {
	RuleID   uuid.UUID
	RuleName string
	Err      error
}

func (e ConfigError) Error() string {
	return fmt.Sprintf("rule %q (%s): %v", e.RuleName, e.RuleID, e.Err)
}

func (e ConfigError) Unwrap() error {
	return e.Err
}

// Input is everything Evaluate needs to know about one dossier.
type Input struct {
	Dossier  *models.Dossier
	Invoices []models.Invoice
	// Existing holds the dossier's events, whatever their status.
	Existing []models.RelanceEvent
	AsOf     time.Time
}

// Result of evaluating one dossier.
type Result struct {
	DaysOverdue int
	Actions     []models.PendingAction
	// Governing is the status change that drives the escalation for this
	// tick, nil when no matching rule advances the dossier.
	Governing *models.PendingAction
	// Matched lists the ids of rules whose threshold and conditions held.
	Matched []uuid.UUID
}

// Engine evaluates a fixed, pre-validated rule set.
type Engine struct {
	rules  []models.RelanceRule
	errs   []ConfigError
	logger *log.Logger
}

// New validates rules and keeps the active, well-formed ones ordered by
// priority descending then trigger days descending.
func New(rules []models.RelanceRule, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.Default()
	}
	e := &Engine{logger: logger}

	for _, r := range rules {
		if !r.IsActive {
			continue
		}
		if err := Validate(&r); err != nil {
			ce := ConfigError{RuleID: r.ID, RuleName: r.Name, Err: err}
			e.errs = append(e.errs, ce)
			logger.Warn("skipping misconfigured rule", "rule", r.Name, "id", r.ID, "err", err)
			continue
		}
		e.rules = append(e.rules, r)
	}

	sort.SliceStable(e.rules, func(i, j int) bool {
		return ruleLess(&e.rules[i], &e.rules[j])
	})

	return e
}

// ruleLess orders rules by priority, then by how overdue they fire.
func ruleLess(a, b *models.RelanceRule) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	return a.TriggerDays > b.TriggerDays
}

// Rules returns the rules the engine will evaluate, in evaluation order.
func (e *Engine) Rules() []models.RelanceRule {
	return e.rules
}

// ConfigErrors returns the rules that were skipped at construction.
func (e *Engine) ConfigErrors() []ConfigError {
	return e.errs
}

// Validate checks a rule's configuration.
func Validate(r *models.RelanceRule) error {
	if len(r.Actions) == 0 {
		return ErrNoActions
	}
	if r.TriggerDays < 1 {
		return fmt.Errorf("%w: trigger days must be at least 1", ErrMalformedSchedule)
	}

	for i, a := range r.Actions {
		if !a.Type.Valid() {
			return fmt.Errorf("%w: action %d has unknown type %q", ErrInvalidAction, i, a.Type)
		}
		if a.Type == models.ActionStatusChange && !a.NewStatus.Valid() {
			return fmt.Errorf("%w: action %d has no valid new status", ErrInvalidAction, i)
		}
	}

	c := r.TriggerConditions
	if c.MinAmount != nil && c.MaxAmount != nil && c.MinAmount.GreaterThan(*c.MaxAmount) {
		return ErrInvertedAmountRange
	}

	s := r.Schedule
	if !s.Enabled {
		return nil
	}
	if _, _, err := models.ParseClock(s.Time); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedSchedule, err)
	}
	if !s.Frequency.Valid() {
		return fmt.Errorf("%w: unknown frequency %q", ErrMalformedSchedule, s.Frequency)
	}
	if s.Frequency == models.FrequencyWeekly && len(s.Weekdays) == 0 {
		return fmt.Errorf("%w: weekly schedule without weekdays", ErrMalformedSchedule)
	}
	for _, wd := range s.Weekdays {
		if wd < time.Sunday || wd > time.Saturday {
			return fmt.Errorf("%w: invalid weekday %d", ErrMalformedSchedule, wd)
		}
	}
	return nil
}

// DaysOverdue recomputes a dossier's days overdue from its unpaid invoices,
// falling back to the stored value for dossiers without invoices.
func DaysOverdue(d *models.Dossier, invoices []models.Invoice, asOf time.Time) int {
	if len(invoices) == 0 {
		if d.DaysOverdue < 0 {
			return 0
		}
		return d.DaysOverdue
	}
	days := 0
	for i := range invoices {
		if n := invoices[i].DaysOverdue(asOf); n > days {
			days = n
		}
	}
	return days
}

// Matches reports whether a rule applies to a dossier with the given days overdue.
func Matches(r *models.RelanceRule, d *models.Dossier, daysOverdue int) bool {
	if daysOverdue < r.TriggerDays {
		return false
	}

	c := r.TriggerConditions
	if len(c.Statuses) > 0 && !containsStatus(c.Statuses, d.Status) {
		return false
	}
	if len(c.Priorities) > 0 && !containsPriority(c.Priorities, d.Priority) {
		return false
	}
	if c.MinAmount != nil && c.MaxAmount != nil && c.MinAmount.GreaterThan(*c.MaxAmount) {
		return false
	}
	if c.MinAmount != nil && d.TotalAmount.LessThan(*c.MinAmount) {
		return false
	}
	if c.MaxAmount != nil && d.TotalAmount.GreaterThan(*c.MaxAmount) {
		return false
	}
	if len(c.Tags) > 0 {
		found := false
		for _, tag := range c.Tags {
			if d.HasTag(tag) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func containsStatus(set []models.DossierStatus, s models.DossierStatus) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

func containsPriority(set []models.Priority, p models.Priority) bool {
	for _, v := range set {
		if v == p {
			return true
		}
	}
	return false
}

// Evaluate decides which actions should become events for one dossier.
// It performs no writes: calling it twice with the same input and no
// intervening changes yields the same result.
func (e *Engine) Evaluate(in Input) Result {
	d := in.Dossier
	res := Result{DaysOverdue: DaysOverdue(d, in.Invoices, in.AsOf)}
	if d.IsClosed() {
		return res
	}

	date := models.DateOf(in.AsOf)
	immediate := models.ClockOf(in.AsOf)

	var firing []*models.RelanceRule
	for i := range e.rules {
		r := &e.rules[i]
		if !Matches(r, d, res.DaysOverdue) {
			continue
		}
		res.Matched = append(res.Matched, r.ID)
		if firesOn(r, d, in.Existing, date) {
			firing = append(firing, r)
		}
	}

	// The firing status change reaching the highest step governs the
	// escalation. Rules targeting the same step keep priority order, so the
	// first one wins. Other status changes of this tick are dropped.
	var governing *models.RelanceRule
	var target models.DossierStatus
	for _, r := range firing {
		_, sc := r.StatusChange()
		if sc == nil {
			continue
		}
		next, moved := models.Advance(d.Status, sc.NewStatus)
		if !moved {
			continue
		}
		if governing == nil || next.Rank() > target.Rank() {
			governing, target = r, next
		}
	}

	for _, r := range firing {
		clock := immediate
		if r.Schedule.Enabled {
			clock = r.Schedule.Time
		}

		for idx, action := range r.Actions {
			if action.Type == models.ActionStatusChange && r != governing {
				continue
			}
			if r.Schedule.IsRecurring() && hasEventOn(in.Existing, r.ID, idx, date) {
				continue
			}

			at := clock
			if action.Type == models.ActionStatusChange {
				// Due at once so it is applied before this tick's messages.
				at = immediate
			}

			pa := models.PendingAction{
				DossierID:    d.ID,
				RuleID:       r.ID,
				RuleName:     r.Name,
				ActionIndex:  idx,
				Action:       action,
				Date:         date,
				Time:         at,
				Priority:     d.Priority,
				RulePriority: r.Priority,
				TriggerDays:  r.TriggerDays,
			}
			res.Actions = append(res.Actions, pa)
			if action.Type == models.ActionStatusChange {
				gov := pa
				res.Governing = &gov
			}
		}
	}

	return res
}

// firesOn applies the frequency policy of a rule for a date.
func firesOn(r *models.RelanceRule, d *models.Dossier, existing []models.RelanceEvent, date time.Time) bool {
	if r.Schedule.IsRecurring() {
		return r.Schedule.RunsOn(date)
	}

	// Once: any event the rule produced since the dossier's last reset
	// suppresses it, including failed and cancelled ones, so a failed send is
	// never re-emitted automatically.
	for i := range existing {
		ev := &existing[i]
		if ev.RuleID == nil || *ev.RuleID != r.ID || ev.DossierID != d.ID {
			continue
		}
		if d.ResetAt != nil && ev.CreatedAt.Before(*d.ResetAt) {
			continue
		}
		return false
	}
	return true
}

func hasEventOn(existing []models.RelanceEvent, ruleID uuid.UUID, actionIndex int, date time.Time) bool {
	for i := range existing {
		ev := &existing[i]
		if ev.RuleID != nil && *ev.RuleID == ruleID && ev.ActionIndex == actionIndex && models.SameDay(ev.Date, date) {
			return true
		}
	}
	return false
}
