// ABOUTME: Relance rule and template CLI commands
// ABOUTME: Commands for defining, listing, toggling and deleting rules, and listing templates
package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/harperreed/relance/db"
	"github.com/harperreed/relance/dispatch"
	"github.com/harperreed/relance/engine"
	"github.com/harperreed/relance/handlers"
	"github.com/harperreed/relance/models"
	"github.com/harperreed/relance/relance"
)

// actionList collects repeated --action flags.
type actionList []models.RuleAction

func (a *actionList) String() string {
	parts := make([]string, len(*a))
	for i, act := range *a {
		parts[i] = string(act.Type)
	}
	return strings.Join(parts, ",")
}

// Set parses "type[:arg]". The argument is the template for email and sms,
// the target step for status, and the assignee for call and letter.
func (a *actionList) Set(value string) error {
	kind, arg, _ := strings.Cut(value, ":")
	action := models.RuleAction{Type: models.ActionType(kind)}

	switch action.Type {
	case models.ActionEmail, models.ActionSMS:
		action.TemplateID = arg
	case models.ActionCall, models.ActionLetter:
		action.AssignTo = arg
	case models.ActionStatusChange, "status":
		action.Type = models.ActionStatusChange
		action.NewStatus = models.DossierStatus(arg)
	default:
		return fmt.Errorf("unknown action type %q", kind)
	}

	*a = append(*a, action)
	return nil
}

// AddRuleCommand defines a new relance rule.
func AddRuleCommand(svc *relance.Service, args []string) error {
	fs := flag.NewFlagSet("add-rule", flag.ExitOnError)
	name := fs.String("name", "", "Rule name (required)")
	days := fs.Int("days", 0, "Days overdue threshold (required)")
	priority := fs.Int("priority", 0, "Tie-break weight, higher wins")
	statuses := fs.String("statuses", "", "Only match these steps (comma-separated)")
	priorities := fs.String("priorities", "", "Only match these priorities (comma-separated)")
	minAmount := fs.String("min", "", "Minimum outstanding amount")
	maxAmount := fs.String("max", "", "Maximum outstanding amount")
	tags := fs.String("tags", "", "Required tags (comma-separated)")
	frequency := fs.String("frequency", "", "once, daily or weekly (default: immediate, once per crossing)")
	at := fs.String("time", "09:00", "Time of day for scheduled rules")
	weekdays := fs.String("weekdays", "", "Weekdays for weekly rules, e.g. mon,thu")
	message := fs.String("message", "", "Text added to every action")
	inactive := fs.Bool("inactive", false, "Create the rule disabled")
	var actions actionList
	fs.Var(&actions, "action", "Action as type[:arg], repeatable (email:reminder-1, sms:sms-reminder, status:reminder_1, call:alice, letter)")
	_ = fs.Parse(args)

	if *name == "" || *days == 0 {
		return fmt.Errorf("--name and --days are required")
	}

	rule := &models.RelanceRule{
		Name:        *name,
		TriggerDays: *days,
		Priority:    *priority,
		IsActive:    !*inactive,
		Actions:     actions,
	}
	for i := range rule.Actions {
		rule.Actions[i].Message = *message
	}

	cond := &rule.TriggerConditions
	for _, s := range splitList(*statuses) {
		cond.Statuses = append(cond.Statuses, models.DossierStatus(s))
	}
	for _, p := range splitList(*priorities) {
		cond.Priorities = append(cond.Priorities, models.Priority(p))
	}
	cond.Tags = splitList(*tags)

	var err error
	if cond.MinAmount, err = models.ParseAmount("--min", *minAmount); err != nil {
		return err
	}
	if cond.MaxAmount, err = models.ParseAmount("--max", *maxAmount); err != nil {
		return err
	}

	if *frequency != "" {
		days, err := models.ParseWeekdays(splitList(*weekdays))
		if err != nil {
			return err
		}
		rule.Schedule = models.Schedule{
			Enabled:   true,
			Time:      *at,
			Frequency: models.Frequency(*frequency),
			Weekdays:  days,
		}
	}

	if err := engine.Validate(rule); err != nil {
		return fmt.Errorf("invalid rule: %w", err)
	}
	if err := db.CreateRule(context.Background(), svc.DB(), rule); err != nil {
		return fmt.Errorf("failed to create rule: %w", err)
	}

	fmt.Printf("✓ Created rule: %s (ID: %s)\n", rule.Name, rule.ID)
	return nil
}

// ListRulesCommand lists rules in evaluation order.
func ListRulesCommand(svc *relance.Service, args []string) error {
	fs := flag.NewFlagSet("list-rules", flag.ExitOnError)
	activeOnly := fs.Bool("active", false, "Only show active rules")
	_ = fs.Parse(args)

	rules, err := db.ListRules(context.Background(), svc.DB(), *activeOnly)
	if err != nil {
		return fmt.Errorf("failed to list rules: %w", err)
	}

	if len(rules) == 0 {
		fmt.Println("No rules defined")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tDAYS\tPRIO\tACTIVE\tACTIONS\tSCHEDULE")
	_, _ = fmt.Fprintln(w, "--\t----\t----\t----\t------\t-------\t--------")

	for i := range rules {
		r := &rules[i]
		active := "no"
		if r.IsActive {
			active = "yes"
		}
		if err := engine.Validate(r); err != nil {
			active += " (invalid)"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\t%s\n",
			r.ID.String()[:8], r.Name, r.TriggerDays, r.Priority, active,
			describeActions(r.Actions), handlers.DescribeSchedule(r.Schedule))
	}

	_ = w.Flush()
	return nil
}

func describeActions(actions []models.RuleAction) string {
	parts := make([]string, len(actions))
	for i, a := range actions {
		switch {
		case a.NewStatus != "":
			parts[i] = string(a.Type) + "->" + string(a.NewStatus)
		case a.TemplateID != "":
			parts[i] = string(a.Type) + ":" + a.TemplateID
		default:
			parts[i] = string(a.Type)
		}
	}
	return strings.Join(parts, ", ")
}

// ToggleRuleCommand enables or disables a rule.
func ToggleRuleCommand(svc *relance.Service, args []string) error {
	fs := flag.NewFlagSet("toggle-rule", flag.ExitOnError)
	off := fs.Bool("off", false, "Disable instead of enable")
	_ = fs.Parse(args)

	if fs.NArg() < 1 {
		return fmt.Errorf("rule ID required")
	}

	ctx := context.Background()
	id, err := resolveRuleID(ctx, svc, fs.Arg(0))
	if err != nil {
		return err
	}

	if err := db.SetRuleActive(ctx, svc.DB(), id, !*off); err != nil {
		return err
	}

	state := "enabled"
	if *off {
		state = "disabled"
	}
	fmt.Printf("✓ Rule %s %s\n", id, state)
	return nil
}

// DeleteRuleCommand removes a rule. Events it produced are kept for audit.
func DeleteRuleCommand(svc *relance.Service, args []string) error {
	fs := flag.NewFlagSet("delete-rule", flag.ExitOnError)
	_ = fs.Parse(args)

	if fs.NArg() < 1 {
		return fmt.Errorf("rule ID required")
	}

	ctx := context.Background()
	id, err := resolveRuleID(ctx, svc, fs.Arg(0))
	if err != nil {
		return err
	}

	if err := db.DeleteRule(ctx, svc.DB(), id); err != nil {
		return err
	}

	fmt.Printf("✓ Deleted rule %s\n", id)
	return nil
}

func resolveRuleID(ctx context.Context, svc *relance.Service, ref string) (uuid.UUID, error) {
	if id, err := uuid.Parse(ref); err == nil {
		return id, nil
	}

	rules, err := db.ListRules(ctx, svc.DB(), false)
	if err != nil {
		return uuid.Nil, err
	}
	for i := range rules {
		if len(ref) >= 4 && strings.HasPrefix(rules[i].ID.String(), ref) {
			return rules[i].ID, nil
		}
	}
	return uuid.Nil, fmt.Errorf("no rule matches %s", ref)
}

// TemplatesCommand lists message templates, stored ones overriding built-ins.
func TemplatesCommand(svc *relance.Service, args []string) error {
	fs := flag.NewFlagSet("templates", flag.ExitOnError)
	_ = fs.Parse(args)

	stored, err := db.ListTemplates(context.Background(), svc.DB())
	if err != nil {
		return fmt.Errorf("failed to list templates: %w", err)
	}

	seen := make(map[string]bool)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tCHANNEL\tSOURCE\tSUBJECT")
	_, _ = fmt.Fprintln(w, "--\t-------\t------\t-------")

	for _, tpl := range stored {
		seen[tpl.ID] = true
		_, _ = fmt.Fprintf(w, "%s\t%s\tstored\t%s\n", tpl.ID, tpl.Channel, tpl.Subject)
	}
	for _, tpl := range dispatch.BuiltinTemplates() {
		if seen[tpl.ID] {
			continue
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\tbuilt-in\t%s\n", tpl.ID, tpl.Channel, tpl.Subject)
	}

	_ = w.Flush()
	return nil
}
