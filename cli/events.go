// ABOUTME: Relance event and calendar CLI commands
// ABOUTME: Commands for daily agendas, manual scheduling, event outcomes and the month calendar
package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/relance/db"
	"github.com/harperreed/relance/models"
	"github.com/harperreed/relance/relance"
	"github.com/harperreed/relance/scheduler"
)

func clientNames(ctx context.Context, svc *relance.Service) (map[uuid.UUID]string, error) {
	dossiers, err := db.ListDossiers(ctx, svc.DB(), db.DossierFilter{IncludeClosed: true})
	if err != nil {
		return nil, fmt.Errorf("failed to list dossiers: %w", err)
	}
	names := make(map[uuid.UUID]string, len(dossiers))
	for _, d := range dossiers {
		names[d.ID] = d.ClientName
	}
	return names, nil
}

func statusIcon(status models.EventStatus) string {
	switch status {
	case models.EventCompleted:
		return "✓"
	case models.EventFailed:
		return "✗"
	case models.EventCancelled:
		return "-"
	case models.EventInFlight:
		return "…"
	default:
		return "•"
	}
}

func printEvents(ctx context.Context, svc *relance.Service, events []models.RelanceEvent, withDate bool) error {
	names, err := clientNames(ctx, svc)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	header := "ID\tWHEN\tTYPE\tCLIENT\tSTATUS\tDETAIL"
	if !withDate {
		header = "ID\tTIME\tTYPE\tCLIENT\tSTATUS\tDETAIL"
	}
	_, _ = fmt.Fprintln(w, header)
	_, _ = fmt.Fprintln(w, "--\t----\t----\t------\t------\t------")

	for i := range events {
		ev := &events[i]
		when := ev.Time
		if withDate {
			when = models.FormatDate(ev.Date) + " " + ev.Time
		}
		detail := ev.TemplateID
		if ev.NewStatus != "" {
			detail = "-> " + string(ev.NewStatus)
		}
		if ev.AssignTo != "" {
			detail = "@" + ev.AssignTo
		}
		if ev.Result != "" {
			detail = strings.TrimSpace(detail + " " + ev.Result)
		}
		origin := ""
		if !ev.IsAutomatic {
			origin = " (manual)"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s%s\t%s\t%s %s\t%s\n",
			ev.ID, when, ev.Type, origin, names[ev.DossierID],
			statusIcon(ev.Status), ev.Status, detail)
	}

	return w.Flush()
}

// EventsOnCommand shows the relances of one day.
func EventsOnCommand(svc *relance.Service, args []string) error {
	fs := flag.NewFlagSet("events-on", flag.ExitOnError)
	_ = fs.Parse(args)

	date := svc.Now()
	if fs.NArg() > 0 {
		parsed, err := models.ParseDate(fs.Arg(0))
		if err != nil {
			return fmt.Errorf("invalid date, expected YYYY-MM-DD: %w", err)
		}
		date = parsed
	}

	ctx := context.Background()
	events, err := svc.EventsOn(ctx, date)
	if err != nil {
		return err
	}

	fmt.Printf("Relances on %s\n\n", date.Format("Monday 2 January 2006"))
	if len(events) == 0 {
		fmt.Println("Nothing scheduled")
		return nil
	}
	return printEvents(ctx, svc, events, false)
}

// UpcomingCommand shows a dossier's scheduled relances.
func UpcomingCommand(svc *relance.Service, args []string) error {
	fs := flag.NewFlagSet("upcoming", flag.ExitOnError)
	history := fs.Bool("history", false, "Show every event, not only scheduled ones")
	_ = fs.Parse(args)

	if fs.NArg() < 1 {
		return fmt.Errorf("dossier ID required")
	}

	ctx := context.Background()
	id, err := resolveDossierID(ctx, svc, fs.Arg(0))
	if err != nil {
		return err
	}

	var events []models.RelanceEvent
	if *history {
		events, err = svc.Scheduler().History(ctx, id)
	} else {
		events, err = svc.Upcoming(ctx, id)
	}
	if err != nil {
		return err
	}

	if len(events) == 0 {
		fmt.Println("No events")
		return nil
	}
	return printEvents(ctx, svc, events, true)
}

// ScheduleCommand creates a manual relance.
func ScheduleCommand(svc *relance.Service, args []string) error {
	fs := flag.NewFlagSet("schedule", flag.ExitOnError)
	dossier := fs.String("dossier", "", "Dossier ID (required)")
	kind := fs.String("type", "", "email, sms, call, letter or status_change (required)")
	date := fs.String("date", "", "Day YYYY-MM-DD (default today)")
	at := fs.String("time", "", "Time of day HH:MM (default now)")
	template := fs.String("template", "", "Template for email and sms")
	status := fs.String("status", "", "Target step for status_change")
	assign := fs.String("assign", "", "Person responsible for calls and letters")
	message := fs.String("message", "", "Free text")
	now := fs.Bool("now", false, "Dispatch right away when due")
	_ = fs.Parse(args)

	if *dossier == "" || *kind == "" {
		return fmt.Errorf("--dossier and --type are required")
	}

	ctx := context.Background()
	id, err := resolveDossierID(ctx, svc, *dossier)
	if err != nil {
		return err
	}

	var day time.Time
	if *date != "" {
		if day, err = models.ParseDate(*date); err != nil {
			return fmt.Errorf("invalid date: %w", err)
		}
	}

	ev, err := svc.Schedule(ctx, scheduler.ManualEvent{
		DossierID:  id,
		Date:       day,
		Time:       *at,
		Type:       models.ActionType(*kind),
		TemplateID: *template,
		NewStatus:  models.DossierStatus(*status),
		AssignTo:   *assign,
		Message:    *message,
	})
	if err != nil {
		return err
	}

	fmt.Printf("✓ Scheduled %s on %s at %s (ID: %s)\n", ev.Type, models.FormatDate(ev.Date), ev.Time, ev.ID)

	if !*now {
		return nil
	}
	res, err := svc.DispatchEvent(ctx, ev.ID)
	if err != nil {
		return err
	}
	fmt.Printf("  → %s %s\n", res.Outcome, res.Detail)
	return nil
}

func parseEventID(ref string) (uuid.UUID, error) {
	id, err := uuid.Parse(ref)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid event ID: %w", err)
	}
	return id, nil
}

// CancelEventCommand cancels a scheduled relance.
func CancelEventCommand(svc *relance.Service, args []string) error {
	fs := flag.NewFlagSet("cancel-event", flag.ExitOnError)
	_ = fs.Parse(args)

	if fs.NArg() < 1 {
		return fmt.Errorf("event ID required")
	}

	id, err := parseEventID(fs.Arg(0))
	if err != nil {
		return err
	}
	ctx := context.Background()

	if err := svc.Scheduler().Cancel(ctx, id); err != nil {
		return err
	}

	fmt.Printf("✓ Cancelled event %s\n", id)
	return nil
}

// CompleteEventCommand records the outcome of a call, letter or other relance.
func CompleteEventCommand(svc *relance.Service, args []string) error {
	fs := flag.NewFlagSet("complete-event", flag.ExitOnError)
	result := fs.String("result", "", "Outcome note")
	failed := fs.Bool("failed", false, "Record as failed")
	_ = fs.Parse(args)

	if fs.NArg() < 1 {
		return fmt.Errorf("event ID required")
	}

	id, err := parseEventID(fs.Arg(0))
	if err != nil {
		return err
	}
	ctx := context.Background()

	if *failed {
		err = svc.Scheduler().Fail(ctx, id, *result)
	} else {
		err = svc.Scheduler().Complete(ctx, id, *result)
	}
	if err != nil {
		return err
	}

	fmt.Printf("✓ Event %s recorded\n", id)
	return nil
}

// RetryEventCommand schedules a new attempt of a failed relance.
func RetryEventCommand(svc *relance.Service, args []string) error {
	fs := flag.NewFlagSet("retry-event", flag.ExitOnError)
	_ = fs.Parse(args)

	if fs.NArg() < 1 {
		return fmt.Errorf("event ID required")
	}

	id, err := parseEventID(fs.Arg(0))
	if err != nil {
		return err
	}
	ctx := context.Background()

	ev, err := svc.Scheduler().Retry(ctx, id)
	if err != nil {
		return err
	}

	fmt.Printf("✓ Retry scheduled (ID: %s)\n", ev.ID)
	return nil
}

// CalendarCommand prints a month grid with the number of relances per day.
func CalendarCommand(svc *relance.Service, args []string) error {
	fs := flag.NewFlagSet("calendar", flag.ExitOnError)
	month := fs.String("month", "", "Month YYYY-MM (default current)")
	_ = fs.Parse(args)

	now := svc.Now()
	year, mon := now.Year(), now.Month()
	if *month != "" {
		t, err := time.Parse("2006-01", *month)
		if err != nil {
			return fmt.Errorf("invalid month, expected YYYY-MM: %w", err)
		}
		year, mon = t.Year(), t.Month()
	}

	grid, err := svc.Scheduler().GridWithEvents(context.Background(), year, mon)
	if err != nil {
		return err
	}

	fmt.Print(renderGrid(grid))
	return nil
}

// renderGrid draws the month as text, one cell per day with its event count.
func renderGrid(grid scheduler.Grid) string {
	var out strings.Builder
	out.WriteString(fmt.Sprintf("%s %d\n\n", grid.Month, grid.Year))
	out.WriteString(" Mon    Tue    Wed    Thu    Fri    Sat    Sun\n")

	for _, week := range grid.Weeks() {
		for _, day := range week {
			cell := fmt.Sprintf("%2d", day.Date.Day())
			if !day.InMonth {
				cell = "  "
			}
			marker := " "
			if day.IsToday {
				marker = "*"
			}
			count := "  "
			if n := len(day.Events); n > 0 && day.InMonth {
				count = fmt.Sprintf("%-2d", n)
				if n > 99 {
					count = "99"
				}
			}
			out.WriteString(fmt.Sprintf("%s%s(%s) ", marker, cell, count))
		}
		out.WriteString("\n")
	}
	return out.String()
}
