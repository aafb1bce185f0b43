// ABOUTME: Google Calendar publisher for manual relances
// ABOUTME: Inserts call and letter obligations into a shared calendar
package transport

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/harperreed/relance/models"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

const obligationDuration = 30 * time.Minute

type CalendarPublisher struct {
	service    *calendar.Service
	calendarID string
}

func NewCalendarPublisher(ctx context.Context, calendarID string, opts ...option.ClientOption) (*CalendarPublisher, error) {
	if calendarID == "" {
		calendarID = "primary"
	}
	service, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}
	return &CalendarPublisher{service: service, calendarID: calendarID}, nil
}

// Publish inserts the obligation and returns the calendar event id.
func (p *CalendarPublisher) Publish(ctx context.Context, ev *models.RelanceEvent, d *models.Dossier) (string, error) {
	created, err := p.service.Events.Insert(p.calendarID, obligationEvent(ev, d)).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("calendar insert: %w", err)
	}
	return created.Id, nil
}

func obligationEvent(ev *models.RelanceEvent, d *models.Dossier) *calendar.Event {
	start := ev.DueAt()
	end := start.Add(obligationDuration)

	verb := "Call"
	if ev.Type == models.ActionLetter {
		verb = "Send letter to"
	}

	var desc []string
	if d.Reference != "" {
		desc = append(desc, "Dossier: "+d.Reference)
	}
	desc = append(desc,
		fmt.Sprintf("Outstanding: %s", d.TotalAmount.StringFixed(2)),
		fmt.Sprintf("Days overdue: %d", d.DaysOverdue),
	)
	if d.ClientPhone != "" && ev.Type == models.ActionCall {
		desc = append(desc, "Phone: "+d.ClientPhone)
	}
	if ev.Message != "" {
		desc = append(desc, ev.Message)
	}
	desc = append(desc, "Relance event: "+ev.ID.String())

	out := &calendar.Event{
		Summary:     fmt.Sprintf("%s %s", verb, d.ClientName),
		Description: strings.Join(desc, "\n"),
		Start:       &calendar.EventDateTime{DateTime: start.Format(time.RFC3339)},
		End:         &calendar.EventDateTime{DateTime: end.Format(time.RFC3339)},
	}
	if ev.AssignTo != "" && strings.Contains(ev.AssignTo, "@") {
		out.Attendees = []*calendar.EventAttendee{{Email: ev.AssignTo}}
	}
	return out
}
