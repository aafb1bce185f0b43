// ABOUTME: Month calendar grid generation
// ABOUTME: Builds Monday-first 7-column grids with adjacent-month padding and attached events
package scheduler

import (
	"context"
	"time"

	"github.com/harperreed/relance/db"
	"github.com/harperreed/relance/models"
)

type Day struct {
	Date    time.Time
	InMonth bool
	IsToday bool
	Events  []models.RelanceEvent
}

type Grid struct {
	Year  int
	Month time.Month
	Days  []Day
}

// Weeks splits the grid into rows of seven days.
func (g Grid) Weeks() [][]Day {
	var weeks [][]Day
	for i := 0; i+7 <= len(g.Days); i += 7 {
		weeks = append(weeks, g.Days[i:i+7])
	}
	return weeks
}

// First and Last return the first and last cell dates.
func (g Grid) First() time.Time { return g.Days[0].Date }
func (g Grid) Last() time.Time  { return g.Days[len(g.Days)-1].Date }

// MonthGrid returns complete Monday-first weeks covering the month.
func MonthGrid(year int, month time.Month, today time.Time) Grid {
	first := time.Date(year, month, 1, 0, 0, 0, 0, models.Location)
	daysInMonth := time.Date(year, month+1, 0, 0, 0, 0, 0, models.Location).Day()

	leading := (int(first.Weekday()) + 6) % 7
	trailing := (7 - (leading+daysInMonth)%7) % 7

	start := first.AddDate(0, 0, -leading)
	total := leading + daysInMonth + trailing

	g := Grid{Year: year, Month: month, Days: make([]Day, 0, total)}
	for i := 0; i < total; i++ {
		date := start.AddDate(0, 0, i)
		g.Days = append(g.Days, Day{
			Date:    date,
			InMonth: date.Month() == month && date.Year() == year,
			IsToday: models.SameDay(date, today),
		})
	}
	return g
}

// GridWithEvents builds the month grid and attaches every event of every
// cell, including the padding days from adjacent months.
func (s *Scheduler) GridWithEvents(ctx context.Context, year int, month time.Month) (Grid, error) {
	g := MonthGrid(year, month, s.now())

	events, err := db.ListEventsBetween(ctx, s.db, g.First(), g.Last())
	if err != nil {
		return g, err
	}

	byDate := make(map[string][]models.RelanceEvent)
	for _, ev := range events {
		key := models.FormatDate(ev.Date)
		byDate[key] = append(byDate[key], ev)
	}
	for i := range g.Days {
		g.Days[i].Events = byDate[models.FormatDate(g.Days[i].Date)]
	}

	return g, nil
}
