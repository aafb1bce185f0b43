// ABOUTME: Terminal dashboard statistics and rendering
// ABOUTME: Summarizes the escalation ladder, risk tiers, today's relances and the last tick

package viz

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/harperreed/relance/db"
	"github.com/harperreed/relance/models"
	"github.com/shopspring/decimal"
)

type DashboardStats struct {
	// Open dossiers per ladder step
	ByStatus map[models.DossierStatus]StepStats
	ByTier   map[models.RiskTier]int

	TotalDossiers int
	Outstanding   decimal.Decimal

	// Relances dated today, per event status
	Today map[models.EventStatus]int
	// Scheduled relances in the next seven days
	UpcomingWeek int

	// Needs attention
	Critical []CriticalItem

	LastTick *db.TickRun
}

type StepStats struct {
	Status models.DossierStatus
	Count  int
	Amount decimal.Decimal
}

type CriticalItem struct {
	ClientName  string
	Tier        models.RiskTier
	DaysOverdue int
	Amount      decimal.Decimal
}

const criticalListSize = 5

func GenerateDashboardStats(ctx context.Context, database *sql.DB, now time.Time) (*DashboardStats, error) {
	stats := &DashboardStats{
		ByStatus:    make(map[models.DossierStatus]StepStats),
		ByTier:      make(map[models.RiskTier]int),
		Outstanding: decimal.Zero,
	}

	dossiers, err := db.ListDossiers(ctx, database, db.DossierFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch dossiers: %w", err)
	}

	for i := range dossiers {
		d := &dossiers[i]
		step := stats.ByStatus[d.Status]
		step.Status = d.Status
		step.Count++
		step.Amount = step.Amount.Add(d.TotalAmount)
		stats.ByStatus[d.Status] = step

		stats.ByTier[models.Classify(d)]++
		stats.Outstanding = stats.Outstanding.Add(d.TotalAmount)
	}
	stats.TotalDossiers = len(dossiers)

	models.SortByRisk(dossiers)
	for i := range dossiers {
		if len(stats.Critical) == criticalListSize {
			break
		}
		d := &dossiers[i]
		tier := models.Classify(d)
		if tier == models.RiskMedium && d.Status != models.StatusCritical {
			continue
		}
		stats.Critical = append(stats.Critical, CriticalItem{
			ClientName:  d.ClientName,
			Tier:        tier,
			DaysOverdue: d.DaysOverdue,
			Amount:      d.TotalAmount,
		})
	}

	stats.Today, err = db.CountEventsByStatus(ctx, database, now)
	if err != nil {
		return nil, fmt.Errorf("failed to count today's events: %w", err)
	}

	week, err := db.ListEventsBetween(ctx, database, now, now.AddDate(0, 0, 7))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch upcoming events: %w", err)
	}
	for _, ev := range week {
		if ev.Status == models.EventScheduled {
			stats.UpcomingWeek++
		}
	}

	runs, err := db.ListTickRuns(ctx, database, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch tick runs: %w", err)
	}
	if len(runs) > 0 {
		stats.LastTick = &runs[0]
	}

	return stats, nil
}

func RenderDashboard(stats *DashboardStats) string {
	var out strings.Builder

	out.WriteString("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
	out.WriteString("  RELANCE DASHBOARD\n")
	out.WriteString("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

	out.WriteString("ESCALATION LADDER\n")
	renderLadder(&out, stats.ByStatus)
	out.WriteString("\n")

	out.WriteString("PORTFOLIO\n")
	out.WriteString(fmt.Sprintf("  📁 %d open dossiers  💶 %s outstanding\n", stats.TotalDossiers, stats.Outstanding.StringFixed(2)))
	out.WriteString(fmt.Sprintf("  risk: %d medium  %d high  %d extreme\n\n",
		stats.ByTier[models.RiskMedium], stats.ByTier[models.RiskHigh], stats.ByTier[models.RiskExtreme]))

	out.WriteString("RELANCES\n")
	out.WriteString(fmt.Sprintf("  today: %d scheduled  %d completed  %d failed  %d cancelled\n",
		stats.Today[models.EventScheduled], stats.Today[models.EventCompleted],
		stats.Today[models.EventFailed], stats.Today[models.EventCancelled]))
	out.WriteString(fmt.Sprintf("  next 7 days: %d scheduled\n\n", stats.UpcomingWeek))

	if len(stats.Critical) > 0 {
		out.WriteString("NEEDS ATTENTION\n")
		for _, c := range stats.Critical {
			out.WriteString(fmt.Sprintf("  ⚠️  %-24s %-8s %4dd  %s\n", truncate(c.ClientName, 24), c.Tier, c.DaysOverdue, c.Amount.StringFixed(2)))
		}
		out.WriteString("\n")
	}

	if stats.LastTick != nil {
		t := stats.LastTick
		out.WriteString("LAST TICK\n")
		out.WriteString(fmt.Sprintf("  %s  %d dossiers, %d created, %d escalated, %d dispatched, %d failed\n",
			t.StartedAt.Format("2006-01-02 15:04"), t.Dossiers, t.Created, t.Escalated, t.Dispatched, t.Failed))
		if t.ConfigErrors > 0 {
			out.WriteString(fmt.Sprintf("  ⚠️  %d misconfigured rules skipped\n", t.ConfigErrors))
		}
	}

	return out.String()
}

func renderLadder(out *strings.Builder, ladder map[models.DossierStatus]StepStats) {
	maxCount := 0
	for _, s := range ladder {
		if s.Count > maxCount {
			maxCount = s.Count
		}
	}
	if maxCount == 0 {
		maxCount = 1
	}

	for _, status := range models.Ladder {
		s := ladder[status]
		barLength := (s.Count * 10) / maxCount
		bar := strings.Repeat("█", barLength) + strings.Repeat("░", 10-barLength)
		out.WriteString(fmt.Sprintf("  %-11s %s  %3d (%s)\n", status, bar, s.Count, s.Amount.StringFixed(2)))
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
