// ABOUTME: Rule engine CLI commands
// ABOUTME: Runs single ticks, dry evaluations, the scheduling daemon and the tick history
package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/harperreed/relance/db"
	"github.com/harperreed/relance/models"
	"github.com/harperreed/relance/relance"
)

// TickCommand runs one evaluation and dispatch cycle.
func TickCommand(svc *relance.Service, args []string) error {
	fs := flag.NewFlagSet("tick", flag.ExitOnError)
	date := fs.String("date", "", "Run as of this day YYYY-MM-DD at the current time of day")
	_ = fs.Parse(args)

	asOf := svc.Now()
	if *date != "" {
		day, err := models.ParseDate(*date)
		if err != nil {
			return fmt.Errorf("invalid date: %w", err)
		}
		asOf = models.At(day, models.ClockOf(asOf))
	}

	res, err := svc.Tick(context.Background(), asOf)
	if err != nil {
		return err
	}

	fmt.Printf("Tick %s as of %s\n", res.RunID, res.AsOf.Format("2006-01-02 15:04"))
	fmt.Printf("  Dossiers:   %d\n", res.Dossiers)
	fmt.Printf("  Created:    %d\n", res.Created)
	fmt.Printf("  Escalated:  %d\n", res.Escalated)
	fmt.Printf("  Dispatched: %d\n", res.Dispatched)
	fmt.Printf("  Failed:     %d\n", res.Failed)

	for _, ce := range res.ConfigErrors {
		fmt.Printf("  ⚠ skipped %s\n", ce.Error())
	}
	for _, de := range res.Errors {
		fmt.Printf("  ✗ dossier %s: %s\n", de.DossierID, de.Err)
	}
	return nil
}

// EvaluateCommand lists what a tick would schedule right now, without writing.
func EvaluateCommand(svc *relance.Service, args []string) error {
	fs := flag.NewFlagSet("evaluate", flag.ExitOnError)
	_ = fs.Parse(args)

	ctx := context.Background()
	eval, err := svc.EvaluateNow(ctx)
	if err != nil {
		return err
	}

	for _, ce := range eval.ConfigErrors {
		fmt.Printf("⚠ skipped %s\n", ce.Error())
	}

	if len(eval.Actions) == 0 {
		fmt.Println("Nothing to schedule")
		return nil
	}

	names, err := clientNames(ctx, svc)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "WHEN\tCLIENT\tRULE\tACTION")
	_, _ = fmt.Fprintln(w, "----\t------\t----\t------")

	for _, pa := range eval.Actions {
		action := string(pa.Action.Type)
		if pa.Action.NewStatus != "" {
			action += " -> " + string(pa.Action.NewStatus)
		} else if pa.Action.TemplateID != "" {
			action += " (" + pa.Action.TemplateID + ")"
		}
		_, _ = fmt.Fprintf(w, "%s %s\t%s\t%s\t%s\n",
			models.FormatDate(pa.Date), pa.Time, names[pa.DossierID], pa.RuleName, action)
	}

	return w.Flush()
}

// DaemonCommand ticks on an interval until interrupted.
func DaemonCommand(svc *relance.Service, interval time.Duration, args []string) error {
	fs := flag.NewFlagSet("daemon", flag.ExitOnError)
	every := fs.Duration("interval", interval, "Time between ticks")
	_ = fs.Parse(args)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return svc.Run(ctx, *every)
}

// RunsCommand shows the most recent ticks.
func RunsCommand(svc *relance.Service, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ExitOnError)
	limit := fs.Int("limit", 10, "Number of runs")
	_ = fs.Parse(args)

	runs, err := db.ListTickRuns(context.Background(), svc.DB(), *limit)
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("No ticks yet")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "RUN\tAS OF\tDOSSIERS\tCREATED\tESCALATED\tDISPATCHED\tFAILED\tDURATION")
	_, _ = fmt.Fprintln(w, "---\t-----\t--------\t-------\t---------\t----------\t------\t--------")

	for _, r := range runs {
		duration := "running"
		if r.FinishedAt != nil {
			duration = r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\t%d\t%s\n",
			r.ID, r.AsOf.Format("2006-01-02 15:04"), r.Dossiers, r.Created, r.Escalated,
			r.Dispatched, r.Failed, duration)
	}

	return w.Flush()
}
