// ABOUTME: Dossier and invoice CLI commands
// ABOUTME: Human-friendly commands for registering debts, payments and reviewing risk
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
	"github.com/harperreed/relance/models"
	"github.com/harperreed/relance/relance"
	"github.com/shopspring/decimal"
)

// AddDossierCommand registers a new debtor dossier.
func AddDossierCommand(svc *relance.Service, args []string) error {
	fs := flag.NewFlagSet("add-dossier", flag.ExitOnError)
	client := fs.String("client", "", "Debtor name (required)")
	email := fs.String("email", "", "Email address for email relances")
	phone := fs.String("phone", "", "Phone number for SMS relances")
	reference := fs.String("ref", "", "Internal dossier reference")
	priority := fs.String("priority", "medium", "Priority (low, medium, high, urgent)")
	tags := fs.String("tags", "", "Comma-separated tags")
	_ = fs.Parse(args)

	if *client == "" {
		return fmt.Errorf("--client is required")
	}

	d := &models.Dossier{
		ClientName:  *client,
		ClientEmail: *email,
		ClientPhone: *phone,
		Reference:   *reference,
		Priority:    models.Priority(*priority),
		Tags:        splitList(*tags),
	}
	if err := db.CreateDossier(context.Background(), svc.DB(), d); err != nil {
		return fmt.Errorf("failed to create dossier: %w", err)
	}

	fmt.Printf("✓ Created dossier: %s (ID: %s)\n", d.ClientName, d.ID)
	return nil
}

// ListDossiersCommand lists dossiers with their ladder step and risk.
func ListDossiersCommand(svc *relance.Service, args []string) error {
	fs := flag.NewFlagSet("list-dossiers", flag.ExitOnError)
	status := fs.String("status", "", "Filter by status (initial, reminder_1, reminder_2, critical)")
	priority := fs.String("priority", "", "Filter by priority")
	tag := fs.String("tag", "", "Filter by tag")
	query := fs.String("query", "", "Search client name, reference or email")
	all := fs.Bool("all", false, "Include settled dossiers")
	limit := fs.Int("limit", 50, "Maximum results")
	_ = fs.Parse(args)

	dossiers, err := db.ListDossiers(context.Background(), svc.DB(), db.DossierFilter{
		Status:        models.DossierStatus(*status),
		Priority:      models.Priority(*priority),
		Tag:           *tag,
		Query:         *query,
		IncludeClosed: *all,
		Limit:         *limit,
	})
	if err != nil {
		return fmt.Errorf("failed to list dossiers: %w", err)
	}

	if len(dossiers) == 0 {
		fmt.Println("No dossiers found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tCLIENT\tSTATUS\tDAYS\tOUTSTANDING\tRISK\tPRIORITY")
	_, _ = fmt.Fprintln(w, "--\t------\t------\t----\t-----------\t----\t--------")

	for i := range dossiers {
		d := &dossiers[i]
		status := string(d.Status)
		if d.IsClosed() {
			status = "closed"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			d.ID.String()[:8], d.ClientName, status, d.DaysOverdue,
			d.TotalAmount.StringFixed(2), riskLabel(models.Classify(d)), d.Priority)
	}

	_ = w.Flush()
	return nil
}

// AddInvoiceCommand attaches an invoice to a dossier.
func AddInvoiceCommand(svc *relance.Service, args []string) error {
	fs := flag.NewFlagSet("add-invoice", flag.ExitOnError)
	dossier := fs.String("dossier", "", "Dossier ID (required)")
	number := fs.String("number", "", "Invoice number (required)")
	amount := fs.String("amount", "", "Invoice amount, e.g. 1250.00 (required)")
	due := fs.String("due", "", "Due date YYYY-MM-DD (required)")
	_ = fs.Parse(args)

	if *dossier == "" || *number == "" || *amount == "" || *due == "" {
		return fmt.Errorf("--dossier, --number, --amount and --due are required")
	}

	ctx := context.Background()
	dossierID, err := resolveDossierID(ctx, svc, *dossier)
	if err != nil {
		return err
	}
	value, err := decimal.NewFromString(*amount)
	if err != nil {
		return fmt.Errorf("invalid amount: %w", err)
	}
	dueDate, err := models.ParseDate(*due)
	if err != nil {
		return fmt.Errorf("invalid due date: %w", err)
	}

	inv := &models.Invoice{DossierID: dossierID, Number: *number, OriginalAmount: value, DueDate: dueDate}
	if err := db.CreateInvoice(ctx, svc.DB(), inv); err != nil {
		return fmt.Errorf("failed to create invoice: %w", err)
	}

	fmt.Printf("✓ Added invoice %s: %s due %s (ID: %s)\n", inv.Number, inv.OriginalAmount.StringFixed(2), *due, inv.ID)
	return nil
}

// PayCommand records a payment against an invoice.
func PayCommand(svc *relance.Service, args []string) error {
	fs := flag.NewFlagSet("pay", flag.ExitOnError)
	invoice := fs.String("invoice", "", "Invoice ID (required)")
	amount := fs.String("amount", "", "Amount paid (required)")
	_ = fs.Parse(args)

	if *invoice == "" || *amount == "" {
		return fmt.Errorf("--invoice and --amount are required")
	}

	invoiceID, err := uuid.Parse(*invoice)
	if err != nil {
		return fmt.Errorf("invalid invoice ID: %w", err)
	}
	value, err := decimal.NewFromString(*amount)
	if err != nil {
		return fmt.Errorf("invalid amount: %w", err)
	}

	d, err := svc.RecordPayment(context.Background(), invoiceID, value)
	if err != nil {
		return err
	}

	if d.IsClosed() {
		fmt.Printf("✓ Dossier %s settled and closed\n", d.ClientName)
		return nil
	}
	fmt.Printf("✓ Payment recorded, %s still outstanding on %s\n", d.TotalAmount.StringFixed(2), d.ClientName)
	return nil
}

// ClassifyCommand shows the risk tier of one dossier.
func ClassifyCommand(svc *relance.Service, args []string) error {
	fs := flag.NewFlagSet("classify", flag.ExitOnError)
	_ = fs.Parse(args)

	if fs.NArg() < 1 {
		return fmt.Errorf("dossier ID required")
	}

	ctx := context.Background()
	id, err := resolveDossierID(ctx, svc, fs.Arg(0))
	if err != nil {
		return err
	}

	c, err := svc.Classify(ctx, id)
	if err != nil {
		return err
	}

	fmt.Printf("%s\n", c.ClientName)
	fmt.Printf("  Status:       %s\n", c.Status)
	fmt.Printf("  Days overdue: %d\n", c.DaysOverdue)
	fmt.Printf("  Outstanding:  %s\n", c.TotalAmount.StringFixed(2))
	fmt.Printf("  Risk:         %s\n", riskLabel(c.Tier))
	return nil
}

// CriticalCommand lists the dossiers needing attention, most risky first.
func CriticalCommand(svc *relance.Service, args []string) error {
	fs := flag.NewFlagSet("critical", flag.ExitOnError)
	limit := fs.Int("limit", 20, "Maximum results")
	_ = fs.Parse(args)

	dossiers, err := svc.CriticalDossiers(context.Background(), *limit)
	if err != nil {
		return err
	}

	if len(dossiers) == 0 {
		fmt.Println("No critical dossiers 🎉")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "RISK\tCLIENT\tSTATUS\tDAYS\tOUTSTANDING\tLAST CONTACT")
	_, _ = fmt.Fprintln(w, "----\t------\t------\t----\t-----------\t------------")

	for i := range dossiers {
		d := &dossiers[i]
		last := "never"
		if d.LastContact != nil {
			last = models.FormatDate(*d.LastContact)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			riskLabel(models.Classify(d)), d.ClientName, d.Status, d.DaysOverdue, d.TotalAmount.StringFixed(2), last)
	}

	_ = w.Flush()
	return nil
}

// SetStatusCommand overrides a dossier's ladder step by hand.
func SetStatusCommand(svc *relance.Service, args []string) error {
	fs := flag.NewFlagSet("set-status", flag.ExitOnError)
	status := fs.String("status", "", "New status (required)")
	_ = fs.Parse(args)

	if fs.NArg() < 1 || *status == "" {
		return fmt.Errorf("usage: set-status --status <status> <dossier-id>")
	}

	ctx := context.Background()
	id, err := resolveDossierID(ctx, svc, fs.Arg(0))
	if err != nil {
		return err
	}

	if err := svc.OverrideStatus(ctx, id, models.DossierStatus(*status)); err != nil {
		return err
	}

	fmt.Printf("✓ Dossier %s set to %s\n", id, *status)
	return nil
}

// resolveDossierID accepts a full UUID or the 8-character prefix shown in listings.
func resolveDossierID(ctx context.Context, svc *relance.Service, ref string) (uuid.UUID, error) {
	if id, err := uuid.Parse(ref); err == nil {
		return id, nil
	}
	if len(ref) < 4 {
		return uuid.Nil, fmt.Errorf("invalid dossier ID: %s", ref)
	}

	dossiers, err := db.ListDossiers(ctx, svc.DB(), db.DossierFilter{IncludeClosed: true})
	if err != nil {
		return uuid.Nil, err
	}

	var match *uuid.UUID
	for i := range dossiers {
		if strings.HasPrefix(dossiers[i].ID.String(), ref) {
			if match != nil {
				return uuid.Nil, fmt.Errorf("dossier ID prefix %s is ambiguous", ref)
			}
			match = &dossiers[i].ID
		}
	}
	if match == nil {
		return uuid.Nil, fmt.Errorf("no dossier matches %s", ref)
	}
	return *match, nil
}

func riskLabel(tier models.RiskTier) string {
	if !isTerminal(os.Stdout) {
		return string(tier)
	}
	switch tier {
	case models.RiskExtreme:
		return "🔴 " + string(tier)
	case models.RiskHigh:
		return "🟡 " + string(tier)
	default:
		return "🟢 " + string(tier)
	}
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
