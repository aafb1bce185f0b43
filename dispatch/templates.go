// ABOUTME: Template renderer for email and SMS relances
// ABOUTME: Resolves stored or built-in templates and substitutes dossier variables
package dispatch

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/harperreed/relance/db"
	"github.com/harperreed/relance/models"
)

// Built-in template ids.
const (
	TemplateReminder1    = "reminder-1"
	TemplateReminder2    = "reminder-2"
	TemplateFormalNotice = "mise-en-demeure"
	TemplateSMSReminder  = "sms-reminder"
	defaultEmailTemplate = TemplateReminder1
	defaultSMSTemplate   = TemplateSMSReminder
)

var builtinTemplates = map[string]models.Template{
	TemplateReminder1: {
		ID:      TemplateReminder1,
		Channel: models.ActionEmail,
		Subject: "Payment reminder: invoice {{invoice_number}}",
		Body: "Dear {{client_name}},\n\n" +
			"Our records show that invoice {{invoice_number}} is {{days_overdue}} days past due. " +
			"The outstanding balance is {{amount}}.\n\n" +
			"If you have already paid, please disregard this message. Otherwise we kindly ask you to settle it promptly.\n",
	},
	TemplateReminder2: {
		ID:      TemplateReminder2,
		Channel: models.ActionEmail,
		Subject: "Second reminder: invoice {{invoice_number}} is {{days_overdue}} days overdue",
		Body: "Dear {{client_name}},\n\n" +
			"Despite our previous reminder, invoice {{invoice_number}} remains unpaid after {{days_overdue}} days. " +
			"The outstanding balance is {{amount}}.\n\n" +
			"Please settle it within 8 days to avoid further collection steps.\n",
	},
	TemplateFormalNotice: {
		ID:      TemplateFormalNotice,
		Channel: models.ActionEmail,
		Subject: "Formal notice of payment: {{reference}}",
		Body: "Dear {{client_name}},\n\n" +
			"You are hereby formally notified to pay the outstanding balance of {{amount}} " +
			"relating to invoice {{invoice_number}}, now {{days_overdue}} days overdue.\n\n" +
			"Without payment within 8 days, the matter will be referred for legal recovery.\n",
	},
	TemplateSMSReminder: {
		ID:      TemplateSMSReminder,
		Channel: models.ActionSMS,
		Body:    "{{client_name}}: invoice {{invoice_number}} ({{amount}}) is {{days_overdue}} days overdue. Please pay promptly.",
	},
}

// Rendered is a template with its variables substituted.
type Rendered struct {
	Subject string
	Body    string
}

// Renderer resolves templates from the database first, then the built-ins.
type Renderer struct {
	db *sql.DB
}

func NewRenderer(database *sql.DB) *Renderer {
	return &Renderer{db: database}
}

// Template looks a template up by id.
func (r *Renderer) Template(ctx context.Context, id string) (*models.Template, error) {
	if r.db != nil {
		tpl, err := db.GetTemplate(ctx, r.db, id)
		if err == nil {
			return tpl, nil
		}
		if !errors.Is(err, db.ErrTemplateNotFound) {
			return nil, err
		}
	}
	if tpl, ok := builtinTemplates[id]; ok {
		return &tpl, nil
	}
	return nil, fmt.Errorf("unknown template %q", id)
}

// Render substitutes {{name}} placeholders. Unknown placeholders are left untouched.
func (r *Renderer) Render(ctx context.Context, templateID string, vars map[string]string) (Rendered, error) {
	tpl, err := r.Template(ctx, templateID)
	if err != nil {
		return Rendered{}, err
	}

	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{{"+k+"}}", v)
	}
	replacer := strings.NewReplacer(pairs...)

	return Rendered{
		Subject: replacer.Replace(tpl.Subject),
		Body:    replacer.Replace(tpl.Body),
	}, nil
}

// BuiltinTemplates lists the templates shipped with the engine.
func BuiltinTemplates() []models.Template {
	ids := make([]string, 0, len(builtinTemplates))
	for id := range builtinTemplates {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	templates := make([]models.Template, 0, len(ids))
	for _, id := range ids {
		templates = append(templates, builtinTemplates[id])
	}
	return templates
}

// Variables builds the template variables for a dossier. The invoice number
// is the most overdue unpaid invoice, or the dossier reference without invoices.
func Variables(d *models.Dossier, invoices []models.Invoice, asOf time.Time) map[string]string {
	vars := map[string]string{
		"client_name":    d.ClientName,
		"reference":      d.Reference,
		"amount":         d.TotalAmount.StringFixed(2),
		"days_overdue":   strconv.Itoa(d.DaysOverdue),
		"status":         string(d.Status),
		"invoice_number": d.Reference,
	}

	var worst *models.Invoice
	for i := range invoices {
		inv := &invoices[i]
		if inv.IsPaid() {
			continue
		}
		if worst == nil || inv.DaysOverdue(asOf) > worst.DaysOverdue(asOf) {
			worst = inv
		}
	}
	if worst != nil {
		vars["invoice_number"] = worst.Number
		if days := worst.DaysOverdue(asOf); days > d.DaysOverdue {
			vars["days_overdue"] = strconv.Itoa(days)
		}
	}

	return vars
}
