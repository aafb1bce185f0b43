// ABOUTME: Tests for the relance MCP tool, resource and prompt handlers
// ABOUTME: Validates tool input/output and error handling against a temporary database
package handlers

import (
	"context"
	"database/sql"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/harperreed/relance/db"
	"github.com/harperreed/relance/models"
	"github.com/harperreed/relance/relance"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []string
}

func (r *recordingSender) Send(ctx context.Context, destination, subject, body string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, destination)
	return nil
}

func (r *recordingSender) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, models.Location)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	database, err := db.OpenDatabase(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	return database
}

func setupService(t *testing.T) (*relance.Service, *recordingSender) {
	t.Helper()
	mail := &recordingSender{}
	svc := relance.New(setupTestDB(t), relance.Options{
		Mail:    mail,
		SMS:     mail,
		Workers: 2,
		Logger:  log.New(io.Discard),
		Now:     func() time.Time { return testNow },
	})
	return svc, mail
}

// addDebtor registers a dossier with one invoice due ten days before testNow.
func addDebtor(t *testing.T, svc *relance.Service, name string) (DossierOutput, InvoiceOutput) {
	t.Helper()
	ctx := context.Background()
	h := NewDossierHandlers(svc)

	_, d, err := h.AddDossier(ctx, nil, AddDossierInput{
		ClientName:  name,
		ClientEmail: "billing@" + name + ".example",
		Tags:        []string{"b2b"},
	})
	require.NoError(t, err)

	_, out, err := h.AddInvoice(ctx, nil, AddInvoiceInput{
		DossierID: d.ID,
		Number:    "F-" + name,
		Amount:    "1200.00",
		DueDate:   "2026-02-28",
	})
	require.NoError(t, err)
	return out.Dossier, out.Invoice
}

func TestAddDossierAndInvoice(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()
	h := NewDossierHandlers(svc)

	d, inv := addDebtor(t, svc, "acme")
	assert.Equal(t, "1200.00", d.TotalAmount)
	assert.Equal(t, "1200.00", d.OriginalAmount)
	assert.Equal(t, string(models.StatusInitial), d.Status)
	assert.Equal(t, string(models.PriorityMedium), d.Priority)
	assert.Equal(t, "2026-02-28", inv.DueDate)

	_, list, err := h.ListDossiers(ctx, nil, ListDossiersInput{Tag: "b2b"})
	require.NoError(t, err)
	require.Len(t, list.Dossiers, 1)
	assert.Equal(t, d.ID, list.Dossiers[0].ID)

	_, _, err = h.AddDossier(ctx, nil, AddDossierInput{})
	assert.Error(t, err)

	_, _, err = h.AddDossier(ctx, nil, AddDossierInput{ClientName: "x", Priority: "whenever"})
	assert.Error(t, err)

	_, _, err = h.AddInvoice(ctx, nil, AddInvoiceInput{DossierID: d.ID, Number: "F-2", Amount: "lots", DueDate: "2026-03-01"})
	assert.Error(t, err)

	_, _, err = h.AddInvoice(ctx, nil, AddInvoiceInput{DossierID: "not-a-uuid", Number: "F-2", Amount: "10", DueDate: "2026-03-01"})
	assert.Error(t, err)
}

func TestCreateRuleValidation(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()
	h := NewRuleHandlers(svc)

	_, rule, err := h.CreateRule(ctx, nil, CreateRuleInput{
		Name:        "weekly nudge",
		TriggerDays: 15,
		Actions:     []ActionInput{{Type: "sms", TemplateID: "sms-reminder"}},
		Frequency:   "weekly",
		Time:        "09:00",
		Weekdays:    []string{"mon", "thu"},
	})
	require.NoError(t, err)
	assert.True(t, rule.IsActive)
	assert.Equal(t, "weekly on mon,thu at 09:00", rule.Schedule)

	_, _, err = h.CreateRule(ctx, nil, CreateRuleInput{
		Name:        "inverted",
		TriggerDays: 7,
		MinAmount:   "500",
		MaxAmount:   "100",
		Actions:     []ActionInput{{Type: "email", TemplateID: "reminder-1"}},
	})
	assert.Error(t, err)

	_, _, err = h.CreateRule(ctx, nil, CreateRuleInput{Name: "empty", TriggerDays: 7})
	assert.Error(t, err)

	_, _, err = h.CreateRule(ctx, nil, CreateRuleInput{
		Name:        "bad day",
		TriggerDays: 7,
		Actions:     []ActionInput{{Type: "email", TemplateID: "reminder-1"}},
		Frequency:   "weekly",
		Time:        "09:00",
		Weekdays:    []string{"someday"},
	})
	assert.Error(t, err)

	_, off, err := h.SetRuleActive(ctx, nil, SetRuleActiveInput{RuleID: rule.ID, Active: false})
	require.NoError(t, err)
	assert.False(t, off.IsActive)

	_, active, err := h.ListRules(ctx, nil, ListRulesInput{ActiveOnly: true})
	require.NoError(t, err)
	assert.Empty(t, active.Rules)

	_, all, err := h.ListRules(ctx, nil, ListRulesInput{})
	require.NoError(t, err)
	assert.Len(t, all.Rules, 1)
}

func TestEvaluateThenTick(t *testing.T) {
	svc, mail := setupService(t)
	ctx := context.Background()
	d, _ := addDebtor(t, svc, "globex")

	_, _, err := NewRuleHandlers(svc).CreateRule(ctx, nil, CreateRuleInput{
		Name:        "first reminder",
		TriggerDays: 7,
		Actions: []ActionInput{
			{Type: "email", TemplateID: "reminder-1"},
			{Type: "status_change", NewStatus: "reminder_1"},
		},
	})
	require.NoError(t, err)

	h := NewEngineHandlers(svc)
	_, eval, err := h.EvaluateNow(ctx, nil, EvaluateNowInput{})
	require.NoError(t, err)
	assert.Len(t, eval.Actions, 2)
	assert.Empty(t, eval.ConfigErrors)

	_, events, err := NewEventHandlers(svc).EventsOn(ctx, nil, EventsOnInput{})
	require.NoError(t, err)
	assert.Empty(t, events.Events, "evaluation must not schedule anything")

	_, tick, err := h.RunTick(ctx, nil, RunTickInput{})
	require.NoError(t, err)
	assert.Equal(t, 1, tick.Dossiers)
	assert.Equal(t, 2, tick.Created)
	assert.Equal(t, 1, tick.Escalated)
	assert.Equal(t, 1, mail.count())
	assert.Empty(t, tick.Errors)

	_, classified, err := NewDossierHandlers(svc).ClassifyDossier(ctx, nil, DossierIDInput{DossierID: d.ID})
	require.NoError(t, err)
	assert.Equal(t, string(models.StatusReminder1), classified.Status)
	assert.Equal(t, 10, classified.DaysOverdue)
	assert.Equal(t, string(models.RiskMedium), classified.Tier)
}

func TestScheduleCancelAndComplete(t *testing.T) {
	svc, mail := setupService(t)
	ctx := context.Background()
	d, _ := addDebtor(t, svc, "initech")
	h := NewEventHandlers(svc)

	_, call, err := h.ScheduleEvent(ctx, nil, ScheduleEventInput{
		DossierID: d.ID,
		Date:      "2026-03-12",
		Time:      "10:30",
		Type:      "call",
		AssignTo:  "sam",
	})
	require.NoError(t, err)
	assert.False(t, call.Executed)
	assert.False(t, call.Event.IsAutomatic)
	assert.Equal(t, string(models.EventScheduled), call.Event.Status)

	_, upcoming, err := h.UpcomingEvents(ctx, nil, DossierIDInput{DossierID: d.ID})
	require.NoError(t, err)
	require.Len(t, upcoming.Events, 1)

	_, cancelled, err := h.CancelEvent(ctx, nil, EventIDInput{EventID: call.Event.ID})
	require.NoError(t, err)
	assert.Equal(t, string(models.EventCancelled), cancelled.Status)

	_, _, err = h.CancelEvent(ctx, nil, EventIDInput{EventID: call.Event.ID})
	assert.NoError(t, err, "cancelling twice is a no-op")

	_, _, err = h.CompleteEvent(ctx, nil, CompleteEventInput{EventID: call.Event.ID, Result: "too late"})
	assert.Error(t, err, "terminal events stay terminal")

	_, now, err := h.ScheduleEvent(ctx, nil, ScheduleEventInput{
		DossierID:  d.ID,
		Time:       "08:00",
		Type:       "email",
		TemplateID: "reminder-2",
		Dispatch:   true,
	})
	require.NoError(t, err)
	assert.True(t, now.Executed)
	assert.Equal(t, "completed", now.Outcome)
	assert.Equal(t, string(models.EventCompleted), now.Event.Status)
	assert.Equal(t, 1, mail.count())

	_, history, err := h.DossierHistory(ctx, nil, DossierIDInput{DossierID: d.ID})
	require.NoError(t, err)
	assert.Len(t, history.Events, 2)
}

func TestRecordPaymentSettles(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()
	_, inv := addDebtor(t, svc, "umbrella")
	h := NewDossierHandlers(svc)

	_, partial, err := h.RecordPayment(ctx, nil, RecordPaymentInput{InvoiceID: inv.ID, Amount: "200"})
	require.NoError(t, err)
	assert.False(t, partial.Settled)
	assert.Equal(t, "1000.00", partial.Dossier.TotalAmount)

	_, full, err := h.RecordPayment(ctx, nil, RecordPaymentInput{InvoiceID: inv.ID, Amount: "1000"})
	require.NoError(t, err)
	assert.True(t, full.Settled)
	assert.Equal(t, "0.00", full.Dossier.TotalAmount)
	assert.Equal(t, string(models.StatusInitial), full.Dossier.Status)

	_, _, err = h.RecordPayment(ctx, nil, RecordPaymentInput{InvoiceID: inv.ID})
	assert.Error(t, err)
}

func TestReadResources(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()
	d, _ := addDebtor(t, svc, "hooli")
	h := NewResourceHandlers(svc)

	read := func(uri string) (*mcp.ReadResourceResult, error) {
		return h.ReadResource(ctx, &mcp.ReadResourceRequest{Params: &mcp.ReadResourceParams{URI: uri}})
	}

	res, err := read("relance://dossiers/" + d.ID)
	require.NoError(t, err)
	require.Len(t, res.Contents, 1)
	assert.Contains(t, res.Contents[0].Text, "hooli")
	assert.Contains(t, res.Contents[0].Text, "F-hooli")

	res, err = read("relance://ladder")
	require.NoError(t, err)
	assert.Contains(t, res.Contents[0].Text, string(models.StatusCritical))

	_, err = read("relance://nothing")
	assert.Error(t, err)

	_, err = read("crm://dossiers")
	assert.Error(t, err)
}

func TestGetPrompts(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()
	d, _ := addDebtor(t, svc, "wonka")
	h := NewPromptHandlers(svc)

	get := func(name string, args map[string]string) (*mcp.GetPromptResult, error) {
		return h.GetPrompt(ctx, &mcp.GetPromptRequest{Params: &mcp.GetPromptParams{Name: name, Arguments: args}})
	}

	res, err := get("dossier-briefing", map[string]string{"dossier_id": d.ID})
	require.NoError(t, err)
	require.Len(t, res.Messages, 1)
	text, ok := res.Messages[0].Content.(*mcp.TextContent)
	require.True(t, ok)
	assert.Contains(t, text.Text, "wonka")
	assert.Contains(t, text.Text, "F-wonka")

	_, err = get("dossier-briefing", nil)
	assert.Error(t, err)

	_, err = get("collection-plan", nil)
	assert.NoError(t, err)

	_, err = get("rule-review", nil)
	assert.NoError(t, err)

	_, err = get("unknown", nil)
	assert.Error(t, err)

	assert.Len(t, Prompts(), 3)
}

func TestGenerateGraph(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()
	d, _ := addDebtor(t, svc, "stark")
	h := NewVizHandlers(svc)

	_, ladder, err := h.GenerateGraph(ctx, nil, GenerateGraphInput{Type: "ladder"})
	require.NoError(t, err)
	assert.Contains(t, ladder.DOTSource, "full payment")
	assert.Positive(t, ladder.NodeCount)

	_, timeline, err := h.GenerateGraph(ctx, nil, GenerateGraphInput{Type: "dossier", DossierID: d.ID})
	require.NoError(t, err)
	assert.Contains(t, timeline.DOTSource, "stark")

	_, _, err = h.GenerateGraph(ctx, nil, GenerateGraphInput{Type: "dossier"})
	assert.Error(t, err)

	_, _, err = h.GenerateGraph(ctx, nil, GenerateGraphInput{Type: "pie"})
	assert.Error(t, err)

	_, dash, err := h.Dashboard(ctx, nil, DashboardInput{})
	require.NoError(t, err)
	assert.Contains(t, dash.Text, "RELANCE DASHBOARD")
}
