// ABOUTME: Tests for the relance CLI commands
// ABOUTME: Runs each command against a temporary database and checks the stored effects
package cli

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/harperreed/relance/config"
	"github.com/harperreed/relance/db"
	"github.com/harperreed/relance/models"
	"github.com/harperreed/relance/relance"
	"github.com/harperreed/relance/scheduler"
	"github.com/harperreed/relance/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 10, 10, 0, 0, 0, models.Location)

func setupTestCLI(t *testing.T) *relance.Service {
	t.Helper()
	database, err := db.OpenDatabase(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	logger := log.New(io.Discard)
	return relance.New(database, relance.Options{
		Mail:   transport.NewLogSender(logger, "email"),
		SMS:    transport.NewLogSender(logger, "sms"),
		Logger: logger,
		Now:    func() time.Time { return testNow },
	})
}

// addDossier creates a dossier with one overdue invoice through the commands.
func addDossier(t *testing.T, svc *relance.Service, client string) *models.Dossier {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, AddDossierCommand(svc, []string{
		"--client", client, "--email", "ap@example.com", "--tags", "b2b, retail",
	}))

	dossiers, err := db.ListDossiers(ctx, svc.DB(), db.DossierFilter{Query: client})
	require.NoError(t, err)
	require.Len(t, dossiers, 1)
	id := dossiers[0].ID

	require.NoError(t, AddInvoiceCommand(svc, []string{
		"--dossier", id.String()[:8], "--number", "F-" + client, "--amount", "800.00", "--due", "2026-02-20",
	}))

	d, err := db.GetDossier(ctx, svc.DB(), id)
	require.NoError(t, err)
	return d
}

func TestDossierCommands(t *testing.T) {
	svc := setupTestCLI(t)
	ctx := context.Background()

	d := addDossier(t, svc, "Initech")
	assert.Equal(t, []string{"b2b", "retail"}, d.Tags)
	assert.Equal(t, "800.00", d.TotalAmount.StringFixed(2))

	assert.NoError(t, ListDossiersCommand(svc, []string{"--tag", "b2b"}))
	assert.NoError(t, ClassifyCommand(svc, []string{d.ID.String()}))
	assert.NoError(t, CriticalCommand(svc, nil))

	require.NoError(t, SetStatusCommand(svc, []string{"--status", "critical", d.ID.String()}))
	d, err := db.GetDossier(ctx, svc.DB(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCritical, d.Status)

	invoices, err := db.ListInvoicesByDossier(ctx, svc.DB(), d.ID)
	require.NoError(t, err)
	require.Len(t, invoices, 1)

	require.NoError(t, PayCommand(svc, []string{"--invoice", invoices[0].ID.String(), "--amount", "800"}))
	d, err = db.GetDossier(ctx, svc.DB(), d.ID)
	require.NoError(t, err)
	assert.True(t, d.IsClosed())
}

func TestDossierCommandErrors(t *testing.T) {
	svc := setupTestCLI(t)

	assert.Error(t, AddDossierCommand(svc, nil))
	assert.Error(t, AddInvoiceCommand(svc, []string{"--dossier", "abc"}))
	assert.Error(t, ClassifyCommand(svc, nil))
	assert.Error(t, PayCommand(svc, []string{"--invoice", "not-a-uuid", "--amount", "1"}))

	_, err := resolveDossierID(context.Background(), svc, "ab")
	assert.Error(t, err)
	_, err = resolveDossierID(context.Background(), svc, "abcdef12")
	assert.Error(t, err)
}

func TestRuleCommands(t *testing.T) {
	svc := setupTestCLI(t)
	ctx := context.Background()

	require.NoError(t, AddRuleCommand(svc, []string{
		"--name", "First reminder", "--days", "7",
		"--action", "email:reminder-1", "--action", "status:reminder_1",
	}))
	require.NoError(t, AddRuleCommand(svc, []string{
		"--name", "Weekly call", "--days", "30", "--frequency", "weekly", "--weekdays", "mon,thu",
		"--action", "call:alice",
	}))

	rules, err := db.ListRules(ctx, svc.DB(), false)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, models.ActionStatusChange, rules[0].Actions[1].Type)
	assert.Equal(t, models.StatusReminder1, rules[0].Actions[1].NewStatus)
	assert.Equal(t, []time.Weekday{time.Monday, time.Thursday}, rules[1].Schedule.Weekdays)

	assert.NoError(t, ListRulesCommand(svc, nil))
	assert.NoError(t, TemplatesCommand(svc, nil))

	require.NoError(t, ToggleRuleCommand(svc, []string{"--off", rules[0].ID.String()[:8]}))
	active, err := db.ListRules(ctx, svc.DB(), true)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	require.NoError(t, DeleteRuleCommand(svc, []string{rules[1].ID.String()}))
	rules, err = db.ListRules(ctx, svc.DB(), false)
	require.NoError(t, err)
	assert.Len(t, rules, 1)
}

func TestAddRuleRejectsInvalidRules(t *testing.T) {
	svc := setupTestCLI(t)

	// No actions.
	assert.Error(t, AddRuleCommand(svc, []string{"--name", "Empty", "--days", "5"}))
	// Inverted amount range.
	assert.Error(t, AddRuleCommand(svc, []string{
		"--name", "Range", "--days", "5", "--min", "500", "--max", "100", "--action", "email",
	}))
	// Amount that is not a number.
	assert.Error(t, AddRuleCommand(svc, []string{
		"--name", "Bad min", "--days", "5", "--min", "lots", "--action", "email",
	}))
	// Weekly without weekdays.
	assert.Error(t, AddRuleCommand(svc, []string{
		"--name", "Weekly", "--days", "5", "--frequency", "weekly", "--action", "sms",
	}))

	rules, err := db.ListRules(context.Background(), svc.DB(), false)
	require.NoError(t, err)
	assert.Empty(t, rules)
}

func TestActionListSet(t *testing.T) {
	var actions actionList
	require.NoError(t, actions.Set("email:reminder-2"))
	require.NoError(t, actions.Set("letter:bob"))
	require.NoError(t, actions.Set("status_change:critical"))
	assert.Error(t, actions.Set("fax"))

	require.Len(t, actions, 3)
	assert.Equal(t, "reminder-2", actions[0].TemplateID)
	assert.Equal(t, "bob", actions[1].AssignTo)
	assert.Equal(t, models.StatusCritical, actions[2].NewStatus)
	assert.Equal(t, "email,letter,status_change", actions.String())
}

func TestEventCommands(t *testing.T) {
	svc := setupTestCLI(t)
	ctx := context.Background()
	d := addDossier(t, svc, "Umbrella")

	require.NoError(t, ScheduleCommand(svc, []string{
		"--dossier", d.ID.String(), "--type", "call", "--assign", "alice", "--time", "14:00",
	}))
	require.NoError(t, ScheduleCommand(svc, []string{
		"--dossier", d.ID.String(), "--type", "email", "--template", "reminder-1", "--date", "2026-03-12",
	}))
	assert.Error(t, ScheduleCommand(svc, []string{"--dossier", d.ID.String(), "--type", "pigeon"}))

	events, err := svc.Upcoming(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.NoError(t, EventsOnCommand(svc, []string{"2026-03-10"}))
	assert.NoError(t, UpcomingCommand(svc, []string{d.ID.String()}))
	assert.NoError(t, CalendarCommand(svc, []string{"--month", "2026-03"}))
	assert.Error(t, CalendarCommand(svc, []string{"--month", "March"}))

	call, email := events[0], events[1]
	require.Equal(t, models.ActionCall, call.Type)

	require.NoError(t, CompleteEventCommand(svc, []string{"--failed", "--result", "no answer", call.ID.String()}))
	require.NoError(t, CancelEventCommand(svc, []string{email.ID.String()}))
	require.NoError(t, RetryEventCommand(svc, []string{call.ID.String()}))

	history, err := svc.Scheduler().History(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)

	statuses := map[models.EventStatus]int{}
	for _, ev := range history {
		statuses[ev.Status]++
	}
	assert.Equal(t, 1, statuses[models.EventFailed])
	assert.Equal(t, 1, statuses[models.EventCancelled])
	assert.Equal(t, 1, statuses[models.EventScheduled])

	assert.NoError(t, UpcomingCommand(svc, []string{"--history", d.ID.String()}))
	assert.Error(t, CancelEventCommand(svc, []string{"nope"}))
}

func TestRenderGrid(t *testing.T) {
	grid := scheduler.MonthGrid(2026, time.March, testNow)
	grid.Days[10].Events = make([]models.RelanceEvent, 3)

	out := renderGrid(grid)
	assert.Contains(t, out, "March 2026")
	assert.Contains(t, out, " Mon ")
	assert.Contains(t, out, "*10")
	assert.Contains(t, out, "(3 )")
}

func TestEngineCommands(t *testing.T) {
	svc := setupTestCLI(t)
	ctx := context.Background()
	d := addDossier(t, svc, "Hooli")

	require.NoError(t, AddRuleCommand(svc, []string{
		"--name", "First reminder", "--days", "7",
		"--action", "email:reminder-1", "--action", "status:reminder_1",
	}))

	assert.NoError(t, EvaluateCommand(svc, nil))
	require.NoError(t, TickCommand(svc, nil))
	assert.Error(t, TickCommand(svc, []string{"--date", "tomorrow"}))

	d, err := db.GetDossier(ctx, svc.DB(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusReminder1, d.Status)

	runs, err := db.ListTickRuns(ctx, svc.DB(), 10)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
	assert.NoError(t, RunsCommand(svc, nil))
}

func TestVizCommands(t *testing.T) {
	svc := setupTestCLI(t)
	d := addDossier(t, svc, "Vandelay")

	assert.NoError(t, DashboardCommand(svc, nil))

	out := filepath.Join(t.TempDir(), "ladder.dot")
	require.NoError(t, LadderGraphCommand(svc, []string{"--output", out}))
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.NotEmpty(t, data)

	assert.NoError(t, DossierGraphCommand(svc, []string{d.ID.String()[:8]}))
	assert.Error(t, DossierGraphCommand(svc, nil))
}

func TestNewMCPServer(t *testing.T) {
	svc := setupTestCLI(t)
	assert.NotNil(t, NewMCPServer(svc))
}

func TestNewServiceDryRunUsesLogTransports(t *testing.T) {
	database, err := db.OpenDatabase(filepath.Join(t.TempDir(), "dry.db"))
	require.NoError(t, err)
	defer func() { _ = database.Close() }()

	cfg := config.Default()
	cfg.DryRun = true
	cfg.SMSGatewayURL = "http://localhost:9"

	svc := NewService(context.Background(), database, cfg, log.New(io.Discard))
	require.NotNil(t, svc)
	assert.Equal(t, database, svc.DB())
}

func TestSplitList(t *testing.T) {
	assert.Nil(t, splitList(""))
	assert.Equal(t, []string{"a", "b"}, splitList(" a, ,b "))
}
