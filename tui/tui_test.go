// ABOUTME: Tests for the relance TUI views
// ABOUTME: Drives the bubbletea model with key messages against a temporary database
package tui

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/harperreed/relance/db"
	"github.com/harperreed/relance/models"
	"github.com/harperreed/relance/relance"
	"github.com/harperreed/relance/scheduler"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 10, 9, 30, 0, 0, models.Location)

func setupTestService(t *testing.T) *relance.Service {
	t.Helper()
	database, err := db.OpenDatabase(filepath.Join(t.TempDir(), "tui.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	return relance.New(database, relance.Options{
		Logger: log.New(io.Discard),
		Now:    func() time.Time { return testNow },
	})
}

// addCriticalDossier creates a dossier large enough to rank as high risk,
// with a call scheduled today.
func addCriticalDossier(t *testing.T, svc *relance.Service) *models.Dossier {
	t.Helper()
	ctx := context.Background()

	d := &models.Dossier{ClientName: "Globex", Priority: models.PriorityHigh}
	require.NoError(t, db.CreateDossier(ctx, svc.DB(), d))

	inv := &models.Invoice{
		DossierID:      d.ID,
		Number:         "F-2026-007",
		OriginalAmount: decimal.NewFromInt(6000),
		DueDate:        time.Date(2026, 2, 1, 0, 0, 0, 0, models.Location),
	}
	require.NoError(t, db.CreateInvoice(ctx, svc.DB(), inv))

	_, err := svc.Schedule(ctx, scheduler.ManualEvent{
		DossierID: d.ID,
		Type:      models.ActionCall,
		AssignTo:  "alice",
	})
	require.NoError(t, err)
	return d
}

func key(s string) tea.KeyMsg {
	switch s {
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func press(t *testing.T, m Model, keys ...string) Model {
	t.Helper()
	for _, k := range keys {
		next, _ := m.Update(key(k))
		m = next.(Model)
	}
	return m
}

func TestCalendarViewShowsTodaysEvents(t *testing.T) {
	svc := setupTestService(t)
	addCriticalDossier(t, svc)

	m := NewModel(svc)
	require.NoError(t, m.err)

	out := m.View()
	assert.Contains(t, out, "RELANCE")
	assert.Contains(t, out, "March 2026")
	assert.Contains(t, out, "Tuesday 10 March")
	assert.Contains(t, out, "Globex")
	assert.Contains(t, out, "call")
}

func TestCalendarNavigation(t *testing.T) {
	svc := setupTestService(t)
	m := NewModel(svc)

	m = press(t, m, "n")
	assert.Equal(t, time.April, m.grid.Month)
	assert.Equal(t, 1, m.cursor.Day())

	m = press(t, m, "p", "p")
	assert.Equal(t, time.February, m.grid.Month)

	m = press(t, m, ".")
	assert.True(t, models.SameDay(testNow, m.cursor))
	assert.Equal(t, time.March, m.grid.Month)

	// Moving a week back from the 3rd crosses into February.
	m = press(t, m, "k", "k")
	assert.Equal(t, time.February, m.grid.Month)
	assert.Equal(t, 24, m.cursor.Day())
	assert.Contains(t, m.View(), "Nothing scheduled")
}

func TestCriticalAndDetailViews(t *testing.T) {
	svc := setupTestService(t)
	d := addCriticalDossier(t, svc)

	m := press(t, NewModel(svc), "tab")
	assert.Equal(t, ViewCritical, m.viewMode)
	require.Len(t, m.critical, 1)
	assert.Contains(t, m.View(), "Globex")

	m = press(t, m, "enter")
	assert.Equal(t, ViewDetail, m.viewMode)
	assert.Equal(t, d.ID, m.selectedID)

	out := m.View()
	assert.Contains(t, out, "INVOICES")
	assert.Contains(t, out, "F-2026-007")
	assert.Contains(t, out, "RELANCES")
	assert.Contains(t, out, "6000.00")

	m = press(t, m, "g")
	require.NoError(t, m.err)
	assert.Equal(t, ViewGraph, m.viewMode)
	assert.NotEmpty(t, m.graphDOT)

	m = press(t, m, "esc", "esc")
	assert.Equal(t, ViewCritical, m.viewMode)

	m = press(t, m, "tab")
	assert.Equal(t, ViewCalendar, m.viewMode)
}

func TestEmptyCriticalView(t *testing.T) {
	svc := setupTestService(t)

	m := press(t, NewModel(svc), "tab")
	assert.Contains(t, m.View(), "No critical dossiers")

	// Enter on an empty list stays put.
	m = press(t, m, "enter")
	assert.Equal(t, ViewCritical, m.viewMode)
}

func TestTickMessageUpdatesStatus(t *testing.T) {
	svc := setupTestService(t)
	addCriticalDossier(t, svc)

	m := NewModel(svc)
	next, cmd := m.Update(key("t"))
	require.NotNil(t, cmd)
	m = next.(Model)
	assert.Equal(t, "Running tick...", m.status)

	next, _ = m.Update(cmd())
	m = next.(Model)
	require.NoError(t, m.err)
	assert.Contains(t, m.status, "Tick:")
	assert.Contains(t, m.View(), "Tick:")
}

func TestGraphViewScrollsAndSwitchesToLadder(t *testing.T) {
	svc := setupTestService(t)
	addCriticalDossier(t, svc)

	m := press(t, NewModel(svc), "tab", "enter")
	next, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 10})
	m = next.(Model)

	m = press(t, m, "g")
	require.NoError(t, m.err)
	require.Equal(t, ViewGraph, m.viewMode)
	assert.Equal(t, graphTimeline, m.graphKind)

	out := m.View()
	assert.Contains(t, out, "TIMELINE · Globex")
	assert.Contains(t, out, "Relances: 1 scheduled")
	assert.Contains(t, out, "lines 1-3 of")
	assert.Contains(t, out, "l: Escalation ladder")

	m = press(t, m, "j", "down")
	assert.Equal(t, 2, m.graphOffset)
	assert.Contains(t, m.View(), "lines 3-5 of")

	m = press(t, m, "k", "k", "k")
	assert.Equal(t, 0, m.graphOffset, "scrolling stops at the top")

	m = press(t, m, "j", "l")
	require.NoError(t, m.err)
	assert.Equal(t, graphLadder, m.graphKind)
	assert.Equal(t, 0, m.graphOffset)
	assert.Contains(t, m.View(), "ESCALATION LADDER")
	assert.Contains(t, m.View(), "l: Dossier timeline")

	m = press(t, m, "l")
	assert.Equal(t, graphTimeline, m.graphKind)

	m = press(t, m, "esc")
	assert.Equal(t, ViewDetail, m.viewMode)
	assert.Empty(t, m.graphDOT)
}
