// ABOUTME: Tests for relance rule database operations
// ABOUTME: Verifies JSON column round trips, ordering and activation toggles
package db

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/relance/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndGetRule(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	minAmount := decimal.NewFromInt(500)
	rule := &models.RelanceRule{
		Name:        "Second reminder",
		TriggerDays: 15,
		TriggerConditions: models.TriggerConditions{
			Statuses:  []models.DossierStatus{models.StatusReminder1},
			MinAmount: &minAmount,
			Tags:      []string{"b2b"},
		},
		Actions: []models.RuleAction{
			{Type: models.ActionEmail, TemplateID: "reminder-2"},
			{Type: models.ActionStatusChange, NewStatus: models.StatusReminder2},
		},
		Schedule: models.Schedule{Enabled: true, Time: "09:30", Frequency: models.FrequencyWeekly, Weekdays: []time.Weekday{time.Monday, time.Thursday}},
		IsActive: true,
		Priority: 2,
	}
	require.NoError(t, CreateRule(ctx, db, rule))
	assert.NotEqual(t, uuid.Nil, rule.ID)

	found, err := GetRule(ctx, db, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, "Second reminder", found.Name)
	require.Len(t, found.Actions, 2)
	assert.Equal(t, models.ActionStatusChange, found.Actions[1].Type)
	assert.Equal(t, models.StatusReminder2, found.Actions[1].NewStatus)
	require.NotNil(t, found.TriggerConditions.MinAmount)
	assert.True(t, found.TriggerConditions.MinAmount.Equal(minAmount))
	assert.Nil(t, found.TriggerConditions.MaxAmount)
	assert.Equal(t, []time.Weekday{time.Monday, time.Thursday}, found.Schedule.Weekdays)
	assert.Equal(t, "09:30", found.Schedule.Time)
}

func TestCreateRuleRejectsZeroTriggerDays(t *testing.T) {
	db := setupTestDB(t)
	rule := &models.RelanceRule{Name: "bad", TriggerDays: 0, Actions: []models.RuleAction{{Type: models.ActionEmail}}}
	assert.Error(t, CreateRule(context.Background(), db, rule))
}

func TestListRulesOrderingAndActiveFilter(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	mk := func(name string, days, priority int, active bool) *models.RelanceRule {
		r := &models.RelanceRule{
			Name:        name,
			TriggerDays: days,
			Actions:     []models.RuleAction{{Type: models.ActionEmail}},
			Schedule:    models.Schedule{Frequency: models.FrequencyOnce},
			IsActive:    active,
			Priority:    priority,
		}
		require.NoError(t, CreateRule(ctx, db, r))
		return r
	}
	mk("late", 30, 0, true)
	mk("early-low", 7, 0, true)
	mk("early-high", 7, 5, true)
	inactive := mk("off", 3, 0, false)

	all, err := ListRules(ctx, db, false)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "off", all[0].Name)
	assert.Equal(t, "early-high", all[1].Name)
	assert.Equal(t, "early-low", all[2].Name)
	assert.Equal(t, "late", all[3].Name)

	active, err := ListRules(ctx, db, true)
	require.NoError(t, err)
	assert.Len(t, active, 3)

	require.NoError(t, SetRuleActive(ctx, db, inactive.ID, true))
	active, err = ListRules(ctx, db, true)
	require.NoError(t, err)
	assert.Len(t, active, 4)

	assert.ErrorIs(t, SetRuleActive(ctx, db, uuid.New(), true), ErrRuleNotFound)
}

func TestUpsertRuleKeepsIdentity(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	rule := &models.RelanceRule{
		ID:          uuid.New(),
		Name:        "Imported",
		TriggerDays: 10,
		Actions:     []models.RuleAction{{Type: models.ActionSMS, TemplateID: "sms-reminder"}},
		IsActive:    true,
	}
	require.NoError(t, UpsertRule(ctx, db, rule))

	rule.Name = "Imported v2"
	rule.TriggerDays = 12
	require.NoError(t, UpsertRule(ctx, db, rule))

	rules, err := ListRules(ctx, db, false)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, rule.ID, rules[0].ID)
	assert.Equal(t, "Imported v2", rules[0].Name)
	assert.Equal(t, 12, rules[0].TriggerDays)
}

func TestDeleteRule(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	rule := &models.RelanceRule{Name: "tmp", TriggerDays: 1, Actions: []models.RuleAction{{Type: models.ActionCall}}}
	require.NoError(t, CreateRule(ctx, db, rule))
	require.NoError(t, DeleteRule(ctx, db, rule.ID))

	_, err := GetRule(ctx, db, rule.ID)
	assert.ErrorIs(t, err, ErrRuleNotFound)
	assert.ErrorIs(t, DeleteRule(ctx, db, rule.ID), ErrRuleNotFound)
}
