package db

import (
	"context"
	"testing"
	"time"

	"github.com/harperreed/relance/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTickRunLifecycle(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	run, err := CreateTickRun(ctx, db, time.Now())
	require.NoError(t, err)

	run.Dossiers = 4
	run.Created = 3
	run.Dispatched = 2
	run.Failed = 1
	require.NoError(t, FinishTickRun(ctx, db, run))

	runs, err := ListTickRuns(ctx, db, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, run.ID, runs[0].ID)
	assert.Equal(t, 3, runs[0].Created)
	assert.NotNil(t, runs[0].FinishedAt)
}

func TestTemplates(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	tpl := &models.Template{ID: "custom", Channel: models.ActionEmail, Subject: "Invoice {{invoice_number}}", Body: "Hello {{client_name}}"}
	require.NoError(t, UpsertTemplate(ctx, db, tpl))

	tpl.Body = "Dear {{client_name}}"
	require.NoError(t, UpsertTemplate(ctx, db, tpl))

	found, err := GetTemplate(ctx, db, "custom")
	require.NoError(t, err)
	assert.Equal(t, "Dear {{client_name}}", found.Body)

	assert.Error(t, UpsertTemplate(ctx, db, &models.Template{ID: "x", Channel: models.ActionCall, Body: "b"}))

	_, err = GetTemplate(ctx, db, "missing")
	assert.ErrorIs(t, err, ErrTemplateNotFound)

	all, err := ListTemplates(ctx, db)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
