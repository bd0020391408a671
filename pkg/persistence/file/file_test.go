package file

import (
	"context"
	"testing"
	"time"

	"github.com/leadmill/leadmill/pkg/models"
	"github.com/leadmill/leadmill/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkflowRepository_RoundTrip(t *testing.T) {
	ctx := context.Background()
	p := NewPersistence(t.TempDir())
	repo := p.WorkflowRepository()

	workflow := &models.Workflow{
		ID:     "wf-1",
		Name:   "Follow up new leads",
		Active: true,
		Trigger: models.Trigger{
			Type: models.TriggerTypeTime,
			Time: &models.TimeTrigger{Frequency: models.FrequencyDaily, TimeOfDay: "09:00"},
		},
		Conditions: []models.Condition{
			{Field: "status", Operator: models.OperatorEquals, Value: "NEW"},
		},
		Actions: []models.Action{
			{
				Type:   models.ActionSendMessage,
				Config: map[string]any{"content": "Hi {name}"},
				Retry:  &models.RetryPolicy{MaxRetries: 2, BackoffMultiplier: 2, InitialDelayMs: 100},
			},
		},
		CreatedAt: time.Now().UTC(),
	}

	require.NoError(t, repo.Save(ctx, workflow))

	loaded, err := repo.GetByID(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, "Follow up new leads", loaded.Name)
	require.NotNil(t, loaded.Trigger.Time)
	assert.Equal(t, models.FrequencyDaily, loaded.Trigger.Time.Frequency)
	require.Len(t, loaded.Actions, 1)
	require.NotNil(t, loaded.Actions[0].Retry)
	assert.Equal(t, 2, loaded.Actions[0].Retry.MaxRetries)
}

func TestWorkflowRepository_NotFound(t *testing.T) {
	ctx := context.Background()
	repo := NewPersistence(t.TempDir()).WorkflowRepository()

	_, err := repo.GetByID(ctx, "missing")
	assert.True(t, persistence.IsWorkflowNotFound(err))

	err = repo.Delete(ctx, "missing")
	assert.True(t, persistence.IsWorkflowNotFound(err))
}

func TestWorkflowRepository_GetActive(t *testing.T) {
	ctx := context.Background()
	repo := NewPersistence(t.TempDir()).WorkflowRepository()

	require.NoError(t, repo.Save(ctx, &models.Workflow{ID: "wf-on", Name: "Active one", Active: true}))
	require.NoError(t, repo.Save(ctx, &models.Workflow{ID: "wf-off", Name: "Paused one", Active: false}))

	active, err := repo.GetActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "wf-on", active[0].ID)
}

func TestWorkflowRepository_UpdateRunStats(t *testing.T) {
	ctx := context.Background()
	repo := NewPersistence(t.TempDir()).WorkflowRepository()

	require.NoError(t, repo.Save(ctx, &models.Workflow{ID: "wf-1", Name: "Stats test"}))

	now := time.Now().UTC()
	stats := models.RunStats{TotalRuns: 3, SuccessfulRuns: 2, LastRun: &now}
	require.NoError(t, repo.UpdateRunStats(ctx, "wf-1", stats))

	loaded, err := repo.GetByID(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), loaded.Stats.TotalRuns)
	assert.Equal(t, int64(2), loaded.Stats.SuccessfulRuns)
	require.NotNil(t, loaded.Stats.LastRun)
}

func TestLeadRepository_QueryAppliesConditions(t *testing.T) {
	ctx := context.Background()
	repo := NewPersistence(t.TempDir()).LeadRepository()

	require.NoError(t, repo.Save(ctx, &models.Lead{ID: "lead-1", Name: "Ana", Status: models.LeadStatusNew, LoanAmount: 600000}))
	require.NoError(t, repo.Save(ctx, &models.Lead{ID: "lead-2", Name: "Bruno", Status: models.LeadStatusNew, LoanAmount: 200000}))
	require.NoError(t, repo.Save(ctx, &models.Lead{ID: "lead-3", Name: "Carla", Status: models.LeadStatusLost, LoanAmount: 900000}))

	leads, err := repo.Query(ctx, []models.Condition{
		{Field: "status", Operator: models.OperatorEquals, Value: "NEW"},
		{Field: "loanAmount", Operator: models.OperatorGreaterThan, Value: 500000, Logical: models.LogicalAnd},
	})

	require.NoError(t, err)
	require.Len(t, leads, 1)
	assert.Equal(t, "lead-1", leads[0].ID)

	all, err := repo.Query(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 3, "empty condition chain matches every lead")
}

func TestLeadRepository_Mutations(t *testing.T) {
	ctx := context.Background()
	repo := NewPersistence(t.TempDir()).LeadRepository()

	require.NoError(t, repo.Save(ctx, &models.Lead{ID: "lead-1", Name: "Ana", Status: models.LeadStatusNew}))

	require.NoError(t, repo.UpdateStatus(ctx, "lead-1", models.LeadStatusContacted))
	require.NoError(t, repo.Assign(ctx, "lead-1", "agent-7"))
	require.NoError(t, repo.UpdateTags(ctx, "lead-1", []string{"vip", "priority"}))

	lead, err := repo.GetByID(ctx, "lead-1")
	require.NoError(t, err)
	assert.Equal(t, models.LeadStatusContacted, lead.Status)
	assert.Equal(t, "agent-7", lead.AssignedTo)
	assert.Equal(t, []string{"vip", "priority"}, lead.Tags)

	assert.True(t, persistence.IsLeadNotFound(repo.UpdateStatus(ctx, "ghost", models.LeadStatusLost)))
}
