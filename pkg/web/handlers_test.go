package web

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/leadmill/leadmill/pkg/actions"
	"github.com/leadmill/leadmill/pkg/engine"
	"github.com/leadmill/leadmill/pkg/events"
	"github.com/leadmill/leadmill/pkg/messaging"
	"github.com/leadmill/leadmill/pkg/models"
	"github.com/leadmill/leadmill/pkg/persistence/file"
	"github.com/leadmill/leadmill/pkg/retry"
	"github.com/leadmill/leadmill/pkg/services"
	"github.com/leadmill/leadmill/pkg/triggers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type okSender struct{}

func (okSender) Send(_ context.Context, _ messaging.OutboundMessage) (*messaging.Result, error) {
	return &messaging.Result{Success: true}, nil
}

type dropPublisher struct{}

func (dropPublisher) PublishTriggerFired(_ context.Context, _ *events.TriggerFired) error {
	return nil
}

func (dropPublisher) PublishDomainEvent(_ context.Context, _ *events.DomainEvent) error {
	return nil
}

func newTestApp(t *testing.T) (*fiber.App, *file.Persistence) {
	t.Helper()

	store := file.NewPersistence(t.TempDir())
	logger := slog.Default()
	validate := validator.New()

	registry, err := actions.NewDefaultRegistry(logger, actions.Dependencies{
		Leads:    store.LeadRepository(),
		Tasks:    store.TaskRepository(),
		Messages: store.MessageRepository(),
		Sender:   okSender{},
	})
	require.NoError(t, err)

	triggerManager := triggers.NewManager(logger, dropPublisher{}, store.WorkflowRepository())
	t.Cleanup(triggerManager.Stop)

	retries := retry.NewManager(logger)
	t.Cleanup(retries.Stop)

	executionEngine := engine.NewEngine(logger, nil,
		store.WorkflowRepository(), store.LeadRepository(), registry, retries, engine.Config{})

	workflowService := services.NewWorkflow(store, validate, registry, triggerManager, logger)
	leadService := services.NewLead(store, events.NewEmitter(dropPublisher{}, logger), validate, logger)

	return NewApp(NewAPIHandlers(workflowService, leadService, executionEngine, validate)), store
}

func postJSON(t *testing.T, app *fiber.App, path string, payload any) *http.Response {
	t.Helper()

	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)

	return resp
}

func workflowPayload() map[string]any {
	return map[string]any{
		"name":   "Welcome new leads",
		"active": true,
		"trigger": map[string]any{
			"type":  "event",
			"event": map[string]any{"event_type": "lead_created"},
		},
		"actions": []map[string]any{
			{"type": "send_message", "config": map[string]any{"content": "Welcome {name}!"}},
		},
	}
}

func TestCreateWorkflow(t *testing.T) {
	app, _ := newTestApp(t)

	resp := postJSON(t, app, "/workflows", workflowPayload())
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	var created models.Workflow

	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.NotEmpty(t, created.ID)
	assert.True(t, created.Active)
}

func TestCreateWorkflow_ValidationProblems(t *testing.T) {
	app, _ := newTestApp(t)

	tests := []struct {
		name   string
		mutate func(payload map[string]any)
	}{
		{
			name:   "short name",
			mutate: func(p map[string]any) { p["name"] = "ab" },
		},
		{
			name:   "no actions",
			mutate: func(p map[string]any) { delete(p, "actions") },
		},
		{
			name: "invalid cron",
			mutate: func(p map[string]any) {
				p["trigger"] = map[string]any{
					"type": "time",
					"time": map[string]any{"frequency": "custom", "cron_expression": "bogus"},
				}
			},
		},
		{
			name: "bad action config",
			mutate: func(p map[string]any) {
				p["actions"] = []map[string]any{
					{"type": "wait", "config": map[string]any{"duration_ms": -5}},
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := workflowPayload()
			tt.mutate(payload)

			resp := postJSON(t, app, "/workflows", payload)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			assert.Contains(t, string(body), "validation_error")
		})
	}
}

func TestGetWorkflow_NotFound(t *testing.T) {
	app, _ := newTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/workflows/missing", nil)

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestToggleWorkflow(t *testing.T) {
	app, _ := newTestApp(t)

	resp := postJSON(t, app, "/workflows", workflowPayload())
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created models.Workflow
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))

	resp = postJSON(t, app, "/workflows/"+created.ID+"/toggle", map[string]any{"active": false})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var toggled models.Workflow
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&toggled))
	assert.False(t, toggled.Active)
}

func TestExecuteWorkflow_InactiveConflicts(t *testing.T) {
	app, _ := newTestApp(t)

	payload := workflowPayload()
	payload["active"] = false

	resp := postJSON(t, app, "/workflows", payload)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created models.Workflow
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))

	resp = postJSON(t, app, "/workflows/"+created.ID+"/execute", map[string]any{})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestExecuteWorkflow_ReturnsExecutionID(t *testing.T) {
	app, _ := newTestApp(t)

	resp := postJSON(t, app, "/workflows", workflowPayload())
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created models.Workflow
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))

	resp = postJSON(t, app, "/workflows/"+created.ID+"/execute", map[string]any{})
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	var result ExecuteWorkflowResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.NotEmpty(t, result.ExecutionID)

	req := httptest.NewRequest(http.MethodGet, "/executions/"+result.ExecutionID, nil)

	getResp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, getResp.StatusCode)
}

func TestLeadEndpoints(t *testing.T) {
	app, _ := newTestApp(t)

	resp := postJSON(t, app, "/leads", map[string]any{
		"name":    "Ana",
		"phone":   "+5511999990000",
		"channel": "whatsapp",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var lead models.Lead
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&lead))
	assert.Equal(t, models.LeadStatusNew, lead.Status)

	resp = postJSON(t, app, "/leads/"+lead.ID+"/messages", map[string]any{
		"channel": "whatsapp",
		"content": "I want a quote",
	})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = postJSON(t, app, "/leads/missing/messages", map[string]any{
		"channel": "whatsapp",
		"content": "hello",
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateLead_ValidationProblem(t *testing.T) {
	app, _ := newTestApp(t)

	resp := postJSON(t, app, "/leads", map[string]any{"phone": "+551"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCompleteTask(t *testing.T) {
	app, store := newTestApp(t)

	task := &models.Task{ID: "task-1", LeadID: "lead-1", Title: "Call back", Status: models.TaskStatusOpen}
	require.NoError(t, store.TaskRepository().Create(context.Background(), task))

	resp := postJSON(t, app, "/tasks/task-1/complete", map[string]any{})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var completed models.Task
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&completed))
	assert.Equal(t, models.TaskStatusDone, completed.Status)

	resp = postJSON(t, app, "/tasks/missing/complete", map[string]any{})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
