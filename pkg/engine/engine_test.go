package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/leadmill/leadmill/pkg/actions"
	"github.com/leadmill/leadmill/pkg/events"
	"github.com/leadmill/leadmill/pkg/messaging"
	"github.com/leadmill/leadmill/pkg/models"
	"github.com/leadmill/leadmill/pkg/persistence"
	"github.com/leadmill/leadmill/pkg/persistence/file"
	"github.com/leadmill/leadmill/pkg/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedSender fails sends to the configured phone numbers and succeeds
// for everyone else.
type scriptedSender struct {
	mu      sync.Mutex
	failFor map[string]bool
	sent    []messaging.OutboundMessage
}

func (s *scriptedSender) Send(_ context.Context, message messaging.OutboundMessage) (*messaging.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failFor[message.Phone] {
		return nil, errors.New("provider unavailable")
	}

	s.sent = append(s.sent, message)

	return &messaging.Result{Success: true, ProviderMessageID: "prov"}, nil
}

func (s *scriptedSender) sentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.sent)
}

type fixture struct {
	engine *Engine
	store  *file.Persistence
	sender *scriptedSender
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := file.NewPersistence(t.TempDir())
	sender := &scriptedSender{failFor: map[string]bool{}}

	registry, err := actions.NewDefaultRegistry(slog.Default(), actions.Dependencies{
		Leads:    store.LeadRepository(),
		Tasks:    store.TaskRepository(),
		Messages: store.MessageRepository(),
		Sender:   sender,
	})
	require.NoError(t, err)

	retries := retry.NewManager(slog.Default())
	t.Cleanup(retries.Stop)

	eng := NewEngine(slog.Default(), nil,
		store.WorkflowRepository(), store.LeadRepository(), registry, retries, Config{})

	return &fixture{engine: eng, store: store, sender: sender}
}

func (f *fixture) seedLeads(t *testing.T, leads ...*models.Lead) {
	t.Helper()

	for _, lead := range leads {
		require.NoError(t, f.store.LeadRepository().Save(context.Background(), lead))
	}
}

func (f *fixture) seedWorkflow(t *testing.T, workflow *models.Workflow) {
	t.Helper()
	require.NoError(t, f.store.WorkflowRepository().Save(context.Background(), workflow))
}

func dailyWorkflow(actionList []models.Action) *models.Workflow {
	return &models.Workflow{
		ID:     "wf-1",
		Name:   "Morning follow-up",
		Active: true,
		Trigger: models.Trigger{
			Type: models.TriggerTypeTime,
			Time: &models.TimeTrigger{Frequency: models.FrequencyDaily, TimeOfDay: "09:00"},
		},
		Actions:   actionList,
		CreatedAt: time.Now().UTC(),
	}
}

func waitTerminal(t *testing.T, eng *Engine, executionID string) *models.Execution {
	t.Helper()

	var final *models.Execution

	require.Eventually(t, func() bool {
		execution, err := eng.Status(executionID)
		if err != nil {
			return false
		}

		final = execution

		return execution.Status.Terminal()
	}, 5*time.Second, 10*time.Millisecond)

	return final
}

func TestEngine_AllTargetsSucceed(t *testing.T) {
	f := newFixture(t)

	f.seedLeads(t,
		&models.Lead{ID: "lead-1", Name: "Ana", Phone: "+551", Channel: "whatsapp"},
		&models.Lead{ID: "lead-2", Name: "Bruno", Phone: "+552", Channel: "whatsapp"},
		&models.Lead{ID: "lead-3", Name: "Carla", Phone: "+553", Channel: "whatsapp"},
	)
	f.seedWorkflow(t, dailyWorkflow([]models.Action{
		{Type: models.ActionSendMessage, Config: map[string]any{"content": "Good morning {name}"}},
	}))

	executionID, err := f.engine.Execute(context.Background(), "wf-1", nil)
	require.NoError(t, err)

	final := waitTerminal(t, f.engine, executionID)

	assert.Equal(t, models.ExecutionCompleted, final.Status)
	assert.Equal(t, 3, final.TargetCount)
	assert.Equal(t, 3, final.SuccessCount)
	assert.Equal(t, 0, final.FailureCount)
	assert.Empty(t, final.Errors)
	assert.Equal(t, 3, f.sender.sentCount())

	workflow, err := f.store.WorkflowRepository().GetByID(context.Background(), "wf-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), workflow.Stats.TotalRuns)
	assert.Equal(t, int64(1), workflow.Stats.SuccessfulRuns)
	require.NotNil(t, workflow.Stats.LastRun)
}

func TestEngine_RetryExhaustionIsolatedToOneTarget(t *testing.T) {
	f := newFixture(t)

	f.seedLeads(t,
		&models.Lead{ID: "lead-1", Name: "Ana", Phone: "+551", Channel: "whatsapp"},
		&models.Lead{ID: "lead-2", Name: "Bruno", Phone: "+552", Channel: "whatsapp"},
		&models.Lead{ID: "lead-3", Name: "Carla", Phone: "+553", Channel: "whatsapp"},
	)
	f.sender.failFor["+552"] = true

	f.seedWorkflow(t, dailyWorkflow([]models.Action{
		{
			Type:   models.ActionSendMessage,
			Config: map[string]any{"content": "Good morning {name}"},
			Retry:  &models.RetryPolicy{MaxRetries: 2, BackoffMultiplier: 2, InitialDelayMs: 100},
		},
	}))

	started := time.Now()

	executionID, err := f.engine.Execute(context.Background(), "wf-1", nil)
	require.NoError(t, err)

	final := waitTerminal(t, f.engine, executionID)
	elapsed := time.Since(started)

	assert.Equal(t, models.ExecutionCompleted, final.Status)
	assert.Equal(t, 2, final.SuccessCount)
	assert.Equal(t, 1, final.FailureCount)
	require.Len(t, final.Errors, 1)
	assert.Equal(t, "lead-2", final.Errors[0].TargetID)
	assert.Equal(t, 2, final.Errors[0].RetryCount)
	assert.GreaterOrEqual(t, elapsed, 300*time.Millisecond, "backoff at ~100ms then ~200ms")

	workflow, err := f.store.WorkflowRepository().GetByID(context.Background(), "wf-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), workflow.Stats.TotalRuns)
	assert.Equal(t, int64(0), workflow.Stats.SuccessfulRuns, "a run with target failures is not a successful run")
}

func TestEngine_NoRetryPolicyFailsImmediately(t *testing.T) {
	f := newFixture(t)

	f.seedLeads(t, &models.Lead{ID: "lead-1", Name: "Ana", Phone: "+551", Channel: "whatsapp"})
	f.sender.failFor["+551"] = true

	f.seedWorkflow(t, dailyWorkflow([]models.Action{
		{Type: models.ActionSendMessage, Config: map[string]any{"content": "Hi {name}"}},
	}))

	executionID, err := f.engine.Execute(context.Background(), "wf-1", nil)
	require.NoError(t, err)

	final := waitTerminal(t, f.engine, executionID)

	assert.Equal(t, 1, final.FailureCount)
	require.Len(t, final.Errors, 1)
	assert.Equal(t, 0, final.Errors[0].RetryCount)
}

// gateHandler lets the first target through, signals the test, then blocks
// every later call until cancellation.
type gateHandler struct {
	firstDone chan struct{}
	once      sync.Once
}

func (h *gateHandler) Type() models.ActionType { return "gate" }

func (h *gateHandler) Schema() map[string]any {
	return map[string]any{"type": "object"}
}

func (h *gateHandler) Execute(ctx context.Context, _ *slog.Logger, _ actions.Context) error {
	var first bool

	h.once.Do(func() {
		first = true

		close(h.firstDone)
	})

	if first {
		return nil
	}

	<-ctx.Done()

	return ctx.Err()
}

func TestEngine_CancelBetweenTargets(t *testing.T) {
	f := newFixture(t)

	gate := &gateHandler{firstDone: make(chan struct{})}

	registry := actions.NewRegistry(slog.Default())
	require.NoError(t, registry.Register(gate))

	retries := retry.NewManager(slog.Default())
	t.Cleanup(retries.Stop)

	eng := NewEngine(slog.Default(), nil,
		f.store.WorkflowRepository(), f.store.LeadRepository(), registry, retries,
		Config{TargetConcurrency: 1})

	f.seedLeads(t,
		&models.Lead{ID: "lead-1", Name: "Ana"},
		&models.Lead{ID: "lead-2", Name: "Bruno"},
		&models.Lead{ID: "lead-3", Name: "Carla"},
		&models.Lead{ID: "lead-4", Name: "Dora"},
		&models.Lead{ID: "lead-5", Name: "Enzo"},
	)
	f.seedWorkflow(t, dailyWorkflow([]models.Action{
		{Type: "gate", Config: map[string]any{}},
	}))

	executionID, err := eng.Execute(context.Background(), "wf-1", nil)
	require.NoError(t, err)

	<-gate.firstDone
	require.NoError(t, eng.Cancel(executionID))

	final := waitTerminal(t, eng, executionID)

	assert.Equal(t, models.ExecutionCancelled, final.Status)
	assert.Equal(t, 1, final.SuccessCount)
	assert.Equal(t, 0, final.FailureCount)
	assert.Empty(t, final.Errors, "untouched targets leave no error entries")
}

// volatileHandler panics for one configured lead and succeeds for the rest.
type volatileHandler struct {
	panicFor string
}

func (h *volatileHandler) Type() models.ActionType { return "volatile" }

func (h *volatileHandler) Schema() map[string]any {
	return map[string]any{"type": "object"}
}

func (h *volatileHandler) Execute(_ context.Context, _ *slog.Logger, actionCtx actions.Context) error {
	if actionCtx.Lead.ID == h.panicFor {
		panic("handler bug")
	}

	return nil
}

func TestEngine_HandlerPanicFailsTargetOnly(t *testing.T) {
	f := newFixture(t)

	registry := actions.NewRegistry(slog.Default())
	require.NoError(t, registry.Register(&volatileHandler{panicFor: "lead-2"}))

	retries := retry.NewManager(slog.Default())
	t.Cleanup(retries.Stop)

	eng := NewEngine(slog.Default(), nil,
		f.store.WorkflowRepository(), f.store.LeadRepository(), registry, retries, Config{})

	f.seedLeads(t,
		&models.Lead{ID: "lead-1", Name: "Ana"},
		&models.Lead{ID: "lead-2", Name: "Bruno"},
		&models.Lead{ID: "lead-3", Name: "Carla"},
	)
	f.seedWorkflow(t, dailyWorkflow([]models.Action{
		{Type: "volatile", Config: map[string]any{}},
	}))

	executionID, err := eng.Execute(context.Background(), "wf-1", nil)
	require.NoError(t, err)

	final := waitTerminal(t, eng, executionID)

	assert.Equal(t, models.ExecutionCompleted, final.Status)
	assert.Equal(t, 2, final.SuccessCount)
	assert.Equal(t, 1, final.FailureCount)
	require.Len(t, final.Errors, 1)
	assert.Equal(t, "lead-2", final.Errors[0].TargetID)
	assert.Contains(t, final.Errors[0].Error, "handler bug")
}

// panickingLeads blows up on Query to exercise the orchestration-level
// containment.
type panickingLeads struct {
	persistence.LeadRepository
}

func (panickingLeads) Query(_ context.Context, _ []models.Condition) ([]*models.Lead, error) {
	panic("lead index corrupted")
}

func TestEngine_OrchestrationPanicFailsRun(t *testing.T) {
	f := newFixture(t)

	retries := retry.NewManager(slog.Default())
	t.Cleanup(retries.Stop)

	registry := actions.NewRegistry(slog.Default())

	eng := NewEngine(slog.Default(), nil,
		f.store.WorkflowRepository(), panickingLeads{f.store.LeadRepository()}, registry, retries, Config{})

	f.seedWorkflow(t, dailyWorkflow([]models.Action{
		{Type: models.ActionSendMessage, Config: map[string]any{"content": "Hi"}},
	}))

	executionID, err := eng.Execute(context.Background(), "wf-1", nil)
	require.NoError(t, err)

	final := waitTerminal(t, eng, executionID)

	assert.Equal(t, models.ExecutionFailed, final.Status)
	require.Len(t, final.Errors, 1)
	assert.Equal(t, "run", final.Errors[0].Step)
	assert.Contains(t, final.Errors[0].Error, "lead index corrupted")

	workflow, err := f.store.WorkflowRepository().GetByID(context.Background(), "wf-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), workflow.Stats.TotalRuns)
	assert.Equal(t, int64(0), workflow.Stats.SuccessfulRuns)
}

func TestEngine_EmptyTargetSetCompletes(t *testing.T) {
	f := newFixture(t)

	f.seedWorkflow(t, &models.Workflow{
		ID:     "wf-1",
		Name:   "Nobody matches",
		Active: true,
		Conditions: []models.Condition{
			{Field: "status", Operator: models.OperatorEquals, Value: "CONVERTED"},
		},
		Actions: []models.Action{
			{Type: models.ActionSendMessage, Config: map[string]any{"content": "Hi"}},
		},
	})

	executionID, err := f.engine.Execute(context.Background(), "wf-1", nil)
	require.NoError(t, err)

	final := waitTerminal(t, f.engine, executionID)

	assert.Equal(t, models.ExecutionCompleted, final.Status)
	assert.Equal(t, 0, final.TargetCount)
	assert.Equal(t, 0, final.SuccessCount)
	assert.Equal(t, 0, final.FailureCount)
}

func TestEngine_PayloadInterpolatedConditions(t *testing.T) {
	f := newFixture(t)

	f.seedLeads(t,
		&models.Lead{ID: "lead-1", Name: "Ana", Phone: "+551", Channel: "sms"},
		&models.Lead{ID: "lead-2", Name: "Bruno", Phone: "+552", Channel: "sms"},
	)
	workflow := dailyWorkflow([]models.Action{
		{Type: models.ActionSendMessage, Config: map[string]any{"content": "Hi {name}"}},
	})
	workflow.Conditions = []models.Condition{
		{Field: "id", Operator: models.OperatorEquals, Value: "${leadId}"},
	}
	f.seedWorkflow(t, workflow)

	executionID, err := f.engine.Execute(context.Background(), "wf-1", map[string]any{"leadId": "lead-2"})
	require.NoError(t, err)

	final := waitTerminal(t, f.engine, executionID)

	assert.Equal(t, models.ExecutionCompleted, final.Status)
	assert.Equal(t, 1, final.TargetCount)
	assert.Equal(t, 1, final.SuccessCount)
}

func TestEngine_ExecuteErrors(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Execute(context.Background(), "missing", nil)
	assert.Error(t, err)

	f.seedWorkflow(t, &models.Workflow{ID: "wf-paused", Name: "Paused one", Active: false})

	_, err = f.engine.Execute(context.Background(), "wf-paused", nil)
	assert.ErrorIs(t, err, ErrWorkflowInactive)
}

func TestEngine_HandleTriggerFiredDropsUnrunnable(t *testing.T) {
	f := newFixture(t)

	err := f.engine.HandleTriggerFired(context.Background(), &events.TriggerFired{
		WorkflowID: "missing",
		TriggerID:  "trg-1",
	})
	assert.NoError(t, err, "fires for deleted workflows are dropped, not retried")
}

func TestEngine_StatusNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Status("missing")
	assert.ErrorIs(t, err, ErrExecutionNotFound)

	assert.ErrorIs(t, f.engine.Cancel("missing"), ErrExecutionNotFound)
}
