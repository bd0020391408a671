// Package triggers owns the catalog of live trigger registrations: one cron
// runner per time-based trigger and one subscription per event-based
// trigger. Matching triggers fire a generic TriggerFired notification on the
// fires channel; the execution engine consumes it from there.
package triggers

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/leadmill/leadmill/pkg/conditions"
	"github.com/leadmill/leadmill/pkg/events"
	"github.com/leadmill/leadmill/pkg/models"
	"github.com/robfig/cron/v3"
)

// FirePublisher publishes trigger-fire notifications.
type FirePublisher interface {
	PublishTriggerFired(ctx context.Context, fired *events.TriggerFired) error
}

// Store is the slice of persistence the manager needs: the workflow catalog
// at boot and the next-run stamp after (re)scheduling. The workflow
// repository satisfies it.
type Store interface {
	GetActive(ctx context.Context) ([]*models.Workflow, error)
	UpdateNextRun(ctx context.Context, workflowID string, next *time.Time) error
}

type scheduledEntry struct {
	triggerID string
	cron      *cron.Cron
	entryID   cron.EntryID
}

type subscribedEntry struct {
	triggerID  string
	workflowID string
	eventType  string
	filter     []models.Condition
}

// Manager holds the only process-wide mutable state of the trigger layer.
// All catalog mutation is atomic with respect to firing: a registration is
// fully torn down before its replacement is installed, so a workflow never
// has more than one live registration.
type Manager struct {
	logger    *slog.Logger
	publisher FirePublisher
	store     Store

	mu         sync.Mutex
	scheduled  map[string]*scheduledEntry            // workflowID -> cron runner
	subscribed map[string]map[string]*subscribedEntry // eventType -> workflowID -> subscription
}

func NewManager(logger *slog.Logger, publisher FirePublisher, store Store) *Manager {
	return &Manager{
		logger:     logger.With("module", "trigger_manager"),
		publisher:  publisher,
		store:      store,
		scheduled:  make(map[string]*scheduledEntry),
		subscribed: make(map[string]map[string]*subscribedEntry),
	}
}

// Start registers every active workflow's trigger. Call once at boot, after
// which the workflow service keeps the catalog in sync on each mutation.
func (m *Manager) Start(ctx context.Context) error {
	workflows, err := m.store.GetActive(ctx)
	if err != nil {
		return fmt.Errorf("failed to load active workflows: %w", err)
	}

	for _, workflow := range workflows {
		if err := m.Register(ctx, workflow); err != nil {
			// One broken definition must not keep the rest from scheduling.
			m.logger.ErrorContext(ctx, "Failed to register trigger at boot",
				"workflow_id", workflow.ID, "error", err)
		}
	}

	m.logger.InfoContext(ctx, "Trigger manager started", "workflows", len(workflows))

	return nil
}

// Register installs the workflow's trigger, tearing down any existing
// registration under the same workflow first. Malformed schedules are
// rejected and leave the workflow unregistered.
func (m *Manager) Register(ctx context.Context, workflow *models.Workflow) error {
	if err := workflow.Trigger.Validate(); err != nil {
		return err
	}

	switch workflow.Trigger.Type {
	case models.TriggerTypeTime:
		return m.registerTimeBased(ctx, workflow)
	case models.TriggerTypeEvent:
		return m.registerEventBased(ctx, workflow)
	default:
		return models.ErrTriggerType
	}
}

func (m *Manager) registerTimeBased(ctx context.Context, workflow *models.Workflow) error {
	expr, loc, err := ValidateSchedule(workflow.Trigger.Time)
	if err != nil {
		return err
	}

	triggerID := uuid.New().String()
	workflowID := workflow.ID

	runner := cron.New(
		cron.WithLocation(loc),
		cron.WithChain(
			cron.SkipIfStillRunning(cron.DefaultLogger),
			cron.Recover(cron.DefaultLogger),
		),
	)

	entryID, err := runner.AddFunc(expr, func() {
		m.fire(context.Background(), models.TriggerTypeTime, workflowID, triggerID, map[string]any{
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})

		m.stampNextRun(context.Background(), workflowID)
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
	}

	m.mu.Lock()
	m.unregisterLocked(workflowID)
	m.scheduled[workflowID] = &scheduledEntry{triggerID: triggerID, cron: runner, entryID: entryID}
	runner.Start()
	m.mu.Unlock()

	m.logger.InfoContext(ctx, "Registered time-based trigger",
		"workflow_id", workflowID, "trigger_id", triggerID, "cron", expr, "timezone", loc.String())

	m.stampNextRun(ctx, workflowID)

	return nil
}

func (m *Manager) registerEventBased(ctx context.Context, workflow *models.Workflow) error {
	trigger := workflow.Trigger.Event
	entry := &subscribedEntry{
		triggerID:  uuid.New().String(),
		workflowID: workflow.ID,
		eventType:  trigger.EventType,
		filter:     conditions.FromFilter(trigger.Filter),
	}

	m.mu.Lock()
	m.unregisterLocked(workflow.ID)

	byWorkflow, ok := m.subscribed[trigger.EventType]
	if !ok {
		byWorkflow = make(map[string]*subscribedEntry)
		m.subscribed[trigger.EventType] = byWorkflow
	}

	byWorkflow[workflow.ID] = entry
	m.mu.Unlock()

	m.logger.InfoContext(ctx, "Registered event-based trigger",
		"workflow_id", workflow.ID, "trigger_id", entry.triggerID, "event_type", trigger.EventType)

	return nil
}

// Unregister tears down the workflow's live registration. It is idempotent
// and reports whether anything was registered.
func (m *Manager) Unregister(ctx context.Context, workflowID string) bool {
	m.mu.Lock()
	removed := m.unregisterLocked(workflowID)
	m.mu.Unlock()

	if removed {
		m.logger.InfoContext(ctx, "Unregistered trigger", "workflow_id", workflowID)
	}

	return removed
}

func (m *Manager) unregisterLocked(workflowID string) bool {
	if entry, ok := m.scheduled[workflowID]; ok {
		entry.cron.Stop()
		delete(m.scheduled, workflowID)

		return true
	}

	removed := false

	for eventType, byWorkflow := range m.subscribed {
		if _, ok := byWorkflow[workflowID]; ok {
			delete(byWorkflow, workflowID)
			removed = true
		}

		if len(byWorkflow) == 0 {
			delete(m.subscribed, eventType)
		}
	}

	return removed
}

// NextRun returns the next scheduled firing of a time-based trigger.
func (m *Manager) NextRun(workflowID string) (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.scheduled[workflowID]
	if !ok {
		return time.Time{}, false
	}

	return entry.cron.Entry(entry.entryID).Next, true
}

// Registered reports whether the workflow has a live registration.
func (m *Manager) Registered(workflowID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.scheduled[workflowID]; ok {
		return true
	}

	for _, byWorkflow := range m.subscribed {
		if _, ok := byWorkflow[workflowID]; ok {
			return true
		}
	}

	return false
}

// HandleDomainEvent is the domain-channel handler. For every subscription on
// the event's type it evaluates the optional filter against the payload and
// fires on match. A failing subscription never blocks the others.
func (m *Manager) HandleDomainEvent(ctx context.Context, event *events.DomainEvent) error {
	m.mu.Lock()
	matching := make([]*subscribedEntry, 0)

	for _, entry := range m.subscribed[string(event.Type)] {
		matching = append(matching, entry)
	}
	m.mu.Unlock()

	for _, entry := range matching {
		if !conditions.Matches(event.Payload, entry.filter) {
			continue
		}

		m.fire(ctx, models.TriggerTypeEvent, entry.workflowID, entry.triggerID, event.Payload)
	}

	return nil
}

// Stop tears down every registration.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for workflowID, entry := range m.scheduled {
		entry.cron.Stop()
		delete(m.scheduled, workflowID)
	}

	for eventType := range m.subscribed {
		delete(m.subscribed, eventType)
	}

	m.logger.Info("Trigger manager stopped")
}

// fire publishes a TriggerFired notification. Publish failures are logged,
// never propagated: one broken firing must not stop the scheduler loop or
// other triggers.
func (m *Manager) fire(ctx context.Context, triggerType models.TriggerType, workflowID, triggerID string, payload map[string]any) {
	fired := &events.TriggerFired{
		ID:          uuid.New().String(),
		TriggerType: triggerType,
		WorkflowID:  workflowID,
		TriggerID:   triggerID,
		Payload:     payload,
		Timestamp:   time.Now().UTC(),
	}

	if err := m.publisher.PublishTriggerFired(ctx, fired); err != nil {
		m.logger.ErrorContext(ctx, "Failed to publish trigger fire",
			"workflow_id", workflowID, "trigger_id", triggerID, "error", err)

		return
	}

	m.logger.InfoContext(ctx, "Trigger fired",
		"workflow_id", workflowID, "trigger_id", triggerID, "trigger_type", triggerType)
}

func (m *Manager) stampNextRun(ctx context.Context, workflowID string) {
	next, ok := m.NextRun(workflowID)
	if !ok {
		return
	}

	if err := m.store.UpdateNextRun(ctx, workflowID, &next); err != nil {
		m.logger.ErrorContext(ctx, "Failed to stamp next run",
			"workflow_id", workflowID, "error", err)
	}
}
