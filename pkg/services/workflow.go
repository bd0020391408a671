package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/leadmill/leadmill/pkg/actions"
	"github.com/leadmill/leadmill/pkg/models"
	"github.com/leadmill/leadmill/pkg/persistence"
	"github.com/leadmill/leadmill/pkg/triggers"
)

// Workflow manages the automation catalog. Every mutation validates the
// definition first and then keeps the trigger manager's live registrations in
// sync, so a stored workflow and its registration never drift apart.
type Workflow struct {
	persistence persistence.Persistence
	validator   *validator.Validate
	registry    *actions.Registry
	triggers    *triggers.Manager
	logger      *slog.Logger
}

func NewWorkflow(
	persistence persistence.Persistence,
	validate *validator.Validate,
	registry *actions.Registry,
	triggerManager *triggers.Manager,
	logger *slog.Logger,
) *Workflow {
	return &Workflow{
		persistence: persistence,
		validator:   validate,
		registry:    registry,
		triggers:    triggerManager,
		logger:      logger.With("module", "workflow_service"),
	}
}

// HealthCheck checks the health of the persistence layer.
func (w *Workflow) HealthCheck(ctx context.Context) (string, bool) {
	err := w.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

func (w *Workflow) List(ctx context.Context) ([]*models.Workflow, error) {
	return w.persistence.WorkflowRepository().GetAll(ctx)
}

func (w *Workflow) FetchByID(ctx context.Context, id string) (*models.Workflow, error) {
	return w.persistence.WorkflowRepository().GetByID(ctx, id)
}

// Create validates and stores a new workflow. When the workflow is active its
// trigger is registered immediately; a definition that cannot be registered
// is rejected before anything is stored.
func (w *Workflow) Create(ctx context.Context, workflow *models.Workflow) (*models.Workflow, error) {
	if workflow.ID == "" {
		workflow.ID = uuid.NewString()
	}

	now := time.Now().UTC()
	workflow.CreatedAt = now
	workflow.UpdatedAt = now

	if err := w.validate(workflow); err != nil {
		return nil, err
	}

	if err := w.persistence.WorkflowRepository().Save(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to save workflow: %w", err)
	}

	if workflow.Active {
		if err := w.triggers.Register(ctx, workflow); err != nil {
			return nil, err
		}
	}

	w.logger.InfoContext(ctx, "Workflow created",
		"workflow_id", workflow.ID, "name", workflow.Name, "active", workflow.Active)

	return workflow, nil
}

// Update replaces a workflow's definition. The live registration is torn down
// and rebuilt so an edited trigger never leaves a stale schedule running.
func (w *Workflow) Update(ctx context.Context, id string, workflow *models.Workflow) (*models.Workflow, error) {
	existing, err := w.persistence.WorkflowRepository().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	workflow.ID = existing.ID
	workflow.CreatedAt = existing.CreatedAt
	workflow.Stats = existing.Stats
	workflow.UpdatedAt = time.Now().UTC()

	if err := w.validate(workflow); err != nil {
		return nil, err
	}

	if err := w.persistence.WorkflowRepository().Save(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to save workflow: %w", err)
	}

	if workflow.Active {
		if err := w.triggers.Register(ctx, workflow); err != nil {
			return nil, err
		}
	} else {
		w.triggers.Unregister(ctx, workflow.ID)
	}

	w.logger.InfoContext(ctx, "Workflow updated", "workflow_id", workflow.ID)

	return workflow, nil
}

// Toggle flips a workflow's active flag. Deactivating twice is a no-op; the
// second teardown simply finds nothing registered.
func (w *Workflow) Toggle(ctx context.Context, id string, active bool) (*models.Workflow, error) {
	workflow, err := w.persistence.WorkflowRepository().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	workflow.Active = active
	workflow.UpdatedAt = time.Now().UTC()

	if err := w.persistence.WorkflowRepository().Save(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to save workflow: %w", err)
	}

	if active {
		if err := w.triggers.Register(ctx, workflow); err != nil {
			return nil, err
		}
	} else {
		w.triggers.Unregister(ctx, id)
	}

	w.logger.InfoContext(ctx, "Workflow toggled", "workflow_id", id, "active", active)

	return workflow, nil
}

// Delete removes a workflow and tears down its registration.
func (w *Workflow) Delete(ctx context.Context, id string) error {
	if err := w.persistence.WorkflowRepository().Delete(ctx, id); err != nil {
		return err
	}

	w.triggers.Unregister(ctx, id)

	w.logger.InfoContext(ctx, "Workflow deleted", "workflow_id", id)

	return nil
}

// validate fails fast on every definition error: struct constraints, the
// trigger variant and schedule, and each action's config schema.
func (w *Workflow) validate(workflow *models.Workflow) error {
	if err := w.validator.Struct(workflow); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDefinition, err)
	}

	if err := workflow.Trigger.Validate(); err != nil {
		return err
	}

	if workflow.Trigger.Type == models.TriggerTypeTime {
		if _, _, err := triggers.ValidateSchedule(workflow.Trigger.Time); err != nil {
			return err
		}
	}

	for i, action := range workflow.Actions {
		if err := w.registry.ValidateConfig(action.Type, action.Config); err != nil {
			return fmt.Errorf("%w: actions[%d]: %w", ErrInvalidDefinition, i, err)
		}
	}

	return nil
}
