package actions

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/leadmill/leadmill/pkg/models"
	"github.com/leadmill/leadmill/pkg/persistence"
	"github.com/leadmill/leadmill/pkg/template"
)

// CreateTaskHandler creates a follow-up task for the target lead. Title and
// description support "{field}" placeholders rendered from the lead record.
type CreateTaskHandler struct {
	tasks persistence.TaskRepository
}

func (h *CreateTaskHandler) Type() models.ActionType {
	return models.ActionCreateTask
}

func (h *CreateTaskHandler) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"title":        map[string]any{"type": "string", "minLength": 1},
			"description":  map[string]any{"type": "string"},
			"assignee":     map[string]any{"type": "string"},
			"due_in_hours": map[string]any{"type": "number", "minimum": 0},
		},
		"required": []string{"title"},
	}
}

func (h *CreateTaskHandler) Execute(ctx context.Context, _ *slog.Logger, actionCtx Context) error {
	lead := actionCtx.Lead
	record := lead.Record()

	assignee := configString(actionCtx.Config, "assignee")
	if assignee == "" {
		assignee = lead.AssignedTo
	}

	task := &models.Task{
		ID:          uuid.NewString(),
		LeadID:      lead.ID,
		Title:       template.RenderMessage(configString(actionCtx.Config, "title"), record),
		Description: template.RenderMessage(configString(actionCtx.Config, "description"), record),
		AssignedTo:  assignee,
		Status:      models.TaskStatusOpen,
		CreatedAt:   time.Now().UTC(),
	}

	if hours, ok := actionCtx.Config["due_in_hours"].(float64); ok && hours > 0 {
		due := task.CreatedAt.Add(time.Duration(hours * float64(time.Hour)))
		task.DueAt = &due
	}

	if err := h.tasks.Create(ctx, task); err != nil {
		return fmt.Errorf("failed to create task for lead %s: %w", lead.ID, err)
	}

	return nil
}
