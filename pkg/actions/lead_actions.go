package actions

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/leadmill/leadmill/pkg/models"
	"github.com/leadmill/leadmill/pkg/persistence"
)

// UpdateLeadStatusHandler moves the target lead to the configured pipeline
// stage.
type UpdateLeadStatusHandler struct {
	leads persistence.LeadRepository
}

func (h *UpdateLeadStatusHandler) Type() models.ActionType {
	return models.ActionUpdateLeadStatus
}

func (h *UpdateLeadStatusHandler) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"status": map[string]any{
				"type": "string",
				"enum": []string{"NEW", "CONTACTED", "INTERESTED", "QUALIFIED", "CONVERTED", "LOST"},
			},
		},
		"required": []string{"status"},
	}
}

func (h *UpdateLeadStatusHandler) Execute(ctx context.Context, _ *slog.Logger, actionCtx Context) error {
	status := models.LeadStatus(configString(actionCtx.Config, "status"))

	if err := h.leads.UpdateStatus(ctx, actionCtx.Lead.ID, status); err != nil {
		return fmt.Errorf("failed to update status of lead %s: %w", actionCtx.Lead.ID, err)
	}

	return nil
}

// AssignLeadHandler assigns the target lead to the configured agent.
type AssignLeadHandler struct {
	leads persistence.LeadRepository
}

func (h *AssignLeadHandler) Type() models.ActionType {
	return models.ActionAssignLead
}

func (h *AssignLeadHandler) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"assignee": map[string]any{"type": "string", "minLength": 1},
		},
		"required": []string{"assignee"},
	}
}

func (h *AssignLeadHandler) Execute(ctx context.Context, _ *slog.Logger, actionCtx Context) error {
	assignee := configString(actionCtx.Config, "assignee")

	if err := h.leads.Assign(ctx, actionCtx.Lead.ID, assignee); err != nil {
		return fmt.Errorf("failed to assign lead %s: %w", actionCtx.Lead.ID, err)
	}

	return nil
}

// UpdateTagsHandler merges the configured tags into the lead's existing tag
// set, preserving order and dropping duplicates. Last write wins when two
// runs mutate the same lead concurrently; the store is the arbiter.
type UpdateTagsHandler struct {
	leads persistence.LeadRepository
}

func (h *UpdateTagsHandler) Type() models.ActionType {
	return models.ActionUpdateTags
}

func (h *UpdateTagsHandler) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"tags": map[string]any{
				"type":     "array",
				"items":    map[string]any{"type": "string"},
				"minItems": 1,
			},
		},
		"required": []string{"tags"},
	}
}

func (h *UpdateTagsHandler) Execute(ctx context.Context, _ *slog.Logger, actionCtx Context) error {
	lead, err := h.leads.GetByID(ctx, actionCtx.Lead.ID)
	if err != nil {
		return fmt.Errorf("failed to load lead %s: %w", actionCtx.Lead.ID, err)
	}

	merged := mergeTags(lead.Tags, configTags(actionCtx.Config))

	if err := h.leads.UpdateTags(ctx, lead.ID, merged); err != nil {
		return fmt.Errorf("failed to update tags of lead %s: %w", lead.ID, err)
	}

	return nil
}

func configTags(config map[string]any) []string {
	raw, ok := config["tags"].([]any)
	if !ok {
		return nil
	}

	tags := make([]string, 0, len(raw))

	for _, item := range raw {
		if tag, ok := item.(string); ok {
			tags = append(tags, tag)
		}
	}

	return tags
}

func mergeTags(existing, incoming []string) []string {
	seen := make(map[string]bool, len(existing)+len(incoming))
	merged := make([]string, 0, len(existing)+len(incoming))

	for _, tag := range existing {
		if !seen[tag] {
			seen[tag] = true

			merged = append(merged, tag)
		}
	}

	for _, tag := range incoming {
		if !seen[tag] {
			seen[tag] = true

			merged = append(merged, tag)
		}
	}

	return merged
}
