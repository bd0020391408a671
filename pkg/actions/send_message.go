package actions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/leadmill/leadmill/pkg/messaging"
	"github.com/leadmill/leadmill/pkg/models"
	"github.com/leadmill/leadmill/pkg/persistence"
	"github.com/leadmill/leadmill/pkg/template"
)

var ErrMissingChannel = errors.New("no channel configured and lead has no preferred channel")

// SendMessageHandler renders the configured message template against the
// target lead and delivers it through the messaging provider. A message row
// is recorded only after the provider accepts the send.
type SendMessageHandler struct {
	sender   messaging.Sender
	messages persistence.MessageRepository
	events   Announcer
}

func (h *SendMessageHandler) Type() models.ActionType {
	return models.ActionSendMessage
}

func (h *SendMessageHandler) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"content": map[string]any{"type": "string", "minLength": 1},
			"channel": map[string]any{"type": "string"},
		},
		"required": []string{"content"},
	}
}

func (h *SendMessageHandler) Execute(ctx context.Context, logger *slog.Logger, actionCtx Context) error {
	lead := actionCtx.Lead

	channel := configString(actionCtx.Config, "channel")
	if channel == "" {
		channel = lead.Channel
	}

	if channel == "" {
		return ErrMissingChannel
	}

	content := template.RenderMessage(configString(actionCtx.Config, "content"), lead.Record())

	result, err := h.sender.Send(ctx, messaging.OutboundMessage{
		Channel:        channel,
		Phone:          lead.Phone,
		Content:        content,
		IdempotencyKey: actionCtx.IdempotencyKey,
	})
	if err != nil {
		return fmt.Errorf("failed to send message to lead %s: %w", lead.ID, err)
	}

	if !result.Success {
		return fmt.Errorf("provider rejected send to lead %s: %s", lead.ID, result.Error)
	}

	message := &models.Message{
		ID:                uuid.NewString(),
		LeadID:            lead.ID,
		Channel:           channel,
		Direction:         models.MessageOutbound,
		Content:           content,
		ProviderMessageID: result.ProviderMessageID,
		CreatedAt:         time.Now().UTC(),
	}

	if err := h.messages.Create(ctx, message); err != nil {
		logger.Warn("message delivered but not recorded",
			"lead_id", lead.ID, "provider_message_id", result.ProviderMessageID, "error", err)
	}

	if h.events != nil {
		if err := h.events.OnMessageSent(ctx, message); err != nil {
			logger.Warn("failed to announce sent message", "lead_id", lead.ID, "error", err)
		}
	}

	return nil
}
