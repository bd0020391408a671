package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/leadmill/leadmill/pkg/models"
)

// DomainPublisher publishes domain events on the ingestion channel.
type DomainPublisher interface {
	PublishDomainEvent(ctx context.Context, event *DomainEvent) error
}

// Emitter is the typed façade domain code uses to announce occurrences. It
// translates each occurrence into the generic DomainEvent shape and
// publishes it for the trigger manager.
type Emitter struct {
	publisher DomainPublisher
	logger    *slog.Logger
}

func NewEmitter(publisher DomainPublisher, logger *slog.Logger) *Emitter {
	return &Emitter{
		publisher: publisher,
		logger:    logger.With("module", "event_emitter"),
	}
}

func (e *Emitter) OnLeadCreated(ctx context.Context, lead *models.Lead) error {
	return e.emit(ctx, LeadCreatedEvent, leadPayload(lead))
}

func (e *Emitter) OnLeadUpdated(ctx context.Context, lead *models.Lead) error {
	return e.emit(ctx, LeadUpdatedEvent, leadPayload(lead))
}

func (e *Emitter) OnLeadStatusChanged(ctx context.Context, lead *models.Lead, previous models.LeadStatus) error {
	payload := leadPayload(lead)
	payload["previousStatus"] = string(previous)

	return e.emit(ctx, LeadStatusChangedEvent, payload)
}

func (e *Emitter) OnLeadAssigned(ctx context.Context, lead *models.Lead, assignee string) error {
	payload := leadPayload(lead)
	payload["assignedTo"] = assignee

	return e.emit(ctx, LeadAssignedEvent, payload)
}

func (e *Emitter) OnMessageReceived(ctx context.Context, message *models.Message) error {
	return e.emit(ctx, MessageReceivedEvent, messagePayload(message))
}

func (e *Emitter) OnMessageSent(ctx context.Context, message *models.Message) error {
	return e.emit(ctx, MessageSentEvent, messagePayload(message))
}

func (e *Emitter) OnTaskCompleted(ctx context.Context, task *models.Task) error {
	return e.emit(ctx, TaskCompletedEvent, map[string]any{
		"taskId": task.ID,
		"leadId": task.LeadID,
		"title":  task.Title,
	})
}

func (e *Emitter) emit(ctx context.Context, eventType EventType, payload map[string]any) error {
	event := &DomainEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}

	e.logger.DebugContext(ctx, "Emitting domain event", "event_type", eventType, "event_id", event.ID)

	return e.publisher.PublishDomainEvent(ctx, event)
}

func leadPayload(lead *models.Lead) map[string]any {
	payload := lead.Record()
	payload["leadId"] = lead.ID

	return payload
}

func messagePayload(message *models.Message) map[string]any {
	return map[string]any{
		"messageId": message.ID,
		"leadId":    message.LeadID,
		"channel":   message.Channel,
		"direction": string(message.Direction),
		"content":   message.Content,
	}
}
