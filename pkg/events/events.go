// Package events defines the typed event contracts between the CRM surface,
// the trigger manager and the execution engine.
package events

import (
	"time"

	"github.com/leadmill/leadmill/pkg/models"
)

// EventType identifies a domain occurrence event-based triggers can
// subscribe to.
type EventType string

const (
	LeadCreatedEvent       EventType = "lead_created"
	LeadUpdatedEvent       EventType = "lead_updated"
	LeadStatusChangedEvent EventType = "lead_status_changed"
	LeadAssignedEvent      EventType = "lead_assigned"
	MessageReceivedEvent   EventType = "message_received"
	MessageSentEvent       EventType = "message_sent"
	TaskCompletedEvent     EventType = "task_completed"
)

// Topics for the two process-internal channels. Domain events flow from the
// API/webhook surface to the trigger manager; fire events flow from the
// trigger manager to the execution engine.
const (
	DomainTopic = "leadmill.events.domain"
	FiresTopic  = "leadmill.triggers.fired"
)

const EventTypeMetadataKey = "event_type"

// DomainEvent is the generic shape every domain occurrence is translated
// into before it reaches the trigger manager.
type DomainEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// TriggerFired is emitted by the trigger manager when a trigger matches and
// consumed by the execution engine. It is the sole coupling point between
// the two components.
type TriggerFired struct {
	ID          string             `json:"id"`
	TriggerType models.TriggerType `json:"trigger_type"`
	WorkflowID  string             `json:"workflow_id"`
	TriggerID   string             `json:"trigger_id"`
	Payload     map[string]any     `json:"payload,omitempty"`
	Timestamp   time.Time          `json:"timestamp"`
}
