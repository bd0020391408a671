package models

import "time"

// TaskStatus is the lifecycle of a follow-up task.
type TaskStatus string

const (
	TaskStatusOpen TaskStatus = "OPEN"
	TaskStatusDone TaskStatus = "DONE"
)

// Task is a follow-up item created by the create_task action.
type Task struct {
	ID          string     `json:"id"`
	LeadID      string     `json:"lead_id"`
	Title       string     `json:"title" validate:"required"`
	Description string     `json:"description,omitempty"`
	AssignedTo  string     `json:"assigned_to,omitempty"`
	DueAt       *time.Time `json:"due_at,omitempty"`
	Status      TaskStatus `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
}

// MessageDirection distinguishes inbound from outbound messages.
type MessageDirection string

const (
	MessageInbound  MessageDirection = "inbound"
	MessageOutbound MessageDirection = "outbound"
)

// Message is a record of one message exchanged with a lead. Outbound rows are
// written by the send_message action after the provider accepts the send.
type Message struct {
	ID                string           `json:"id"`
	LeadID            string           `json:"lead_id"`
	Channel           string           `json:"channel"`
	Direction         MessageDirection `json:"direction"`
	Content           string           `json:"content"`
	ProviderMessageID string           `json:"provider_message_id,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
}
