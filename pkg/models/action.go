package models

import (
	"math"
	"time"
)

// ActionType identifies one of the supported per-target side effects.
type ActionType string

const (
	ActionSendMessage      ActionType = "send_message"
	ActionUpdateLeadStatus ActionType = "update_lead_status"
	ActionAssignLead       ActionType = "assign_lead"
	ActionCreateTask       ActionType = "create_task"
	ActionUpdateTags       ActionType = "update_tags"
	ActionWait             ActionType = "wait"
)

// Action is one step of a workflow's per-target pipeline. Config is the
// type-specific configuration map, validated against the action's JSON
// schema at definition time.
type Action struct {
	Type   ActionType     `json:"type"   validate:"required,oneof=send_message update_lead_status assign_lead create_task update_tags wait"`
	Config map[string]any `json:"config"`
	Retry  *RetryPolicy   `json:"retry,omitempty"`
}

// RetryPolicy controls re-attempts of a failed action. A nil policy or
// MaxRetries of zero means the first failure is terminal.
type RetryPolicy struct {
	MaxRetries        int     `json:"max_retries"        validate:"min=0"`
	BackoffMultiplier float64 `json:"backoff_multiplier" validate:"min=0"`
	InitialDelayMs    int64   `json:"initial_delay_ms"   validate:"min=0"`
}

// Delay returns the backoff before retry attempt number attempt (0-based):
// initialDelay * multiplier^attempt.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	multiplier := p.BackoffMultiplier
	if multiplier <= 0 {
		multiplier = 1
	}

	delay := float64(p.InitialDelayMs) * math.Pow(multiplier, float64(attempt))

	return time.Duration(delay) * time.Millisecond
}
