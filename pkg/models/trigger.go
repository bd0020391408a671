package models

import "errors"

// TriggerType discriminates the trigger union.
type TriggerType string

const (
	TriggerTypeTime  TriggerType = "time"
	TriggerTypeEvent TriggerType = "event"
)

// Frequency is the recurrence of a time-based trigger.
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
	FrequencyCustom  Frequency = "custom"
)

var (
	ErrTriggerVariant = errors.New("trigger must have exactly one variant populated")
	ErrTriggerType    = errors.New("unknown trigger type")
)

// TimeTrigger fires on a recurring schedule. For daily/weekly/monthly the
// cron expression is derived from TimeOfDay and DaysOfWeek; for custom the
// CronExpression field is used verbatim (standard 5-field format).
type TimeTrigger struct {
	Frequency      Frequency `json:"frequency"             validate:"required,oneof=daily weekly monthly custom"`
	TimeOfDay      string    `json:"time_of_day,omitempty"` // "15:04"
	DaysOfWeek     []int     `json:"days_of_week,omitempty" validate:"omitempty,dive,min=0,max=6"`
	CronExpression string    `json:"cron_expression,omitempty"`
	Timezone       string    `json:"timezone,omitempty"`
}

// EventTrigger fires when a domain event of the given type is emitted and the
// optional filter matches the event payload. Filter entries are compared with
// strict equality against payload fields.
type EventTrigger struct {
	EventType string         `json:"event_type" validate:"required"`
	Filter    map[string]any `json:"filter,omitempty"`
}

// Trigger is a tagged union: exactly one of Time or Event is populated,
// matching Type.
type Trigger struct {
	Type  TriggerType   `json:"type" validate:"required,oneof=time event"`
	Time  *TimeTrigger  `json:"time,omitempty"`
	Event *EventTrigger `json:"event,omitempty"`
}

// Validate checks the one-variant invariant.
func (t Trigger) Validate() error {
	switch t.Type {
	case TriggerTypeTime:
		if t.Time == nil || t.Event != nil {
			return ErrTriggerVariant
		}
	case TriggerTypeEvent:
		if t.Event == nil || t.Time != nil {
			return ErrTriggerVariant
		}
	default:
		return ErrTriggerType
	}

	return nil
}
