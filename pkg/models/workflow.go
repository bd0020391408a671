package models

import "time"

// Workflow is a stored automation definition: one trigger, an ordered
// targeting filter, and an ordered action pipeline. The trigger, conditions
// and actions are typed in memory and serialized to JSON only at the storage
// boundary.
type Workflow struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"   validate:"required,min=3"`
	Active     bool        `json:"active"`
	Trigger    Trigger     `json:"trigger"`
	Conditions []Condition `json:"conditions,omitempty" validate:"dive"`
	Actions    []Action    `json:"actions"              validate:"required,min=1,dive"`
	Stats      RunStats    `json:"stats"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// RunStats are the aggregate counters persisted back to the workflow record
// after each execution. They are the only durable execution history.
type RunStats struct {
	TotalRuns      int64      `json:"total_runs"`
	SuccessfulRuns int64      `json:"successful_runs"`
	LastRun        *time.Time `json:"last_run,omitempty"`
	NextRun        *time.Time `json:"next_run,omitempty"`
}
