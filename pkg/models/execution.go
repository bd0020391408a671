package models

import "time"

// ExecutionStatus is the one-way state machine of a run:
// PENDING -> RUNNING -> {COMPLETED | FAILED | CANCELLED}.
type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "PENDING"
	ExecutionRunning   ExecutionStatus = "RUNNING"
	ExecutionCompleted ExecutionStatus = "COMPLETED"
	ExecutionFailed    ExecutionStatus = "FAILED"
	ExecutionCancelled ExecutionStatus = "CANCELLED"
)

// Terminal reports whether the status is final.
func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionCompleted || s == ExecutionFailed || s == ExecutionCancelled
}

// ExecutionLogEntry is one structured log line of a run.
type ExecutionLogEntry struct {
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// ExecutionError records one failure during a run, either target-scoped
// (TargetID set) or execution-scoped.
type ExecutionError struct {
	Step       string    `json:"step"`
	TargetID   string    `json:"target_id,omitempty"`
	Error      string    `json:"error"`
	Timestamp  time.Time `json:"timestamp"`
	RetryCount int       `json:"retry_count"`
}

// Execution is one run of a workflow against its resolved target set. It is
// held in memory by the engine for the lifetime of the process; only the
// aggregate counters survive via the workflow's RunStats.
type Execution struct {
	ID           string              `json:"id"`
	WorkflowID   string              `json:"workflow_id"`
	Status       ExecutionStatus     `json:"status"`
	StartedAt    time.Time           `json:"started_at"`
	CompletedAt  *time.Time          `json:"completed_at,omitempty"`
	TargetCount  int                 `json:"target_count"`
	SuccessCount int                 `json:"success_count"`
	FailureCount int                 `json:"failure_count"`
	Logs         []ExecutionLogEntry `json:"logs"`
	Errors       []ExecutionError    `json:"errors"`
}
