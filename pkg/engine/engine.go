// Package engine orchestrates workflow runs: it resolves the target set,
// drives each target's action pipeline with bounded concurrency, hands failed
// actions to the retry manager and persists aggregate run stats back to the
// workflow record.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/leadmill/leadmill/pkg/actions"
	"github.com/leadmill/leadmill/pkg/events"
	"github.com/leadmill/leadmill/pkg/models"
	"github.com/leadmill/leadmill/pkg/otelhelper"
	"github.com/leadmill/leadmill/pkg/persistence"
	"github.com/leadmill/leadmill/pkg/retry"
	"github.com/leadmill/leadmill/pkg/template"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

var (
	ErrWorkflowInactive  = errors.New("workflow is not active")
	ErrExecutionNotFound = errors.New("execution not found")
)

const (
	defaultTargetConcurrency = 5
	defaultActionTimeout     = 30 * time.Second
)

// Config tunes the engine's concurrency and safety limits.
type Config struct {
	// TargetConcurrency bounds how many targets of one run progress at once.
	TargetConcurrency int
	// ActionTimeout bounds each individual action invocation except wait,
	// which owns its duration.
	ActionTimeout time.Duration
}

// Engine runs workflows. Executions live in memory for the lifetime of the
// process; only the aggregate counters survive via the workflow's run stats.
type Engine struct {
	logger    *slog.Logger
	tracer    trace.Tracer
	workflows persistence.WorkflowRepository
	leads     persistence.LeadRepository
	registry  *actions.Registry
	retries   *retry.Manager
	config    Config

	mu   sync.RWMutex
	runs map[string]*run
	wg   sync.WaitGroup
}

type run struct {
	mu        sync.Mutex
	execution *models.Execution
	cancel    context.CancelFunc
}

func NewEngine(
	logger *slog.Logger,
	tracer trace.Tracer,
	workflows persistence.WorkflowRepository,
	leads persistence.LeadRepository,
	registry *actions.Registry,
	retries *retry.Manager,
	config Config,
) *Engine {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("engine")
	}

	if config.TargetConcurrency <= 0 {
		config.TargetConcurrency = defaultTargetConcurrency
	}

	if config.ActionTimeout <= 0 {
		config.ActionTimeout = defaultActionTimeout
	}

	return &Engine{
		logger:    logger.With("module", "engine"),
		tracer:    tracer,
		workflows: workflows,
		leads:     leads,
		registry:  registry,
		retries:   retries,
		config:    config,
		runs:      make(map[string]*run),
	}
}

// Execute starts a run of the given workflow and returns the execution ID
// immediately; the run itself progresses in the background. The payload is
// the trigger payload event-based runs interpolate condition values from.
func (e *Engine) Execute(ctx context.Context, workflowID string, payload map[string]any) (string, error) {
	workflow, err := e.workflows.GetByID(ctx, workflowID)
	if err != nil {
		return "", err
	}

	if !workflow.Active {
		return "", fmt.Errorf("%w: %s", ErrWorkflowInactive, workflowID)
	}

	execution := &models.Execution{
		ID:         uuid.NewString(),
		WorkflowID: workflowID,
		Status:     models.ExecutionPending,
		StartedAt:  time.Now().UTC(),
		Logs:       []models.ExecutionLogEntry{},
		Errors:     []models.ExecutionError{},
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r := &run{execution: execution, cancel: cancel}

	e.mu.Lock()
	e.runs[execution.ID] = r
	e.mu.Unlock()

	e.wg.Add(1)

	go func() {
		defer e.wg.Done()
		defer cancel()
		// A panic in the orchestration path must not take down other runs
		// or the process; the execution settles FAILED instead.
		defer func() {
			if rec := recover(); rec != nil {
				e.logger.Error("Run panicked",
					"execution_id", execution.ID, "workflow_id", workflowID, "panic", rec)
				r.recordError(models.ExecutionError{
					Step:      "run",
					Error:     fmt.Sprintf("panic: %v", rec),
					Timestamp: time.Now().UTC(),
				})
				e.finalize(runCtx, r, workflow, models.ExecutionFailed)
			}
		}()
		e.run(runCtx, r, workflow, payload)
	}()

	e.logger.Info("Execution started",
		"execution_id", execution.ID, "workflow_id", workflowID, "workflow_name", workflow.Name)

	return execution.ID, nil
}

// Cancel requests cooperative cancellation of a running execution. In-flight
// action calls finish; no new pipelines start and in-flight targets stop at
// their next between-actions checkpoint.
func (e *Engine) Cancel(executionID string) error {
	e.mu.RLock()
	r, ok := e.runs[executionID]
	e.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrExecutionNotFound, executionID)
	}

	r.cancel()

	return nil
}

// Status returns a snapshot of an execution.
func (e *Engine) Status(executionID string) (*models.Execution, error) {
	e.mu.RLock()
	r, ok := e.runs[executionID]
	e.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrExecutionNotFound, executionID)
	}

	return r.snapshot(), nil
}

// ListRunning returns snapshots of every non-terminal execution.
func (e *Engine) ListRunning() []*models.Execution {
	e.mu.RLock()
	defer e.mu.RUnlock()

	running := make([]*models.Execution, 0)

	for _, r := range e.runs {
		snapshot := r.snapshot()
		if !snapshot.Status.Terminal() {
			running = append(running, snapshot)
		}
	}

	return running
}

// HandleTriggerFired starts a run for a fire notification. Inactive or
// deleted workflows are logged and dropped; a fire is never retried against
// a workflow that cannot run.
func (e *Engine) HandleTriggerFired(ctx context.Context, fired *events.TriggerFired) error {
	executionID, err := e.Execute(ctx, fired.WorkflowID, fired.Payload)
	if errors.Is(err, ErrWorkflowInactive) || persistence.IsWorkflowNotFound(err) {
		e.logger.Warn("Dropping trigger fire for unrunnable workflow",
			"workflow_id", fired.WorkflowID, "trigger_id", fired.TriggerID, "error", err)

		return nil
	}

	if err != nil {
		return err
	}

	e.logger.Debug("Trigger fire accepted",
		"workflow_id", fired.WorkflowID, "trigger_id", fired.TriggerID, "execution_id", executionID)

	return nil
}

// Shutdown waits for in-flight runs to finish after cancelling them.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.RLock()
	for _, r := range e.runs {
		r.cancel()
	}
	e.mu.RUnlock()

	done := make(chan struct{})

	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (e *Engine) run(ctx context.Context, r *run, workflow *models.Workflow, payload map[string]any) {
	execution := r.execution

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.run",
		attribute.String(otelhelper.WorkflowIDKey, workflow.ID),
		attribute.String(otelhelper.ExecutionIDKey, execution.ID),
	)
	defer span.End()

	r.setStatus(models.ExecutionRunning)
	r.log("info", "run started", map[string]any{"workflow_id": workflow.ID})

	targets, err := e.resolveTargets(ctx, workflow, payload)
	if err != nil {
		otelhelper.SetError(span, err)
		r.recordError(models.ExecutionError{
			Step:      "resolve_targets",
			Error:     err.Error(),
			Timestamp: time.Now().UTC(),
		})
		r.log("error", "target resolution failed", map[string]any{"error": err.Error()})
		e.finalize(ctx, r, workflow, models.ExecutionFailed)

		return
	}

	r.setTargetCount(len(targets))
	r.log("info", "targets resolved", map[string]any{"count": len(targets)})

	if len(targets) == 0 {
		e.finalize(ctx, r, workflow, models.ExecutionCompleted)

		return
	}

	semaphore := make(chan struct{}, e.config.TargetConcurrency)

	var wg sync.WaitGroup

	for _, target := range targets {
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)

		go func(lead *models.Lead) {
			defer wg.Done()

			select {
			case semaphore <- struct{}{}:
				defer func() { <-semaphore }()
			case <-ctx.Done():
				return
			}

			if ctx.Err() != nil {
				return
			}

			e.runTarget(ctx, r, workflow, lead)
		}(target)
	}

	wg.Wait()

	status := models.ExecutionCompleted
	if ctx.Err() != nil {
		status = models.ExecutionCancelled
	}

	e.finalize(ctx, r, workflow, status)
}

// resolveTargets interpolates "${field}" condition values from the trigger
// payload and queries the lead collection.
func (e *Engine) resolveTargets(ctx context.Context, workflow *models.Workflow, payload map[string]any) ([]*models.Lead, error) {
	resolved := make([]models.Condition, len(workflow.Conditions))

	for i, condition := range workflow.Conditions {
		condition.Value = template.ResolveValue(condition.Value, payload)
		resolved[i] = condition
	}

	targets, err := e.leads.Query(ctx, resolved)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve targets: %w", err)
	}

	return targets, nil
}

// runTarget executes the action pipeline for one lead, strictly in list
// order. A failure that exhausts its retries aborts the remaining actions
// for this target only.
func (e *Engine) runTarget(ctx context.Context, r *run, workflow *models.Workflow, lead *models.Lead) {
	execution := r.execution

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.target",
		attribute.String(otelhelper.ExecutionIDKey, execution.ID),
		attribute.String(otelhelper.TargetIDKey, lead.ID),
	)
	defer span.End()

	// A panicking handler fails this target only; sibling pipelines and the
	// run itself keep going.
	defer func() {
		if rec := recover(); rec != nil {
			r.recordError(models.ExecutionError{
				Step:      "target",
				TargetID:  lead.ID,
				Error:     fmt.Sprintf("panic: %v", rec),
				Timestamp: time.Now().UTC(),
			})
			r.addFailure()
			r.log("error", "target panicked", map[string]any{
				"target_id": lead.ID,
				"panic":     fmt.Sprint(rec),
			})
		}
	}()

	for index, action := range workflow.Actions {
		if ctx.Err() != nil {
			// Cancelled between actions. The target settled neither way, so
			// neither counter moves.
			return
		}

		retryCount, err := e.runAction(ctx, r, workflow, lead, index, action)
		if err != nil {
			if ctx.Err() != nil {
				return
			}

			otelhelper.SetError(span, err, attribute.String(otelhelper.ActionTypeKey, string(action.Type)))
			r.recordError(models.ExecutionError{
				Step:       fmt.Sprintf("actions[%d] %s", index, action.Type),
				TargetID:   lead.ID,
				Error:      err.Error(),
				Timestamp:  time.Now().UTC(),
				RetryCount: retryCount,
			})
			r.addFailure()
			r.log("warn", "target failed", map[string]any{
				"target_id": lead.ID,
				"action":    string(action.Type),
				"error":     err.Error(),
			})

			return
		}
	}

	r.addSuccess()
}

// runAction invokes one action, driving the retry manager on failure. It
// returns the number of retries performed alongside the terminal outcome.
func (e *Engine) runAction(ctx context.Context, r *run, workflow *models.Workflow, lead *models.Lead, index int, action models.Action) (int, error) {
	handler, err := e.registry.Handler(action.Type)
	if err != nil {
		return 0, err
	}

	actionCtx := actions.Context{
		ExecutionID: r.execution.ID,
		WorkflowID:  workflow.ID,
		Lead:        lead,
		Config:      action.Config,
		// Stable across retries of the same invocation so the provider can
		// deduplicate a send whose success response was lost.
		IdempotencyKey: fmt.Sprintf("%s:%d:%s", r.execution.ID, index, lead.ID),
	}

	err = e.invoke(ctx, handler, actionCtx)
	if err == nil {
		return 0, nil
	}

	policy := models.RetryPolicy{}
	if action.Retry != nil {
		policy = *action.Retry
	}

	attempt := e.retries.Schedule(r.execution.ID, workflow.ID, action.Type, lead.ID, err.Error(), policy, 0)
	if attempt == nil {
		return 0, err
	}

	for {
		select {
		case <-ctx.Done():
			e.retries.Cancel(attempt.ID)

			return attempt.AttemptNumber, ctx.Err()
		case <-attempt.Ready():
		}

		err = e.invoke(ctx, handler, actionCtx)
		if err == nil {
			e.retries.MarkSuccess(attempt.ID)

			return attempt.AttemptNumber + 1, nil
		}

		next := e.retries.MarkFailure(attempt.ID, err.Error())
		if next == nil {
			// MarkFailure already counted this failed re-attempt.
			return attempt.AttemptNumber, err
		}

		attempt = next
	}
}

// invoke runs a single handler call under the per-action timeout. The wait
// action owns its duration and is exempt.
func (e *Engine) invoke(ctx context.Context, handler actions.Handler, actionCtx actions.Context) error {
	if handler.Type() != models.ActionWait {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, e.config.ActionTimeout)
		defer cancel()
	}

	return handler.Execute(ctx, e.logger, actionCtx)
}

// finalize stamps the terminal status and persists run stats. A run counts
// as successful only when it completed with zero target failures.
func (e *Engine) finalize(ctx context.Context, r *run, workflow *models.Workflow, status models.ExecutionStatus) {
	execution := r.settle(status)

	e.logger.Info("Execution finished",
		"execution_id", execution.ID,
		"workflow_id", execution.WorkflowID,
		"status", execution.Status,
		"targets", execution.TargetCount,
		"succeeded", execution.SuccessCount,
		"failed", execution.FailureCount,
	)

	// Re-read so a concurrently stamped next-run timestamp is not lost.
	current, err := e.workflows.GetByID(ctx, workflow.ID)
	if err != nil {
		e.logger.Error("Failed to reload workflow for run stats",
			"workflow_id", workflow.ID, "error", err)

		return
	}

	stats := current.Stats
	stats.TotalRuns++

	if status == models.ExecutionCompleted && execution.FailureCount == 0 {
		stats.SuccessfulRuns++
	}

	now := time.Now().UTC()
	stats.LastRun = &now

	if err := e.workflows.UpdateRunStats(ctx, workflow.ID, stats); err != nil {
		e.logger.Error("Failed to persist run stats",
			"workflow_id", workflow.ID, "execution_id", execution.ID, "error", err)
	}
}

func (r *run) setStatus(status models.ExecutionStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.execution.Status = status
}

func (r *run) setTargetCount(count int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.execution.TargetCount = count
}

func (r *run) addSuccess() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.execution.SuccessCount++
}

func (r *run) addFailure() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.execution.FailureCount++
}

func (r *run) recordError(entry models.ExecutionError) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.execution.Errors = append(r.execution.Errors, entry)
}

func (r *run) log(level, message string, metadata map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.execution.Logs = append(r.execution.Logs, models.ExecutionLogEntry{
		Level:     level,
		Message:   message,
		Timestamp: time.Now().UTC(),
		Metadata:  metadata,
	})
}

func (r *run) settle(status models.ExecutionStatus) *models.Execution {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	r.execution.Status = status
	r.execution.CompletedAt = &now

	return r.copyLocked()
}

func (r *run) snapshot() *models.Execution {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.copyLocked()
}

func (r *run) copyLocked() *models.Execution {
	snapshot := *r.execution
	snapshot.Logs = append([]models.ExecutionLogEntry(nil), r.execution.Logs...)
	snapshot.Errors = append([]models.ExecutionError(nil), r.execution.Errors...)

	return &snapshot
}
