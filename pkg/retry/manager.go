// Package retry schedules backoff re-attempts for failed action invocations.
package retry

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/leadmill/leadmill/pkg/models"
)

// Attempt is the bookkeeping record for one pending retry. Ready is closed
// when the backoff delay elapses; the owner re-attempts the action and
// reports the outcome via MarkSuccess or MarkFailure.
type Attempt struct {
	ID            string
	ExecutionID   string
	WorkflowID    string
	ActionType    models.ActionType
	TargetID      string
	AttemptNumber int // attempts already failed before this retry
	ScheduledAt   time.Time
	Policy        models.RetryPolicy
	LastError     string

	ready chan struct{}
}

// Ready is closed when the retry is due.
func (a *Attempt) Ready() <-chan struct{} {
	return a.ready
}

// Manager owns the pending-retry map. Entries are keyed by retry ID and
// independent of each other; the mutex only guards the map itself.
type Manager struct {
	mu      sync.Mutex
	pending map[string]*entry
	logger  *slog.Logger
}

type entry struct {
	attempt *Attempt
	timer   *time.Timer
}

func NewManager(logger *slog.Logger) *Manager {
	return &Manager{
		pending: make(map[string]*entry),
		logger:  logger.With("module", "retry_manager"),
	}
}

// Schedule registers a retry for a failed action. It returns nil when the
// policy allows no further attempts (MaxRetries of zero, or attemptNumber
// attempts already failed); the caller must treat nil as terminal failure.
func (m *Manager) Schedule(executionID, workflowID string, actionType models.ActionType, targetID, errMsg string, policy models.RetryPolicy, attemptNumber int) *Attempt {
	if policy.MaxRetries == 0 || attemptNumber >= policy.MaxRetries {
		return nil
	}

	delay := policy.Delay(attemptNumber)
	attempt := &Attempt{
		ID:            uuid.New().String(),
		ExecutionID:   executionID,
		WorkflowID:    workflowID,
		ActionType:    actionType,
		TargetID:      targetID,
		AttemptNumber: attemptNumber,
		ScheduledAt:   time.Now().UTC().Add(delay),
		Policy:        policy,
		LastError:     errMsg,
		ready:         make(chan struct{}),
	}

	m.mu.Lock()
	m.pending[attempt.ID] = &entry{
		attempt: attempt,
		timer:   time.AfterFunc(delay, func() { close(attempt.ready) }),
	}
	m.mu.Unlock()

	m.logger.Debug("Scheduled retry",
		"retry_id", attempt.ID,
		"execution_id", executionID,
		"action_type", actionType,
		"target_id", targetID,
		"attempt", attemptNumber+1,
		"delay", delay,
	)

	return attempt
}

// MarkSuccess settles a retry that succeeded on re-attempt.
func (m *Manager) MarkSuccess(retryID string) bool {
	return m.remove(retryID)
}

// MarkFailure settles a failed re-attempt. When attempts remain it
// reschedules under the same retry ID with a fresh ready channel and returns
// the updated attempt; otherwise the retry is exhausted and MarkFailure
// returns nil.
func (m *Manager) MarkFailure(retryID, errMsg string) *Attempt {
	m.mu.Lock()

	e, ok := m.pending[retryID]
	if !ok {
		m.mu.Unlock()

		return nil
	}

	attempt := e.attempt
	attempt.AttemptNumber++
	attempt.LastError = errMsg

	if attempt.AttemptNumber >= attempt.Policy.MaxRetries {
		delete(m.pending, retryID)
		m.mu.Unlock()

		m.logger.Debug("Retry exhausted",
			"retry_id", retryID,
			"execution_id", attempt.ExecutionID,
			"action_type", attempt.ActionType,
			"target_id", attempt.TargetID,
			"attempts", attempt.AttemptNumber,
		)

		return nil
	}

	delay := attempt.Policy.Delay(attempt.AttemptNumber)
	attempt.ScheduledAt = time.Now().UTC().Add(delay)
	attempt.ready = make(chan struct{})
	e.timer = time.AfterFunc(delay, func() { close(attempt.ready) })
	m.mu.Unlock()

	m.logger.Debug("Rescheduled retry",
		"retry_id", retryID,
		"attempt", attempt.AttemptNumber+1,
		"delay", delay,
	)

	return attempt
}

// Cancel drops a pending retry without re-attempting it.
func (m *Manager) Cancel(retryID string) bool {
	return m.remove(retryID)
}

// PendingCount returns the number of live retries.
func (m *Manager) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.pending)
}

// Stop cancels every pending retry timer.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, e := range m.pending {
		e.timer.Stop()
		delete(m.pending, id)
	}
}

func (m *Manager) remove(retryID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.pending[retryID]
	if !ok {
		return false
	}

	e.timer.Stop()
	delete(m.pending, retryID)

	return true
}
