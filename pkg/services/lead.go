package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/leadmill/leadmill/pkg/events"
	"github.com/leadmill/leadmill/pkg/models"
	"github.com/leadmill/leadmill/pkg/persistence"
)

// Lead persists CRM mutations and announces each one on the domain-event
// channel, which is what event-based triggers react to. Emit failures are
// logged, not propagated: the stored mutation is the source of truth and a
// lost announcement must not fail the API call.
type Lead struct {
	persistence persistence.Persistence
	emitter     *events.Emitter
	validator   *validator.Validate
	logger      *slog.Logger
}

func NewLead(
	persistence persistence.Persistence,
	emitter *events.Emitter,
	validate *validator.Validate,
	logger *slog.Logger,
) *Lead {
	return &Lead{
		persistence: persistence,
		emitter:     emitter,
		validator:   validate,
		logger:      logger.With("module", "lead_service"),
	}
}

func (s *Lead) List(ctx context.Context) ([]*models.Lead, error) {
	return s.persistence.LeadRepository().Query(ctx, nil)
}

func (s *Lead) FetchByID(ctx context.Context, id string) (*models.Lead, error) {
	return s.persistence.LeadRepository().GetByID(ctx, id)
}

func (s *Lead) Create(ctx context.Context, lead *models.Lead) (*models.Lead, error) {
	if lead.ID == "" {
		lead.ID = uuid.NewString()
	}

	if lead.Status == "" {
		lead.Status = models.LeadStatusNew
	}

	now := time.Now().UTC()
	lead.CreatedAt = now
	lead.UpdatedAt = now

	if err := s.validator.Struct(lead); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDefinition, err)
	}

	if err := s.persistence.LeadRepository().Save(ctx, lead); err != nil {
		return nil, fmt.Errorf("failed to save lead: %w", err)
	}

	s.announce(ctx, func() error { return s.emitter.OnLeadCreated(ctx, lead) })

	return lead, nil
}

func (s *Lead) Update(ctx context.Context, id string, lead *models.Lead) (*models.Lead, error) {
	existing, err := s.persistence.LeadRepository().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	lead.ID = existing.ID
	lead.CreatedAt = existing.CreatedAt
	lead.UpdatedAt = time.Now().UTC()

	if err := s.validator.Struct(lead); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDefinition, err)
	}

	if err := s.persistence.LeadRepository().Save(ctx, lead); err != nil {
		return nil, fmt.Errorf("failed to save lead: %w", err)
	}

	s.announce(ctx, func() error { return s.emitter.OnLeadUpdated(ctx, lead) })

	if existing.Status != lead.Status {
		s.announce(ctx, func() error { return s.emitter.OnLeadStatusChanged(ctx, lead, existing.Status) })
	}

	return lead, nil
}

func (s *Lead) UpdateStatus(ctx context.Context, id string, status models.LeadStatus) (*models.Lead, error) {
	existing, err := s.persistence.LeadRepository().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if existing.Status == status {
		return existing, nil
	}

	if err := s.persistence.LeadRepository().UpdateStatus(ctx, id, status); err != nil {
		return nil, err
	}

	previous := existing.Status
	existing.Status = status

	s.announce(ctx, func() error { return s.emitter.OnLeadStatusChanged(ctx, existing, previous) })

	return existing, nil
}

func (s *Lead) Assign(ctx context.Context, id, assignee string) (*models.Lead, error) {
	existing, err := s.persistence.LeadRepository().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.persistence.LeadRepository().Assign(ctx, id, assignee); err != nil {
		return nil, err
	}

	existing.AssignedTo = assignee

	s.announce(ctx, func() error { return s.emitter.OnLeadAssigned(ctx, existing, assignee) })

	return existing, nil
}

// RecordInboundMessage stores a message received from a lead and announces
// it, so message_received triggers can react.
func (s *Lead) RecordInboundMessage(ctx context.Context, leadID, channel, content string) (*models.Message, error) {
	if _, err := s.persistence.LeadRepository().GetByID(ctx, leadID); err != nil {
		return nil, err
	}

	message := &models.Message{
		ID:        uuid.NewString(),
		LeadID:    leadID,
		Channel:   channel,
		Direction: models.MessageInbound,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.persistence.MessageRepository().Create(ctx, message); err != nil {
		return nil, fmt.Errorf("failed to record message: %w", err)
	}

	s.announce(ctx, func() error { return s.emitter.OnMessageReceived(ctx, message) })

	return message, nil
}

// CompleteTask marks a follow-up task done and announces it, so
// task_completed triggers can react. Completing an already done task is a
// no-op.
func (s *Lead) CompleteTask(ctx context.Context, taskID string) (*models.Task, error) {
	task, err := s.persistence.TaskRepository().GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}

	if task.Status == models.TaskStatusDone {
		return task, nil
	}

	if err := s.persistence.TaskRepository().UpdateStatus(ctx, taskID, models.TaskStatusDone); err != nil {
		return nil, err
	}

	task.Status = models.TaskStatusDone

	s.announce(ctx, func() error { return s.emitter.OnTaskCompleted(ctx, task) })

	return task, nil
}

func (s *Lead) announce(ctx context.Context, emit func() error) {
	if err := emit(); err != nil {
		s.logger.ErrorContext(ctx, "Failed to emit domain event", "error", err)
	}
}
