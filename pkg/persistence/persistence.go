// Package persistence provides the data storage abstraction the automation
// engine runs against: the workflow catalog, the lead collection targets are
// resolved from, and the task/message rows actions create.
package persistence

import (
	"context"
	"time"

	"github.com/leadmill/leadmill/pkg/models"
)

type Persistence interface {
	WorkflowRepository() WorkflowRepository
	LeadRepository() LeadRepository
	TaskRepository() TaskRepository
	MessageRepository() MessageRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// WorkflowRepository stores automation definitions and their aggregate run
// stats.
type WorkflowRepository interface {
	GetAll(ctx context.Context) ([]*models.Workflow, error)
	GetActive(ctx context.Context) ([]*models.Workflow, error)
	GetByID(ctx context.Context, id string) (*models.Workflow, error)
	Save(ctx context.Context, workflow *models.Workflow) error
	Delete(ctx context.Context, id string) error
	UpdateRunStats(ctx context.Context, id string, stats models.RunStats) error
	UpdateNextRun(ctx context.Context, id string, next *time.Time) error
}

// LeadRepository is the queryable target collection. Query applies a
// workflow's condition chain and returns the matching leads.
type LeadRepository interface {
	Query(ctx context.Context, conds []models.Condition) ([]*models.Lead, error)
	GetByID(ctx context.Context, id string) (*models.Lead, error)
	Save(ctx context.Context, lead *models.Lead) error
	UpdateStatus(ctx context.Context, id string, status models.LeadStatus) error
	Assign(ctx context.Context, id, assignee string) error
	UpdateTags(ctx context.Context, id string, tags []string) error
}

type TaskRepository interface {
	Create(ctx context.Context, task *models.Task) error
	GetByID(ctx context.Context, id string) (*models.Task, error)
	UpdateStatus(ctx context.Context, id string, status models.TaskStatus) error
}

type MessageRepository interface {
	Create(ctx context.Context, message *models.Message) error
}
