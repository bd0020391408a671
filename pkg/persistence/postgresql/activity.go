package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/leadmill/leadmill/pkg/models"
	"github.com/leadmill/leadmill/pkg/persistence"
)

type TaskRepository struct {
	db *sql.DB
}

func (r *TaskRepository) Create(ctx context.Context, task *models.Task) error {
	query := `
		INSERT INTO tasks (id, lead_id, title, description, assigned_to, due_at, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.ExecContext(ctx, query,
		task.ID,
		task.LeadID,
		task.Title,
		task.Description,
		task.AssignedTo,
		task.DueAt,
		task.Status,
		task.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create task %s: %w", task.ID, err)
	}

	return nil
}

func (r *TaskRepository) GetByID(ctx context.Context, id string) (*models.Task, error) {
	query := `
		SELECT id, lead_id, title, description, assigned_to, due_at, status, created_at
		FROM tasks WHERE id = $1
	`

	task := &models.Task{}

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&task.ID,
		&task.LeadID,
		&task.Title,
		&task.Description,
		&task.AssignedTo,
		&task.DueAt,
		&task.Status,
		&task.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.ErrTaskNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get task %s: %w", id, err)
	}

	return task, nil
}

func (r *TaskRepository) UpdateStatus(ctx context.Context, id string, status models.TaskStatus) error {
	result, err := r.db.ExecContext(ctx, `UPDATE tasks SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("failed to update task %s status: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check task %s update: %w", id, err)
	}

	if affected == 0 {
		return persistence.ErrTaskNotFound
	}

	return nil
}

type MessageRepository struct {
	db *sql.DB
}

func (r *MessageRepository) Create(ctx context.Context, message *models.Message) error {
	query := `
		INSERT INTO messages (id, lead_id, channel, direction, content, provider_message_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.ExecContext(ctx, query,
		message.ID,
		message.LeadID,
		message.Channel,
		message.Direction,
		message.Content,
		message.ProviderMessageID,
		message.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create message %s: %w", message.ID, err)
	}

	return nil
}
