package file

import (
	"context"

	"github.com/leadmill/leadmill/pkg/models"
	"github.com/leadmill/leadmill/pkg/persistence"
)

type TaskRepository struct {
	dir collection
}

func (r *TaskRepository) Create(ctx context.Context, task *models.Task) error {
	return r.dir.write(task.ID, task)
}

func (r *TaskRepository) GetByID(ctx context.Context, id string) (*models.Task, error) {
	task := &models.Task{}

	found, err := r.dir.read(id, task)
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, persistence.ErrTaskNotFound
	}

	return task, nil
}

func (r *TaskRepository) UpdateStatus(ctx context.Context, id string, status models.TaskStatus) error {
	task, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}

	task.Status = status

	return r.dir.write(task.ID, task)
}

type MessageRepository struct {
	dir collection
}

func (r *MessageRepository) Create(ctx context.Context, message *models.Message) error {
	return r.dir.write(message.ID, message)
}
