package file

import (
	"context"
	"time"

	"github.com/leadmill/leadmill/pkg/models"
	"github.com/leadmill/leadmill/pkg/persistence"
)

type WorkflowRepository struct {
	dir collection
}

func (r *WorkflowRepository) GetAll(ctx context.Context) ([]*models.Workflow, error) {
	ids, err := r.dir.ids()
	if err != nil {
		return nil, err
	}

	workflows := make([]*models.Workflow, 0, len(ids))

	for _, id := range ids {
		workflow := &models.Workflow{}

		found, err := r.dir.read(id, workflow)
		if err != nil {
			return nil, err
		}

		if found {
			workflows = append(workflows, workflow)
		}
	}

	return workflows, nil
}

func (r *WorkflowRepository) GetActive(ctx context.Context) ([]*models.Workflow, error) {
	all, err := r.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	active := make([]*models.Workflow, 0, len(all))

	for _, workflow := range all {
		if workflow.Active {
			active = append(active, workflow)
		}
	}

	return active, nil
}

func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	workflow := &models.Workflow{}

	found, err := r.dir.read(id, workflow)
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, persistence.ErrWorkflowNotFound
	}

	return workflow, nil
}

func (r *WorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	return r.dir.write(workflow.ID, workflow)
}

func (r *WorkflowRepository) Delete(ctx context.Context, id string) error {
	found, err := r.dir.remove(id)
	if err != nil {
		return err
	}

	if !found {
		return persistence.ErrWorkflowNotFound
	}

	return nil
}

func (r *WorkflowRepository) UpdateRunStats(ctx context.Context, id string, stats models.RunStats) error {
	workflow, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}

	workflow.Stats = stats
	workflow.UpdatedAt = time.Now().UTC()

	return r.Save(ctx, workflow)
}

func (r *WorkflowRepository) UpdateNextRun(ctx context.Context, id string, next *time.Time) error {
	workflow, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}

	workflow.Stats.NextRun = next

	return r.Save(ctx, workflow)
}
