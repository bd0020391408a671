package file

import (
	"context"
	"time"

	"github.com/leadmill/leadmill/pkg/conditions"
	"github.com/leadmill/leadmill/pkg/models"
	"github.com/leadmill/leadmill/pkg/persistence"
)

type LeadRepository struct {
	dir collection
}

// Query loads the collection and filters it through the condition chain.
func (r *LeadRepository) Query(ctx context.Context, conds []models.Condition) ([]*models.Lead, error) {
	ids, err := r.dir.ids()
	if err != nil {
		return nil, err
	}

	leads := make([]*models.Lead, 0, len(ids))

	for _, id := range ids {
		lead := &models.Lead{}

		found, err := r.dir.read(id, lead)
		if err != nil {
			return nil, err
		}

		if found && conditions.Matches(lead.Record(), conds) {
			leads = append(leads, lead)
		}
	}

	return leads, nil
}

func (r *LeadRepository) GetByID(ctx context.Context, id string) (*models.Lead, error) {
	lead := &models.Lead{}

	found, err := r.dir.read(id, lead)
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, persistence.ErrLeadNotFound
	}

	return lead, nil
}

func (r *LeadRepository) Save(ctx context.Context, lead *models.Lead) error {
	return r.dir.write(lead.ID, lead)
}

func (r *LeadRepository) UpdateStatus(ctx context.Context, id string, status models.LeadStatus) error {
	return r.mutate(ctx, id, func(lead *models.Lead) {
		lead.Status = status
	})
}

func (r *LeadRepository) Assign(ctx context.Context, id, assignee string) error {
	return r.mutate(ctx, id, func(lead *models.Lead) {
		lead.AssignedTo = assignee
	})
}

func (r *LeadRepository) UpdateTags(ctx context.Context, id string, tags []string) error {
	return r.mutate(ctx, id, func(lead *models.Lead) {
		lead.Tags = tags
	})
}

func (r *LeadRepository) mutate(ctx context.Context, id string, apply func(*models.Lead)) error {
	lead, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}

	apply(lead)
	lead.UpdatedAt = time.Now().UTC()

	return r.Save(ctx, lead)
}
