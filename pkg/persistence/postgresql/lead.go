package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/leadmill/leadmill/pkg/conditions"
	"github.com/leadmill/leadmill/pkg/models"
	"github.com/leadmill/leadmill/pkg/persistence"
)

type LeadRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

const leadColumns = `
	id
  , name
  , phone
  , email
  , channel
  , status
  , assigned_to
  , tags
  , source
  , loan_type
  , loan_amount
  , fields
  , created_at
  , updated_at
`

// Query loads the lead collection and applies the condition chain in memory.
// Condition semantics live in one place; predicate pushdown is not worth a
// second evaluator at this scale.
func (r *LeadRepository) Query(ctx context.Context, conds []models.Condition) ([]*models.Lead, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+leadColumns+` FROM leads ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to query leads: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.Error("failed to close rows", "error", err)
		}
	}()

	leads := make([]*models.Lead, 0)

	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan lead: %w", err)
		}

		if conditions.Matches(lead.Record(), conds) {
			leads = append(leads, lead)
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating leads: %w", err)
	}

	return leads, nil
}

func (r *LeadRepository) GetByID(ctx context.Context, id string) (*models.Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE id = $1`

	lead, err := scanLead(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.ErrLeadNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get lead %s: %w", id, err)
	}

	return lead, nil
}

func (r *LeadRepository) Save(ctx context.Context, lead *models.Lead) error {
	tagsJSON, err := json.Marshal(lead.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}

	fieldsJSON, err := json.Marshal(lead.Fields)
	if err != nil {
		return fmt.Errorf("failed to marshal fields: %w", err)
	}

	query := `
		INSERT INTO leads (id, name, phone, email, channel, status, assigned_to,
			tags, source, loan_type, loan_amount, fields, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			phone = EXCLUDED.phone,
			email = EXCLUDED.email,
			channel = EXCLUDED.channel,
			status = EXCLUDED.status,
			assigned_to = EXCLUDED.assigned_to,
			tags = EXCLUDED.tags,
			source = EXCLUDED.source,
			loan_type = EXCLUDED.loan_type,
			loan_amount = EXCLUDED.loan_amount,
			fields = EXCLUDED.fields,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		lead.ID,
		lead.Name,
		lead.Phone,
		lead.Email,
		lead.Channel,
		lead.Status,
		lead.AssignedTo,
		tagsJSON,
		lead.Source,
		lead.LoanType,
		lead.LoanAmount,
		fieldsJSON,
		lead.CreatedAt,
		lead.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save lead %s: %w", lead.ID, err)
	}

	return nil
}

func (r *LeadRepository) UpdateStatus(ctx context.Context, id string, status models.LeadStatus) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE leads SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("failed to update status for lead %s: %w", id, err)
	}

	return checkLeadFound(result)
}

func (r *LeadRepository) Assign(ctx context.Context, id, assignee string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE leads SET assigned_to = $2, updated_at = NOW() WHERE id = $1`, id, assignee)
	if err != nil {
		return fmt.Errorf("failed to assign lead %s: %w", id, err)
	}

	return checkLeadFound(result)
}

func (r *LeadRepository) UpdateTags(ctx context.Context, id string, tags []string) error {
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE leads SET tags = $2, updated_at = NOW() WHERE id = $1`, id, tagsJSON)
	if err != nil {
		return fmt.Errorf("failed to update tags for lead %s: %w", id, err)
	}

	return checkLeadFound(result)
}

func scanLead(row rowScanner) (*models.Lead, error) {
	var (
		lead       models.Lead
		tagsJSON   []byte
		fieldsJSON []byte
	)

	err := row.Scan(
		&lead.ID,
		&lead.Name,
		&lead.Phone,
		&lead.Email,
		&lead.Channel,
		&lead.Status,
		&lead.AssignedTo,
		&tagsJSON,
		&lead.Source,
		&lead.LoanType,
		&lead.LoanAmount,
		&fieldsJSON,
		&lead.CreatedAt,
		&lead.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(tagsJSON, &lead.Tags); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tags: %w", err)
	}

	if err := json.Unmarshal(fieldsJSON, &lead.Fields); err != nil {
		return nil, fmt.Errorf("failed to unmarshal fields: %w", err)
	}

	return &lead, nil
}

func checkLeadFound(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}

	if affected == 0 {
		return persistence.ErrLeadNotFound
	}

	return nil
}
