// Package services holds the application services behind the HTTP API: the
// workflow catalog with definition-time validation and live trigger
// synchronization, and the lead service that persists CRM mutations and
// announces them as domain events.
package services

import (
	"errors"

	"github.com/leadmill/leadmill/pkg/models"
	"github.com/leadmill/leadmill/pkg/persistence"
	"github.com/leadmill/leadmill/pkg/triggers"
)

// Validation errors surface synchronously at definition time; a workflow with
// a broken definition is never registered.
var (
	ErrInvalidDefinition = errors.New("invalid workflow definition")
	ErrWorkflowNotFound  = persistence.ErrWorkflowNotFound
	ErrLeadNotFound      = persistence.ErrLeadNotFound
	ErrTaskNotFound      = persistence.ErrTaskNotFound
)

// IsValidationError reports whether an error should map to HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidDefinition) ||
		errors.Is(err, triggers.ErrInvalidSchedule) ||
		errors.Is(err, models.ErrTriggerVariant) ||
		errors.Is(err, models.ErrTriggerType)
}
