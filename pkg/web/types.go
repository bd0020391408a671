// Package web provides the HTTP surface: workflow catalog management, lead
// ingestion and execution control.
package web

import "github.com/leadmill/leadmill/pkg/models"

// CreateWorkflowRequest is the request body for creating a workflow.
type CreateWorkflowRequest struct {
	Name       string             `json:"name"       validate:"required,min=3"`
	Active     bool               `json:"active"`
	Trigger    models.Trigger     `json:"trigger"`
	Conditions []models.Condition `json:"conditions,omitempty"`
	Actions    []models.Action    `json:"actions"    validate:"required,min=1"`
}

func (r *CreateWorkflowRequest) toModel() *models.Workflow {
	return &models.Workflow{
		Name:       r.Name,
		Active:     r.Active,
		Trigger:    r.Trigger,
		Conditions: r.Conditions,
		Actions:    r.Actions,
	}
}

// ToggleWorkflowRequest flips a workflow's active flag.
type ToggleWorkflowRequest struct {
	Active *bool `json:"active" validate:"required"`
}

// ExecuteWorkflowRequest optionally carries a payload for condition value
// interpolation, mirroring what an event trigger would provide.
type ExecuteWorkflowRequest struct {
	Payload map[string]any `json:"payload,omitempty"`
}

// ExecuteWorkflowResponse returns the ID of the started run.
type ExecuteWorkflowResponse struct {
	ExecutionID string `json:"execution_id"`
}

// CreateLeadRequest is the request body for creating a lead.
type CreateLeadRequest struct {
	Name       string         `json:"name"        validate:"required"`
	Phone      string         `json:"phone"`
	Email      string         `json:"email"       validate:"omitempty,email"`
	Channel    string         `json:"channel"`
	Source     string         `json:"source"`
	LoanType   string         `json:"loan_type"`
	LoanAmount float64        `json:"loan_amount" validate:"min=0"`
	Tags       []string       `json:"tags,omitempty"`
	Fields     map[string]any `json:"fields,omitempty"`
}

func (r *CreateLeadRequest) toModel() *models.Lead {
	return &models.Lead{
		Name:       r.Name,
		Phone:      r.Phone,
		Email:      r.Email,
		Channel:    r.Channel,
		Source:     r.Source,
		LoanType:   r.LoanType,
		LoanAmount: r.LoanAmount,
		Tags:       r.Tags,
		Fields:     r.Fields,
	}
}

// UpdateLeadStatusRequest moves a lead to another pipeline stage.
type UpdateLeadStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=NEW CONTACTED INTERESTED QUALIFIED CONVERTED LOST"`
}

// AssignLeadRequest assigns a lead to an agent.
type AssignLeadRequest struct {
	Assignee string `json:"assignee" validate:"required"`
}

// InboundMessageRequest records a message received from a lead.
type InboundMessageRequest struct {
	Channel string `json:"channel" validate:"required"`
	Content string `json:"content" validate:"required"`
}
