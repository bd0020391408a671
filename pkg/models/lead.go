// Package models defines the core domain models for the lead automation engine.
package models

import "time"

// LeadStatus represents the pipeline stage of a lead.
type LeadStatus string

const (
	LeadStatusNew        LeadStatus = "NEW"
	LeadStatusContacted  LeadStatus = "CONTACTED"
	LeadStatusInterested LeadStatus = "INTERESTED"
	LeadStatusQualified  LeadStatus = "QUALIFIED"
	LeadStatusConverted  LeadStatus = "CONVERTED"
	LeadStatusLost       LeadStatus = "LOST"
)

// Lead is a single CRM record. Leads are the target collection workflows
// resolve against and the record mutated by most action types.
type Lead struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"       validate:"required"`
	Phone      string         `json:"phone"`
	Email      string         `json:"email"`
	Channel    string         `json:"channel"` // preferred contact channel (whatsapp, sms)
	Status     LeadStatus     `json:"status"`
	AssignedTo string         `json:"assigned_to,omitempty"`
	Tags       []string       `json:"tags,omitempty"`
	Source     string         `json:"source,omitempty"`
	LoanType   string         `json:"loan_type,omitempty"`
	LoanAmount float64        `json:"loan_amount,omitempty"`
	Fields     map[string]any `json:"fields,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// Record flattens the lead into a generic field map for condition matching
// and message template interpolation. Custom fields never shadow the
// built-in columns.
func (l *Lead) Record() map[string]any {
	record := make(map[string]any, len(l.Fields)+10)

	for k, v := range l.Fields {
		record[k] = v
	}

	record["id"] = l.ID
	record["name"] = l.Name
	record["phone"] = l.Phone
	record["email"] = l.Email
	record["channel"] = l.Channel
	record["status"] = string(l.Status)
	record["assignedTo"] = l.AssignedTo
	record["tags"] = l.Tags
	record["source"] = l.Source
	record["loanType"] = l.LoanType
	record["loanAmount"] = l.LoanAmount

	return record
}
