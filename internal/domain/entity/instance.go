package entity

import "time"

// DocumentWorkflow is the live execution of a definition for one submitted document
type DocumentWorkflow struct {
	ID               int64        `json:"id"`
	CompanyID        int64        `json:"company_id"`
	DefinitionID     int64        `json:"definition_id"`
	DocumentType     DocumentKind `json:"document_type"`
	DocumentID       int64        `json:"document_id"`
	Amount           *float64     `json:"amount"`
	CurrentStepOrder int          `json:"current_step_order"`
	Status           string       `json:"status"`
	AssignedTo       int64        `json:"assigned_to"`
	SubmittedBy      int64        `json:"submitted_by"`
	Version          int          `json:"-"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
	CompletedAt      *time.Time   `json:"completed_at,omitempty"`
}

// IsTerminal reports whether no further action may be processed on the instance.
func (w *DocumentWorkflow) IsTerminal() bool {
	return w.Status != InstanceStatusPending
}

// PendingApproval is a row of the "My Approvals" list
type PendingApproval struct {
	Instance       *DocumentWorkflow `json:"instance"`
	DefinitionName string            `json:"definition_name"`
	DocumentNumber string            `json:"document_number"`
}

// ApprovalReview is everything an approver needs to decide on an instance
type ApprovalReview struct {
	Instance          *DocumentWorkflow `json:"instance"`
	DefinitionName    string            `json:"definition_name"`
	Document          *DocumentSnapshot `json:"document"`
	IsLastStep        bool              `json:"is_last_step"`
	NextStepApprovers []*User           `json:"next_step_approvers"`
	ApprovalLimit     *float64          `json:"approval_limit"`
	AllowedActions    []string          `json:"allowed_actions"`
	Logs              []*WorkflowLog    `json:"logs"`
}
