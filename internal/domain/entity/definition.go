package entity

import "time"

// WorkflowDefinition is an approval template for one document kind within an amount range
type WorkflowDefinition struct {
	ID              int64           `json:"id"`
	CompanyID       int64           `json:"company_id"`
	Name            string          `json:"name"`
	DocumentType    DocumentKind    `json:"document_type"`
	DocumentRoute   string          `json:"document_route,omitempty"`
	MinAmount       *float64        `json:"min_amount"`
	MaxAmount       *float64        `json:"max_amount"`
	IsActive        bool            `json:"is_active"`
	DefaultBehavior string          `json:"default_behavior"`
	Priority        int             `json:"priority"`
	Steps           []*WorkflowStep `json:"steps,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// WorkflowStep is one sequential stage of a definition
type WorkflowStep struct {
	ID            int64           `json:"id"`
	DefinitionID  int64           `json:"definition_id"`
	StepOrder     int             `json:"step_order"`
	Name          string          `json:"name"`
	IsMandatory   bool            `json:"is_mandatory"`
	ApprovalLimit *float64        `json:"approval_limit"`
	Approvers     []*StepApprover `json:"approvers"`
}

// StepApprover links a user to a step. Position 0 is the primary approver.
type StepApprover struct {
	StepID   int64  `json:"step_id,omitempty"`
	UserID   int64  `json:"user_id"`
	Username string `json:"username,omitempty"`
	Position int    `json:"position"`
}

// MatchesAmount reports whether amount falls inside [MinAmount, MaxAmount].
// A nil amount matches every range and a nil bound is unbounded on that side.
func (d *WorkflowDefinition) MatchesAmount(amount *float64) bool {
	if amount == nil {
		return true
	}
	if d.MinAmount != nil && *amount < *d.MinAmount {
		return false
	}
	if d.MaxAmount != nil && *amount > *d.MaxAmount {
		return false
	}
	return true
}

// FirstStep returns the step with the lowest order, or nil.
func (d *WorkflowDefinition) FirstStep() *WorkflowStep {
	var first *WorkflowStep
	for _, s := range d.Steps {
		if first == nil || s.StepOrder < first.StepOrder {
			first = s
		}
	}
	return first
}

// PrimaryApprover returns the first approver of the step, or 0 when none is configured.
func (s *WorkflowStep) PrimaryApprover() int64 {
	var primary *StepApprover
	for _, a := range s.Approvers {
		if primary == nil || a.Position < primary.Position {
			primary = a
		}
	}
	if primary == nil {
		return 0
	}
	return primary.UserID
}

// HasApprover reports whether userID is one of the step's approvers.
func (s *WorkflowStep) HasApprover(userID int64) bool {
	for _, a := range s.Approvers {
		if a.UserID == userID {
			return true
		}
	}
	return false
}

// ExceedsLimit reports whether amount is above the step's approval limit.
func (s *WorkflowStep) ExceedsLimit(amount *float64) bool {
	if s.ApprovalLimit == nil || amount == nil {
		return false
	}
	return *amount > *s.ApprovalLimit
}

// StepByOrder returns the step with the given order, or nil.
func (d *WorkflowDefinition) StepByOrder(order int) *WorkflowStep {
	for _, s := range d.Steps {
		if s.StepOrder == order {
			return s
		}
	}
	return nil
}

// LastStepOrder returns the highest step order of the definition.
func (d *WorkflowDefinition) LastStepOrder() int {
	last := 0
	for _, s := range d.Steps {
		if s.StepOrder > last {
			last = s.StepOrder
		}
	}
	return last
}
