package workflow

import (
	"context"

	"github.com/garyjia/erp-workflow/internal/domain/entity"
)

// Engine drives documents through their approval workflows
type Engine interface {
	// Submit selects a workflow for the document and opens an instance at step 1,
	// or auto-approves / marks the document submitted when no workflow applies.
	Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error)

	// ProcessAction applies APPROVE, REJECT or RETURN to the current step of an instance
	ProcessAction(ctx context.Context, req ActionRequest) (*ActionResult, error)

	// Delegate reassigns the current step to another approver of the same step
	Delegate(ctx context.Context, req DelegateRequest) (*ActionResult, error)
}

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// SubmitRequest asks for a document to enter approval
type SubmitRequest struct {
	CompanyID    int64
	Kind         entity.DocumentKind
	DocumentID   int64
	SubmittedBy  int64
	Amount       *float64 // defaults to the document's stored amount
	WorkflowID   *int64   // explicit definition override
	TargetUserID *int64   // first-step assignee override
	Comments     string
}

// SubmitResult reports the outcome of a submission. InstanceID is nil when no instance was opened.
type SubmitResult struct {
	InstanceID *int64 `json:"instance_id,omitempty"`
	Status     string `json:"status"`
}

// ActionRequest is an approver decision on the current step
type ActionRequest struct {
	CompanyID    int64
	InstanceID   int64
	ActorID      int64
	Action       string
	Comments     string
	TargetUserID *int64 // next-step assignee override on non-final APPROVE
}

// DelegateRequest forwards the current step to another approver
type DelegateRequest struct {
	CompanyID    int64
	InstanceID   int64
	ActorID      int64
	TargetUserID int64
	Comments     string
}

// ActionResult is the instance state after a transition
type ActionResult struct {
	InstanceID       int64  `json:"instance_id"`
	Status           string `json:"status"`
	CurrentStepOrder int    `json:"current_step_order"`
	AssignedTo       int64  `json:"assigned_to"`
}

func resultOf(inst *entity.DocumentWorkflow) *ActionResult {
	return &ActionResult{
		InstanceID:       inst.ID,
		Status:           inst.Status,
		CurrentStepOrder: inst.CurrentStepOrder,
		AssignedTo:       inst.AssignedTo,
	}
}
