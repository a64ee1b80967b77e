package entity

// Status constants for DocumentWorkflow
const (
	InstanceStatusPending  = "PENDING"
	InstanceStatusApproved = "APPROVED"
	InstanceStatusRejected = "REJECTED"
	InstanceStatusReturned = "RETURNED"
)

// Document status constants written back to business documents
const (
	DocumentStatusDraft     = "DRAFT"
	DocumentStatusSubmitted = "SUBMITTED"
	DocumentStatusApproved  = "APPROVED"
	DocumentStatusRejected  = "REJECTED"
	DocumentStatusReturned  = "RETURNED"
)

// Action constants recorded in workflow_logs
const (
	ActionSubmit  = "SUBMIT"
	ActionApprove = "APPROVE"
	ActionReject  = "REJECT"
	ActionReturn  = "RETURN"
	ActionForward = "FORWARD"
)

// Default behavior when no active definition matches a document
const (
	DefaultBehaviorAutoApprove = "AUTO_APPROVE"
	DefaultBehaviorBlock       = "BLOCK"
)

// IsDecisionAction reports whether action is one an approver may take on a step.
func IsDecisionAction(action string) bool {
	switch action {
	case ActionApprove, ActionReject, ActionReturn:
		return true
	default:
		return false
	}
}

// RequiresComment reports whether the action must carry a non-empty comment.
func RequiresComment(action string) bool {
	return action == ActionReject || action == ActionReturn
}
