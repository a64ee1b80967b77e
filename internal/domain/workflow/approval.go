package workflow

import "context"

type finalStepKey struct{}

// WithFinalStep records whether the step being acted on is the last step of its definition.
// The approval machine reads it to decide whether APPROVE completes the instance.
func WithFinalStep(ctx context.Context, final bool) context.Context {
	return context.WithValue(ctx, finalStepKey{}, final)
}

func isFinalStep(ctx context.Context) bool {
	final, _ := ctx.Value(finalStepKey{}).(bool)
	return final
}

func notFinalStep(ctx context.Context) bool {
	return !isFinalStep(ctx)
}

// NewApprovalMachine builds the document approval state machine positioned at initial.
//
//	DRAFT   --SUBMIT-->            PENDING
//	PENDING --APPROVE [not last]--> PENDING (advance step)
//	PENDING --APPROVE [last]-->     APPROVED
//	PENDING --REJECT-->             REJECTED
//	PENDING --RETURN-->             RETURNED
//	PENDING --FORWARD-->            PENDING (reassign)
func NewApprovalMachine(initial State) StateMachine {
	b := NewBuilder()

	b.Configure(StateDraft).
		Permit(TriggerSubmit, StatePending)

	b.Configure(StatePending).
		PermitReentryIf(TriggerApprove, notFinalStep).
		PermitIf(TriggerApprove, StateApproved, isFinalStep).
		Permit(TriggerReject, StateRejected).
		Permit(TriggerReturn, StateReturned).
		PermitReentry(TriggerForward)

	b.Configure(StateApproved)
	b.Configure(StateRejected)
	b.Configure(StateReturned)

	return b.Build(initial)
}
