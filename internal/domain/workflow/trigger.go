package workflow

// Trigger represents an approver or submitter action that can cause a transition
type Trigger string

const (
	TriggerSubmit  Trigger = "SUBMIT"
	TriggerApprove Trigger = "APPROVE"
	TriggerReject  Trigger = "REJECT"
	TriggerReturn  Trigger = "RETURN"
	TriggerForward Trigger = "FORWARD"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}

// ParseTrigger maps an action name to its trigger
func ParseTrigger(action string) (Trigger, bool) {
	switch t := Trigger(action); t {
	case TriggerSubmit, TriggerApprove, TriggerReject, TriggerReturn, TriggerForward:
		return t, true
	default:
		return "", false
	}
}
