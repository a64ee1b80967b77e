package workflow

// State represents the status of a document workflow instance
type State string

const (
	StateDraft    State = "DRAFT"
	StatePending  State = "PENDING"
	StateApproved State = "APPROVED"
	StateRejected State = "REJECTED"
	StateReturned State = "RETURNED"
)

var validStates = map[State]bool{
	StateDraft:    true,
	StatePending:  true,
	StateApproved: true,
	StateRejected: true,
	StateReturned: true,
}

var terminalStates = map[State]bool{
	StateApproved: true,
	StateRejected: true,
	StateReturned: true,
}

// IsTerminal returns true if no further action may be processed from the state
func (s State) IsTerminal() bool {
	return terminalStates[s]
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state is a known instance state
func (s State) IsValid() bool {
	return validStates[s]
}
