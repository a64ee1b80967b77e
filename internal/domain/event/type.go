package event

// Type identifies the type of domain event
type Type string

const (
	TypeInstanceSubmitted    Type = "instance.submitted"
	TypeInstanceAdvanced     Type = "instance.advanced"
	TypeInstanceForwarded    Type = "instance.forwarded"
	TypeInstanceApproved     Type = "instance.approved"
	TypeInstanceRejected     Type = "instance.rejected"
	TypeInstanceReturned     Type = "instance.returned"
	TypeDocumentAutoApproved Type = "document.auto_approved"
)

// AllTypes lists every event type the engine publishes
func AllTypes() []Type {
	return []Type{
		TypeInstanceSubmitted,
		TypeInstanceAdvanced,
		TypeInstanceForwarded,
		TypeInstanceApproved,
		TypeInstanceRejected,
		TypeInstanceReturned,
		TypeDocumentAutoApproved,
	}
}

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeInstanceSubmitted,
		TypeInstanceAdvanced,
		TypeInstanceForwarded,
		TypeInstanceApproved,
		TypeInstanceRejected,
		TypeInstanceReturned,
		TypeDocumentAutoApproved:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the event marks the end of an instance
func (t Type) IsTerminal() bool {
	switch t {
	case TypeInstanceApproved, TypeInstanceRejected, TypeInstanceReturned:
		return true
	default:
		return false
	}
}
