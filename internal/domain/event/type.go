package event

// Type identifies the type of lifecycle event
type Type string

const (
	TypeSubmitted    Type = "requisition.submitted"
	TypeApproved     Type = "requisition.approved"
	TypeRejected     Type = "requisition.rejected"
	TypePaid         Type = "requisition.paid"
	TypeStepReminder Type = "requisition.step_reminder"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeSubmitted, TypeApproved, TypeRejected, TypePaid, TypeStepReminder:
		return true
	default:
		return false
	}
}
