// Package status defines the requisition status graph. It is pure and side
// effect free; the lifecycle service consults it before every transition and
// never bypasses it.
package status

// Status represents a requisition status in the approval lifecycle
type Status string

const (
	StatusDraft       Status = "DRAFT"
	StatusSubmitted   Status = "SUBMITTED"
	StatusUnderReview Status = "UNDER_REVIEW"
	StatusApproved    Status = "APPROVED"
	StatusRejected    Status = "REJECTED"
	StatusPaid        Status = "PAID"
	StatusClosed      Status = "CLOSED"
)

var validStatuses = map[Status]bool{
	StatusDraft:       true,
	StatusSubmitted:   true,
	StatusUnderReview: true,
	StatusApproved:    true,
	StatusRejected:    true,
	StatusPaid:        true,
	StatusClosed:      true,
}

var terminalStatuses = map[Status]bool{
	StatusRejected: true,
	StatusClosed:   true,
}

// String returns the string representation of the status
func (s Status) String() string {
	return string(s)
}

// IsValid returns true if the status is one of the defined lifecycle statuses
func (s Status) IsValid() bool {
	return validStatuses[s]
}

// IsTerminal returns true if the status has no outgoing transitions
func (s Status) IsTerminal() bool {
	return terminalStatuses[s]
}
