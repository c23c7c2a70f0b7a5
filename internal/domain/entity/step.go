package entity

import "time"

// StepStatus is the resolution state of a single approval step
type StepStatus string

const (
	StepPending  StepStatus = "PENDING"
	StepApproved StepStatus = "APPROVED"
	StepRejected StepStatus = "REJECTED"
)

// ApprovalStep is one ordered, role-scoped approval task within a
// requisition's workflow. Steps for one requisition form a total order by
// StepNumber (1-based, dense). Step N may only be resolved while step N-1 is
// APPROVED; once any step is REJECTED the chain is halted and later steps
// stay PENDING forever as intentional history.
type ApprovalStep struct {
	ID             int64      `json:"id"`
	RequisitionID  int64      `json:"requisition_id"`
	StepNumber     int        `json:"step_number"`
	RequiredRole   Role       `json:"required_role"`
	AssignedUserID *string    `json:"assigned_user_id,omitempty"`
	Status         StepStatus `json:"status"`
	Comment        *string    `json:"comment,omitempty"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// IsResolved returns true once the step has been approved or rejected
func (s *ApprovalStep) IsResolved() bool {
	return s.Status != StepPending
}
