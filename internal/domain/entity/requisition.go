package entity

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/reqflow/requisition-service/internal/domain/status"
)

// Urgency is the requested priority of a requisition. It is informational
// only and never influences the lifecycle path.
type Urgency string

const (
	UrgencyLow      Urgency = "LOW"
	UrgencyMedium   Urgency = "MEDIUM"
	UrgencyHigh     Urgency = "HIGH"
	UrgencyCritical Urgency = "CRITICAL"
)

var validUrgencies = map[Urgency]bool{
	UrgencyLow:      true,
	UrgencyMedium:   true,
	UrgencyHigh:     true,
	UrgencyCritical: true,
}

// IsValid returns true if the urgency is one of the defined levels
func (u Urgency) IsValid() bool {
	return validUrgencies[u]
}

// Requisition represents a request for funds moving through the approval
// lifecycle. Free-form edits are legal only while the status is DRAFT; all
// later mutations go through the lifecycle service.
//
// ApprovedCost is set only on the transition into APPROVED, ActualCostPaid
// only on the transition into PAID, and ClosedAt only on the transition into
// CLOSED. Requisitions are never deleted; terminal ones are retained for
// audit purposes.
type Requisition struct {
	ID            int64            `json:"id"`
	Title         string           `json:"title"`
	Category      string           `json:"category"`
	Description   string           `json:"description"`
	EstimatedCost decimal.Decimal  `json:"estimated_cost"`
	Currency      string           `json:"currency"`
	Urgency       Urgency          `json:"urgency"`
	Justification string           `json:"justification"`
	Status        status.Status    `json:"status"`
	SubmitterID   string           `json:"submitter_id"`
	DepartmentID  int64            `json:"department_id"`
	ApprovedCost  *decimal.Decimal `json:"approved_cost,omitempty"`

	ActualCostPaid   *decimal.Decimal `json:"actual_cost_paid,omitempty"`
	PaymentMethod    *string          `json:"payment_method,omitempty"`
	PaymentReference *string          `json:"payment_reference,omitempty"`
	PaymentDate      *time.Time       `json:"payment_date,omitempty"`
	PaymentComment   *string          `json:"payment_comment,omitempty"`

	ClosedAt  *time.Time `json:"closed_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}
